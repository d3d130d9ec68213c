package models

import "time"

// Group is a user community. Every group is paired with one group Chat.
type Group struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null;index" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Avatar      string    `json:"avatar"`
	CreatorID   uint      `gorm:"not null;index" json:"creator_id"`
	Creator     *User     `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Admins      []User    `gorm:"many2many:group_admins" json:"admins"`
	Members     []User    `gorm:"many2many:group_members" json:"members"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	ChatID *uint `gorm:"-" json:"chat_id,omitempty"`
}

// HasMember reports whether userID is in the loaded Members list.
func (g *Group) HasMember(userID uint) bool {
	for _, m := range g.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// HasAdmin reports whether userID is in the loaded Admins list.
func (g *Group) HasAdmin(userID uint) bool {
	for _, a := range g.Admins {
		if a.ID == userID {
			return true
		}
	}
	return false
}

// MemberIDs returns the ids of the loaded members.
func (g *Group) MemberIDs() []uint {
	ids := make([]uint, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.ID)
	}
	return ids
}
