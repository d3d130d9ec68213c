package models

import (
	"fmt"
	"time"
)

// Chat is a conversation: either direct between two users or the group
// conversation paired with a Group.
type Chat struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	IsGroupChat  bool      `gorm:"not null;default:false" json:"is_group_chat"`
	GroupID      *uint     `gorm:"uniqueIndex" json:"group_id,omitempty"`
	GroupName    string    `json:"group_name,omitempty"`
	DirectKey    *string   `gorm:"size:64;uniqueIndex" json:"-"`
	Participants []User    `gorm:"many2many:chat_participants" json:"participants,omitempty"`
	Messages     []Message `gorm:"foreignKey:ChatID" json:"messages,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// LastMessageID is denormalized for list views; the message itself is
	// resolved by the repository.
	LastMessageID *uint    `json:"last_message_id,omitempty"`
	LastMessage   *Message `gorm:"-" json:"last_message,omitempty"`
}

// Message is a chat message. Reads holds the set of users who have read it.
type Message struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	ChatID    uint          `gorm:"not null;index" json:"chat_id"`
	SenderID  uint          `gorm:"not null;index" json:"sender_id"`
	Sender    *User         `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Content   string        `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time     `gorm:"index" json:"created_at"`
	Reads     []MessageRead `gorm:"foreignKey:MessageID" json:"-"`
}

// MessageRead records that UserID has read MessageID.
type MessageRead struct {
	MessageID uint      `gorm:"primaryKey;autoIncrement:false" json:"message_id"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// DirectChatKey is the unordered-pair key that makes direct chats unique.
func DirectChatKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// ReadBy returns the ids of users who have read the message.
func (m *Message) ReadBy() []uint {
	ids := make([]uint, 0, len(m.Reads))
	for _, r := range m.Reads {
		ids = append(ids, r.UserID)
	}
	return ids
}

// IsReadBy reports whether userID is in the read set.
func (m *Message) IsReadBy(userID uint) bool {
	for _, r := range m.Reads {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// HasParticipant reports whether userID is among the loaded participants.
func (c *Chat) HasParticipant(userID uint) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// ParticipantIDs returns the ids of the loaded participants.
func (c *Chat) ParticipantIDs() []uint {
	ids := make([]uint, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}
