package repository

import (
	"context"
	"errors"
	"time"

	"hearth/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatRepository stores direct and group chats, their messages and the
// per-message read sets.
type ChatRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Chat, error)
	ListForUser(ctx context.Context, userID uint) ([]*models.Chat, error)
	IsParticipant(ctx context.Context, chatID, userID uint) (bool, error)
	// FindDirect returns nil, nil when the pair has no chat yet.
	FindDirect(ctx context.Context, a, b uint) (*models.Chat, error)
	// CreateDirect creates the chat for the pair, or returns the existing one
	// if another writer created it first.
	CreateDirect(ctx context.Context, a, b uint) (*models.Chat, error)
	// FindByGroup returns nil, nil when the group has no chat.
	FindByGroup(ctx context.Context, groupID uint) (*models.Chat, error)
	CreateGroupChat(ctx context.Context, group *models.Group, participantIDs []uint) (*models.Chat, error)
	DeleteChat(ctx context.Context, id uint) error
	AddParticipant(ctx context.Context, chatID, userID uint) error
	RemoveParticipant(ctx context.Context, chatID, userID uint) error
	// AppendMessage stores msg in the chat with the given read set (the
	// sender is always included) and makes it the chat's last message.
	AppendMessage(ctx context.Context, chatID uint, msg *models.Message, readBy []uint) error
	// MarkChatRead adds userID to the read set of every message in the chat
	// not sent by userID and returns how many messages changed.
	MarkChatRead(ctx context.Context, chatID, userID uint) (int64, error)
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository returns the relational ChatRepository.
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

type chatUserRow struct {
	ChatID uint
	UserID uint
}

func preloadChat(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Participants").
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("messages.created_at ASC, messages.id ASC")
		}).
		Preload("Messages.Sender").
		Preload("Messages.Reads")
}

func resolveLastMessage(chat *models.Chat) {
	chat.LastMessage = nil
	if len(chat.Messages) == 0 {
		return
	}
	if chat.LastMessageID != nil {
		for i := range chat.Messages {
			if chat.Messages[i].ID == *chat.LastMessageID {
				chat.LastMessage = &chat.Messages[i]
				return
			}
		}
	}
	chat.LastMessage = &chat.Messages[len(chat.Messages)-1]
}

func (r *chatRepository) GetByID(ctx context.Context, id uint) (*models.Chat, error) {
	var chat models.Chat
	if err := preloadChat(r.db.WithContext(ctx)).First(&chat, id).Error; err != nil {
		return nil, notFoundOr(err, "Chat", id)
	}
	resolveLastMessage(&chat)
	return &chat, nil
}

func (r *chatRepository) ListForUser(ctx context.Context, userID uint) ([]*models.Chat, error) {
	var chats []*models.Chat
	if err := preloadChat(r.db.WithContext(ctx)).
		Joins("JOIN chat_participants cp ON cp.chat_id = chats.id AND cp.user_id = ?", userID).
		Order("chats.updated_at DESC, chats.id DESC").
		Find(&chats).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, c := range chats {
		resolveLastMessage(c)
	}
	return chats, nil
}

func (r *chatRepository) IsParticipant(ctx context.Context, chatID, userID uint) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Table("chat_participants").
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&n).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}

func (r *chatRepository) findOne(ctx context.Context, query string, args ...any) (*models.Chat, error) {
	var chat models.Chat
	if err := r.db.WithContext(ctx).Preload("Participants").Where(query, args...).First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &chat, nil
}

func (r *chatRepository) FindDirect(ctx context.Context, a, b uint) (*models.Chat, error) {
	return r.findOne(ctx, "direct_key = ?", models.DirectChatKey(a, b))
}

func (r *chatRepository) FindByGroup(ctx context.Context, groupID uint) (*models.Chat, error) {
	return r.findOne(ctx, "group_id = ?", groupID)
}

func (r *chatRepository) create(ctx context.Context, chat *models.Chat, participantIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(chat).Error; err != nil {
			return err
		}
		seen := make(map[uint]struct{}, len(participantIDs))
		rows := make([]chatUserRow, 0, len(participantIDs))
		for _, id := range participantIDs {
			if _, ok := seen[id]; ok || id == 0 {
				continue
			}
			seen[id] = struct{}{}
			rows = append(rows, chatUserRow{ChatID: chat.ID, UserID: id})
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Table("chat_participants").Create(&rows).Error
	})
}

func (r *chatRepository) CreateDirect(ctx context.Context, a, b uint) (*models.Chat, error) {
	key := models.DirectChatKey(a, b)
	chat := &models.Chat{DirectKey: &key}
	if err := r.create(ctx, chat, []uint{a, b}); err != nil {
		if isUniqueConstraintError(err) {
			existing, findErr := r.FindDirect(ctx, a, b)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, models.NewInternalError(err)
	}
	return r.findOne(ctx, "id = ?", chat.ID)
}

func (r *chatRepository) CreateGroupChat(ctx context.Context, group *models.Group, participantIDs []uint) (*models.Chat, error) {
	chat := &models.Chat{IsGroupChat: true, GroupID: &group.ID, GroupName: group.Name}
	if err := r.create(ctx, chat, participantIDs); err != nil {
		if isUniqueConstraintError(err) {
			if existing, findErr := r.FindByGroup(ctx, group.ID); findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, models.NewInternalError(err)
	}
	return r.findOne(ctx, "id = ?", chat.ID)
}

func (r *chatRepository) DeleteChat(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stmts := []string{
			"DELETE FROM message_reads WHERE message_id IN (SELECT id FROM messages WHERE chat_id = ?)",
			"DELETE FROM messages WHERE chat_id = ?",
			"DELETE FROM chat_participants WHERE chat_id = ?",
			"DELETE FROM chats WHERE id = ?",
		}
		for _, stmt := range stmts {
			if err := tx.Exec(stmt, id).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *chatRepository) AddParticipant(ctx context.Context, chatID, userID uint) error {
	if err := r.db.WithContext(ctx).Table("chat_participants").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&chatUserRow{ChatID: chatID, UserID: userID}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *chatRepository) RemoveParticipant(ctx context.Context, chatID, userID uint) error {
	if err := r.db.WithContext(ctx).
		Exec("DELETE FROM chat_participants WHERE chat_id = ? AND user_id = ?", chatID, userID).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *chatRepository) AppendMessage(ctx context.Context, chatID uint, msg *models.Message, readBy []uint) error {
	now := time.Now().UTC()
	msg.ID = 0
	msg.ChatID = chatID
	msg.CreatedAt = now

	readers := []uint{msg.SenderID}
	for _, id := range readBy {
		if id != msg.SenderID && id != 0 {
			readers = append(readers, id)
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(msg).Error; err != nil {
			return err
		}
		reads := make([]models.MessageRead, 0, len(readers))
		for _, id := range readers {
			reads = append(reads, models.MessageRead{MessageID: msg.ID, UserID: id, CreatedAt: now})
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&reads).Error; err != nil {
			return err
		}
		msg.Reads = reads
		return tx.Model(&models.Chat{}).Where("id = ?", chatID).
			Updates(map[string]any{"last_message_id": msg.ID, "updated_at": now}).Error
	})
	if err != nil {
		return models.NewInternalError(err)
	}

	if msg.Sender == nil {
		var sender models.User
		if err := r.db.WithContext(ctx).First(&sender, msg.SenderID).Error; err == nil {
			msg.Sender = &sender
		}
	}
	return nil
}

const markChatReadSQL = `INSERT INTO message_reads (message_id, user_id, created_at)
SELECT m.id, ?, ? FROM messages m
WHERE m.chat_id = ? AND m.sender_id <> ?
AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = ?)
ON CONFLICT DO NOTHING`

func (r *chatRepository) MarkChatRead(ctx context.Context, chatID, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).Exec(markChatReadSQL, userID, time.Now().UTC(), chatID, userID, userID)
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}
