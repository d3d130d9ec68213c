package service

import (
	"context"

	"hearth/internal/chatview"
	"hearth/internal/events"
	"hearth/internal/models"
	"hearth/internal/observability"
	"hearth/internal/repository"
	"hearth/internal/validation"
)

// ChatService serves the chat HTTP endpoints and is the persistence backend
// of the realtime delivery layer.
type ChatService struct {
	chats     repository.ChatRepository
	users     repository.UserRepository
	publisher events.Publisher
}

func NewChatService(chats repository.ChatRepository, users repository.UserRepository, publisher events.Publisher) *ChatService {
	return &ChatService{chats: chats, users: users, publisher: publisher}
}

func (s *ChatService) ListChats(ctx context.Context, userID uint) ([]chatview.ChatSummary, error) {
	chats, err := s.chats.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]chatview.ChatSummary, 0, len(chats))
	for _, c := range chats {
		out = append(out, chatview.FormatChatSummary(c, userID))
	}
	return out, nil
}

// UnreadChats returns the summaries of the user's chats that have unread
// messages.
func (s *ChatService) UnreadChats(ctx context.Context, userID uint) ([]chatview.ChatSummary, error) {
	chats, err := s.chats.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return chatview.SelectUnreadSummaries(chats, userID), nil
}

func (s *ChatService) GetChat(ctx context.Context, chatID, userID uint) (*chatview.ChatDetail, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(userID) {
		return nil, models.NewForbiddenError("You are not a participant in this chat")
	}
	detail := chatview.FormatChatDetail(chat, userID)
	return &detail, nil
}

// MarkChatRead adds userID to the read set of every message in the chat it
// did not send. It returns how many messages changed.
func (s *ChatService) MarkChatRead(ctx context.Context, chatID, userID uint) (int64, error) {
	if err := s.CheckParticipant(ctx, chatID, userID); err != nil {
		return 0, err
	}

	n, err := s.chats.MarkChatRead(ctx, chatID, userID)
	if err != nil {
		return 0, err
	}
	observability.ChatReadMarks.Add(float64(n))
	return n, nil
}

// CheckParticipant returns NotFound for an unknown chat and Forbidden when
// userID is not in it.
func (s *ChatService) CheckParticipant(ctx context.Context, chatID, userID uint) error {
	ok, err := s.chats.IsParticipant(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := s.chats.GetByID(ctx, chatID); err != nil {
		return err
	}
	return models.NewForbiddenError("You are not a participant in this chat")
}

// OpenDirectChat returns the direct chat between two users, creating it on
// first use.
func (s *ChatService) OpenDirectChat(ctx context.Context, userID, otherID uint) (*chatview.ChatDetail, error) {
	if userID == otherID {
		return nil, models.NewValidationError("You cannot open a chat with yourself")
	}
	if _, err := s.users.GetByID(ctx, otherID); err != nil {
		return nil, err
	}
	chat, err := s.DirectChat(ctx, userID, otherID)
	if err != nil {
		return nil, err
	}
	full, err := s.chats.GetByID(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	detail := chatview.FormatChatDetail(full, userID)
	return &detail, nil
}

// UserGroupIDs returns the groups whose rooms a connecting user joins.
func (s *ChatService) UserGroupIDs(ctx context.Context, userID uint) ([]uint, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.users.GroupIDs(ctx, userID)
}

// DirectChat finds or creates the unique direct chat between a and b.
func (s *ChatService) DirectChat(ctx context.Context, a, b uint) (*models.Chat, error) {
	chat, err := s.chats.FindDirect(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if chat != nil {
		return chat, nil
	}
	for _, id := range []uint{a, b} {
		if _, err := s.users.GetByID(ctx, id); err != nil {
			return nil, err
		}
	}
	return s.chats.CreateDirect(ctx, a, b)
}

// GroupChat returns the chat paired with groupID.
func (s *ChatService) GroupChat(ctx context.Context, groupID uint) (*models.Chat, error) {
	chat, err := s.chats.FindByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, models.NewNotFoundError("Group chat", groupID)
	}
	return chat, nil
}

// AppendMessage stores a message from senderID. readBy lists the users who
// already count as having read it; the sender always does.
func (s *ChatService) AppendMessage(ctx context.Context, chat *models.Chat, senderID uint, content string, readBy []uint) (*models.Message, error) {
	if err := validation.ValidateContent("content", content, validation.MaxMessageLength); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	msg := &models.Message{SenderID: senderID, Content: content}
	if err := s.chats.AppendMessage(ctx, chat.ID, msg, readBy); err != nil {
		return nil, err
	}

	kind := "direct"
	if chat.IsGroupChat {
		kind = "group"
	}
	observability.MessagesSent.WithLabelValues(kind).Inc()
	events.Emit(ctx, s.publisher, events.ChatMessageSent, map[string]any{
		"chatId":    chat.ID,
		"messageId": msg.ID,
		"senderId":  senderID,
		"kind":      kind,
	})
	return msg, nil
}
