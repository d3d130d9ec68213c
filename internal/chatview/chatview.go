// Package chatview turns stored chats and messages into the viewer-relative
// shapes returned by the HTTP API and pushed over the realtime channel.
package chatview

import (
	"sort"
	"time"

	"hearth/internal/models"
)

// TimeLayout is the clock format used for FormattedMessage.FormattedTime.
const TimeLayout = "3:04 PM"

// Sender is the public identity attached to a message.
type Sender struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// FormattedMessage is a message as seen by one viewer.
type FormattedMessage struct {
	MessageID     uint      `json:"messageId"`
	Content       string    `json:"content"`
	Sender        Sender    `json:"sender"`
	Timestamp     time.Time `json:"timestamp"`
	FormattedTime string    `json:"formattedTime"`
	IsRead        bool      `json:"isRead"`
	Read          []uint    `json:"read"`
}

// ChatSummary is one row of a viewer's chat list.
type ChatSummary struct {
	ChatID      uint              `json:"chatId"`
	ChatName    string            `json:"chatName"`
	LastMessage *FormattedMessage `json:"lastMessage,omitempty"`
	UnreadCount int               `json:"unreadCount"`
	IsGroupChat bool              `json:"isGroupChat"`
	GroupName   string            `json:"groupName,omitempty"`
}

// ChatDetail is a full chat with its messages in display order.
type ChatDetail struct {
	ChatSummary
	Participants []Sender           `json:"participants"`
	Messages     []FormattedMessage `json:"messages"`
}

func senderOf(u *models.User, id uint) Sender {
	if u == nil {
		return Sender{ID: id}
	}
	return Sender{ID: u.ID, Name: u.DisplayName(), Username: u.Username}
}

// FormatMessage renders msg for viewerID.
func FormatMessage(msg *models.Message, viewerID uint) FormattedMessage {
	read := msg.ReadBy()
	return FormattedMessage{
		MessageID:     msg.ID,
		Content:       msg.Content,
		Sender:        senderOf(msg.Sender, msg.SenderID),
		Timestamp:     msg.CreatedAt,
		FormattedTime: msg.CreatedAt.Format(TimeLayout),
		IsRead:        msg.IsReadBy(viewerID),
		Read:          read,
	}
}

// chatName is the group name for group chats and the counterpart's
// display name for direct chats.
func chatName(chat *models.Chat, viewerID uint) string {
	if chat.IsGroupChat {
		return chat.GroupName
	}
	for i := range chat.Participants {
		if chat.Participants[i].ID != viewerID {
			return chat.Participants[i].DisplayName()
		}
	}
	return ""
}

func isUnread(m *models.Message, viewerID uint) bool {
	return m.SenderID != viewerID && !m.IsReadBy(viewerID)
}

// UnreadCount counts messages in chat sent by others and not read by viewerID.
func UnreadCount(chat *models.Chat, viewerID uint) int {
	n := 0
	for i := range chat.Messages {
		if isUnread(&chat.Messages[i], viewerID) {
			n++
		}
	}
	return n
}

// FormatChatSummary renders chat as a list row for viewerID.
func FormatChatSummary(chat *models.Chat, viewerID uint) ChatSummary {
	s := ChatSummary{
		ChatID:      chat.ID,
		ChatName:    chatName(chat, viewerID),
		UnreadCount: UnreadCount(chat, viewerID),
		IsGroupChat: chat.IsGroupChat,
	}
	if chat.IsGroupChat {
		s.GroupName = chat.GroupName
	}
	last := chat.LastMessage
	if last == nil && len(chat.Messages) > 0 {
		last = &chat.Messages[len(chat.Messages)-1]
	}
	if last != nil {
		fm := FormatMessage(last, viewerID)
		s.LastMessage = &fm
	}
	return s
}

// SortMessagesForViewer formats msgs for viewerID in ascending timestamp
// order. Messages with equal timestamps keep their input order.
func SortMessagesForViewer(msgs []models.Message, viewerID uint) []FormattedMessage {
	out := make([]FormattedMessage, 0, len(msgs))
	for i := range msgs {
		out = append(out, FormatMessage(&msgs[i], viewerID))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// FormatChatDetail renders chat with every message for viewerID.
func FormatChatDetail(chat *models.Chat, viewerID uint) ChatDetail {
	d := ChatDetail{
		ChatSummary:  FormatChatSummary(chat, viewerID),
		Participants: make([]Sender, 0, len(chat.Participants)),
		Messages:     SortMessagesForViewer(chat.Messages, viewerID),
	}
	for i := range chat.Participants {
		p := &chat.Participants[i]
		d.Participants = append(d.Participants, senderOf(p, p.ID))
	}
	return d
}

// SelectUnreadSummaries keeps, per chat, only the messages viewerID has not
// read, drops chats left empty, and summarizes the rest with the last
// unread message as LastMessage.
func SelectUnreadSummaries(chats []*models.Chat, viewerID uint) []ChatSummary {
	out := make([]ChatSummary, 0)
	for _, chat := range chats {
		var unread []models.Message
		for i := range chat.Messages {
			if isUnread(&chat.Messages[i], viewerID) {
				unread = append(unread, chat.Messages[i])
			}
		}
		if len(unread) == 0 {
			continue
		}
		view := *chat
		view.Messages = unread
		view.LastMessage = &unread[len(unread)-1]
		out = append(out, FormatChatSummary(&view, viewerID))
	}
	return out
}
