package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"hearth/internal/chatview"
	"hearth/internal/featureflags"
	"hearth/internal/models"
	"hearth/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const eventTimeout = 5 * time.Second

// ChatBackend is the persistence side of realtime delivery.
type ChatBackend interface {
	UserGroupIDs(ctx context.Context, userID uint) ([]uint, error)
	DirectChat(ctx context.Context, a, b uint) (*models.Chat, error)
	GroupChat(ctx context.Context, groupID uint) (*models.Chat, error)
	AppendMessage(ctx context.Context, chat *models.Chat, senderID uint, content string, readBy []uint) (*models.Message, error)
	CheckParticipant(ctx context.Context, chatID, userID uint) error
	MarkChatRead(ctx context.Context, chatID, userID uint) (int64, error)
}

// Delivery turns inbound socket events into persisted messages and
// outbound room emits.
type Delivery struct {
	hub     *RoomHub
	backend ChatBackend
	tracker ActiveChatTracker
	flags   *featureflags.Manager
	log     *observability.WSLogger
}

func NewDelivery(hub *RoomHub, backend ChatBackend, tracker ActiveChatTracker, flags *featureflags.Manager) *Delivery {
	return &Delivery{
		hub:     hub,
		backend: backend,
		tracker: tracker,
		flags:   flags,
		log:     observability.NewWSLogger("chat"),
	}
}

// Serve registers an authenticated connection and blocks until it closes.
func (d *Delivery) Serve(conn *websocket.Conn, userID uint) error {
	client, err := d.hub.Register(userID, conn)
	if err != nil {
		return err
	}
	client.IncomingHandler = d.Handle
	d.log.LogConnect(context.Background(), userID)

	go client.WritePump()
	client.ReadPump()
	return nil
}

// Handle dispatches one inbound frame.
func (d *Delivery) Handle(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		d.sendError(c, "Invalid message format", CodeBadRequest)
		return
	}
	observability.RecordWebSocketEvent(env.Event)

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	ctx, span := observability.StartWebSocketSpan(ctx, env.Event, c.UserID)

	var err error
	switch env.Event {
	case EventUserConnect:
		err = d.handleConnect(ctx, c, env.Data)
	case EventPrivateMessage, EventGroupMessage, EventEnterChat, EventLeaveChat:
		if !c.identified {
			d.sendError(c, "Send user:connect first", CodeNotIdentified)
			break
		}
		switch env.Event {
		case EventPrivateMessage:
			err = d.handlePrivate(ctx, c, env.Data)
		case EventGroupMessage:
			err = d.handleGroup(ctx, c, env.Data)
		case EventEnterChat:
			err = d.handleEnter(ctx, c, env.Data)
		case EventLeaveChat:
			err = d.handleLeave(ctx, c, env.Data)
		}
	default:
		d.sendError(c, "Unknown event: "+env.Event, CodeUnknownEvent)
	}
	observability.EndSpan(span, err)

	if err != nil {
		d.report(ctx, c, env.Event, err)
	}
}

// report sends client mistakes back and logs everything else.
func (d *Delivery) report(ctx context.Context, c *Client, event string, err error) {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case models.CodeValidation:
			d.sendError(c, appErr.Message, CodeBadRequest)
			return
		case models.CodeForbidden:
			d.sendError(c, appErr.Message, CodeForbidden)
			return
		case models.CodeNotFound:
			d.sendError(c, appErr.Message, CodeNotFound)
			return
		}
	}
	d.log.LogError(ctx, c.UserID, event, err)
}

func (d *Delivery) sendError(c *Client, msg, code string) {
	d.hub.SendTo(c, EventError, ErrorPayload{Message: msg, Code: code})
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return models.NewValidationError("Missing event data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return models.NewValidationError("Invalid event data")
	}
	return nil
}

// checkIdentity rejects payloads that claim to come from another user.
// A zero id means the field was omitted.
func (d *Delivery) checkIdentity(c *Client, claimed uint) bool {
	if claimed != 0 && claimed != c.UserID {
		d.sendError(c, "User id does not match the authenticated user", CodeIdentity)
		return false
	}
	return true
}

func (d *Delivery) handleConnect(ctx context.Context, c *Client, data json.RawMessage) error {
	var p UserConnectPayload
	if err := decode(data, &p); err != nil {
		d.hub.SendTo(c, EventUserConnected, UserConnectedPayload{Error: "Invalid event data"})
		return nil
	}
	if p.UserID != c.UserID {
		d.hub.SendTo(c, EventUserConnected, UserConnectedPayload{Error: "User id does not match the authenticated user"})
		return nil
	}

	groupIDs, err := d.backend.UserGroupIDs(ctx, c.UserID)
	if err != nil {
		d.hub.SendTo(c, EventUserConnected, UserConnectedPayload{Error: "User not found"})
		if models.IsNotFound(err) {
			return nil
		}
		return err
	}

	d.hub.Join(c, UserRoom(c.UserID))
	for _, gid := range groupIDs {
		d.hub.Join(c, GroupRoom(gid))
	}
	c.identified = true
	d.log.LogEvent(ctx, c.UserID, EventUserConnect)
	d.hub.SendTo(c, EventUserConnected, UserConnectedPayload{Success: true})
	return nil
}

func (d *Delivery) handlePrivate(ctx context.Context, c *Client, data json.RawMessage) error {
	var p PrivateMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if !d.checkIdentity(c, p.From) {
		return nil
	}
	from := c.UserID
	if p.To == 0 || p.To == from {
		return models.NewValidationError("Invalid recipient")
	}

	chat, err := d.backend.DirectChat(ctx, from, p.To)
	if err != nil {
		return err
	}

	active, err := d.tracker.IsActive(ctx, chat.ID, p.To)
	if err != nil {
		// Treat an unreachable tracker as inactive so the recipient still
		// gets an unread notice.
		d.log.LogError(ctx, from, EventPrivateMessage, err)
		active = false
	}
	readBy := []uint{from}
	if active {
		readBy = append(readBy, p.To)
	}

	msg, err := d.backend.AppendMessage(ctx, chat, from, p.Content, readBy)
	if err != nil {
		return err
	}

	out := NewMessagePayload{ChatID: chat.ID, Message: chatview.FormatMessage(msg, p.To)}
	if err := d.hub.Emit(ctx, UserRoom(p.To), EventNewMessage, out, nil); err != nil {
		d.log.LogError(ctx, from, EventNewMessage, err)
	}
	if !active {
		d.notifyUnread(ctx, p.To, chat.ID, msg, p.SenderName)
	}
	return nil
}

func (d *Delivery) handleGroup(ctx context.Context, c *Client, data json.RawMessage) error {
	var p GroupMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if !d.checkIdentity(c, p.From) {
		return nil
	}
	from := c.UserID
	if p.GroupID == 0 {
		return models.NewValidationError("Invalid group")
	}

	chat, err := d.backend.GroupChat(ctx, p.GroupID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(from) {
		return models.NewForbiddenError("You are not a member of this group")
	}

	activeIDs, err := d.tracker.ActiveUsers(ctx, chat.ID)
	if err != nil {
		d.log.LogError(ctx, from, EventGroupMessage, err)
		activeIDs = nil
	}
	active := make(map[uint]struct{}, len(activeIDs))
	for _, id := range activeIDs {
		if chat.HasParticipant(id) {
			active[id] = struct{}{}
		}
	}
	readBy := []uint{from}
	for id := range active {
		if id != from {
			readBy = append(readBy, id)
		}
	}

	msg, err := d.backend.AppendMessage(ctx, chat, from, p.Content, readBy)
	if err != nil {
		return err
	}

	out := NewMessagePayload{ChatID: chat.ID, Message: chatview.FormatMessage(msg, from)}
	if err := d.hub.Emit(ctx, GroupRoom(p.GroupID), EventNewMessage, out, c); err != nil {
		d.log.LogError(ctx, from, EventNewMessage, err)
	}
	for _, id := range chat.ParticipantIDs() {
		if id == from {
			continue
		}
		if _, ok := active[id]; ok {
			continue
		}
		d.notifyUnread(ctx, id, chat.ID, msg, p.SenderName)
	}
	return nil
}

func (d *Delivery) notifyUnread(ctx context.Context, to, chatID uint, msg *models.Message, senderName string) {
	if !d.flags.EnabledOr(featureflags.FlagUnreadNotifications, to, true) {
		return
	}
	if senderName == "" && msg.Sender != nil {
		senderName = msg.Sender.DisplayName()
	}
	payload := UnreadMessagePayload{
		ChatID:     chatID,
		From:       msg.SenderID,
		SenderName: senderName,
		Timestamp:  msg.CreatedAt,
	}
	if err := d.hub.Emit(ctx, UserRoom(to), EventUnreadMessage, payload, nil); err != nil {
		d.log.LogError(ctx, msg.SenderID, EventUnreadMessage, err)
		return
	}
	observability.UnreadNotifications.Inc()
}

func (d *Delivery) handleEnter(ctx context.Context, c *Client, data json.RawMessage) error {
	var p ChatPresencePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if !d.checkIdentity(c, p.UserID) {
		return nil
	}
	if p.ChatID == 0 {
		return models.NewValidationError("Invalid chat")
	}
	if err := d.backend.CheckParticipant(ctx, p.ChatID, c.UserID); err != nil {
		return err
	}
	// Presence goes first so a message sent while the backlog is being
	// marked is already stored as read by this viewer.
	if err := d.tracker.Enter(ctx, p.ChatID, c.UserID); err != nil {
		return err
	}
	if _, err := d.backend.MarkChatRead(ctx, p.ChatID, c.UserID); err != nil {
		return err
	}
	d.log.LogEvent(ctx, c.UserID, EventEnterChat)
	return nil
}

func (d *Delivery) handleLeave(ctx context.Context, c *Client, data json.RawMessage) error {
	var p ChatPresencePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if !d.checkIdentity(c, p.UserID) {
		return nil
	}
	if p.ChatID == 0 {
		return models.NewValidationError("Invalid chat")
	}
	if err := d.tracker.Leave(ctx, p.ChatID, c.UserID); err != nil {
		return err
	}
	d.log.LogEvent(ctx, c.UserID, EventLeaveChat)
	return nil
}
