package repository

import (
	"context"
	"errors"
	"time"

	"hearth/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	chatsCollection    = "chats"
	countersCollection = "counters"
)

type mongoMessage struct {
	ID        uint      `bson:"_id"`
	Sender    uint      `bson:"sender"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"createdAt"`
	Read      []uint    `bson:"read"`
}

type mongoChat struct {
	ID            uint           `bson:"_id"`
	IsGroupChat   bool           `bson:"isGroupChat"`
	GroupID       *uint          `bson:"groupId,omitempty"`
	GroupName     string         `bson:"groupName,omitempty"`
	DirectKey     *string        `bson:"directKey,omitempty"`
	Participants  []uint         `bson:"participants"`
	Messages      []mongoMessage `bson:"messages"`
	LastMessageID *uint          `bson:"lastMessageId,omitempty"`
	CreatedAt     time.Time      `bson:"createdAt"`
	UpdatedAt     time.Time      `bson:"updatedAt"`
}

type mongoChatRepository struct {
	chats    *mongo.Collection
	counters *mongo.Collection
	users    UserRepository
}

// NewMongoChatRepository returns a ChatRepository backed by a "chats"
// collection whose documents embed their messages. Participant and sender
// records are resolved through users.
func NewMongoChatRepository(db *mongo.Database, users UserRepository) ChatRepository {
	return &mongoChatRepository{
		chats:    db.Collection(chatsCollection),
		counters: db.Collection(countersCollection),
		users:    users,
	}
}

// EnsureMongoIndexes creates the unique indexes that keep one direct chat
// per pair and one chat per group.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(chatsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "directKey", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"directKey": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "groupId", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"groupId": bson.M{"$exists": true}}),
		},
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "updatedAt", Value: -1}}},
	})
	return err
}

func (r *mongoChatRepository) nextID(ctx context.Context, name string) (uint, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return uint(counter.Seq), nil
}

func (r *mongoChatRepository) hydrate(ctx context.Context, docs []mongoChat) ([]*models.Chat, error) {
	ids := map[uint]struct{}{}
	for _, d := range docs {
		for _, p := range d.Participants {
			ids[p] = struct{}{}
		}
		for _, m := range d.Messages {
			ids[m.Sender] = struct{}{}
		}
	}
	list := make([]uint, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	users, err := r.users.GetByIDs(ctx, list)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := make([]*models.Chat, 0, len(docs))
	for _, d := range docs {
		chat := &models.Chat{
			ID:            d.ID,
			IsGroupChat:   d.IsGroupChat,
			GroupID:       d.GroupID,
			GroupName:     d.GroupName,
			DirectKey:     d.DirectKey,
			LastMessageID: d.LastMessageID,
			CreatedAt:     d.CreatedAt,
			UpdatedAt:     d.UpdatedAt,
		}
		for _, p := range d.Participants {
			u, ok := byID[p]
			if !ok {
				u = models.User{ID: p}
			}
			chat.Participants = append(chat.Participants, u)
		}
		for _, m := range d.Messages {
			msg := toModelMessage(d.ID, m)
			if u, ok := byID[m.Sender]; ok {
				msg.Sender = &u
			}
			chat.Messages = append(chat.Messages, msg)
		}
		resolveLastMessage(chat)
		out = append(out, chat)
	}
	return out, nil
}

func toModelMessage(chatID uint, m mongoMessage) models.Message {
	msg := models.Message{
		ID:        m.ID,
		ChatID:    chatID,
		SenderID:  m.Sender,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
	for _, uid := range m.Read {
		msg.Reads = append(msg.Reads, models.MessageRead{MessageID: m.ID, UserID: uid})
	}
	return msg
}

func (r *mongoChatRepository) findOne(ctx context.Context, filter bson.M) (*models.Chat, error) {
	var doc mongoChat
	if err := r.chats.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	chats, err := r.hydrate(ctx, []mongoChat{doc})
	if err != nil {
		return nil, err
	}
	return chats[0], nil
}

func (r *mongoChatRepository) GetByID(ctx context.Context, id uint) (*models.Chat, error) {
	chat, err := r.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, models.NewNotFoundError("Chat", id)
	}
	return chat, nil
}

func (r *mongoChatRepository) ListForUser(ctx context.Context, userID uint) ([]*models.Chat, error) {
	cur, err := r.chats.Find(ctx, bson.M{"participants": userID},
		options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	var docs []mongoChat
	if err := cur.All(ctx, &docs); err != nil {
		return nil, models.NewInternalError(err)
	}
	return r.hydrate(ctx, docs)
}

func (r *mongoChatRepository) IsParticipant(ctx context.Context, chatID, userID uint) (bool, error) {
	n, err := r.chats.CountDocuments(ctx, bson.M{"_id": chatID, "participants": userID})
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}

func (r *mongoChatRepository) FindDirect(ctx context.Context, a, b uint) (*models.Chat, error) {
	return r.findOne(ctx, bson.M{"directKey": models.DirectChatKey(a, b)})
}

func (r *mongoChatRepository) FindByGroup(ctx context.Context, groupID uint) (*models.Chat, error) {
	return r.findOne(ctx, bson.M{"groupId": groupID})
}

func (r *mongoChatRepository) insert(ctx context.Context, doc *mongoChat) error {
	id, err := r.nextID(ctx, chatsCollection)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	doc.ID = id
	doc.CreatedAt, doc.UpdatedAt = now, now
	if doc.Messages == nil {
		doc.Messages = []mongoMessage{}
	}
	_, err = r.chats.InsertOne(ctx, doc)
	return err
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (r *mongoChatRepository) CreateDirect(ctx context.Context, a, b uint) (*models.Chat, error) {
	key := models.DirectChatKey(a, b)
	doc := mongoChat{DirectKey: &key, Participants: uniqueIDs([]uint{a, b})}
	if err := r.insert(ctx, &doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
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
	chats, err := r.hydrate(ctx, []mongoChat{doc})
	if err != nil {
		return nil, err
	}
	return chats[0], nil
}

func (r *mongoChatRepository) CreateGroupChat(ctx context.Context, group *models.Group, participantIDs []uint) (*models.Chat, error) {
	groupID := group.ID
	doc := mongoChat{
		IsGroupChat:  true,
		GroupID:      &groupID,
		GroupName:    group.Name,
		Participants: uniqueIDs(participantIDs),
	}
	if err := r.insert(ctx, &doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if existing, findErr := r.FindByGroup(ctx, group.ID); findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, models.NewInternalError(err)
	}
	chats, err := r.hydrate(ctx, []mongoChat{doc})
	if err != nil {
		return nil, err
	}
	return chats[0], nil
}

func (r *mongoChatRepository) DeleteChat(ctx context.Context, id uint) error {
	if _, err := r.chats.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *mongoChatRepository) updateChat(ctx context.Context, chatID uint, update bson.M) error {
	res, err := r.chats.UpdateOne(ctx, bson.M{"_id": chatID}, update)
	if err != nil {
		return models.NewInternalError(err)
	}
	if res.MatchedCount == 0 {
		return models.NewNotFoundError("Chat", chatID)
	}
	return nil
}

func (r *mongoChatRepository) AddParticipant(ctx context.Context, chatID, userID uint) error {
	return r.updateChat(ctx, chatID, bson.M{"$addToSet": bson.M{"participants": userID}})
}

func (r *mongoChatRepository) RemoveParticipant(ctx context.Context, chatID, userID uint) error {
	return r.updateChat(ctx, chatID, bson.M{"$pull": bson.M{"participants": userID}})
}

func (r *mongoChatRepository) AppendMessage(ctx context.Context, chatID uint, msg *models.Message, readBy []uint) error {
	id, err := r.nextID(ctx, "messages")
	if err != nil {
		return models.NewInternalError(err)
	}
	now := time.Now().UTC()
	doc := mongoMessage{
		ID:        id,
		Sender:    msg.SenderID,
		Content:   msg.Content,
		CreatedAt: now,
		Read:      uniqueIDs(append([]uint{msg.SenderID}, readBy...)),
	}
	if err := r.updateChat(ctx, chatID, bson.M{
		"$push": bson.M{"messages": doc},
		"$set":  bson.M{"lastMessageId": id, "updatedAt": now},
	}); err != nil {
		return err
	}

	*msg = toModelMessage(chatID, doc)
	if sender, err := r.users.GetByID(ctx, msg.SenderID); err == nil {
		msg.Sender = sender
	}
	return nil
}

// MarkChatRead counts the messages that need the reader added, then adds
// the reader to all of them in one update.
func (r *mongoChatRepository) MarkChatRead(ctx context.Context, chatID, userID uint) (int64, error) {
	unread := bson.M{"sender": bson.M{"$ne": userID}, "read": bson.M{"$ne": userID}}

	// The count comes from the pre-image of the same atomic update, so
	// concurrent readers cannot inflate it.
	var before mongoChat
	err := r.chats.FindOneAndUpdate(ctx,
		bson.M{"_id": chatID, "messages": bson.M{"$elemMatch": unread}},
		bson.M{"$addToSet": bson.M{"messages.$[m].read": userID}},
		options.FindOneAndUpdate().
			SetArrayFilters(options.ArrayFilters{Filters: []any{bson.M{
				"m.sender": unread["sender"],
				"m.read":   unread["read"],
			}}}).
			SetProjection(bson.M{"messages.sender": 1, "messages.read": 1}).
			SetReturnDocument(options.Before),
	).Decode(&before)
	if err != nil {
		// Unknown chat, or nothing left to mark.
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, models.NewInternalError(err)
	}

	var changed int64
	for _, m := range before.Messages {
		if m.Sender != userID && !containsUint(m.Read, userID) {
			changed++
		}
	}
	return changed, nil
}

func containsUint(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
