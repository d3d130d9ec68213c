package seed

import (
	"context"
	"fmt"
	"log"
	"strings"

	"hearth/internal/models"
	"hearth/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Options configures the seeder.
type Options struct {
	NumUsers    int
	NumGroups   int
	NumPosts    int
	NumChats    int
	ShouldClean bool
	// SkipBcrypt hashes the shared password at minimum cost.
	SkipBcrypt bool
	// MaxDays bounds how far back post timestamps are spread.
	MaxDays int
	// RandSeed makes generated content reproducible when non-zero.
	RandSeed int64
}

// Summary counts what a run created.
type Summary struct {
	Users    int
	Follows  int
	Groups   int
	Posts    int
	Comments int
	Likes    int
	Chats    int
	Messages int
}

// Seeder persists generated or scripted data. Groups and chats go through
// the repositories so every group gets its paired group chat.
type Seeder struct {
	db      *gorm.DB
	factory *Factory
	groups  repository.GroupRepository
	chats   repository.ChatRepository
	summary Summary
}

// NewSeeder creates a Seeder bound to db.
func NewSeeder(db *gorm.DB, opts Options) (*Seeder, error) {
	f, err := NewFactory(opts)
	if err != nil {
		return nil, err
	}
	return &Seeder{
		db:      db,
		factory: f,
		groups:  repository.NewGroupRepository(db),
		chats:   repository.NewChatRepository(db),
	}, nil
}

// Summary returns the counts accumulated so far.
func (s *Seeder) Summary() Summary {
	return s.summary
}

// clearTables lists every application table, children first.
var clearTables = []string{
	"message_reads",
	"messages",
	"chat_participants",
	"chats",
	"comments",
	"likes",
	"posts",
	"group_members",
	"group_admins",
	"groups",
	"user_follows",
	"refresh_tokens",
	"users",
}

// ClearAll removes every row the application owns.
func (s *Seeder) ClearAll(ctx context.Context) error {
	log.Println("🗑️  Clearing existing data...")
	db := s.db.WithContext(ctx)
	if db.Dialector.Name() == "postgres" {
		quoted := make([]string, len(clearTables))
		for i, t := range clearTables {
			quoted[i] = fmt.Sprintf("%q", t)
		}
		return db.Exec("TRUNCATE TABLE " + strings.Join(quoted, ", ") + " RESTART IDENTITY CASCADE").Error
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, t := range clearTables {
			if err := tx.Exec(fmt.Sprintf("DELETE FROM %q", t)).Error; err != nil {
				return fmt.Errorf("clear %s: %w", t, err)
			}
		}
		return nil
	})
}

// Run generates a complete random data set sized by opts.
func (s *Seeder) Run(ctx context.Context, opts Options) (Summary, error) {
	log.Printf("🌱 Seeding %d users, %d groups, %d posts, %d chats...",
		opts.NumUsers, opts.NumGroups, opts.NumPosts, opts.NumChats)

	if opts.ShouldClean {
		if err := s.ClearAll(ctx); err != nil {
			return s.summary, fmt.Errorf("failed to clear data: %w", err)
		}
	}

	users, err := s.SeedUsers(ctx, opts.NumUsers)
	if err != nil {
		return s.summary, fmt.Errorf("failed to create users: %w", err)
	}
	log.Printf("✓ %d users created", len(users))

	if err := s.SeedFollows(ctx, users); err != nil {
		return s.summary, fmt.Errorf("failed to create follows: %w", err)
	}
	log.Printf("✓ %d follows created", s.summary.Follows)

	groups, err := s.SeedGroups(ctx, users, opts.NumGroups)
	if err != nil {
		return s.summary, fmt.Errorf("failed to create groups: %w", err)
	}
	log.Printf("✓ %d groups created", len(groups))

	if err := s.SeedEngagement(ctx, users, groups, opts.NumPosts); err != nil {
		return s.summary, fmt.Errorf("failed to create posts: %w", err)
	}
	log.Printf("✓ %d posts, %d comments, %d likes created",
		s.summary.Posts, s.summary.Comments, s.summary.Likes)

	if err := s.SeedChats(ctx, users, opts.NumChats); err != nil {
		return s.summary, fmt.Errorf("failed to create chats: %w", err)
	}
	log.Printf("✓ %d direct chats, %d messages created", s.summary.Chats, s.summary.Messages)

	log.Println("🎉 Database seeding completed successfully!")
	return s.summary, nil
}

func userIDs(users []*models.User) []uint {
	ids := make([]uint, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}

// SeedUsers creates n accounts sharing DefaultPassword.
func (s *Seeder) SeedUsers(ctx context.Context, n int) ([]*models.User, error) {
	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		users = append(users, s.factory.BuildUser(s.factory.Username(i+1)))
	}
	if len(users) == 0 {
		return users, nil
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).CreateInBatches(users, 100).Error; err != nil {
		return nil, err
	}
	s.summary.Users += len(users)
	return users, nil
}

// SeedFollows has every user follow a handful of others.
func (s *Seeder) SeedFollows(ctx context.Context, users []*models.User) error {
	ids := userIDs(users)
	var rows []models.UserFollow
	for _, u := range users {
		for _, target := range s.factory.Pick(ids, 1+s.factory.Intn(5), u.ID) {
			rows = append(rows, models.UserFollow{FollowerID: u.ID, FolloweeID: target})
		}
	}
	return s.insertFollows(ctx, rows)
}

func (s *Seeder) insertFollows(ctx context.Context, rows []models.UserFollow) error {
	if len(rows) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if res.Error != nil {
		return res.Error
	}
	s.summary.Follows += int(res.RowsAffected)
	return nil
}

// SeedGroups creates n groups with random creators and members. Each group
// gets its group chat with the same participants.
func (s *Seeder) SeedGroups(ctx context.Context, users []*models.User, n int) ([]*models.Group, error) {
	if len(users) == 0 {
		return nil, nil
	}
	ids := userIDs(users)
	groups := make([]*models.Group, 0, n)
	for i := 0; i < n; i++ {
		creator := ids[s.factory.Intn(len(ids))]
		members := s.factory.Pick(ids, 2+s.factory.Intn(8), creator)
		g, err := s.createGroup(ctx, s.factory.BuildGroup(creator), members)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func (s *Seeder) createGroup(ctx context.Context, group *models.Group, memberIDs []uint) (*models.Group, error) {
	if err := s.groups.Create(ctx, group, memberIDs); err != nil {
		return nil, err
	}
	participants := append([]uint{group.CreatorID}, memberIDs...)
	chat, err := s.chats.CreateGroupChat(ctx, group, participants)
	if err != nil {
		return nil, err
	}
	group.ChatID = &chat.ID

	loaded, err := s.groups.GetByID(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	loaded.ChatID = group.ChatID
	s.summary.Groups++
	return loaded, nil
}

// SeedEngagement creates n posts, about half inside a group the author
// belongs to, then comments and likes from random users.
func (s *Seeder) SeedEngagement(ctx context.Context, users []*models.User, groups []*models.Group, n int) error {
	if len(users) == 0 {
		return nil
	}
	ids := userIDs(users)
	for i := 0; i < n; i++ {
		author := ids[s.factory.Intn(len(ids))]
		var groupID *uint
		if len(groups) > 0 && s.factory.Intn(2) == 0 {
			g := groups[s.factory.Intn(len(groups))]
			members := g.MemberIDs()
			if len(members) > 0 {
				author = members[s.factory.Intn(len(members))]
				gid := g.ID
				groupID = &gid
			}
		}

		post := s.factory.BuildPost(author, groupID)
		if err := s.createPost(ctx, post); err != nil {
			return err
		}
		for _, commenter := range s.factory.Pick(ids, s.factory.Intn(4), 0) {
			if err := s.createComment(ctx, s.factory.BuildComment(post.ID, commenter)); err != nil {
				return err
			}
		}
		if err := s.like(ctx, post.ID, s.factory.Pick(ids, s.factory.Intn(6), 0)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) createPost(ctx context.Context, post *models.Post) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error; err != nil {
		return err
	}
	s.summary.Posts++
	return nil
}

func (s *Seeder) createComment(ctx context.Context, comment *models.Comment) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(comment).Error; err != nil {
		return err
	}
	s.summary.Comments++
	return nil
}

func (s *Seeder) like(ctx context.Context, postID uint, userIDs []uint) error {
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]models.Like, len(userIDs))
	for i, id := range userIDs {
		rows[i] = models.Like{UserID: id, PostID: postID}
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if res.Error != nil {
		return res.Error
	}
	s.summary.Likes += int(res.RowsAffected)
	return nil
}

// SeedChats opens n direct chats between random pairs and fills each with
// a short back-and-forth. The newest message stays unread by its recipient.
func (s *Seeder) SeedChats(ctx context.Context, users []*models.User, n int) error {
	if len(users) < 2 {
		return nil
	}
	ids := userIDs(users)
	for i := 0; i < n; i++ {
		pair := s.factory.Pick(ids, 2, 0)
		lines := make([]scenarioMessage, 2+s.factory.Intn(6))
		for j := range lines {
			lines[j].Content = s.factory.MessageText()
		}
		if err := s.directChat(ctx, pair[0], pair[1], lines, func(j int) uint { return pair[j%2] }); err != nil {
			return err
		}
	}
	return nil
}

// directChat finds or creates the chat between a and b and appends lines.
// Every line but the last is marked read by both sides.
func (s *Seeder) directChat(ctx context.Context, a, b uint, lines []scenarioMessage, sender func(int) uint) error {
	chat, err := s.chats.FindDirect(ctx, a, b)
	if err != nil {
		return err
	}
	if chat == nil {
		if chat, err = s.chats.CreateDirect(ctx, a, b); err != nil {
			return err
		}
		s.summary.Chats++
	}
	for j, line := range lines {
		var readBy []uint
		if j < len(lines)-1 {
			readBy = []uint{a, b}
		}
		msg := &models.Message{SenderID: sender(j), Content: line.Content}
		if err := s.chats.AppendMessage(ctx, chat.ID, msg, readBy); err != nil {
			return err
		}
		s.summary.Messages++
	}
	return nil
}
