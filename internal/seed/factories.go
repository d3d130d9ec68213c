// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"hearth/internal/models"
	"hearth/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPassword is the password of every generated account.
const DefaultPassword = "Seed!Passw0rd1"

var usernameStrip = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Factory builds domain entities with fake content. It never touches the
// database; the Seeder persists what it builds.
type Factory struct {
	faker        *gofakeit.Faker
	maxDays      int
	passwordHash string
	now          func() time.Time
}

// NewFactory creates a Factory. A zero seed picks a random one.
func NewFactory(opts Options) (*Factory, error) {
	cost := bcrypt.DefaultCost
	if opts.SkipBcrypt {
		cost = bcrypt.MinCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	maxDays := opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	return &Factory{
		faker:        gofakeit.New(opts.RandSeed),
		maxDays:      maxDays,
		passwordHash: string(hash),
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// PasswordHash returns the bcrypt hash shared by generated accounts.
func (f *Factory) PasswordHash() string {
	return f.passwordHash
}

// Username derives a valid, unique username from a fake handle and n.
func (f *Factory) Username(n int) string {
	base := usernameStrip.ReplaceAllString(f.faker.Username(), "")
	if len(base) < 3 {
		base = "user"
	}
	suffix := fmt.Sprintf("%d", n)
	if len(base)+len(suffix) > 30 {
		base = base[:30-len(suffix)]
	}
	return base + suffix
}

// BuildUser returns an unsaved user with the given username.
func (f *Factory) BuildUser(username string) *models.User {
	return &models.User{
		Username: username,
		Email:    strings.ToLower(username) + "@example.com",
		Password: f.passwordHash,
		Name:     f.faker.Name(),
		Bio:      f.faker.Sentence(10),
		Avatar:   "https://i.pravatar.cc/150?u=" + f.faker.UUID(),
	}
}

// BuildGroup returns an unsaved group created by creatorID.
func (f *Factory) BuildGroup(creatorID uint) *models.Group {
	name := f.faker.Company()
	if len([]rune(name)) > validation.MaxGroupName {
		name = string([]rune(name)[:validation.MaxGroupName])
	}
	if len([]rune(strings.TrimSpace(name))) < 3 {
		name = name + " Club"
	}
	return &models.Group{
		Name:        name,
		Description: f.faker.Sentence(12),
		Avatar:      fmt.Sprintf("https://picsum.photos/seed/group-%s/200/200", f.faker.UUID()),
		CreatorID:   creatorID,
	}
}

// BuildPost returns an unsaved post by userID, published into groupID when
// it is non-nil. Roughly a third of posts carry an image.
func (f *Factory) BuildPost(userID uint, groupID *uint) *models.Post {
	post := &models.Post{
		Content:   f.faker.Paragraph(1, 3, 12, "\n"),
		UserID:    userID,
		GroupID:   groupID,
		CreatedAt: f.pastTime(),
	}
	if f.faker.Number(1, 3) == 1 {
		post.Image = fmt.Sprintf("https://picsum.photos/seed/%s/800/800", f.faker.UUID())
	}
	return post
}

// BuildComment returns an unsaved comment on postID.
func (f *Factory) BuildComment(postID, userID uint) *models.Comment {
	return &models.Comment{
		Content: f.faker.Sentence(f.faker.Number(4, 16)),
		PostID:  postID,
		UserID:  userID,
	}
}

// MessageText returns a chat line.
func (f *Factory) MessageText() string {
	return f.faker.Sentence(f.faker.Number(3, 14))
}

// Pick returns up to k distinct ids from ids, excluding skip.
func (f *Factory) Pick(ids []uint, k int, skip uint) []uint {
	pool := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id != skip {
			pool = append(pool, id)
		}
	}
	if k > len(pool) {
		k = len(pool)
	}
	for i := 0; i < k; i++ {
		j := f.faker.Number(i, len(pool)-1)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}

// Intn returns a number in [0, n).
func (f *Factory) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	return f.faker.Number(0, n-1)
}

// pastTime spreads timestamps over the last maxDays days.
func (f *Factory) pastTime() time.Time {
	back := time.Duration(f.faker.Number(0, f.maxDays-1))*24*time.Hour +
		time.Duration(f.faker.Number(0, 23))*time.Hour +
		time.Duration(f.faker.Number(0, 59))*time.Minute
	return f.now().Add(-back)
}
