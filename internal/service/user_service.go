package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"hearth/internal/cache"
	"hearth/internal/events"
	"hearth/internal/models"
	"hearth/internal/repository"
	"hearth/internal/validation"
)

const searchLimit = 20

type UserService struct {
	users     repository.UserRepository
	follows   repository.FollowRepository
	groups    repository.GroupRepository
	posts     repository.PostRepository
	publisher events.Publisher
}

type UpdateProfileInput struct {
	UserID uint
	Name   string
	Bio    string
	Avatar string
}

// SearchResult groups the matches of a free-text search.
type SearchResult struct {
	Users  []models.User  `json:"users"`
	Groups []models.Group `json:"groups"`
	Posts  []*models.Post `json:"posts"`
}

func NewUserService(
	users repository.UserRepository,
	follows repository.FollowRepository,
	groups repository.GroupRepository,
	posts repository.PostRepository,
	publisher events.Publisher,
) *UserService {
	return &UserService{users: users, follows: follows, groups: groups, posts: posts, publisher: publisher}
}

// GetProfile returns the user with follower and following counts.
func (s *UserService) GetProfile(ctx context.Context, userID uint) (*models.User, error) {
	var profile models.User
	err := cache.Aside(ctx, cache.ProfileKey(userID), &profile, cache.ProfileTTL, func() error {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		followers, following, err := s.follows.Counts(ctx, userID)
		if err != nil {
			return err
		}
		user.FollowersCount = followers
		user.FollowingCount = following
		profile = *user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateMe applies the non-empty fields of in to the caller's profile.
func (s *UserService) UpdateMe(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	user, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	const maxNameLen = 50

	if name := strings.TrimSpace(in.Name); name != "" {
		if utf8.RuneCountInString(name) > maxNameLen {
			return nil, models.NewValidationError("Name too long (max 50 characters)")
		}
		user.Name = name
	}
	if in.Bio != "" {
		if utf8.RuneCountInString(in.Bio) > validation.MaxBioLength {
			return nil, models.NewValidationError("Bio too long (max 500 characters)")
		}
		user.Bio = in.Bio
	}
	if in.Avatar != "" {
		user.Avatar = in.Avatar
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ToggleFollow follows targetID if the caller does not follow them yet and
// unfollows otherwise. It reports whether the caller now follows the target.
func (s *UserService) ToggleFollow(ctx context.Context, userID, targetID uint) (bool, error) {
	if userID == targetID {
		return false, models.NewValidationError("You cannot follow yourself")
	}
	if _, err := s.users.GetByID(ctx, targetID); err != nil {
		return false, err
	}

	following, err := s.follows.Toggle(ctx, userID, targetID)
	if err != nil {
		return false, err
	}
	cache.Invalidate(ctx, cache.ProfileKey(userID), cache.ProfileKey(targetID))

	if following {
		events.Emit(ctx, s.publisher, events.UserFollowed, map[string]any{
			"followerId": userID,
			"followeeId": targetID,
		})
	}
	return following, nil
}

// Search matches users, groups and posts by case-insensitive substring.
func (s *UserService) Search(ctx context.Context, query string, viewerID uint) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("Search query is required")
	}
	if utf8.RuneCountInString(query) > 100 {
		return nil, models.NewValidationError("Search query too long (max 100 characters)")
	}

	users, err := s.users.Search(ctx, query, searchLimit)
	if err != nil {
		return nil, err
	}
	groups, err := s.groups.Search(ctx, query, searchLimit)
	if err != nil {
		return nil, err
	}
	posts, err := s.posts.Search(ctx, query, searchLimit, viewerID)
	if err != nil {
		return nil, err
	}

	out := &SearchResult{Users: users, Groups: groups, Posts: posts}
	if out.Users == nil {
		out.Users = []models.User{}
	}
	if out.Groups == nil {
		out.Groups = []models.Group{}
	}
	if out.Posts == nil {
		out.Posts = []*models.Post{}
	}
	return out, nil
}
