package service

import (
	"context"
	"fmt"
	"strings"

	"hearth/internal/cache"
	"hearth/internal/events"
	"hearth/internal/models"
	"hearth/internal/observability"
	"hearth/internal/repository"
	"hearth/internal/validation"
)

type GroupService struct {
	groups    repository.GroupRepository
	chats     repository.ChatRepository
	users     repository.UserRepository
	publisher events.Publisher
}

type CreateGroupInput struct {
	CreatorID   uint
	Name        string
	Description string
	Avatar      string
	MemberIDs   []uint
}

func NewGroupService(
	groups repository.GroupRepository,
	chats repository.ChatRepository,
	users repository.UserRepository,
	publisher events.Publisher,
) *GroupService {
	return &GroupService{groups: groups, chats: chats, users: users, publisher: publisher}
}

// CreateGroup stores the group and then its chat. The two live behind
// different repositories, so a failed chat write deletes the group again.
func (s *GroupService) CreateGroup(ctx context.Context, in CreateGroupInput) (*models.Group, error) {
	ctx, span := observability.StartServiceSpan(ctx, "group", "CreateGroup")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	name := strings.TrimSpace(in.Name)
	if err = validation.ValidateGroupName(name); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if len(in.Description) > validation.MaxPostLength {
		err = models.NewValidationError("Description too long")
		return nil, err
	}

	memberIDs, err := s.existingUsers(ctx, in.MemberIDs)
	if err != nil {
		return nil, err
	}

	group := &models.Group{
		Name:        name,
		Description: in.Description,
		Avatar:      in.Avatar,
		CreatorID:   in.CreatorID,
	}
	if err = s.groups.Create(ctx, group, memberIDs); err != nil {
		return nil, err
	}

	created, err := s.groups.GetByID(ctx, group.ID)
	if err == nil {
		var chat *models.Chat
		chat, err = s.chats.CreateGroupChat(ctx, created, created.MemberIDs())
		if err == nil {
			created.ChatID = &chat.ID
		}
	}
	if err != nil {
		observability.LogCompensation(ctx, "create_group", err, s.groups.Delete(ctx, group.ID))
		return nil, err
	}

	events.Emit(ctx, s.publisher, events.GroupCreated, map[string]any{
		"groupId":   created.ID,
		"name":      created.Name,
		"creatorId": created.CreatorID,
		"members":   created.MemberIDs(),
	})
	return created, nil
}

// existingUsers drops ids that do not belong to a user.
func (s *GroupService) existingUsers(ctx context.Context, ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]uint, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out, nil
}

// ToggleMembership joins the group if the user is not a member and leaves it
// otherwise, keeping the group chat's participants in step. It reports
// whether the user is a member afterwards.
func (s *GroupService) ToggleMembership(ctx context.Context, groupID, userID uint) (bool, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return false, err
	}
	member, err := s.groups.IsMember(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	if member && group.CreatorID == userID {
		return false, models.NewValidationError("The group creator cannot leave the group")
	}

	chat, err := s.chats.FindByGroup(ctx, groupID)
	if err != nil {
		return false, err
	}

	if member {
		err = s.leave(ctx, groupID, userID, chat)
	} else {
		err = s.join(ctx, groupID, userID, chat)
	}
	if err != nil {
		return member, err
	}
	cache.InvalidateGroup(ctx, groupID)
	return !member, nil
}

func (s *GroupService) join(ctx context.Context, groupID, userID uint, chat *models.Chat) error {
	if err := s.groups.AddMember(ctx, groupID, userID); err != nil {
		return err
	}
	if chat == nil {
		return nil
	}
	if err := s.chats.AddParticipant(ctx, chat.ID, userID); err != nil {
		observability.LogCompensation(ctx, "join_group", err, s.groups.RemoveMember(ctx, groupID, userID))
		return err
	}
	return nil
}

func (s *GroupService) leave(ctx context.Context, groupID, userID uint, chat *models.Chat) error {
	if err := s.groups.RemoveMember(ctx, groupID, userID); err != nil {
		return err
	}
	if chat == nil {
		return nil
	}
	if err := s.chats.RemoveParticipant(ctx, chat.ID, userID); err != nil {
		observability.LogCompensation(ctx, "leave_group", err, s.groups.AddMember(ctx, groupID, userID))
		return err
	}
	return nil
}

// Get returns the group with its chat id.
func (s *GroupService) Get(ctx context.Context, groupID uint) (*models.Group, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	chat, err := s.chats.FindByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if chat != nil {
		group.ChatID = &chat.ID
	}
	return group, nil
}

// List returns every group, or only the caller's when mine is set.
func (s *GroupService) List(ctx context.Context, userID uint, mine bool, limit, offset int) ([]models.Group, error) {
	var (
		groups []models.Group
		err    error
	)
	if mine {
		groups, err = s.groups.ListForUser(ctx, userID)
	} else {
		groups, err = s.groups.List(ctx, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	if groups == nil {
		groups = []models.Group{}
	}
	return groups, nil
}
