package service

import (
	"context"
	"strings"

	"github.com/francozeta/musicbox/internal/models"
	"github.com/francozeta/musicbox/internal/observability"
	"github.com/francozeta/musicbox/internal/repository"
	"github.com/francozeta/musicbox/internal/revalidate"
	"github.com/francozeta/musicbox/internal/validation"
)

// ProfileEditPath is the only path whose profile update triggers revalidation.
const ProfileEditPath = "/profile/edit"

type UserService struct {
	store  repository.Store
	signal revalidate.Signaler
}

type UpdateUserInput struct {
	UserID   string `json:"user_id" validate:"required"`
	Username string `json:"username" validate:"min=3,max=30,handle"`
	Name     string `json:"name" validate:"min=3,max=30"`
	Bio      string `json:"bio" validate:"max=1000"`
	Image    string `json:"image" validate:"omitempty,url"`
	Path     string `json:"path"`
}

type SearchUsersInput struct {
	UserID     string
	SearchText string
	Page       int
	PageSize   int
	// SortOrder is "asc" or "desc" on created_at; empty means desc.
	SortOrder string `validate:"omitempty,oneof=asc desc"`
}

type UserPage struct {
	Users   []*models.User `json:"users"`
	HasNext bool           `json:"has_next"`
}

func NewUserService(store repository.Store, signal revalidate.Signaler) *UserService {
	if signal == nil {
		signal = revalidate.Nop{}
	}
	return &UserService{store: store, signal: signal}
}

// GetUser returns the profile with its communities populated.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, storeFailure(ctx, "fetch user", err)
	}
	return user, nil
}

// UpdateUser creates or updates the profile and marks it onboarded.
func (s *UserService) UpdateUser(ctx context.Context, in UpdateUserInput) (user *models.User, err error) {
	ctx, finish := observability.StartSpan(ctx, "user", "update")
	defer func() { finish(err) }()

	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	err = s.store.Users().Upsert(ctx, &models.User{
		ID:        in.UserID,
		Username:  in.Username,
		Name:      in.Name,
		Bio:       in.Bio,
		Image:     in.Image,
		Onboarded: true,
	})
	if err != nil {
		return nil, storeFailure(ctx, "create/update user", err)
	}

	if in.Path == ProfileEditPath {
		s.signal.Revalidate(ctx, in.Path)
	}

	user, err = s.store.Users().GetByID(ctx, in.UserID)
	if err != nil {
		return nil, storeFailure(ctx, "fetch user", err)
	}
	return user, nil
}

// GetUserReviews returns the user with owned reviews, each with its
// community and first-level replies.
func (s *UserService) GetUserReviews(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.Users().GetWithReviews(ctx, userID)
	if err != nil {
		return nil, storeFailure(ctx, "fetch user reviews", err)
	}
	return user, nil
}

// SearchUsers lists users other than the caller, optionally filtered by a
// case-insensitive substring of username or name.
func (s *UserService) SearchUsers(ctx context.Context, in SearchUsersInput) (*UserPage, error) {
	if in.Page < 1 {
		in.Page = 1
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	limit, offset, err := pageWindow(in.Page, in.PageSize)
	if err != nil {
		return nil, err
	}

	users, total, err := s.store.Users().Search(ctx, repository.UserQuery{
		ExcludeID: in.UserID,
		Search:    strings.TrimSpace(in.SearchText),
		SortDesc:  in.SortOrder != "asc",
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, storeFailure(ctx, "fetch users", err)
	}
	return &UserPage{Users: users, HasNext: hasNext(total, offset, len(users))}, nil
}

// GetActivity returns replies written by others to any review the user
// authored, newest first.
func (s *UserService) GetActivity(ctx context.Context, userID string) ([]*models.Review, error) {
	authored, err := s.store.Reviews().ListByAuthor(ctx, userID)
	if err != nil {
		return nil, storeFailure(ctx, "fetch activity", err)
	}
	if len(authored) == 0 {
		return []*models.Review{}, nil
	}

	parentIDs := make([]string, 0, len(authored))
	for _, r := range authored {
		parentIDs = append(parentIDs, r.ID)
	}
	replies, err := s.store.Reviews().ListByParents(ctx, parentIDs, userID)
	if err != nil {
		return nil, storeFailure(ctx, "fetch activity", err)
	}
	return replies, nil
}
