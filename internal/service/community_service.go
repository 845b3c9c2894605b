package service

import (
	"context"
	"strings"

	"github.com/francozeta/musicbox/internal/models"
	"github.com/francozeta/musicbox/internal/observability"
	"github.com/francozeta/musicbox/internal/repository"
	"github.com/francozeta/musicbox/internal/revalidate"
	"github.com/francozeta/musicbox/internal/validation"

	"github.com/google/uuid"
)

// CommunitiesPath is revalidated whenever the community listing changes.
const CommunitiesPath = "/communities"

type CommunityService struct {
	store  repository.Store
	signal revalidate.Signaler
}

type CreateCommunityInput struct {
	ID        string `json:"id" validate:"omitempty,max=128"`
	Username  string `json:"username" validate:"min=3,max=30,handle"`
	Name      string `json:"name" validate:"required,max=120"`
	Image     string `json:"image" validate:"omitempty,url"`
	Bio       string `json:"bio" validate:"max=1000"`
	CreatedBy string `json:"created_by" validate:"required"`
}

type CommunityPage struct {
	Communities []*models.Community `json:"communities"`
	HasNext     bool                `json:"has_next"`
}

func NewCommunityService(store repository.Store, signal revalidate.Signaler) *CommunityService {
	if signal == nil {
		signal = revalidate.Nop{}
	}
	return &CommunityService{store: store, signal: signal}
}

// CreateCommunity stores the community and makes its creator the first member.
func (s *CommunityService) CreateCommunity(ctx context.Context, in CreateCommunityInput) (community *models.Community, err error) {
	ctx, finish := observability.StartSpan(ctx, "community", "create")
	defer func() { finish(err) }()

	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		ok, err := tx.Users().Exists(ctx, in.CreatedBy)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewNotFoundError("User", in.CreatedBy)
		}
		if err := tx.Communities().Create(ctx, &models.Community{
			ID:          in.ID,
			Username:    in.Username,
			Name:        in.Name,
			Image:       in.Image,
			Bio:         in.Bio,
			CreatedByID: in.CreatedBy,
		}); err != nil {
			return err
		}
		return tx.Communities().AddMember(ctx, in.ID, in.CreatedBy)
	})
	if err != nil {
		return nil, storeFailure(ctx, "create community", err)
	}

	s.signal.Revalidate(ctx, CommunitiesPath)
	return s.GetCommunity(ctx, in.ID)
}

func (s *CommunityService) GetCommunity(ctx context.Context, id string) (*models.Community, error) {
	community, err := s.store.Communities().GetByID(ctx, id)
	if err != nil {
		return nil, storeFailure(ctx, "fetch community", err)
	}
	return community, nil
}

func (s *CommunityService) SearchCommunities(ctx context.Context, search string, page, pageSize int) (*CommunityPage, error) {
	if page < 1 {
		page = 1
	}
	limit, offset, err := pageWindow(page, pageSize)
	if err != nil {
		return nil, err
	}
	communities, total, err := s.store.Communities().List(ctx, repository.CommunityQuery{
		Search: strings.TrimSpace(search),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, storeFailure(ctx, "fetch communities", err)
	}
	return &CommunityPage{Communities: communities, HasNext: hasNext(total, offset, len(communities))}, nil
}

// AddMember joins userID to the community. Joining twice is a no-op.
func (s *CommunityService) AddMember(ctx context.Context, communityID, userID string) error {
	return s.changeMembership(ctx, "add member", communityID, userID, func(tx repository.Store, id string) error {
		return tx.Communities().AddMember(ctx, id, userID)
	})
}

// RemoveMember removes userID from the community.
func (s *CommunityService) RemoveMember(ctx context.Context, communityID, userID string) error {
	return s.changeMembership(ctx, "remove member", communityID, userID, func(tx repository.Store, id string) error {
		return tx.Communities().RemoveMember(ctx, id, userID)
	})
}

func (s *CommunityService) changeMembership(ctx context.Context, op, communityID, userID string, apply func(repository.Store, string) error) error {
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		id, ok, err := tx.Communities().Resolve(ctx, communityID)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewNotFoundMessage("Community not found")
		}
		exists, err := tx.Users().Exists(ctx, userID)
		if err != nil {
			return err
		}
		if !exists {
			return models.NewNotFoundMessage("User not found")
		}
		return apply(tx, id)
	})
	if err != nil {
		return storeFailure(ctx, op, err)
	}
	s.signal.Revalidate(ctx, "/communities/"+communityID)
	return nil
}
