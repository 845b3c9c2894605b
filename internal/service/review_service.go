package service

import (
	"context"
	"strings"

	"github.com/francozeta/musicbox/internal/featureflags"
	"github.com/francozeta/musicbox/internal/models"
	"github.com/francozeta/musicbox/internal/observability"
	"github.com/francozeta/musicbox/internal/repository"
	"github.com/francozeta/musicbox/internal/revalidate"
	"github.com/francozeta/musicbox/internal/validation"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type ReviewService struct {
	store  repository.Store
	signal revalidate.Signaler
	flags  *featureflags.Manager
}

type ReviewPage struct {
	Reviews []*models.Review `json:"reviews"`
	HasNext bool             `json:"has_next"`
}

type CreateReviewInput struct {
	Text           string   `json:"text" validate:"min=3"`
	AuthorID       string   `json:"author_id" validate:"required"`
	CommunityID    string   `json:"community_id"`
	SongTitle      string   `json:"song_title" validate:"required,max=200"`
	Artist         string   `json:"artist" validate:"required,max=200"`
	Rating         *float64 `json:"rating" validate:"required,gte=0,lte=5"`
	ListenedBefore bool     `json:"listened_before"`
	Path           string   `json:"path"`
}

// CreateReviewResult is returned for every created review. CommunityLinked is
// false when no community was requested or the requested one did not resolve.
type CreateReviewResult struct {
	Success         bool   `json:"success"`
	ReviewID        string `json:"review_id"`
	CommunityLinked bool   `json:"community_linked"`
}

type AddCommentInput struct {
	ReviewID string `json:"review_id" validate:"required"`
	Text     string `json:"text" validate:"min=3"`
	UserID   string `json:"user_id" validate:"required"`
	Path     string `json:"path"`
}

type DeleteReviewInput struct {
	ID string
	// RequesterID, when set, must be the review's author.
	RequesterID string
	Path        string
}

type DeleteResult struct {
	DeletedIDs []string `json:"deleted_ids"`
}

func NewReviewService(store repository.Store, signal revalidate.Signaler) *ReviewService {
	if signal == nil {
		signal = revalidate.Nop{}
	}
	return &ReviewService{store: store, signal: signal}
}

// SetFlags enables flag-gated behaviour such as community autojoin.
func (s *ReviewService) SetFlags(m *featureflags.Manager) {
	s.flags = m
}

func (s *ReviewService) ListReviews(ctx context.Context, page, pageSize int) (*ReviewPage, error) {
	limit, offset, err := pageWindow(page, pageSize)
	if err != nil {
		return nil, err
	}
	reviews, total, err := s.store.Reviews().ListTopLevel(ctx, limit, offset)
	if err != nil {
		return nil, storeFailure(ctx, "fetch reviews", err)
	}
	return &ReviewPage{Reviews: reviews, HasNext: hasNext(total, offset, len(reviews))}, nil
}

func (s *ReviewService) CreateReview(ctx context.Context, in CreateReviewInput) (res *CreateReviewResult, err error) {
	ctx, finish := observability.StartSpan(ctx, "review", "create")
	defer func() { finish(err) }()

	in.Text = strings.TrimSpace(in.Text)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	review := &models.Review{
		ID:             uuid.NewString(),
		AuthorID:       in.AuthorID,
		Text:           in.Text,
		SongTitle:      strings.TrimSpace(in.SongTitle),
		Artist:         strings.TrimSpace(in.Artist),
		Rating:         in.Rating,
		ListenedBefore: in.ListenedBefore,
	}

	linked := false
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if in.CommunityID != "" {
			id, ok, err := tx.Communities().Resolve(ctx, in.CommunityID)
			if err != nil {
				return err
			}
			if ok {
				review.CommunityID = &id
				linked = true
			}
		}

		if err := tx.Reviews().Create(ctx, review); err != nil {
			return err
		}
		if err := tx.Users().AppendReview(ctx, in.AuthorID, review.ID); err != nil {
			return err
		}
		if !linked {
			return nil
		}
		if err := tx.Communities().AppendReview(ctx, *review.CommunityID, review.ID); err != nil {
			return err
		}
		if s.flags.Enabled(featureflags.CommunityAutojoin, in.AuthorID) {
			return tx.Communities().AddMember(ctx, *review.CommunityID, in.AuthorID)
		}
		return nil
	})
	if err != nil {
		return nil, storeFailure(ctx, "create review", err)
	}

	if linked {
		path := in.Path
		if path == "" {
			path = FeedPath
		}
		s.signal.Revalidate(ctx, path)
	}
	return &CreateReviewResult{Success: true, ReviewID: review.ID, CommunityLinked: linked}, nil
}

// GetReview returns the review thread: author, community and two levels of replies.
func (s *ReviewService) GetReview(ctx context.Context, id string) (*models.Review, error) {
	review, err := s.store.Reviews().GetThread(ctx, id)
	if models.HasCode(err, models.CodeNotFound) {
		return nil, models.NewNotFoundMessage("Review not found")
	}
	if err != nil {
		return nil, opaqueFailure(ctx, "Unable to fetch review", err)
	}
	return review, nil
}

// AddComment appends a reply to the review's children.
func (s *ReviewService) AddComment(ctx context.Context, in AddCommentInput) (reply *models.Review, err error) {
	ctx, finish := observability.StartSpan(ctx, "review", "add_comment")
	defer func() { finish(err) }()

	in.Text = strings.TrimSpace(in.Text)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		parent, err := tx.Reviews().GetByID(ctx, in.ReviewID)
		if err != nil {
			return err
		}
		reply = &models.Review{
			ID:          uuid.NewString(),
			AuthorID:    in.UserID,
			Text:        in.Text,
			ParentID:    &parent.ID,
			CommunityID: parent.CommunityID,
		}
		return tx.Reviews().Create(ctx, reply)
	})
	if models.HasCode(err, models.CodeNotFound) {
		return nil, models.NewNotFoundMessage("Review not found")
	}
	if err != nil {
		return nil, opaqueFailure(ctx, "Unable to add comment", err)
	}

	s.signal.Revalidate(ctx, in.Path)
	return reply, nil
}

// DeleteReview removes a review with every transitive reply and pulls the
// removed ids from the owning users' and communities' lists.
func (s *ReviewService) DeleteReview(ctx context.Context, in DeleteReviewInput) (res *DeleteResult, err error) {
	ctx, finish := observability.StartSpan(ctx, "review", "delete", attribute.String("review.id", in.ID))
	defer func() { finish(err) }()

	var deleted []string
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		target, err := tx.Reviews().GetByID(ctx, in.ID)
		if err != nil {
			return err
		}
		if in.RequesterID != "" && target.AuthorID != in.RequesterID {
			return models.NewUnauthorizedError("You can only delete your own reviews")
		}

		descendants, err := collectDescendants(ctx, tx.Reviews(), target.ID)
		if err != nil {
			return err
		}
		ids, authors, communities := cascadeSets(append([]*models.Review{target}, descendants...))

		// Join rows go first so their foreign keys never dangle.
		if err := tx.Users().PullReviews(ctx, authors, ids); err != nil {
			return err
		}
		if err := tx.Communities().PullReviews(ctx, communities, ids); err != nil {
			return err
		}
		if _, err := tx.Reviews().DeleteByIDs(ctx, ids); err != nil {
			return err
		}
		deleted = ids
		return nil
	})
	if models.HasCode(err, models.CodeNotFound) {
		return nil, models.NewNotFoundMessage("Review not found")
	}
	if err != nil {
		return nil, storeFailure(ctx, "delete review", err)
	}

	observability.ReviewCascadeSize.Observe(float64(len(deleted)))
	s.signal.Revalidate(ctx, in.Path)
	return &DeleteResult{DeletedIDs: deleted}, nil
}

// ListCommunityReviews pages through a community's top-level reviews.
func (s *ReviewService) ListCommunityReviews(ctx context.Context, communityID string, page, pageSize int) (*ReviewPage, error) {
	limit, offset, err := pageWindow(page, pageSize)
	if err != nil {
		return nil, err
	}
	id, ok, err := s.store.Communities().Resolve(ctx, communityID)
	if err != nil {
		return nil, storeFailure(ctx, "fetch community reviews", err)
	}
	if !ok {
		return nil, models.NewNotFoundMessage("Community not found")
	}
	reviews, total, err := s.store.Communities().ListReviews(ctx, id, limit, offset)
	if err != nil {
		return nil, storeFailure(ctx, "fetch community reviews", err)
	}
	return &ReviewPage{Reviews: reviews, HasNext: hasNext(total, offset, len(reviews))}, nil
}

// collectDescendants walks the reply tree breadth-first, one query per level.
// The visited set ends the walk even if stored parent links form a cycle.
func collectDescendants(ctx context.Context, reviews repository.ReviewRepository, rootID string) ([]*models.Review, error) {
	visited := map[string]struct{}{rootID: {}}
	frontier := []string{rootID}
	var out []*models.Review

	for len(frontier) > 0 {
		children, err := reviews.ListChildren(ctx, frontier)
		if err != nil {
			return nil, err
		}
		next := make([]string, 0, len(children))
		for _, c := range children {
			if _, seen := visited[c.ID]; seen {
				continue
			}
			visited[c.ID] = struct{}{}
			out = append(out, c)
			next = append(next, c.ID)
		}
		frontier = next
	}
	return out, nil
}

// cascadeSets returns the ids to delete and the distinct non-empty author and
// community ids that reference them.
func cascadeSets(reviews []*models.Review) (ids, authors, communities []string) {
	seenAuthor := make(map[string]struct{})
	seenCommunity := make(map[string]struct{})
	for _, r := range reviews {
		ids = append(ids, r.ID)
		if r.AuthorID != "" {
			if _, ok := seenAuthor[r.AuthorID]; !ok {
				seenAuthor[r.AuthorID] = struct{}{}
				authors = append(authors, r.AuthorID)
			}
		}
		if r.CommunityID != nil && *r.CommunityID != "" {
			if _, ok := seenCommunity[*r.CommunityID]; !ok {
				seenCommunity[*r.CommunityID] = struct{}{}
				communities = append(communities, *r.CommunityID)
			}
		}
	}
	return ids, authors, communities
}
