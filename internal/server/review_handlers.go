package server

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/francozeta/musicbox/internal/cache"
	"github.com/francozeta/musicbox/internal/featureflags"
	"github.com/francozeta/musicbox/internal/models"
	"github.com/francozeta/musicbox/internal/service"

	"github.com/gofiber/fiber/v2"
)

// feedPath is the page that renders the review feed; revalidating it drops
// every cached feed page.
const feedPath = service.FeedPath

// ListReviews handles GET /api/reviews?page=&page_size=
func (s *Server) ListReviews(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	p := parsePagination(c)

	var page service.ReviewPage
	fetch := func() error {
		res, err := s.reviewService.ListReviews(ctx, p.Page, p.PageSize)
		if err != nil {
			return err
		}
		page = *res
		return nil
	}

	var err error
	if s.featureFlags.Enabled(featureflags.ResponseCache, currentUserID(c)) {
		key := cache.PageKey(feedPath, url.Values{
			"page":      {strconv.Itoa(p.Page)},
			"page_size": {strconv.Itoa(p.PageSize)},
		})
		err = cache.Aside(ctx, key, &page, cache.FeedTTL, fetch)
	} else {
		err = fetch()
	}
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(page)
}

// CreateReview handles POST /api/reviews
func (s *Server) CreateReview(c *fiber.Ctx) error {
	var in service.CreateReviewInput
	if err := parseBody(c, &in); err != nil {
		return nil
	}
	in.AuthorID = currentUserID(c)

	res, err := s.reviewService.CreateReview(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(res)
}

// GetReview handles GET /api/reviews/:id
func (s *Server) GetReview(c *fiber.Ctx) error {
	id, err := pathParam(c, "id")
	if err != nil {
		return nil
	}

	review, err := s.reviewService.GetReview(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(review)
}

// AddComment handles POST /api/reviews/:id/comments
func (s *Server) AddComment(c *fiber.Ctx) error {
	id, err := pathParam(c, "id")
	if err != nil {
		return nil
	}

	var in service.AddCommentInput
	if err := parseBody(c, &in); err != nil {
		return nil
	}
	in.ReviewID = id
	in.UserID = currentUserID(c)

	reply, err := s.reviewService.AddComment(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(reply)
}

// DeleteReview handles DELETE /api/reviews/:id?path=
func (s *Server) DeleteReview(c *fiber.Ctx) error {
	id, err := pathParam(c, "id")
	if err != nil {
		return nil
	}

	res, err := s.reviewService.DeleteReview(c.UserContext(), service.DeleteReviewInput{
		ID:          id,
		RequesterID: currentUserID(c),
		Path:        c.Query("path"),
	})
	if err != nil {
		// The caller is authenticated; an ownership failure is a 403.
		if models.HasCode(err, models.CodeUnauthorized) {
			return models.RespondWithError(c, fiber.StatusForbidden, err)
		}
		return respondError(c, err)
	}

	return c.JSON(res)
}
