package server

import (
	"context"
	"time"

	"github.com/francozeta/musicbox/internal/service"

	"github.com/gofiber/fiber/v2"
)

// SearchUsers handles GET /api/users?search=&page=&page_size=&sort=
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	p := parsePagination(c)
	users, err := s.userService.SearchUsers(ctx, service.SearchUsersInput{
		UserID:     currentUserID(c),
		SearchText: c.Query("search"),
		Page:       p.Page,
		PageSize:   p.PageSize,
		SortOrder:  c.Query("sort"),
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(users)
}

// GetUserProfile handles GET /api/users/:id
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	id, err := pathParam(c, "id")
	if err != nil {
		return nil
	}

	user, err := s.userService.GetUser(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(user)
}

// GetMyProfile handles GET /api/users/me. A 404 tells the client to onboard.
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	user, err := s.userService.GetUser(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(user)
}

// UpdateMyProfile handles PUT /api/users/me; the first call onboards the user.
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	var in service.UpdateUserInput
	if err := parseBody(c, &in); err != nil {
		return nil
	}
	in.UserID = currentUserID(c)

	user, err := s.userService.UpdateUser(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(user)
}

// GetUserReviews handles GET /api/users/:id/reviews
func (s *Server) GetUserReviews(c *fiber.Ctx) error {
	id, err := pathParam(c, "id")
	if err != nil {
		return nil
	}

	user, err := s.userService.GetUserReviews(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(user)
}

// GetActivity handles GET /api/activity
func (s *Server) GetActivity(c *fiber.Ctx) error {
	replies, err := s.userService.GetActivity(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"activity": replies})
}
