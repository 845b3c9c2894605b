package server

import (
	"github.com/francozeta/musicbox/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListCommunities handles GET /api/communities?search=&page=&page_size=
func (s *Server) ListCommunities(c *fiber.Ctx) error {
	p := parsePagination(c)
	page, err := s.communityService.SearchCommunities(c.UserContext(), c.Query("search"), p.Page, p.PageSize)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// GetCommunity handles GET /api/communities/:id
func (s *Server) GetCommunity(c *fiber.Ctx) error {
	id, err := pathParam(c, "id")
	if err != nil {
		return nil
	}
	community, err := s.communityService.GetCommunity(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(community)
}

// GetCommunityReviews handles GET /api/communities/:id/reviews
func (s *Server) GetCommunityReviews(c *fiber.Ctx) error {
	id, err := pathParam(c, "id")
	if err != nil {
		return nil
	}
	p := parsePagination(c)
	page, err := s.reviewService.ListCommunityReviews(c.UserContext(), id, p.Page, p.PageSize)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// CreateCommunity handles POST /api/communities
func (s *Server) CreateCommunity(c *fiber.Ctx) error {
	var in service.CreateCommunityInput
	if err := parseBody(c, &in); err != nil {
		return nil
	}
	in.CreatedBy = currentUserID(c)

	community, err := s.communityService.CreateCommunity(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(community)
}

// JoinCommunity handles POST /api/communities/:id/members
func (s *Server) JoinCommunity(c *fiber.Ctx) error {
	id, err := pathParam(c, "id")
	if err != nil {
		return nil
	}
	if err := s.communityService.AddMember(c.UserContext(), id, currentUserID(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// LeaveCommunity handles DELETE /api/communities/:id/members
func (s *Server) LeaveCommunity(c *fiber.Ctx) error {
	id, err := pathParam(c, "id")
	if err != nil {
		return nil
	}
	if err := s.communityService.RemoveMember(c.UserContext(), id, currentUserID(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}
