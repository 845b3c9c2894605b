package server

import (
	"crypto/subtle"
	"fmt"
	"io"
	"strings"

	"github.com/francozeta/musicbox/internal/middleware"
	"github.com/francozeta/musicbox/internal/models"
	"github.com/francozeta/musicbox/internal/upload"

	"github.com/gofiber/fiber/v2"
)

// UploadAuth accepts the configured upload token as a bearer token and falls
// back to normal identity otherwise.
func (s *Server) UploadAuth() fiber.Handler {
	auth := middleware.AuthRequired(s.verifier)
	token := s.config.UploadToken
	return func(c *fiber.Ctx) error {
		if token != "" {
			h := c.Get(fiber.HeaderAuthorization)
			if bearer, ok := strings.CutPrefix(h, "Bearer "); ok &&
				subtle.ConstantTimeCompare([]byte(strings.TrimSpace(bearer)), []byte(token)) == 1 {
				return c.Next()
			}
		}
		return auth(c)
	}
}

// Upload handles POST /api/uploads/:route with multipart "files".
func (s *Server) Upload(c *fiber.Ctx) error {
	if s.uploads == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewOperationMessage("Uploads are not configured"))
	}

	form, err := c.MultipartForm()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Expected multipart form data"))
	}
	headers := form.File["files"]
	if len(headers) > maxFilesPerUpload {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(fmt.Sprintf("At most %d files per upload", maxFilesPerUpload)))
	}

	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return respondError(c, models.NewValidationError("Unreadable file "+fh.Filename))
		}
		content, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return respondError(c, models.NewValidationError("Unreadable file "+fh.Filename))
		}
		files = append(files, upload.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
			Content:     content,
		})
	}

	results, err := s.uploads.Upload(c.UserContext(), c.Params("route"), files)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"files": results})
}
