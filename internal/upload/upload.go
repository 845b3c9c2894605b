// Package upload accepts media files, normalises them to JPEG and hands them
// to a Storage.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/francozeta/musicbox/internal/config"
	"github.com/francozeta/musicbox/internal/middleware"
	"github.com/francozeta/musicbox/internal/models"
	"github.com/francozeta/musicbox/internal/observability"

	"github.com/google/uuid"
)

// RouteMedia is the only upload route.
const RouteMedia = "media"

const DefaultMaxUploadSizeMB = 4

// File is one part of a multipart upload.
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

// Result reports the outcome for one file. Error is set instead of Key/URL
// when that file failed.
type Result struct {
	Name  string `json:"name"`
	Key   string `json:"key,omitempty"`
	URL   string `json:"url,omitempty"`
	Size  int    `json:"size"`
	Error string `json:"error,omitempty"`
}

type Service struct {
	storage  Storage
	maxBytes int
}

func NewService(storage Storage, maxSizeMB int) *Service {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxUploadSizeMB
	}
	return &Service{storage: storage, maxBytes: maxSizeMB * 1024 * 1024}
}

// New builds the storage named by cfg.UploadDriver. Remote storage is wrapped
// in a circuit breaker.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	switch cfg.UploadDriver {
	case "", config.UploadDriverDisk:
		disk, err := NewDiskStorage(cfg.UploadDir, cfg.UploadPublicBaseURL)
		if err != nil {
			return nil, err
		}
		return NewService(disk, cfg.UploadMaxSizeMB), nil
	case config.UploadDriverS3:
		s3Store, err := NewS3Storage(ctx, S3Config{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			PublicBaseURL: cfg.UploadPublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return NewService(NewBreakerStorage(s3Store), cfg.UploadMaxSizeMB), nil
	default:
		return nil, fmt.Errorf("unsupported upload driver %q", cfg.UploadDriver)
	}
}

// Upload processes every file independently. Only a bad route or an empty
// batch fails the whole call.
func (s *Service) Upload(ctx context.Context, route string, files []File) (results []Result, err error) {
	ctx, finish := observability.StartSpan(ctx, "upload", route)
	defer func() { finish(err) }()

	if route != RouteMedia {
		return nil, models.NewValidationError(fmt.Sprintf("unknown upload route %q", route))
	}
	if len(files) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}

	results = make([]Result, 0, len(files))
	for _, f := range files {
		res := s.uploadOne(ctx, f)
		outcome := "ok"
		if res.Error != "" {
			outcome = "rejected"
		}
		observability.UploadResults.WithLabelValues(s.storage.Name(), outcome).Inc()
		results = append(results, res)
	}
	return results, nil
}

func (s *Service) uploadOne(ctx context.Context, f File) Result {
	res := Result{Name: f.Name, Size: len(f.Content)}

	if len(f.Content) == 0 {
		res.Error = "empty file"
		return res
	}
	if len(f.Content) > s.maxBytes {
		res.Error = fmt.Sprintf("file too large (max %dMB)", s.maxBytes/(1024*1024))
		return res
	}
	detected := http.DetectContentType(f.Content)
	if !isAllowedImageMIME(detected) {
		res.Error = "invalid image type"
		return res
	}

	encoded, err := normalizeImage(f.Content)
	switch {
	case errors.Is(err, errImageTooLarge):
		res.Error = "image too large"
		return res
	case err != nil:
		res.Error = "invalid image file"
		return res
	}

	key := "media/" + uuid.NewString() + ".jpg"
	url, err := s.storage.Put(ctx, key, "image/jpeg", encoded)
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "upload storage failed",
			slog.String("key", key),
			slog.String("driver", s.storage.Name()),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, ErrStorageUnavailable) {
			res.Error = "storage unavailable"
		} else {
			res.Error = "storage failed"
		}
		return res
	}

	res.Key, res.URL, res.Size = key, url, len(encoded)
	return res
}

func isAllowedImageMIME(mimeType string) bool {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	}
	return false
}
