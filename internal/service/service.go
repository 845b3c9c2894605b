// Package service holds the review, user and community use cases. Every
// multi-step mutation runs inside one store transaction.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/francozeta/musicbox/internal/middleware"
	"github.com/francozeta/musicbox/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// FeedPath is the page listing top-level reviews. A linked create that names
// no path revalidates it.
const FeedPath = "/"

// pageWindow turns page/pageSize into limit/offset. Pages start at 1, and
// offset+limit always fits in an int.
func pageWindow(page, pageSize int) (limit, offset int, err error) {
	if page < 1 {
		return 0, 0, models.NewValidationError("page must be at least 1")
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if page-1 > (math.MaxInt-pageSize)/pageSize {
		return 0, 0, models.NewValidationError("page is out of range")
	}
	return pageSize, (page - 1) * pageSize, nil
}

func hasNext(total int64, offset, returned int) bool {
	return total > int64(offset+returned)
}

// passThrough reports whether err already carries a code the client should see.
func passThrough(err error) bool {
	var appErr *models.AppError
	return errors.As(err, &appErr) && appErr.Code != models.CodeInternal
}

// storeFailure logs err and wraps it as "Failed to <op>: <cause>".
func storeFailure(ctx context.Context, op string, err error) error {
	if passThrough(err) {
		return err
	}
	middleware.Logger.ErrorContext(ctx, "store operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	return models.NewOperationError(op, err)
}

// opaqueFailure logs err and returns msg alone; the cause never reaches the client.
func opaqueFailure(ctx context.Context, msg string, err error) error {
	middleware.Logger.ErrorContext(ctx, msg, slog.String("error", err.Error()))
	return models.NewOperationMessage(msg)
}
