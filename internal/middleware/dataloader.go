package middleware

import (
	"context"
	"net/http"

	"github.com/rpattn/logbook/internal/attachmentloader"
	"github.com/rpattn/logbook/internal/repository"
)

type ctxKey string

const attachmentLoaderKey ctxKey = "attachmentLoader"

// DataLoaderMiddleware attaches a fresh attachment loader to each request.
func DataLoaderMiddleware(repo repository.AttachmentRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := attachmentloader.NewAttachmentLoader(repo)
			ctx := context.WithValue(r.Context(), attachmentLoaderKey, loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AttachmentLoaderFromContext retrieves the request's loader, or nil.
func AttachmentLoaderFromContext(ctx context.Context) *attachmentloader.AttachmentLoader {
	if l, ok := ctx.Value(attachmentLoaderKey).(*attachmentloader.AttachmentLoader); ok {
		return l
	}
	return nil
}
