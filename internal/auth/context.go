// Package auth carries the identity of the requesting client. Lock ownership
// is keyed by that identity.
package auth

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const ownerKey contextKey = "owner"

// ContextWithOwner returns a new context that carries the requesting owner.
func ContextWithOwner(ctx context.Context, owner string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ownerKey, owner)
}

// OwnerFromContext retrieves the requesting owner from the context, if any.
func OwnerFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	owner, ok := ctx.Value(ownerKey).(string)
	if !ok || owner == "" {
		return "", false
	}
	return owner, true
}

// OwnerFromRequest identifies the client of r: the first X-Forwarded-For hop
// when present, otherwise the host part of the remote address.
func OwnerFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
