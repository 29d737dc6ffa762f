package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOwnerRoundTrip(t *testing.T) {
	_, ok := OwnerFromContext(context.Background())
	assert.False(t, ok)

	ctx := ContextWithOwner(context.Background(), "10.0.0.7")
	owner, ok := OwnerFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.7", owner)

	_, ok = OwnerFromContext(ContextWithOwner(context.Background(), ""))
	assert.False(t, ok)
}

func TestOwnerFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/entries/1", nil)
	r.RemoteAddr = "192.168.1.5:51234"
	assert.Equal(t, "192.168.1.5", OwnerFromRequest(r))

	r.Header.Set("X-Forwarded-For", " 10.1.1.1 , 172.16.0.1")
	assert.Equal(t, "10.1.1.1", OwnerFromRequest(r))
}
