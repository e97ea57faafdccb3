package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCompositeHealthChecker(t *testing.T) {
	c := NewCompositeHealthChecker("test")
	st := c.Check(context.Background())
	assert.True(t, st.Healthy)
	assert.Equal(t, StatusOK, st.Status)

	c.AddCheck("db", PingCheck(pingerFunc(func(context.Context) error { return nil })))
	c.AddOptionalCheck("user_cache", func(context.Context) error { return errors.New("breaker open") })

	st = c.Check(context.Background())
	assert.True(t, st.Healthy)
	assert.Equal(t, StatusDegraded, st.Status)
	assert.False(t, st.Checks["user_cache"].Critical)

	c.AddCheck("redis", PingCheck(pingerFunc(func(context.Context) error { return errors.New("refused") })))

	st = c.Check(context.Background())
	assert.False(t, st.Healthy)
	assert.Equal(t, StatusDown, st.Status)
	assert.True(t, st.Checks["db"].Healthy)
	assert.Equal(t, "refused", st.Checks["redis"].Message)
	assert.Equal(t, "Some checks failed: redis, user_cache", st.Message)

	c.RemoveCheck("redis")
	c.RemoveCheck("user_cache")
	assert.Equal(t, StatusOK, c.Check(context.Background()).Status)
}

func TestHealthCheckTimeout(t *testing.T) {
	c := NewCompositeHealthChecker("test")
	c.SetTimeout(10 * time.Millisecond)
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	st := c.Check(context.Background())
	assert.False(t, st.Healthy)
	assert.Equal(t, context.DeadlineExceeded.Error(), st.Checks["slow"].Message)
}

func TestAPIKeyAuth(t *testing.T) {
	auth := NewAPIKeyAuth("X-API-Key", []string{"secret", ""})
	h := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"empty key never matches", map[string]string{"X-API-Key": ""}, http.StatusUnauthorized},
		{"header", map[string]string{"X-API-Key": "secret"}, http.StatusNoContent},
		{"bearer", map[string]string{"Authorization": "Bearer secret"}, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestAPIKeyAuthAcceptsBcryptHashes(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("rotated-key"), bcrypt.MinCost)
	require.NoError(t, err)

	auth := NewAPIKeyAuth("X-API-Key", []string{"plain", string(hash)})
	assert.True(t, auth.IsValid("plain"))
	assert.True(t, auth.IsValid("rotated-key"))
	assert.False(t, auth.IsValid(string(hash)))
	assert.False(t, auth.IsValid("other"))

	stored, err := HashAPIKey("generated")
	require.NoError(t, err)
	assert.True(t, NewAPIKeyAuth("X-API-Key", []string{stored}).IsValid("generated"))
}

func TestRequestSizeLimit(t *testing.T) {
	h := RequestSizeLimitMiddleware(4)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long")))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "payload_too_large")
}
