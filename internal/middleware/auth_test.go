package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/powerchain/backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) ValidateToken(ctx context.Context, token string) (services.Claims, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(services.Claims), args.Error(1)
}

const address = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Write([]byte(id))
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		v := new(MockValidator)
		v.On("ValidateToken", mock.Anything, "good").
			Return(services.Claims{Address: address, TokenID: "jti-1", ExpiresAt: time.Now().Add(time.Hour)}, nil)

		r := httptest.NewRequest(http.MethodGet, "/energy/balance", nil)
		r.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()

		AuthMiddleware(v)(echoIdentity()).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, address, w.Body.String())
		v.AssertExpectations(t)
	})

	t.Run("missing header", func(t *testing.T) {
		v := new(MockValidator)
		r := httptest.NewRequest(http.MethodGet, "/energy/balance", nil)
		w := httptest.NewRecorder()

		AuthMiddleware(v)(echoIdentity()).ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		v.AssertNotCalled(t, "ValidateToken", mock.Anything, mock.Anything)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		v := new(MockValidator)
		r := httptest.NewRequest(http.MethodGet, "/energy/balance", nil)
		r.Header.Set("Authorization", "Basic abc")
		w := httptest.NewRecorder()

		AuthMiddleware(v)(echoIdentity()).ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("revoked token", func(t *testing.T) {
		v := new(MockValidator)
		v.On("ValidateToken", mock.Anything, "revoked").Return(services.Claims{}, services.ErrTokenRevoked)

		r := httptest.NewRequest(http.MethodGet, "/energy/balance", nil)
		r.Header.Set("Authorization", "Bearer revoked")
		w := httptest.NewRecorder()

		AuthMiddleware(v)(echoIdentity()).ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "TOKEN_REVOKED")
	})
}

func TestIdentityFromContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	id, ok := IdentityFromContext(WithIdentity(context.Background(), address))
	assert.True(t, ok)
	assert.Equal(t, address, id)
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}
