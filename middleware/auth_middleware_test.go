package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubValidator struct {
	claims *Claims
	err    error
}

func (s *stubValidator) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		query      string
		validator  TokenValidator
		wantStatus int
		wantNext   bool
	}{
		{
			name:       "valid bearer header",
			header:     "Bearer good-token",
			validator:  &stubValidator{claims: &Claims{Sub: "user-1"}},
			wantStatus: http.StatusOK,
			wantNext:   true,
		},
		{
			name:       "valid token query parameter",
			query:      "good-token",
			validator:  &stubValidator{claims: &Claims{Sub: "user-1"}},
			wantStatus: http.StatusOK,
			wantNext:   true,
		},
		{
			name:       "missing token",
			validator:  &stubValidator{claims: &Claims{Sub: "user-1"}},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed authorization header",
			header:     "Token abc",
			validator:  &stubValidator{claims: &Claims{Sub: "user-1"}},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "validation failure",
			header:     "Bearer bad-token",
			validator:  &stubValidator{err: errors.New("expired")},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nextCalled := false
			var gotClaims *Claims
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
				gotClaims = GetClaimsFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			mw := NewAuthMiddleware(tt.validator, zap.NewNop())

			url := "/ws"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			mw.RequireAuth(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantNext, nextCalled)
			if tt.wantNext {
				require.NotNil(t, gotClaims)
				assert.Equal(t, "user-1", gotClaims.Sub)
			}
		})
	}
}

func TestHMACValidator(t *testing.T) {
	const secret = "test-secret"
	v := NewHMACValidator(secret)
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		now := time.Now()
		signed := signToken(t, secret, jwt.MapClaims{
			"sub": "user-42",
			"exp": now.Add(time.Hour).Unix(),
			"iat": now.Unix(),
		})

		claims, err := v.ValidateToken(ctx, signed)
		require.NoError(t, err)
		assert.Equal(t, "user-42", claims.Sub)
		assert.Equal(t, now.Add(time.Hour).Unix(), claims.Exp)
		assert.Equal(t, now.Unix(), claims.Iat)
	})

	t.Run("wrong secret", func(t *testing.T) {
		signed := signToken(t, "other-secret", jwt.MapClaims{
			"sub": "user-42",
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		_, err := v.ValidateToken(ctx, signed)
		assert.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		signed := signToken(t, secret, jwt.MapClaims{
			"sub": "user-42",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})

		_, err := v.ValidateToken(ctx, signed)
		assert.Error(t, err)
	})

	t.Run("unsigned algorithm rejected", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-42"})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = v.ValidateToken(ctx, signed)
		assert.Error(t, err)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := v.ValidateToken(ctx, "not.a.jwt")
		assert.Error(t, err)
	})
}
