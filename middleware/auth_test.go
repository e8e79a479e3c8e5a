package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func sign(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func protected() http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		w.Write([]byte(actor))
	})
	return Authenticate(testSecret)(Authorize(RoleOrganizer, RoleAdmin)(ok))
}

func TestAuthenticate(t *testing.T) {
	valid := jwt.MapClaims{"sub": "judge-anna", "role": RoleOrganizer, "exp": time.Now().Add(time.Hour).Unix()}
	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + sign(t, []byte("other"), valid), http.StatusUnauthorized, ""},
		{"expired", "Bearer " + sign(t, testSecret, jwt.MapClaims{"sub": "x", "role": RoleOrganizer, "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized, ""},
		{"arena role is not an organizer", "Bearer " + sign(t, testSecret, jwt.MapClaims{"sub": "arena-1", "role": RoleArena}), http.StatusForbidden, ""},
		{"organizer", "Bearer " + sign(t, testSecret, valid), http.StatusOK, "judge-anna"},
		{"numeric user id", "Bearer " + sign(t, testSecret, jwt.MapClaims{"user_id": 42, "role": RoleAdmin}), http.StatusOK, "user:42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/classes/1/rounds", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected().ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}
