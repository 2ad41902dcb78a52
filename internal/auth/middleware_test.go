package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func testRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append(mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "tier": GetUserTier(c)})
	})
	r.GET("/protected", handlers...)
	return r
}

func requestWithToken(t *testing.T, r *gin.Engine, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	jm := NewJWTManager("test-secret", time.Minute, time.Hour)
	r := testRouter(Middleware(jm))

	if w := requestWithToken(t, r, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if w := requestWithToken(t, r, "not-a-jwt"); w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	jm := NewJWTManager("test-secret", time.Minute, time.Hour)
	token, err := jm.GenerateAccessToken(UserClaims{UserID: "user-1", Email: "a@b.c", SubscriptionTier: "pro"})
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	r := testRouter(Middleware(jm))
	w := requestWithToken(t, r, token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestOptionalMiddlewareAllowsAnonymous(t *testing.T) {
	jm := NewJWTManager("test-secret", time.Minute, time.Hour)
	r := testRouter(OptionalMiddleware(jm))

	if w := requestWithToken(t, r, ""); w.Code != http.StatusOK {
		t.Errorf("anonymous: status = %d, want %d", w.Code, http.StatusOK)
	}
	// Invalid tokens are ignored rather than rejected.
	if w := requestWithToken(t, r, "bogus"); w.Code != http.StatusOK {
		t.Errorf("bogus token: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRequireAdmin(t *testing.T) {
	jm := NewJWTManager("test-secret", time.Minute, time.Hour)

	tests := []struct {
		name    string
		isAdmin bool
		want    int
	}{
		{"admin allowed", true, http.StatusOK},
		{"non-admin forbidden", false, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jm.GenerateAccessToken(UserClaims{UserID: "user-1", IsAdmin: tt.isAdmin})
			if err != nil {
				t.Fatalf("GenerateAccessToken failed: %v", err)
			}
			r := testRouter(Middleware(jm), RequireAdmin())
			if w := requestWithToken(t, r, token); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRequireTier(t *testing.T) {
	jm := NewJWTManager("test-secret", time.Minute, time.Hour)

	tests := []struct {
		name     string
		userTier string
		minTier  string
		want     int
	}{
		{"free blocked from pro", "free", "pro", http.StatusForbidden},
		{"trader blocked from pro", "trader", "pro", http.StatusForbidden},
		{"pro allowed on pro", "pro", "pro", http.StatusOK},
		{"whale allowed on trader", "whale", "trader", http.StatusOK},
		{"unknown tier ranks as free", "platinum", "trader", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jm.GenerateAccessToken(UserClaims{UserID: "user-1", SubscriptionTier: tt.userTier})
			if err != nil {
				t.Fatalf("GenerateAccessToken failed: %v", err)
			}
			r := testRouter(Middleware(jm), RequireTier(tt.minTier))
			if w := requestWithToken(t, r, token); w.Code != tt.want {
				t.Errorf("tier %q min %q: status = %d, want %d", tt.userTier, tt.minTier, w.Code, tt.want)
			}
		})
	}
}
