package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/psds-microservice/ticket-tracker/internal/model"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func newTestRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(), Logging(zap.NewNop()), Principal(secret))
	r.GET("/whoami", func(c *gin.Context) {
		p, _ := PrincipalFrom(c)
		c.String(http.StatusOK, "%s|%s|%s", p.ID, p.Role, p.OrganizationID)
	})
	return r
}

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func validClaims() Claims {
	return Claims{
		Role:           "manager",
		OrganizationID: "org-a",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestPrincipal_Headers(t *testing.T) {
	r := newTestRouter("")
	tests := []struct {
		name    string
		headers map[string]string
		status  int
		body    string
	}{
		{"full", map[string]string{HeaderUserID: "u1", HeaderUserRole: "DESIGNER", HeaderOrganizationID: "org-a"}, http.StatusOK, "u1|DESIGNER|org-a"},
		{"no org", map[string]string{HeaderUserID: "u1", HeaderUserRole: "admin"}, http.StatusOK, "u1|ADMIN|"},
		{"no user", map[string]string{HeaderUserRole: "ADMIN"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad role", map[string]string{HeaderUserID: "u1", HeaderUserRole: "OWNER"}, http.StatusUnauthorized, "UNAUTHORIZED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.status || !strings.Contains(w.Body.String(), tt.body) {
				t.Errorf("got %d %q, want %d containing %q", w.Code, w.Body.String(), tt.status, tt.body)
			}
		})
	}
}

func TestPrincipal_Bearer(t *testing.T) {
	r := newTestRouter(testSecret)

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noSub := validClaims()
	noSub.Subject = ""
	badRole := validClaims()
	badRole.Role = "owner"

	tests := []struct {
		name   string
		auth   string
		status int
	}{
		{"valid", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims()), http.StatusOK},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims()), http.StatusUnauthorized},
		{"wrong alg", "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims()), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired), http.StatusUnauthorized},
		{"no subject", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noSub), http.StatusUnauthorized},
		{"bad role", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), badRole), http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
		{"basic", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			// Headers are ignored once a secret is configured.
			req.Header.Set(HeaderUserID, "spoofed")
			req.Header.Set(HeaderUserRole, "ADMIN")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			if tt.status == http.StatusOK && w.Body.String() != "user-1|"+string(model.RoleManager)+"|org-a" {
				t.Errorf("body = %q", w.Body.String())
			}
		})
	}
}
