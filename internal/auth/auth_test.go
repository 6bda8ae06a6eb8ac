package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/config"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

func cheapHasher() *PasswordHasher {
	return &PasswordHasher{memory: 1024, iterations: 1, parallelism: 1, saltLength: 16, keyLength: 32}
}

func newTestService(t *testing.T) *AuthService {
	t.Helper()

	t.Setenv("OSI_TEST_JWT", strings.Repeat("k", 40))

	hasher := cheapHasher()
	viewerHash, err := hasher.HashPassword("look")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	operatorHash, err := hasher.HashPassword("touch")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	return NewAuthService(config.AuthConfig{
		JWTSecretEnv:   "OSI_TEST_JWT",
		AccessTokenTTL: time.Minute,
		Users: []config.UserConfig{
			{Username: "vera", PasswordHash: viewerHash, Role: RoleViewer},
			{Username: "otto", PasswordHash: operatorHash, Role: RoleOperator},
		},
	}, zaptest.NewLogger(t))
}

func TestPasswordHasher(t *testing.T) {
	h := cheapHasher()

	encoded, err := h.HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Errorf("unexpected encoding %s", encoded)
	}

	if ok, err := h.VerifyPassword("secret", encoded); err != nil || !ok {
		t.Errorf("expected match, got %v %v", ok, err)
	}
	if ok, _ := h.VerifyPassword("Secret", encoded); ok {
		t.Error("expected mismatch for wrong password")
	}

	for _, bad := range []string{"", "plain", "$argon2i$v=19$m=1,t=1,p=1$AA$AA", "$argon2id$v=19$m=x$AA$AA"} {
		if _, err := h.VerifyPassword("secret", bad); !errors.Is(err, ErrInvalidHash) {
			t.Errorf("VerifyPassword(%q): expected ErrInvalidHash, got %v", bad, err)
		}
	}
}

func TestLoginAndValidate(t *testing.T) {
	svc := newTestService(t)

	tok, err := svc.Login("otto", "touch", "127.0.0.1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if tok.Role != RoleOperator {
		t.Errorf("expected role operator, got %s", tok.Role)
	}

	claims, perms, err := svc.ValidateToken(tok.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Username != "otto" || claims.Subject != "otto" {
		t.Errorf("unexpected claims %+v", claims)
	}
	if !HasPermission(perms, PermWrite) {
		t.Error("operator should have write permission")
	}

	if _, _, err := svc.ValidateToken(tok.AccessToken + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.Login("nobody", "x", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login("vera", "wrong", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginLockout(t *testing.T) {
	svc := newTestService(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	for i := 0; i < maxFailedAttempts; i++ {
		svc.Login("vera", "wrong", "")
	}

	if _, err := svc.Login("vera", "look", ""); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	now = now.Add(lockoutDuration + time.Second)
	if _, err := svc.Login("vera", "look", ""); err != nil {
		t.Errorf("expected login after lockout, got %v", err)
	}
}

func TestRolePermissions(t *testing.T) {
	if HasPermission(RolePermissions(RoleViewer), PermWrite) {
		t.Error("viewer must not write")
	}
	if !HasPermission(RolePermissions(RoleViewer), PermRead) {
		t.Error("viewer must read")
	}
	if HasPermission(RolePermissions("unknown"), PermWrite) {
		t.Error("unknown role must not write")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestService(t)

	router := gin.New()
	api := router.Group("/", svc.AuthMiddleware())
	api.GET("/read", RequirePermission(PermRead), func(c *gin.Context) {
		c.String(http.StatusOK, Username(c))
	})
	api.POST("/write", RequirePermission(PermWrite), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	viewer, err := svc.Login("vera", "look", "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"missing header", http.MethodGet, "/read", "", http.StatusUnauthorized},
		{"wrong scheme", http.MethodGet, "/read", "Basic abc", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/read", "Bearer abc", http.StatusUnauthorized},
		{"viewer reads", http.MethodGet, "/read", "Bearer " + viewer.AccessToken, http.StatusOK},
		{"viewer writes", http.MethodPost, "/write", "Bearer " + viewer.AccessToken, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
			if tt.want == http.StatusOK && w.Body.String() != "vera" {
				t.Errorf("expected username vera, got %s", w.Body.String())
			}
		})
	}
}
