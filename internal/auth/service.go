package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/config"
	"go.uber.org/zap"
)

type Permission string

const (
	PermRead  Permission = "read"
	PermWrite Permission = "write"
)

const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
)

const (
	maxFailedAttempts = 5
	lockoutDuration   = 15 * time.Minute
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
)

// Token is the result of a successful login.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Role        string    `json:"role"`
}

type loginState struct {
	failed      int
	lockedUntil time.Time
}

// AuthService authenticates the users listed in the configuration.
type AuthService struct {
	users          map[string]config.UserConfig
	jwtHandler     *JWTHandler
	passwordHasher *PasswordHasher

	mu     sync.Mutex
	logins map[string]*loginState
	now    func() time.Time

	logger *zap.Logger
}

func NewAuthService(cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	users := make(map[string]config.UserConfig, len(cfg.Users))
	for _, u := range cfg.Users {
		users[u.Username] = u
	}

	if !cfg.IsProductionReady() {
		logger.Warn("JWT secret not set or too short, using development secret",
			zap.String("env", cfg.JWTSecretEnv))
	}

	return &AuthService{
		users:          users,
		jwtHandler:     NewJWTHandler(cfg.GetJWTSecret(), cfg.AccessTokenTTL),
		passwordHasher: NewPasswordHasher(),
		logins:         make(map[string]*loginState),
		now:            time.Now,
		logger:         logger.With(zap.String("component", "auth")),
	}
}

// Login verifies the password and issues an access token. Five consecutive
// failures lock the account for fifteen minutes.
func (a *AuthService) Login(username, password, ipAddress string) (*Token, error) {
	if err := a.checkLocked(username); err != nil {
		a.logger.Warn("Login rejected", zap.String("username", username), zap.String("ip", ipAddress), zap.Error(err))
		return nil, err
	}

	user, ok := a.users[username]
	if !ok {
		a.recordFailure(username)
		a.logger.Info("Login failed", zap.String("username", username), zap.String("ip", ipAddress), zap.String("reason", "user not found"))
		return nil, ErrInvalidCredentials
	}

	valid, err := a.passwordHasher.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		a.logger.Error("Stored password hash unusable", zap.String("username", username), zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if !valid {
		a.recordFailure(username)
		a.logger.Info("Login failed", zap.String("username", username), zap.String("ip", ipAddress), zap.String("reason", "invalid password"))
		return nil, ErrInvalidCredentials
	}

	a.resetFailures(username)

	access, expires, err := a.jwtHandler.GenerateAccessToken(user.Username, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	a.logger.Info("Login succeeded", zap.String("username", username), zap.String("ip", ipAddress))
	return &Token{AccessToken: access, ExpiresAt: expires, Role: user.Role}, nil
}

// ValidateToken returns the permissions carried by an access token.
func (a *AuthService) ValidateToken(token string) (*JWTClaims, []Permission, error) {
	claims, err := a.jwtHandler.ValidateAccessToken(token)
	if err != nil {
		return nil, nil, err
	}
	return claims, RolePermissions(claims.Role), nil
}

func RolePermissions(role string) []Permission {
	switch role {
	case RoleOperator:
		return []Permission{PermRead, PermWrite}
	default:
		return []Permission{PermRead}
	}
}

func HasPermission(perms []Permission, required Permission) bool {
	for _, p := range perms {
		if p == required {
			return true
		}
	}
	return false
}

func (a *AuthService) checkLocked(username string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.logins[username]
	if !ok || st.lockedUntil.IsZero() {
		return nil
	}
	if a.now().Before(st.lockedUntil) {
		return fmt.Errorf("%w until %s", ErrAccountLocked, st.lockedUntil.Format(time.RFC3339))
	}
	delete(a.logins, username)
	return nil
}

func (a *AuthService) recordFailure(username string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.logins[username]
	if !ok {
		st = &loginState{}
		a.logins[username] = st
	}
	st.failed++
	if st.failed >= maxFailedAttempts {
		st.lockedUntil = a.now().Add(lockoutDuration)
	}
}

func (a *AuthService) resetFailures(username string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.logins, username)
}
