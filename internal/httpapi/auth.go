package httpapi

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"labelkit/backend/internal/domain"
	"labelkit/backend/internal/store"
)

const (
	tokenIssuer      = "labelkit"
	userStoreTimeout = 3 * time.Second
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
)

type AuthManager struct {
	mu        sync.RWMutex
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
	users     map[string]credential
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type credential struct {
	password string
	role     string
	active   bool
	created  time.Time
}

type labelClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	manager := &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		users:     make(map[string]credential),
	}
	manager.bootstrapUsers(context.Background())
	return manager
}

// Login reloads accounts first so users created by another instance can sign in.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	a.bootstrapUsers(ctx)

	username := strings.ToLower(strings.TrimSpace(req.Username))
	a.mu.RLock()
	cred, ok := a.users[username]
	a.mu.RUnlock()
	if !ok || !verifyPassword(cred.password, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !cred.active {
		return domain.LoginResponse{}, ErrInactiveAccount
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, cred.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        cred.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &labelClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	switch claims.Role {
	case domain.RoleAdmin, domain.RoleOperator:
	default:
		return domain.Actor{}, errors.New("invalid token role")
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(username, role string, expiresAt time.Time) (string, error) {
	claims := labelClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) CreateOperator(ctx context.Context, req domain.OperatorCreateRequest) (domain.UserAccount, error) {
	a.bootstrapUsers(ctx)

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 {
		return domain.UserAccount{}, fmt.Errorf("username must be at least 4 characters: %w", store.ErrInvalidInput)
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.UserAccount{}, fmt.Errorf("username must not contain spaces: %w", store.ErrInvalidInput)
	}
	if len(strings.TrimSpace(req.Password)) < 8 {
		return domain.UserAccount{}, fmt.Errorf("password must be at least 8 characters: %w", store.ErrInvalidInput)
	}

	a.mu.RLock()
	_, exists := a.users[username]
	a.mu.RUnlock()
	if exists {
		return domain.UserAccount{}, fmt.Errorf("username %s: %w", username, store.ErrConflict)
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.UserAccount{
		Username:  username,
		Password:  passwordHash,
		Role:      domain.RoleOperator,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	if a.userStore != nil {
		if err := a.userStore.CreateUser(ctx, user); err != nil {
			return domain.UserAccount{}, err
		}
	}

	a.mu.Lock()
	a.users[username] = credential{password: passwordHash, role: user.Role, active: true, created: user.CreatedAt}
	a.mu.Unlock()

	return user, nil
}

func (a *AuthManager) ListOperators(ctx context.Context) []domain.UserAccount {
	a.bootstrapUsers(ctx)

	a.mu.RLock()
	result := make([]domain.UserAccount, 0, len(a.users))
	for username, user := range a.users {
		if user.role != domain.RoleOperator {
			continue
		}
		result = append(result, domain.UserAccount{
			Username:  username,
			Role:      user.role,
			Active:    user.active,
			CreatedAt: user.created,
		})
	}
	a.mu.RUnlock()

	slices.SortFunc(result, func(x, y domain.UserAccount) int {
		return cmp.Compare(x.Username, y.Username)
	})
	return result
}

// bootstrapUsers refreshes the credential cache from the user store and
// rehashes any plain-text password it finds.
func (a *AuthManager) bootstrapUsers(ctx context.Context) {
	if a.userStore == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, userStoreTimeout)
	defer cancel()

	users, err := a.userStore.ListUsers(ctx)
	if err != nil {
		slog.Warn("failed to load user accounts", "error", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, user := range users {
		username := strings.ToLower(strings.TrimSpace(user.Username))
		if username == "" {
			continue
		}
		password := user.Password
		if !isPasswordHash(password) {
			hashed, err := hashPassword(password)
			if err == nil {
				password = hashed
				if err := a.userStore.UpdateUserPassword(ctx, username, hashed); err != nil {
					slog.Warn("failed to upgrade plain-text password", "username", username, "error", err)
				}
			}
		}
		a.users[username] = credential{
			password: password,
			role:     user.Role,
			active:   user.Active,
			created:  user.CreatedAt,
		}
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
