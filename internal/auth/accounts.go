package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"clubhub/internal/docstore"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidRole        = errors.New("invalid staff role")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// Account is an admin, organizer or secretary login.
type Account struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Name         string     `json:"name"`
	Club         string     `json:"club,omitempty"`
	Role         string     `json:"role"`
	PasswordHash string     `json:"passwordHash"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Accounts verifies staff credentials stored in the admin and organizers collections.
type Accounts struct {
	store docstore.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewAccounts creates the staff account service.
func NewAccounts(store docstore.Store, log *zap.Logger) *Accounts {
	return &Accounts{store: store, log: log, now: time.Now}
}

// HashPassword bcrypt-hashes a password.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", ErrWeakPassword
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword compares a bcrypt hash with a password.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Login checks username/password against admin accounts first, then
// organizer/secretary accounts, and stamps lastLogin.
func (a *Accounts) Login(ctx context.Context, username, password string) (Session, error) {
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	for _, coll := range []string{docstore.Admins, docstore.Organizers} {
		acc, err := docstore.Load[Account](ctx, a.store, coll, username)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return Session{}, fmt.Errorf("load account: %w", err)
		}
		if !CheckPassword(acc.PasswordHash, password) {
			return Session{}, ErrInvalidCredentials
		}
		now := a.now().UTC()
		if err := a.store.Update(ctx, coll, acc.ID, map[string]any{"lastLogin": now}); err != nil {
			a.log.Warn("lastLogin update failed", zap.String("username", username), zap.Error(err))
		}
		return Session{ID: acc.ID, Username: acc.Username, Role: acc.Role, LastLogin: &now}, nil
	}
	return Session{}, ErrInvalidCredentials
}

// CreateStaff adds an organizer or secretary account.
func (a *Accounts) CreateStaff(ctx context.Context, username, password, name, club, role string) (Account, error) {
	if role != RoleOrganizer && role != RoleSecretary {
		return Account{}, ErrInvalidRole
	}
	return a.create(ctx, docstore.Organizers, username, password, name, club, role)
}

// EnsureAdmin creates the bootstrap admin account when it does not exist yet.
func (a *Accounts) EnsureAdmin(ctx context.Context, username, password string) error {
	if password == "" {
		return nil
	}
	_, err := a.create(ctx, docstore.Admins, username, password, "Administrator", "", RoleAdmin)
	if errors.Is(err, ErrAccountExists) {
		return nil
	}
	if err == nil {
		a.log.Info("bootstrap admin created", zap.String("username", normalizeUsername(username)))
	}
	return err
}

func (a *Accounts) create(ctx context.Context, coll, username, password, name, club, role string) (Account, error) {
	username = normalizeUsername(username)
	if username == "" {
		return Account{}, errors.New("username required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Account{}, err
	}
	acc := Account{
		ID:           username,
		Username:     username,
		Name:         strings.TrimSpace(name),
		Club:         strings.TrimSpace(club),
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    a.now().UTC(),
	}
	if _, err := a.store.Create(ctx, coll, acc.ID, acc); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return Account{}, ErrAccountExists
		}
		return Account{}, err
	}
	return acc, nil
}

func normalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
