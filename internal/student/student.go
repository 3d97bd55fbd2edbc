// Package student manages student profiles in the users collection.
package student

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"clubhub/internal/auth"
	"clubhub/internal/docstore"
)

var (
	ErrNotFound      = errors.New("student not found")
	ErrAlreadyExists = errors.New("student already signed up")
	ErrInvalidRoll   = errors.New("invalid roll number")
)

var rollPattern = regexp.MustCompile(`^[A-Z0-9]{3,20}$`)

// Profile is a student record; the document id is the roll number.
type Profile struct {
	ID           string    `json:"id"`
	Roll         string    `json:"roll"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Department   string    `json:"department"`
	Year         string    `json:"year"`
	Section      string    `json:"section"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Public strips the credential before the profile leaves the service.
func (p Profile) Public() Profile {
	p.PasswordHash = ""
	return p
}

// SignUp is the self-registration payload.
type SignUp struct {
	Roll       string `json:"roll" binding:"required"`
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Department string `json:"department" binding:"required"`
	Year       string `json:"year" binding:"required"`
	Section    string `json:"section"`
	Phone      string `json:"phone"`
	Password   string `json:"password" binding:"required"`
}

// Directory looks up and creates student profiles.
type Directory struct {
	store docstore.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewDirectory creates the directory service.
func NewDirectory(store docstore.Store, log *zap.Logger) *Directory {
	return &Directory{store: store, log: log, now: time.Now}
}

// NormalizeRoll upper-cases and trims a roll number.
func NormalizeRoll(roll string) string {
	return strings.ToUpper(strings.TrimSpace(roll))
}

// ValidRoll reports whether roll (already normalized) looks like a roll number.
func ValidRoll(roll string) bool {
	return rollPattern.MatchString(roll)
}

// Get returns the profile for roll.
func (d *Directory) Get(ctx context.Context, roll string) (Profile, error) {
	roll = NormalizeRoll(roll)
	p, err := docstore.Load[Profile](ctx, d.store, docstore.Users, roll)
	if errors.Is(err, docstore.ErrNotFound) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("load student %s: %w", roll, err)
	}
	return p, nil
}

// Register creates a profile with a hashed password.
func (d *Directory) Register(ctx context.Context, req SignUp) (Profile, error) {
	roll := NormalizeRoll(req.Roll)
	if !ValidRoll(roll) {
		return Profile{}, ErrInvalidRoll
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{
		ID:           roll,
		Roll:         roll,
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Department:   strings.ToUpper(strings.TrimSpace(req.Department)),
		Year:         strings.TrimSpace(req.Year),
		Section:      strings.ToUpper(strings.TrimSpace(req.Section)),
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		CreatedAt:    d.now().UTC(),
	}
	if _, err := d.store.Create(ctx, docstore.Users, roll, p); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return Profile{}, ErrAlreadyExists
		}
		return Profile{}, err
	}
	d.log.Info("student signed up", zap.String("roll", roll))
	return p.Public(), nil
}

// Authenticate checks a student's roll and password.
func (d *Directory) Authenticate(ctx context.Context, roll, password string) (auth.Session, error) {
	p, err := d.Get(ctx, roll)
	if errors.Is(err, ErrNotFound) {
		return auth.Session{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return auth.Session{}, err
	}
	if p.PasswordHash == "" || !auth.CheckPassword(p.PasswordHash, password) {
		return auth.Session{}, auth.ErrInvalidCredentials
	}
	now := d.now().UTC()
	return auth.Session{ID: p.Roll, Username: p.Name, Role: auth.RoleStudent, LastLogin: &now}, nil
}
