// Package profiles stores the accounts allowed to sign in to the admin
// dashboard and their roles.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Roles
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// Profile is an account with a role.
type Profile struct {
	ID                uint      `gorm:"primaryKey"`
	Email             string    `gorm:"uniqueIndex;not null"`
	Role              string    `gorm:"size:16;not null;default:viewer"`
	EncryptedPassword string    `gorm:"not null"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

func (Profile) TableName() string { return "profiles" }

// IsAdmin reports whether the profile may read analytics.
func (p *Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}

var (
	// ErrProfileExists is returned when creating a profile whose email is taken.
	ErrProfileExists = errors.New("profile already exists")
	// ErrProfileNotFound is returned when a lookup finds nothing.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrInvalidCredentials is returned when email or password do not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRole is returned for roles outside admin, editor and viewer.
	ErrInvalidRole = errors.New("invalid role")
)

// dummyHash keeps Authenticate's timing similar for unknown emails.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("vitrine-dummy-password"), bcrypt.DefaultCost)

// FindByID retrieves a profile by ID.
func FindByID(ctx context.Context, db *gorm.DB, id uint) (*Profile, error) {
	var profile Profile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// FindByEmail retrieves a profile by email, case-insensitively.
func FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Profile, error) {
	var profile Profile
	err := db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// Create stores a new profile with a bcrypt-hashed password.
func Create(ctx context.Context, db *gorm.DB, logger *slog.Logger, email, password, role string) (*Profile, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, errors.New("email cannot be empty")
	}
	if password == "" {
		return nil, errors.New("password cannot be empty")
	}
	switch role {
	case RoleAdmin, RoleEditor, RoleViewer:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	if _, err := FindByEmail(ctx, db, email); err == nil {
		return nil, ErrProfileExists
	} else if !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	profile := &Profile{
		Email:             email,
		Role:              role,
		EncryptedPassword: string(hashed),
	}
	err = sqlite.PerformWrite(logger, db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(profile).Error
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// Authenticate returns the profile matching email and password.
func Authenticate(ctx context.Context, db *gorm.DB, email, password string) (*Profile, error) {
	profile, err := FindByEmail(ctx, db, email)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.EncryptedPassword), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return profile, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
