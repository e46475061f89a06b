// Package directory manages villages and the users who work in them.
package directory

import (
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

// MinPasswordLength is the shortest password accepted for a new user
const MinPasswordLength = 8

// Village is an SOS children's village, the tenancy boundary for cases
type Village struct {
	ID        types.ID  `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewVillage validates and creates a village
func NewVillage(name string) (*Village, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.Validation("validation failed", map[string]string{"name": "name is required"})
	}
	return &Village{ID: types.NewID(), Name: name, CreatedAt: time.Now().UTC()}, nil
}

// User is an account holding exactly one role
type User struct {
	ID             types.ID  `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	Role           auth.Role `json:"role"`
	VillageID      *types.ID `json:"village_id,omitempty"`
	WhatsAppNumber string    `json:"whatsapp_number,omitempty"`
	PasswordHash   string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewUserParams is the input for creating a user
type NewUserParams struct {
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	Role           auth.Role `json:"role"`
	VillageID      *types.ID `json:"village_id,omitempty"`
	WhatsAppNumber string    `json:"whatsapp_number,omitempty"`
	Password       string    `json:"password"`
}

// NewUser validates p and creates a user with a bcrypt password hash.
// Village-bound roles need a village; the other roles must not have one.
func NewUser(p NewUserParams) (*User, error) {
	details := map[string]string{}

	email := strings.ToLower(strings.TrimSpace(p.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		details["email"] = "a valid email is required"
	}
	if strings.TrimSpace(p.FullName) == "" {
		details["full_name"] = "full name is required"
	}
	if _, err := auth.ParseRole(string(p.Role)); err != nil {
		details["role"] = "unknown role"
	} else if p.Role.RequiresVillage() && (p.VillageID == nil || p.VillageID.IsZero()) {
		details["village_id"] = "village is required for this role"
	} else if !p.Role.RequiresVillage() && p.VillageID != nil {
		details["village_id"] = "this role cannot belong to a village"
	}
	if len(p.Password) < MinPasswordLength {
		details["password"] = "password is too short"
	}
	if len(details) > 0 {
		return nil, errors.Validation("validation failed", details)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Internal(err)
	}

	return &User{
		ID:             types.NewID(),
		Email:          email,
		FullName:       strings.TrimSpace(p.FullName),
		Role:           p.Role,
		VillageID:      p.VillageID,
		WhatsAppNumber: strings.TrimSpace(p.WhatsAppNumber),
		PasswordHash:   string(hash),
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// CheckPassword reports whether password matches the stored hash
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// Identity returns the caller identity carried in the user's tokens
func (u *User) Identity() auth.Identity {
	return auth.Identity{UserID: u.ID, Role: u.Role, VillageID: u.VillageID}
}

// ListUsersFilter defines filters for listing users
type ListUsersFilter struct {
	Role      *auth.Role `json:"role,omitempty"`
	VillageID *types.ID  `json:"village_id,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}
