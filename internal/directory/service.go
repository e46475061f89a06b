package directory

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sos-villages/signalement/internal/audit"
	"github.com/sos-villages/signalement/internal/auth"
	authn "github.com/sos-villages/signalement/internal/shared/auth"
	"github.com/sos-villages/signalement/internal/shared/config"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

// Service runs directory operations for IT administrators and logins
type Service struct {
	repo    Repository
	authCfg config.AuthConfig
	logger  *zap.Logger
}

// NewService creates a directory service
func NewService(repo Repository, authCfg config.AuthConfig, logger *zap.Logger) *Service {
	return &Service{repo: repo, authCfg: authCfg, logger: logger.Named("directory")}
}

// LoginResult is a signed token and the user it was issued to
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// Login verifies credentials and issues a token. Unknown emails and wrong
// passwords fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, errors.BadRequest("email and password are required")
	}

	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.HasCode(err, errors.CodeNotFound) {
			return nil, errors.Unauthenticated("invalid credentials")
		}
		return nil, err
	}
	if !u.CheckPassword(password) {
		return nil, errors.Unauthenticated("invalid credentials")
	}

	token, expiresAt, err := authn.IssueToken(s.authCfg, u.Identity(), time.Now())
	if err != nil {
		return nil, errors.Internal(err)
	}

	s.logger.Info("user logged in", zap.String("user_id", u.ID.String()), zap.String("role", string(u.Role)))
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: u}, nil
}

// CreateVillage creates a village on behalf of an IT administrator
func (s *Service) CreateVillage(ctx context.Context, actor auth.Identity, name string) (*Village, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}

	v, err := NewVillage(name)
	if err != nil {
		return nil, err
	}

	entry := audit.NewEntry(actor.UserID.Ptr(), string(actor.Role), audit.ActionCreateVillage,
		audit.EntityVillage, v.ID.Ptr(), map[string]any{"name": v.Name})
	if err := s.repo.CreateVillage(ctx, v, entry); err != nil {
		return nil, err
	}
	return v, nil
}

// ListVillages lists every village. Any authenticated caller may read them.
func (s *Service) ListVillages(ctx context.Context, actor auth.Identity) ([]Village, error) {
	if actor.IsZero() {
		return nil, errors.Unauthenticated("authentication required")
	}
	return s.repo.ListVillages(ctx)
}

// CreateUser creates a user on behalf of an IT administrator
func (s *Service) CreateUser(ctx context.Context, actor auth.Identity, p NewUserParams) (*User, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}

	u, err := NewUser(p)
	if err != nil {
		return nil, err
	}
	if u.VillageID != nil {
		if _, err := s.repo.GetVillage(ctx, *u.VillageID); err != nil {
			return nil, err
		}
	}

	entry := audit.NewEntry(actor.UserID.Ptr(), string(actor.Role), audit.ActionCreateUser,
		audit.EntityUser, u.ID.Ptr(), map[string]any{"role": string(u.Role)})
	if err := s.repo.CreateUser(ctx, u, entry); err != nil {
		return nil, err
	}
	return u, nil
}

// ListUsers lists users for an IT administrator
func (s *Service) ListUsers(ctx context.Context, actor auth.Identity, filter ListUsersFilter) ([]User, int, error) {
	if err := requireManager(actor); err != nil {
		return nil, 0, err
	}
	return s.repo.ListUsers(ctx, filter)
}

func requireManager(actor auth.Identity) error {
	if actor.IsZero() {
		return errors.Unauthenticated("authentication required")
	}
	if !actor.Can().CanManageUsers {
		return errors.Forbidden("user management requires the IT administrator role")
	}
	return nil
}

// SeedUser is a development account created by Seed
type SeedUser struct {
	Email    string
	FullName string
	Role     auth.Role
	Village  string
	WhatsApp string
}

// Seed creates villages and accounts for local development. Village ids are
// derived from their names so repeated seeds agree.
func (s *Service) Seed(ctx context.Context, villages []string, users []SeedUser, password string) error {
	ids := make(map[string]types.ID, len(villages))
	for _, name := range villages {
		v := &Village{ID: types.NewDeterministicID("village", name), Name: name, CreatedAt: time.Now().UTC()}
		entry := audit.NewEntry(nil, "", audit.ActionCreateVillage, audit.EntityVillage, v.ID.Ptr(), map[string]any{"name": name, "seed": true})
		if err := s.repo.CreateVillage(ctx, v, entry); err != nil && !errors.Is(err, errors.ErrConflict) {
			return err
		}
		ids[name] = v.ID
	}

	for _, su := range users {
		p := NewUserParams{
			Email:          su.Email,
			FullName:       su.FullName,
			Role:           su.Role,
			WhatsAppNumber: su.WhatsApp,
			Password:       password,
		}
		if su.Village != "" {
			id := ids[su.Village]
			p.VillageID = &id
		}
		u, err := NewUser(p)
		if err != nil {
			return err
		}
		entry := audit.NewEntry(nil, "", audit.ActionCreateUser, audit.EntityUser, u.ID.Ptr(), map[string]any{"role": string(u.Role), "seed": true})
		if err := s.repo.CreateUser(ctx, u, entry); err != nil && !errors.Is(err, errors.ErrConflict) {
			return err
		}
	}

	s.logger.Info("directory seeded", zap.Int("villages", len(villages)), zap.Int("users", len(users)))
	return nil
}

// DevelopmentVillages are the villages seeded in development
var DevelopmentVillages = []string{"Gammarth", "Siliana", "Mahrès", "Akouda"}

// DevelopmentUsers are the accounts seeded in development, one or more per role
var DevelopmentUsers = []SeedUser{
	{Email: "declarant@sos.tn", FullName: "Mère SOS Gammarth", Role: auth.RoleDeclarant, Village: "Gammarth"},
	{Email: "psy1@sos.tn", FullName: "Psychologue Un", Role: auth.RolePsychologist, Village: "Gammarth"},
	{Email: "psy2@sos.tn", FullName: "Psychologue Deux", Role: auth.RolePsychologist, Village: "Gammarth"},
	{Email: "directeur@sos.tn", FullName: "Directeur Gammarth", Role: auth.RoleVillageDirector, Village: "Gammarth"},
	{Email: "sauvegarde@sos.tn", FullName: "Responsable Sauvegarde", Role: auth.RoleSafeguardingOfficer},
	{Email: "national@sos.tn", FullName: "Directeur National", Role: auth.RoleNationalDirector},
	{Email: "admin@sos.tn", FullName: "Admin IT", Role: auth.RoleITAdmin},
}
