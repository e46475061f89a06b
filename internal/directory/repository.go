package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sos-villages/signalement/internal/audit"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

// Repository stores villages and users. Creations append their audit entry
// in the same transaction.
type Repository interface {
	CreateVillage(ctx context.Context, v *Village, entry *audit.Entry) error
	GetVillage(ctx context.Context, id types.ID) (*Village, error)
	ListVillages(ctx context.Context) ([]Village, error)
	CreateUser(ctx context.Context, u *User, entry *audit.Entry) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, filter ListUsersFilter) ([]User, int, error)
}

// PostgresRepository provides database operations for villages and users
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new directory repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// --- Village Operations ---

// CreateVillage creates a new village
func (r *PostgresRepository) CreateVillage(ctx context.Context, v *Village, entry *audit.Entry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO villages (id, name, created_at) VALUES ($1, $2, $3)`,
		v.ID, v.Name, v.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("village with this name already exists")
		}
		return errors.Wrap(err, "failed to create village")
	}

	if err := audit.Append(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// GetVillage retrieves a village by ID
func (r *PostgresRepository) GetVillage(ctx context.Context, id types.ID) (*Village, error) {
	v := &Village{}
	err := r.pool.QueryRow(ctx, `SELECT id, name, created_at FROM villages WHERE id = $1`, id).
		Scan(&v.ID, &v.Name, &v.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("village", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get village")
	}
	return v, nil
}

// ListVillages lists villages by name
func (r *PostgresRepository) ListVillages(ctx context.Context) ([]Village, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM villages ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list villages")
	}
	defer rows.Close()

	villages := []Village{}
	for rows.Next() {
		var v Village
		if err := rows.Scan(&v.ID, &v.Name, &v.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan village")
		}
		villages = append(villages, v)
	}
	return villages, rows.Err()
}

// --- User Operations ---

const userColumns = `id, email, full_name, role, village_id, whatsapp_number, password_hash, created_at`

// CreateUser creates a new user
func (r *PostgresRepository) CreateUser(ctx context.Context, u *User, entry *audit.Entry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.FullName, u.Role, u.VillageID, nullable(u.WhatsAppNumber), u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("user with this email already exists")
		}
		if strings.Contains(err.Error(), "foreign key") {
			return errors.NotFound("village", u.VillageID.String())
		}
		return errors.Wrap(err, "failed to create user")
	}

	if err := audit.Append(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// GetUserByEmail retrieves a user by email
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	u, err := scanUser(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("user", email)
	}
	return u, err
}

// ListUsers lists users with filters
func (r *PostgresRepository) ListUsers(ctx context.Context, filter ListUsersFilter) ([]User, int, error) {
	var conditions []string
	var args []any
	argNum := 1

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", argNum))
		args = append(args, *filter.Role)
		argNum++
	}
	if filter.VillageID != nil {
		conditions = append(conditions, fmt.Sprintf("village_id = $%d", argNum))
		args = append(args, *filter.VillageID)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count users")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf("SELECT %s FROM users %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		userColumns, whereClause, argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list users")
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	var whatsapp *string
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.VillageID, &whatsapp, &u.PasswordHash, &u.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan user")
	}
	if whatsapp != nil {
		u.WhatsAppNumber = *whatsapp
	}
	return u, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
