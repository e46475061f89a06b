package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sos-villages/signalement/internal/shared/errors"
)

// chainLockKey serializes appends so that two transactions never seal against the same head
const chainLockKey int64 = 0x5105_a0d1

// Querier is satisfied by pgxpool.Pool and pgx.Tx
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Reader is the read side used by the audit API
type Reader interface {
	List(ctx context.Context, filter ListFilter) ([]*Entry, int, error)
	Verify(ctx context.Context, limit int) (*VerifyResult, error)
}

// Append seals e against the current chain head and inserts it. q must be a
// transaction: the advisory lock is released at commit.
func Append(ctx context.Context, q Querier, e *Entry) error {
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, chainLockKey); err != nil {
		return errors.Wrap(err, "failed to lock audit chain")
	}

	var prevHash string
	err := q.QueryRow(ctx, `SELECT hash FROM audit_log ORDER BY sequence DESC LIMIT 1`).Scan(&prevHash)
	if err != nil && err != pgx.ErrNoRows {
		return errors.Wrap(err, "failed to read audit chain head")
	}

	e.Seal(prevHash)

	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return errors.Wrap(err, "failed to marshal audit metadata")
	}

	err = q.QueryRow(ctx, `
		INSERT INTO audit_log (id, timestamp, hash, prev_hash, actor_id, actor_role, action, entity, entity_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING sequence`,
		e.ID, e.Timestamp, e.Hash, e.PrevHash, e.ActorID, e.ActorRole, e.Action, e.Entity, e.EntityID, metadata,
	).Scan(&e.Sequence)
	if err != nil {
		return errors.Wrap(err, "failed to append audit entry")
	}

	return nil
}

// Repository reads the audit log from Postgres
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new audit repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectEntry = `
	SELECT id, sequence, timestamp, hash, prev_hash, actor_id, actor_role, action, entity, entity_id, metadata
	FROM audit_log`

// List lists audit entries, newest first
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]*Entry, int, error) {
	var conditions []string
	var args []any
	argNum := 1

	if filter.ActorID != nil {
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", argNum))
		args = append(args, *filter.ActorID)
		argNum++
	}
	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argNum))
		args = append(args, filter.Action)
		argNum++
	}
	if filter.Entity != "" {
		conditions = append(conditions, fmt.Sprintf("entity = $%d", argNum))
		args = append(args, filter.Entity)
		argNum++
	}
	if filter.EntityID != nil {
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", argNum))
		args = append(args, *filter.EntityID)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_log "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count audit entries")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf("%s %s ORDER BY sequence DESC LIMIT $%d OFFSET $%d", selectEntry, whereClause, argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	entries, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Verify checks the most recent `limit` entries of the chain
func (r *Repository) Verify(ctx context.Context, limit int) (*VerifyResult, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	entries, err := r.query(ctx, `
		SELECT * FROM (`+selectEntry+` ORDER BY sequence DESC LIMIT $1) recent
		ORDER BY sequence ASC`, limit)
	if err != nil {
		return nil, err
	}
	return VerifyChain(entries), nil
}

func (r *Repository) query(ctx context.Context, query string, args ...any) ([]*Entry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query audit entries")
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var metadata []byte
		if err := rows.Scan(
			&e.ID, &e.Sequence, &e.Timestamp, &e.Hash, &e.PrevHash,
			&e.ActorID, &e.ActorRole, &e.Action, &e.Entity, &e.EntityID, &metadata,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan audit entry")
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				e.Metadata = nil
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// MemoryLog is an in-process audit chain used by the in-memory store
type MemoryLog struct {
	mu      sync.Mutex
	entries []*Entry
}

// NewMemoryLog creates an empty in-memory audit chain
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append seals and stores e
func (m *MemoryLog) Append(e *Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prevHash := ""
	if n := len(m.entries); n > 0 {
		prevHash = m.entries[n-1].Hash
	}
	e.Seal(prevHash)
	e.Sequence = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
}

// Len returns the number of entries
func (m *MemoryLog) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Truncate drops entries past n. Used to roll back a failed transaction.
func (m *MemoryLog) Truncate(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < len(m.entries) {
		m.entries = m.entries[:n]
	}
}

// List lists entries newest first
func (m *MemoryLog) List(_ context.Context, filter ListFilter) ([]*Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if filter.ActorID != nil && (e.ActorID == nil || *e.ActorID != *filter.ActorID) {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.Entity != "" && e.Entity != filter.Entity {
			continue
		}
		if filter.EntityID != nil && (e.EntityID == nil || *e.EntityID != *filter.EntityID) {
			continue
		}
		matched = append(matched, e)
	}

	total := len(matched)
	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}
	start := filter.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// Verify checks the whole in-memory chain
func (m *MemoryLog) Verify(_ context.Context, _ int) (*VerifyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return VerifyChain(m.entries), nil
}
