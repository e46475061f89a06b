package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sos-villages/signalement/internal/audit"
	"github.com/sos-villages/signalement/internal/case/domain"
	"github.com/sos-villages/signalement/internal/notification"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

// dbtx is satisfied by pgxpool.Pool and pgx.Tx
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements domain.Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
	db   dbtx
	tx   pgx.Tx
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, db: pool}
}

// WithinTx runs fn against a repository bound to one transaction. Nested
// calls reuse the outer transaction.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &PostgresRepository{pool: r.pool, db: tx, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// Ping checks connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return errors.Wrap(err, "database unreachable")
	}
	return nil
}

// --- Case Operations ---

const caseColumns = `
	id, created_at, updated_at, status, score, is_anonymous, village_id,
	incident_type, urgency, abuser_name, child_name, description, created_by,
	dir_village_validated_at, dir_village_validated_by, dir_village_signature_path,
	sauvegarde_validated_at, sauvegarde_validated_by, sauvegarde_signature_path`

// CreateCase inserts a new case
func (r *PostgresRepository) CreateCase(ctx context.Context, c *domain.Case) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO cases (
			id, created_at, updated_at, status, score, is_anonymous, village_id,
			incident_type, urgency, abuser_name, child_name, description, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.CreatedAt, c.UpdatedAt, c.Status, c.Score, c.IsAnonymous, c.VillageID,
		c.IncidentType, c.Urgency, c.AbuserName, c.ChildName, c.Description, c.CreatedBy,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("case already exists")
		}
		if strings.Contains(err.Error(), "foreign key") {
			return errors.NotFound("village", c.VillageID.String())
		}
		return errors.Wrap(err, "failed to create case")
	}
	return nil
}

// GetCase retrieves a case by ID
func (r *PostgresRepository) GetCase(ctx context.Context, id types.ID) (*domain.Case, error) {
	row := r.db.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, id)
	c, err := scanCase(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("case", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get case")
	}
	return c, nil
}

// ListCases lists cases by score descending, then oldest first
func (r *PostgresRepository) ListCases(ctx context.Context, filter domain.ListFilter) ([]*domain.Case, error) {
	filter.Normalize()

	var conditions []string
	var args []any
	argNum := 1

	if filter.CreatedBy != nil {
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", argNum))
		args = append(args, *filter.CreatedBy)
		argNum++
	}
	if filter.VillageID != nil {
		conditions = append(conditions, fmt.Sprintf("village_id = $%d", argNum))
		args = append(args, *filter.VillageID)
		argNum++
	}
	if filter.AssignedTo != nil {
		conditions = append(conditions, fmt.Sprintf(
			"id IN (SELECT case_id FROM case_assignments WHERE psychologist_id = $%d)", argNum))
		args = append(args, *filter.AssignedTo)
		argNum++
	}
	if len(filter.Statuses) > 0 {
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d::text[])", argNum))
		args = append(args, statusStrings(filter.Statuses))
		argNum++
	}
	if filter.AwaitingSafeguarding {
		conditions = append(conditions, "dir_village_validated_at IS NOT NULL AND sauvegarde_validated_at IS NULL")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM cases
		%s
		ORDER BY score DESC, created_at ASC, id ASC
		LIMIT $%d OFFSET $%d`, caseColumns, whereClause, argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list cases")
	}
	defer rows.Close()

	cases := []*domain.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan case")
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list cases")
	}
	return cases, nil
}

// HasRecentCaseMatching reports whether a case in the village since q.Since
// names the same child or the same abuser
func (r *PostgresRepository) HasRecentCaseMatching(ctx context.Context, q domain.RecurrenceQuery) (bool, error) {
	if q.Empty() {
		return false, nil
	}

	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM cases
			WHERE village_id = $1
			  AND created_at >= $2
			  AND (($3::text <> '' AND child_name = $3::text) OR ($4::text <> '' AND abuser_name = $4::text))
		)`,
		q.VillageID, q.Since, q.ChildName, q.AbuserName,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check recurrence")
	}
	return exists, nil
}

// ListPendingCreatedBefore lists Pending cases created at or before the cutoff
func (r *PostgresRepository) ListPendingCreatedBefore(ctx context.Context, before time.Time) ([]*domain.Case, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+caseColumns+` FROM cases
		WHERE status = $1 AND created_at <= $2
		ORDER BY created_at ASC`,
		domain.CaseStatusPending, before,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending cases")
	}
	defer rows.Close()

	var cases []*domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan case")
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// AggregateCases groups cases by village, status, incident type and urgency
func (r *PostgresRepository) AggregateCases(ctx context.Context) ([]domain.CaseAggregate, error) {
	rows, err := r.db.Query(ctx, `
		SELECT village_id, status, incident_type, urgency, COUNT(*), COALESCE(SUM(score), 0)
		FROM cases
		GROUP BY village_id, status, incident_type, urgency
		ORDER BY village_id, status, incident_type, urgency`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate cases")
	}
	defer rows.Close()

	var out []domain.CaseAggregate
	for rows.Next() {
		var a domain.CaseAggregate
		if err := rows.Scan(&a.VillageID, &a.Status, &a.IncidentType, &a.Urgency, &a.Count, &a.ScoreSum); err != nil {
			return nil, errors.Wrap(err, "failed to scan aggregate")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateStatus moves the case to `to` if it is still in `from`
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id types.ID, from, to domain.CaseStatus, at time.Time) (bool, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE cases SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`,
		id, from, to, at,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to update case status")
	}
	return result.RowsAffected() == 1, nil
}

// RecordDirectorValidation stores v unless the director already validated
func (r *PostgresRepository) RecordDirectorValidation(ctx context.Context, id types.ID, v domain.Validation) (bool, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE cases SET
			dir_village_validated_at = $2,
			dir_village_validated_by = $3,
			dir_village_signature_path = $4,
			updated_at = $2
		WHERE id = $1 AND dir_village_validated_at IS NULL`,
		id, v.At, v.By, v.SignaturePath,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to record director validation")
	}
	return result.RowsAffected() == 1, nil
}

// RecordSafeguardingValidation stores v and signs the case unless safeguarding already validated
func (r *PostgresRepository) RecordSafeguardingValidation(ctx context.Context, id types.ID, v domain.Validation) (bool, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE cases SET
			sauvegarde_validated_at = $2,
			sauvegarde_validated_by = $3,
			sauvegarde_signature_path = $4,
			status = $5,
			updated_at = $2
		WHERE id = $1
		  AND sauvegarde_validated_at IS NULL
		  AND dir_village_validated_at IS NOT NULL
		  AND status = $6`,
		id, v.At, v.By, v.SignaturePath, domain.CaseStatusSigned, domain.CaseStatusInProgress,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to record safeguarding validation")
	}
	return result.RowsAffected() == 1, nil
}

// --- Attachment and Document Operations ---

// AddAttachment inserts an attachment row
func (r *PostgresRepository) AddAttachment(ctx context.Context, a *domain.Attachment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO case_attachments (id, case_id, file_name, mime_type, size_bytes, path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.CaseID, a.File.FileName, a.File.MimeType, a.File.Size, a.File.Path, a.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to add attachment")
	}
	return nil
}

// ListAttachments lists the attachments of a case, oldest first
func (r *PostgresRepository) ListAttachments(ctx context.Context, caseID types.ID) ([]domain.Attachment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, case_id, file_name, mime_type, size_bytes, path, created_at
		FROM case_attachments WHERE case_id = $1 ORDER BY created_at`, caseID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list attachments")
	}
	defer rows.Close()

	var out []domain.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan attachment")
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetAttachment retrieves an attachment by ID
func (r *PostgresRepository) GetAttachment(ctx context.Context, id types.ID) (*domain.Attachment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, case_id, file_name, mime_type, size_bytes, path, created_at
		FROM case_attachments WHERE id = $1`, id)
	a, err := scanAttachment(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("attachment", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get attachment")
	}
	return a, nil
}

// AddDocument inserts a document row
func (r *PostgresRepository) AddDocument(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO case_documents (id, case_id, doc_type, uploaded_by, file_name, mime_type, size_bytes, path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.CaseID, d.DocType, d.UploadedBy, d.File.FileName, d.File.MimeType, d.File.Size, d.File.Path, d.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to add document")
	}
	return nil
}

// ListDocuments lists the documents of a case, oldest first
func (r *PostgresRepository) ListDocuments(ctx context.Context, caseID types.ID) ([]domain.Document, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, case_id, doc_type, uploaded_by, file_name, mime_type, size_bytes, path, created_at
		FROM case_documents WHERE case_id = $1 ORDER BY created_at`, caseID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list documents")
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan document")
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// GetDocument retrieves a document by ID
func (r *PostgresRepository) GetDocument(ctx context.Context, id types.ID) (*domain.Document, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, case_id, doc_type, uploaded_by, file_name, mime_type, size_bytes, path, created_at
		FROM case_documents WHERE id = $1`, id)
	d, err := scanDocument(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("document", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get document")
	}
	return d, nil
}

// --- Assignment Operations ---

// ListPsychologists lists the psychologists of a village in creation order
func (r *PostgresRepository) ListPsychologists(ctx context.Context, villageID types.ID) ([]types.ID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM users
		WHERE role = 'PSY' AND village_id = $1
		ORDER BY created_at, id`, villageID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list psychologists")
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id types.ID
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan psychologist")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountOpenAssignments counts each psychologist's assignments on Pending or InProgress cases
func (r *PostgresRepository) CountOpenAssignments(ctx context.Context, psychologistIDs []types.ID) (map[types.ID]int, error) {
	loads := make(map[types.ID]int, len(psychologistIDs))
	for _, id := range psychologistIDs {
		loads[id] = 0
	}
	if len(psychologistIDs) == 0 {
		return loads, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT a.psychologist_id, COUNT(*)
		FROM case_assignments a
		JOIN cases c ON c.id = a.case_id
		WHERE a.psychologist_id = ANY($1::uuid[]) AND c.status = ANY($2::text[])
		GROUP BY a.psychologist_id`,
		idStrings(psychologistIDs), statusStrings(domain.OpenStatuses),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count open assignments")
	}
	defer rows.Close()

	for rows.Next() {
		var id types.ID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan load")
		}
		loads[id] = n
	}
	return loads, rows.Err()
}

// AddAssignment inserts an assignment
func (r *PostgresRepository) AddAssignment(ctx context.Context, a *domain.Assignment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO case_assignments (id, case_id, psychologist_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.CaseID, a.PsychologistID, a.Role, a.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("case assignment already exists")
		}
		return errors.Wrap(err, "failed to add assignment")
	}
	return nil
}

// ListAssignments lists the assignments of a case, primary first
func (r *PostgresRepository) ListAssignments(ctx context.Context, caseID types.ID) ([]domain.Assignment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, case_id, psychologist_id, role, created_at
		FROM case_assignments WHERE case_id = $1
		ORDER BY role = 'PRIMARY' DESC, created_at`, caseID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list assignments")
	}
	defer rows.Close()

	var out []domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.ID, &a.CaseID, &a.PsychologistID, &a.Role, &a.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan assignment")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// FindRecipients resolves the users matching q
func (r *PostgresRepository) FindRecipients(ctx context.Context, q domain.RecipientQuery) ([]notification.Recipient, error) {
	var conditions []string
	var args []any
	argNum := 1

	if q.Role != "" {
		conditions = append(conditions, fmt.Sprintf("role = $%d", argNum))
		args = append(args, q.Role)
		argNum++
	}
	if q.VillageID != nil {
		conditions = append(conditions, fmt.Sprintf("village_id = $%d", argNum))
		args = append(args, *q.VillageID)
		argNum++
	}
	if q.UserIDs != nil {
		conditions = append(conditions, fmt.Sprintf("id = ANY($%d::uuid[])", argNum))
		args = append(args, idStrings(q.UserIDs))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := r.db.Query(ctx,
		"SELECT id, full_name, email, whatsapp_number FROM users "+whereClause+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find recipients")
	}
	defer rows.Close()

	var out []notification.Recipient
	for rows.Next() {
		var rc notification.Recipient
		var whatsapp *string
		if err := rows.Scan(&rc.UserID, &rc.FullName, &rc.Email, &whatsapp); err != nil {
			return nil, errors.Wrap(err, "failed to scan recipient")
		}
		if whatsapp != nil {
			rc.WhatsAppNumber = *whatsapp
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// InsertNotification inserts n unless (user, case, type) already exists
func (r *PostgresRepository) InsertNotification(ctx context.Context, n *notification.Notification) (bool, error) {
	result, err := r.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, case_id, type, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, case_id, type) DO NOTHING`,
		n.ID, n.UserID, n.CaseID, n.Type, n.Message, n.CreatedAt,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to insert notification")
	}
	return result.RowsAffected() == 1, nil
}

// AppendAudit chains e onto the audit log. Outside a transaction it opens one
// so the chain lock is held until the entry is committed.
func (r *PostgresRepository) AppendAudit(ctx context.Context, e *audit.Entry) error {
	if r.tx != nil {
		return audit.Append(ctx, r.tx, e)
	}
	return r.WithinTx(ctx, func(ctx context.Context, tx domain.Repository) error {
		return tx.AppendAudit(ctx, e)
	})
}

func scanCase(row pgx.Row) (*domain.Case, error) {
	c := &domain.Case{}
	var (
		dirAt, sgAt     *time.Time
		dirBy, sgBy     *types.ID
		dirPath, sgPath *string
	)
	err := row.Scan(
		&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.Status, &c.Score, &c.IsAnonymous, &c.VillageID,
		&c.IncidentType, &c.Urgency, &c.AbuserName, &c.ChildName, &c.Description, &c.CreatedBy,
		&dirAt, &dirBy, &dirPath,
		&sgAt, &sgBy, &sgPath,
	)
	if err != nil {
		return nil, err
	}
	c.DirVillageValidation = validation(dirAt, dirBy, dirPath)
	c.SauvegardeValidation = validation(sgAt, sgBy, sgPath)
	return c, nil
}

func validation(at *time.Time, by *types.ID, path *string) *domain.Validation {
	if at == nil {
		return nil
	}
	v := &domain.Validation{At: *at}
	if by != nil {
		v.By = *by
	}
	if path != nil {
		v.SignaturePath = *path
	}
	return v
}

func scanAttachment(row pgx.Row) (*domain.Attachment, error) {
	a := &domain.Attachment{}
	err := row.Scan(&a.ID, &a.CaseID, &a.File.FileName, &a.File.MimeType, &a.File.Size, &a.File.Path, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	d := &domain.Document{}
	err := row.Scan(&d.ID, &d.CaseID, &d.DocType, &d.UploadedBy,
		&d.File.FileName, &d.File.MimeType, &d.File.Size, &d.File.Path, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func statusStrings(statuses []domain.CaseStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func idStrings(ids []types.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

var _ domain.Repository = (*PostgresRepository)(nil)
