package domain

import (
	"context"
	"time"

	"github.com/sos-villages/signalement/internal/audit"
	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/notification"
	"github.com/sos-villages/signalement/internal/shared/types"
)

// Repository defines the store the case workflow runs against.
// Implementations must make WithinTx atomic: either every write made through
// the transactional Repository commits, or none does.
type Repository interface {
	// WithinTx runs fn in a single store transaction
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error
	Ping(ctx context.Context) error

	// Case operations
	CreateCase(ctx context.Context, c *Case) error
	GetCase(ctx context.Context, id types.ID) (*Case, error)
	ListCases(ctx context.Context, filter ListFilter) ([]*Case, error)
	HasRecentCaseMatching(ctx context.Context, q RecurrenceQuery) (bool, error)
	ListPendingCreatedBefore(ctx context.Context, before time.Time) ([]*Case, error)
	AggregateCases(ctx context.Context) ([]CaseAggregate, error)

	// UpdateStatus moves a case from `from` to `to`; false when the stored status is no longer `from`
	UpdateStatus(ctx context.Context, id types.ID, from, to CaseStatus, at time.Time) (bool, error)
	// RecordDirectorValidation sets the director validation if none exists yet
	RecordDirectorValidation(ctx context.Context, id types.ID, v Validation) (bool, error)
	// RecordSafeguardingValidation sets the safeguarding validation and the SIGNED status if none exists yet
	RecordSafeguardingValidation(ctx context.Context, id types.ID, v Validation) (bool, error)

	// Attachment and document operations
	AddAttachment(ctx context.Context, a *Attachment) error
	ListAttachments(ctx context.Context, caseID types.ID) ([]Attachment, error)
	GetAttachment(ctx context.Context, id types.ID) (*Attachment, error)
	AddDocument(ctx context.Context, d *Document) error
	ListDocuments(ctx context.Context, caseID types.ID) ([]Document, error)
	GetDocument(ctx context.Context, id types.ID) (*Document, error)

	// Assignment operations
	ListPsychologists(ctx context.Context, villageID types.ID) ([]types.ID, error)
	CountOpenAssignments(ctx context.Context, psychologistIDs []types.ID) (map[types.ID]int, error)
	AddAssignment(ctx context.Context, a *Assignment) error
	ListAssignments(ctx context.Context, caseID types.ID) ([]Assignment, error)

	// Recipients resolves users to notify
	FindRecipients(ctx context.Context, q RecipientQuery) ([]notification.Recipient, error)

	// InsertNotification stores n unless (user, case, type) already exists; reports whether it was inserted
	InsertNotification(ctx context.Context, n *notification.Notification) (bool, error)

	// AppendAudit chains and stores an audit entry
	AppendAudit(ctx context.Context, e *audit.Entry) error
}

// ListFilter defines filters for listing cases. Nil pointers mean "any".
// AwaitingSafeguarding keeps director-validated cases without safeguarding validation.
type ListFilter struct {
	CreatedBy            *types.ID    `json:"created_by,omitempty"`
	VillageID            *types.ID    `json:"village_id,omitempty"`
	AssignedTo           *types.ID    `json:"assigned_to,omitempty"`
	Statuses             []CaseStatus `json:"statuses,omitempty"`
	AwaitingSafeguarding bool         `json:"awaiting_safeguarding,omitempty"`
	Limit                int          `json:"limit,omitempty"`
	Offset               int          `json:"offset,omitempty"`
}

// Normalize applies paging defaults
func (f *ListFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// RecurrenceQuery looks for an earlier case about the same child or abuser
type RecurrenceQuery struct {
	VillageID  types.ID
	ChildName  string
	AbuserName string
	Since      time.Time
}

// Empty reports whether there is no name to match on
func (q RecurrenceQuery) Empty() bool {
	return q.ChildName == "" && q.AbuserName == ""
}

// RecipientQuery selects users by role, optionally by village or explicit ids
type RecipientQuery struct {
	Role      auth.Role
	VillageID *types.ID
	UserIDs   []types.ID
}

// CaseAggregate is one row of anonymous case statistics
type CaseAggregate struct {
	VillageID    types.ID     `json:"village_id"`
	Status       CaseStatus   `json:"status"`
	IncidentType IncidentType `json:"incident_type"`
	Urgency      Urgency      `json:"urgency"`
	Count        int          `json:"count"`
	ScoreSum     int          `json:"score_sum"`
}
