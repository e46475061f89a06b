// Package service runs the case workflow. Each operation executes in one
// store transaction; notifications and domain events leave the process only
// after that transaction commits.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sos-villages/signalement/internal/audit"
	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/case/access"
	"github.com/sos-villages/signalement/internal/case/assignment"
	"github.com/sos-villages/signalement/internal/case/domain"
	"github.com/sos-villages/signalement/internal/case/scoring"
	"github.com/sos-villages/signalement/internal/notification"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/events"
	"github.com/sos-villages/signalement/internal/shared/metrics"
	"github.com/sos-villages/signalement/internal/shared/types"
	"github.com/sos-villages/signalement/internal/storage"
)

// publishTimeout bounds event publication after commit
const publishTimeout = 5 * time.Second

// Dispatcher hands committed notification intents to delivery
type Dispatcher interface {
	Dispatch(intents ...notification.Intent)
}

// Config tunes the service
type Config struct {
	MaxUploadBytes int64
	Channels       []notification.Channel
	Scorer         *scoring.Engine
	Now            func() time.Time
}

// Service implements the case operations
type Service struct {
	repo       domain.Repository
	files      storage.FileStore
	balancer   *assignment.Balancer
	scorer     *scoring.Engine
	dispatcher Dispatcher
	publisher  events.Publisher
	logger     *zap.Logger

	maxUploadBytes int64
	channels       []notification.Channel
	now            func() time.Time
}

// New creates a case service
func New(repo domain.Repository, files storage.FileStore, dispatcher Dispatcher, publisher events.Publisher, logger *zap.Logger, cfg Config) *Service {
	s := &Service{
		repo:           repo,
		files:          files,
		balancer:       assignment.NewBalancer(repo),
		scorer:         cfg.Scorer,
		dispatcher:     dispatcher,
		publisher:      publisher,
		logger:         logger.Named("case"),
		maxUploadBytes: cfg.MaxUploadBytes,
		channels:       cfg.Channels,
		now:            cfg.Now,
	}
	if s.scorer == nil {
		s.scorer = scoring.Default()
	}
	if s.publisher == nil {
		s.publisher = events.NoopPublisher{}
	}
	if len(s.channels) == 0 {
		s.channels = []notification.Channel{notification.ChannelEmail, notification.ChannelWhatsApp}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
	}
	return s
}

// CaseView is a case as returned to one caller, with its files and assignments
type CaseView struct {
	*domain.Case
	Attachments []domain.Attachment `json:"attachments"`
	Documents   []domain.Document   `json:"documents"`
	Assignments []domain.Assignment `json:"assignments"`
}

// outbox collects what leaves the process once the transaction has committed
type outbox struct {
	intents []notification.Intent
	events  []domain.Event
	audited int
	stored  []string
}

// GetCaseByID returns a case the caller may read, projected for their role
func (s *Service) GetCaseByID(ctx context.Context, actor auth.Identity, id types.ID) (*CaseView, error) {
	const op = "get_case"
	if err := requireIdentity(actor); err != nil {
		return nil, s.reject(op, err)
	}
	if !canViewAnyCase(actor.Can()) {
		s.recordDecision(actor, op, false)
		return nil, s.reject(op, errors.Forbidden("this role cannot read cases"))
	}

	c, err := s.guardedCase(ctx, s.repo, actor, id, op)
	if err != nil {
		return nil, s.reject(op, err)
	}

	attachments, err := s.repo.ListAttachments(ctx, id)
	if err != nil {
		return nil, err
	}
	documents, err := s.repo.ListDocuments(ctx, id)
	if err != nil {
		return nil, err
	}
	assignments, err := s.repo.ListAssignments(ctx, id)
	if err != nil {
		return nil, err
	}

	return &CaseView{
		Case:        access.Project(actor, c),
		Attachments: orEmpty(attachments),
		Documents:   orEmpty(documents),
		Assignments: orEmpty(assignments),
	}, nil
}

// ListCasesForRole lists the cases in the caller's scope. Roles without a case
// scope, and village-bound callers without a village, get an empty list.
func (s *Service) ListCasesForRole(ctx context.Context, actor auth.Identity, req access.ListRequest) ([]*domain.Case, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, s.reject("list_cases", err)
	}
	for _, st := range req.Statuses {
		if !st.Valid() {
			return nil, s.reject("list_cases", errors.BadRequest("unknown case status"))
		}
	}

	filter, ok := access.Scope(actor, req)
	if !ok {
		return []*domain.Case{}, nil
	}

	cases, err := s.repo.ListCases(ctx, filter)
	if err != nil {
		return nil, err
	}
	return access.ProjectAll(actor, cases), nil
}

// guard applies the access guard, resolving the psychologist assignment through repo
func (s *Service) guard(ctx context.Context, repo domain.Repository, actor auth.Identity, c *domain.Case, action string) error {
	assigned := false
	if actor.Role == auth.RolePsychologist {
		var err error
		if assigned, err = isAssigned(ctx, repo, c.ID, actor.UserID); err != nil {
			return err
		}
	}
	err := access.Decide(actor, c, assigned)
	s.recordDecision(actor, action, err == nil)
	return err
}

// guardedCase loads a case and runs the guard on it. A missing case is
// reported exactly like a denied one to callers who could not read it.
func (s *Service) guardedCase(ctx context.Context, repo domain.Repository, actor auth.Identity, id types.ID, action string) (*domain.Case, error) {
	c, err := repo.GetCase(ctx, id)
	if err != nil {
		if concealed := access.Conceal(actor, err); concealed != err {
			s.recordDecision(actor, action, false)
			return nil, concealed
		}
		return nil, err
	}
	if err := s.guard(ctx, repo, actor, c, action); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) recordDecision(actor auth.Identity, action string, allowed bool) {
	metrics.RecordAuthorizationDecision(string(actor.Role), action, allowed)
}

// notify stores a notification of kind for every recipient matching q and
// returns the delivery intents of the rows that were new
func (s *Service) notify(ctx context.Context, tx domain.Repository, kind notification.Kind, caseID types.ID, q domain.RecipientQuery, at time.Time) ([]notification.Intent, error) {
	recipients, err := tx.FindRecipients(ctx, q)
	if err != nil {
		return nil, err
	}

	var fresh []notification.Recipient
	for _, r := range recipients {
		inserted, err := tx.InsertNotification(ctx, notification.New(r.UserID, caseID, kind, at))
		if err != nil {
			return nil, err
		}
		if inserted {
			fresh = append(fresh, r)
		}
	}
	return notification.Intents(kind, caseID, fresh, s.channels...), nil
}

func (s *Service) appendAudit(ctx context.Context, tx domain.Repository, out *outbox, actor auth.Identity, action string, caseID types.ID, metadata map[string]any) error {
	entry := audit.NewEntry(actor.UserID.Ptr(), string(actor.Role), action, audit.EntityCase, caseID.Ptr(), metadata)
	if err := tx.AppendAudit(ctx, entry); err != nil {
		return err
	}
	out.audited++
	return nil
}

// putFile stores an upload and remembers its key so a failed transaction can remove it
func (s *Service) putFile(ctx context.Context, out *outbox, key string, up storage.Upload) (domain.FileMeta, error) {
	obj, err := s.files.Put(ctx, key, up)
	if err != nil {
		return domain.FileMeta{}, err
	}
	out.stored = append(out.stored, obj.Key)
	return domain.FileMeta{FileName: obj.FileName, MimeType: obj.MimeType, Size: obj.Size, Path: obj.Key}, nil
}

// run executes fn in a transaction. On failure the files fn stored are
// removed; on success the outbox is flushed.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context, tx domain.Repository, out *outbox) error) error {
	out := &outbox{}
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx domain.Repository) error {
		return fn(ctx, tx, out)
	})
	if err != nil {
		s.discard(out.stored)
		return s.reject(op, err)
	}
	s.flush(ctx, out)
	return nil
}

func (s *Service) discard(keys []string) {
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	for _, key := range keys {
		if err := s.files.Remove(ctx, key); err != nil {
			s.logger.Warn("failed to remove orphaned file", zap.String("key", key), zap.Error(err))
		}
	}
}

// flush hands committed intents to the dispatcher and publishes domain events.
// Neither can fail the operation.
func (s *Service) flush(ctx context.Context, out *outbox) {
	for i := 0; i < out.audited; i++ {
		metrics.RecordAuditEntry()
	}
	if len(out.intents) > 0 && s.dispatcher != nil {
		s.dispatcher.Dispatch(out.intents...)
	}
	if len(out.events) == 0 {
		return
	}

	evts := make([]events.Event, len(out.events))
	for i, e := range out.events {
		evts[i] = events.Event{
			ID:            e.ID,
			Type:          string(e.Type),
			Source:        "signalement",
			AggregateType: "case",
			AggregateID:   e.CaseID,
			ActorID:       e.ActorID,
			Timestamp:     e.Timestamp,
			Data:          e.Data,
		}
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, evts...); err != nil {
		s.logger.Warn("failed to publish case events", zap.Int("events", len(evts)), zap.Error(err))
	}
}

func (s *Service) reject(op string, err error) error {
	metrics.RecordCaseRejection(op, errors.CodeOf(err))
	return err
}

func requireIdentity(actor auth.Identity) error {
	if actor.IsZero() {
		return errors.Unauthenticated("authentication required")
	}
	return nil
}

func canViewAnyCase(c auth.Capabilities) bool {
	return c.CanViewOwnCases || c.CanViewVillageCases || c.CanViewAllVillagesCases
}

func isAssigned(ctx context.Context, repo domain.Repository, caseID, psychologistID types.ID) (bool, error) {
	assignments, err := repo.ListAssignments(ctx, caseID)
	if err != nil {
		return false, err
	}
	for _, a := range assignments {
		if a.PsychologistID == psychologistID {
			return true, nil
		}
	}
	return false, nil
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
