package infrastructure

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sos-villages/signalement/internal/audit"
	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/case/domain"
	"github.com/sos-villages/signalement/internal/directory"
	"github.com/sos-villages/signalement/internal/notification"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

// MemoryStore is an in-process store implementing the case, directory and
// inbox repositories. Transactions are serialized and roll back by restoring
// a snapshot.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	state *memoryState
	audit *audit.MemoryLog

	failures map[string]error
}

type notificationKey struct {
	userID types.ID
	caseID types.ID
	kind   notification.Kind
}

type memoryState struct {
	villages      map[types.ID]directory.Village
	users         map[types.ID]directory.User
	userOrder     []types.ID
	cases         map[types.ID]*domain.Case
	attachments   map[types.ID]domain.Attachment
	documents     map[types.ID]domain.Document
	assignments   []domain.Assignment
	notifications []*notification.Notification
	notifiedKeys  map[notificationKey]bool
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memoryState{
			villages:     make(map[types.ID]directory.Village),
			users:        make(map[types.ID]directory.User),
			cases:        make(map[types.ID]*domain.Case),
			attachments:  make(map[types.ID]domain.Attachment),
			documents:    make(map[types.ID]domain.Document),
			notifiedKeys: make(map[notificationKey]bool),
		},
		audit:    audit.NewMemoryLog(),
		failures: make(map[string]error),
	}
}

// Audit exposes the audit chain for the audit API
func (s *MemoryStore) Audit() *audit.MemoryLog {
	return s.audit
}

// FailOn makes every later call of the named operation return err.
// A nil err clears the failure.
func (s *MemoryStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *MemoryStore) fail(op string) error {
	if err, ok := s.failures[op]; ok {
		return errors.Wrap(err, op+" failed")
	}
	return nil
}

// WithinTx runs fn against the store. When fn fails every write it made,
// audit entries included, is discarded.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "transaction aborted")
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	auditLen := s.audit.Len()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		s.state = snapshot
		s.mu.Unlock()
		s.audit.Truncate(auditLen)
		return err
	}
	return nil
}

// Ping reports the store as reachable unless a Ping failure was injected
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fail("Ping")
}

// --- Case Operations ---

// CreateCase stores a new case
func (s *MemoryStore) CreateCase(_ context.Context, c *domain.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateCase"); err != nil {
		return err
	}
	if _, exists := s.state.cases[c.ID]; exists {
		return errors.Conflict("case already exists")
	}
	s.state.cases[c.ID] = cloneCase(c)
	return nil
}

// GetCase retrieves a case by ID
func (s *MemoryStore) GetCase(_ context.Context, id types.ID) (*domain.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("GetCase"); err != nil {
		return nil, err
	}
	c, ok := s.state.cases[id]
	if !ok {
		return nil, errors.NotFound("case", id.String())
	}
	return cloneCase(c), nil
}

// ListCases lists cases by score descending, then oldest first
func (s *MemoryStore) ListCases(_ context.Context, filter domain.ListFilter) ([]*domain.Case, error) {
	filter.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListCases"); err != nil {
		return nil, err
	}

	var matched []*domain.Case
	for _, c := range s.state.cases {
		if s.matches(c, filter) {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Score != matched[j].Score {
			return matched[i].Score > matched[j].Score
		}
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	start := min(filter.Offset, len(matched))
	end := min(start+filter.Limit, len(matched))

	out := make([]*domain.Case, 0, end-start)
	for _, c := range matched[start:end] {
		out = append(out, cloneCase(c))
	}
	return out, nil
}

func (s *MemoryStore) matches(c *domain.Case, f domain.ListFilter) bool {
	if f.CreatedBy != nil && c.CreatedBy != *f.CreatedBy {
		return false
	}
	if f.VillageID != nil && c.VillageID != *f.VillageID {
		return false
	}
	if f.AssignedTo != nil && !s.assigned(c.ID, *f.AssignedTo) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, c.Status) {
		return false
	}
	if f.AwaitingSafeguarding && (c.DirVillageValidation == nil || c.SauvegardeValidation != nil) {
		return false
	}
	return true
}

func (s *MemoryStore) assigned(caseID, psychologistID types.ID) bool {
	for _, a := range s.state.assignments {
		if a.CaseID == caseID && a.PsychologistID == psychologistID {
			return true
		}
	}
	return false
}

// HasRecentCaseMatching reports whether a case in the village since q.Since
// names the same child or the same abuser
func (s *MemoryStore) HasRecentCaseMatching(_ context.Context, q domain.RecurrenceQuery) (bool, error) {
	if q.Empty() {
		return false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("HasRecentCaseMatching"); err != nil {
		return false, err
	}

	for _, c := range s.state.cases {
		if c.VillageID != q.VillageID || c.CreatedAt.Before(q.Since) {
			continue
		}
		if sameName(c.ChildName, q.ChildName) || sameName(c.AbuserName, q.AbuserName) {
			return true, nil
		}
	}
	return false, nil
}

func sameName(stored *string, name string) bool {
	return name != "" && stored != nil && *stored == name
}

// ListPendingCreatedBefore lists Pending cases created at or before the cutoff
func (s *MemoryStore) ListPendingCreatedBefore(_ context.Context, before time.Time) ([]*domain.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListPendingCreatedBefore"); err != nil {
		return nil, err
	}

	var out []*domain.Case
	for _, c := range s.state.cases {
		if c.Status == domain.CaseStatusPending && !c.CreatedAt.After(before) {
			out = append(out, cloneCase(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// AggregateCases groups cases by village, status, incident type and urgency
func (s *MemoryStore) AggregateCases(_ context.Context) ([]domain.CaseAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("AggregateCases"); err != nil {
		return nil, err
	}

	type key struct {
		village  types.ID
		status   domain.CaseStatus
		incident domain.IncidentType
		urgency  domain.Urgency
	}
	groups := make(map[key]*domain.CaseAggregate)
	var order []key
	for _, c := range s.state.cases {
		k := key{c.VillageID, c.Status, c.IncidentType, c.Urgency}
		agg, ok := groups[k]
		if !ok {
			agg = &domain.CaseAggregate{VillageID: k.village, Status: k.status, IncidentType: k.incident, Urgency: k.urgency}
			groups[k] = agg
			order = append(order, k)
		}
		agg.Count++
		agg.ScoreSum += c.Score
	}

	out := make([]domain.CaseAggregate, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.VillageID != b.VillageID {
			return a.VillageID.String() < b.VillageID.String()
		}
		if a.Status != b.Status {
			return a.Status < b.Status
		}
		if a.IncidentType != b.IncidentType {
			return a.IncidentType < b.IncidentType
		}
		return a.Urgency < b.Urgency
	})
	return out, nil
}

// UpdateStatus moves the case to `to` if it is still in `from`
func (s *MemoryStore) UpdateStatus(_ context.Context, id types.ID, from, to domain.CaseStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateStatus"); err != nil {
		return false, err
	}

	c, ok := s.state.cases[id]
	if !ok {
		return false, errors.NotFound("case", id.String())
	}
	if c.Status != from {
		return false, nil
	}
	c.Status = to
	c.UpdatedAt = at
	return true, nil
}

// RecordDirectorValidation stores v unless the director already validated
func (s *MemoryStore) RecordDirectorValidation(_ context.Context, id types.ID, v domain.Validation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("RecordDirectorValidation"); err != nil {
		return false, err
	}

	c, ok := s.state.cases[id]
	if !ok {
		return false, errors.NotFound("case", id.String())
	}
	if c.DirVillageValidation != nil {
		return false, nil
	}
	c.DirVillageValidation = &v
	c.UpdatedAt = v.At
	return true, nil
}

// RecordSafeguardingValidation stores v and signs the case unless safeguarding already validated
func (s *MemoryStore) RecordSafeguardingValidation(_ context.Context, id types.ID, v domain.Validation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("RecordSafeguardingValidation"); err != nil {
		return false, err
	}

	c, ok := s.state.cases[id]
	if !ok {
		return false, errors.NotFound("case", id.String())
	}
	if c.SauvegardeValidation != nil || c.DirVillageValidation == nil || c.Status != domain.CaseStatusInProgress {
		return false, nil
	}
	c.SauvegardeValidation = &v
	c.Status = domain.CaseStatusSigned
	c.UpdatedAt = v.At
	return true, nil
}

// --- Attachment and Document Operations ---

// AddAttachment stores an attachment row
func (s *MemoryStore) AddAttachment(_ context.Context, a *domain.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("AddAttachment"); err != nil {
		return err
	}
	s.state.attachments[a.ID] = *a
	return nil
}

// ListAttachments lists the attachments of a case, oldest first
func (s *MemoryStore) ListAttachments(_ context.Context, caseID types.ID) ([]domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Attachment
	for _, a := range s.state.attachments {
		if a.CaseID == caseID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// GetAttachment retrieves an attachment by ID
func (s *MemoryStore) GetAttachment(_ context.Context, id types.ID) (*domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.attachments[id]
	if !ok {
		return nil, errors.NotFound("attachment", id.String())
	}
	return &a, nil
}

// AddDocument stores a document row
func (s *MemoryStore) AddDocument(_ context.Context, d *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("AddDocument"); err != nil {
		return err
	}
	s.state.documents[d.ID] = *d
	return nil
}

// ListDocuments lists the documents of a case, oldest first
func (s *MemoryStore) ListDocuments(_ context.Context, caseID types.ID) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Document
	for _, d := range s.state.documents {
		if d.CaseID == caseID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// GetDocument retrieves a document by ID
func (s *MemoryStore) GetDocument(_ context.Context, id types.ID) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.state.documents[id]
	if !ok {
		return nil, errors.NotFound("document", id.String())
	}
	return &d, nil
}

// --- Assignment Operations ---

// ListPsychologists lists the psychologists of a village in creation order
func (s *MemoryStore) ListPsychologists(_ context.Context, villageID types.ID) ([]types.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListPsychologists"); err != nil {
		return nil, err
	}

	var ids []types.ID
	for _, id := range s.state.userOrder {
		u := s.state.users[id]
		if u.Role == auth.RolePsychologist && villageID.SameAs(u.VillageID) {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

// CountOpenAssignments counts each psychologist's assignments on Pending or InProgress cases
func (s *MemoryStore) CountOpenAssignments(_ context.Context, psychologistIDs []types.ID) (map[types.ID]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("CountOpenAssignments"); err != nil {
		return nil, err
	}

	loads := make(map[types.ID]int, len(psychologistIDs))
	for _, id := range psychologistIDs {
		loads[id] = 0
	}
	for _, a := range s.state.assignments {
		if _, wanted := loads[a.PsychologistID]; !wanted {
			continue
		}
		if c, ok := s.state.cases[a.CaseID]; ok && containsStatus(domain.OpenStatuses, c.Status) {
			loads[a.PsychologistID]++
		}
	}
	return loads, nil
}

// AddAssignment stores an assignment. A case holds at most one assignment per role.
func (s *MemoryStore) AddAssignment(_ context.Context, a *domain.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("AddAssignment"); err != nil {
		return err
	}
	for _, existing := range s.state.assignments {
		if existing.CaseID == a.CaseID && (existing.Role == a.Role || existing.PsychologistID == a.PsychologistID) {
			return errors.Conflict("case assignment already exists")
		}
	}
	s.state.assignments = append(s.state.assignments, *a)
	return nil
}

// ListAssignments lists the assignments of a case, primary first
func (s *MemoryStore) ListAssignments(_ context.Context, caseID types.ID) ([]domain.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListAssignments"); err != nil {
		return nil, err
	}

	var out []domain.Assignment
	for _, a := range s.state.assignments {
		if a.CaseID == caseID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Role == domain.AssignmentPrimary && out[j].Role != domain.AssignmentPrimary })
	return out, nil
}

// FindRecipients resolves the users matching q
func (s *MemoryStore) FindRecipients(_ context.Context, q domain.RecipientQuery) ([]notification.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("FindRecipients"); err != nil {
		return nil, err
	}

	var out []notification.Recipient
	for _, id := range s.state.userOrder {
		u := s.state.users[id]
		if q.Role != "" && u.Role != q.Role {
			continue
		}
		if q.VillageID != nil && !q.VillageID.SameAs(u.VillageID) {
			continue
		}
		if q.UserIDs != nil && !containsID(q.UserIDs, u.ID) {
			continue
		}
		out = append(out, notification.Recipient{
			UserID:         u.ID,
			FullName:       u.FullName,
			Email:          u.Email,
			WhatsAppNumber: u.WhatsAppNumber,
		})
	}
	return out, nil
}

// InsertNotification stores n unless the user already has one of that kind for the case
func (s *MemoryStore) InsertNotification(_ context.Context, n *notification.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertNotification"); err != nil {
		return false, err
	}

	if n.CaseID != nil {
		key := notificationKey{userID: n.UserID, caseID: *n.CaseID, kind: n.Type}
		if s.state.notifiedKeys[key] {
			return false, nil
		}
		s.state.notifiedKeys[key] = true
	}
	stored := *n
	s.state.notifications = append(s.state.notifications, &stored)
	return true, nil
}

// AppendAudit chains e onto the in-memory audit log
func (s *MemoryStore) AppendAudit(_ context.Context, e *audit.Entry) error {
	s.mu.RLock()
	err := s.fail("AppendAudit")
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	s.audit.Append(e)
	return nil
}

// --- Inbox Operations ---

// ListForUser lists a user's notifications, newest first
func (s *MemoryStore) ListForUser(_ context.Context, userID types.ID, limit int) ([]*notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*notification.Notification
	for i := len(s.state.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		n := s.state.notifications[i]
		if n.UserID == userID {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MarkRead sets read_at on the caller's own notification and audits it
func (s *MemoryStore) MarkRead(_ context.Context, id, userID types.ID, at time.Time, entry *audit.Entry) (*notification.Notification, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.state.notifications {
		if n.ID != id || n.UserID != userID {
			continue
		}
		if n.ReadAt == nil {
			readAt := at
			n.ReadAt = &readAt
		}
		s.audit.Append(entry)
		cp := *n
		return &cp, nil
	}
	return nil, errors.NotFound("notification", id.String())
}

// --- Directory Operations ---

// CreateVillage stores a village with a unique name
func (s *MemoryStore) CreateVillage(_ context.Context, v *directory.Village, entry *audit.Entry) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.state.villages {
		if existing.ID == v.ID || strings.EqualFold(existing.Name, v.Name) {
			return errors.Conflict("village with this name already exists")
		}
	}
	s.state.villages[v.ID] = *v
	s.audit.Append(entry)
	return nil
}

// GetVillage retrieves a village by ID
func (s *MemoryStore) GetVillage(_ context.Context, id types.ID) (*directory.Village, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state.villages[id]
	if !ok {
		return nil, errors.NotFound("village", id.String())
	}
	return &v, nil
}

// ListVillages lists villages by name
func (s *MemoryStore) ListVillages(_ context.Context) ([]directory.Village, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]directory.Village, 0, len(s.state.villages))
	for _, v := range s.state.villages {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateUser stores a user with a unique email
func (s *MemoryStore) CreateUser(_ context.Context, u *directory.User, entry *audit.Entry) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.state.users {
		if existing.Email == u.Email {
			return errors.Conflict("user with this email already exists")
		}
	}
	s.state.users[u.ID] = *u
	s.state.userOrder = append(s.state.userOrder, u.ID)
	s.audit.Append(entry)
	return nil
}

// GetUserByEmail retrieves a user by email
func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*directory.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.state.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, errors.NotFound("user", email)
}

// ListUsers lists users in creation order
func (s *MemoryStore) ListUsers(_ context.Context, filter directory.ListUsersFilter) ([]directory.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []directory.User
	for _, id := range s.state.userOrder {
		u := s.state.users[id]
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if filter.VillageID != nil && !filter.VillageID.SameAs(u.VillageID) {
			continue
		}
		matched = append(matched, u)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	start := min(max(filter.Offset, 0), len(matched))
	end := min(start+limit, len(matched))
	return matched[start:end], len(matched), nil
}

func (st *memoryState) clone() *memoryState {
	cp := &memoryState{
		villages:      make(map[types.ID]directory.Village, len(st.villages)),
		users:         make(map[types.ID]directory.User, len(st.users)),
		userOrder:     append([]types.ID(nil), st.userOrder...),
		cases:         make(map[types.ID]*domain.Case, len(st.cases)),
		attachments:   make(map[types.ID]domain.Attachment, len(st.attachments)),
		documents:     make(map[types.ID]domain.Document, len(st.documents)),
		assignments:   append([]domain.Assignment(nil), st.assignments...),
		notifications: make([]*notification.Notification, 0, len(st.notifications)),
		notifiedKeys:  make(map[notificationKey]bool, len(st.notifiedKeys)),
	}
	for k, v := range st.villages {
		cp.villages[k] = v
	}
	for k, v := range st.users {
		cp.users[k] = v
	}
	for k, v := range st.cases {
		cp.cases[k] = cloneCase(v)
	}
	for k, v := range st.attachments {
		cp.attachments[k] = v
	}
	for k, v := range st.documents {
		cp.documents[k] = v
	}
	for _, n := range st.notifications {
		n := *n
		cp.notifications = append(cp.notifications, &n)
	}
	for k, v := range st.notifiedKeys {
		cp.notifiedKeys[k] = v
	}
	return cp
}

// cloneCase copies the stored fields of c. Pending domain events are not copied.
func cloneCase(c *domain.Case) *domain.Case {
	cp := &domain.Case{
		ID:           c.ID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Status:       c.Status,
		Score:        c.Score,
		IsAnonymous:  c.IsAnonymous,
		VillageID:    c.VillageID,
		IncidentType: c.IncidentType,
		Urgency:      c.Urgency,
		AbuserName:   cloneString(c.AbuserName),
		ChildName:    cloneString(c.ChildName),
		Description:  cloneString(c.Description),
		CreatedBy:    c.CreatedBy,
	}
	if c.DirVillageValidation != nil {
		v := *c.DirVillageValidation
		cp.DirVillageValidation = &v
	}
	if c.SauvegardeValidation != nil {
		v := *c.SauvegardeValidation
		cp.SauvegardeValidation = &v
	}
	return cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func containsStatus(statuses []domain.CaseStatus, s domain.CaseStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func containsID(ids []types.ID, id types.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

var (
	_ domain.Repository    = (*MemoryStore)(nil)
	_ notification.Store   = (*MemoryStore)(nil)
	_ directory.Repository = (*MemoryStore)(nil)
)
