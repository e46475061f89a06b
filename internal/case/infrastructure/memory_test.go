package infrastructure

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sos-villages/signalement/internal/audit"
	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/case/domain"
	"github.com/sos-villages/signalement/internal/directory"
	"github.com/sos-villages/signalement/internal/notification"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func addCase(t *testing.T, s *MemoryStore, village types.ID, score int, createdAt time.Time, child string) *domain.Case {
	t.Helper()
	c, err := domain.NewCase(domain.NewCaseParams{
		VillageID:    village,
		CreatedBy:    types.NewID(),
		IncidentType: domain.IncidentHealth,
		Urgency:      domain.UrgencyLow,
		ChildName:    child,
		Score:        score,
		CreatedAt:    createdAt,
	})
	if err != nil {
		t.Fatalf("NewCase: %v", err)
	}
	if err := s.CreateCase(context.Background(), c); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}
	return c
}

func addPsychologist(t *testing.T, s *MemoryStore, village types.ID, n int) types.ID {
	t.Helper()
	u := &directory.User{
		ID:        types.NewID(),
		Email:     fmt.Sprintf("psy%d-%s@sos.tn", n, village),
		FullName:  fmt.Sprintf("Psy %d", n),
		Role:      auth.RolePsychologist,
		VillageID: &village,
		CreatedAt: base,
	}
	entry := audit.NewEntry(nil, "", audit.ActionCreateUser, audit.EntityUser, u.ID.Ptr(), nil)
	if err := s.CreateUser(context.Background(), u, entry); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u.ID
}

func TestWithinTxRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	village := types.NewID()

	c, _ := domain.NewCase(domain.NewCaseParams{
		VillageID: village, CreatedBy: types.NewID(),
		IncidentType: domain.IncidentOther, Urgency: domain.UrgencyLow,
	})

	boom := fmt.Errorf("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, tx domain.Repository) error {
		if err := tx.CreateCase(ctx, c); err != nil {
			return err
		}
		if _, err := tx.InsertNotification(ctx, notification.New(types.NewID(), c.ID, notification.KindCaseAssigned, base)); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, audit.NewEntry(nil, "", audit.ActionCreateCase, audit.EntityCase, c.ID.Ptr(), nil)); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Fatalf("expected the callback error, got %v", err)
	}

	if _, err := s.GetCase(ctx, c.ID); !errors.HasCode(err, errors.CodeNotFound) {
		t.Errorf("case survived rollback: %v", err)
	}
	if s.Audit().Len() != 0 {
		t.Errorf("audit entries survived rollback: %d", s.Audit().Len())
	}
	if len(s.state.notifications) != 0 {
		t.Errorf("notifications survived rollback: %d", len(s.state.notifications))
	}
}

func TestWithinTxCommits(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	c, _ := domain.NewCase(domain.NewCaseParams{
		VillageID: types.NewID(), CreatedBy: types.NewID(),
		IncidentType: domain.IncidentOther, Urgency: domain.UrgencyLow,
	})
	err := s.WithinTx(ctx, func(ctx context.Context, tx domain.Repository) error {
		return tx.CreateCase(ctx, c)
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	if _, err := s.GetCase(ctx, c.ID); err != nil {
		t.Errorf("GetCase after commit: %v", err)
	}
}

func TestInsertNotificationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	user, caseID := types.NewID(), types.NewID()

	first, err := s.InsertNotification(ctx, notification.New(user, caseID, notification.KindPendingReminder24h, base))
	if err != nil || !first {
		t.Fatalf("first insert = %v, %v", first, err)
	}
	second, err := s.InsertNotification(ctx, notification.New(user, caseID, notification.KindPendingReminder24h, base))
	if err != nil || second {
		t.Fatalf("second insert = %v, %v", second, err)
	}
	other, _ := s.InsertNotification(ctx, notification.New(user, caseID, notification.KindCaseAssigned, base))
	if !other {
		t.Error("a different kind must be inserted")
	}

	list, _ := s.ListForUser(ctx, user, 50)
	if len(list) != 2 {
		t.Errorf("expected 2 notifications, got %d", len(list))
	}
}

func TestCountOpenAssignmentsIgnoresClosedCases(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	village := types.NewID()
	psy := addPsychologist(t, s, village, 1)
	idle := addPsychologist(t, s, village, 2)

	open := addCase(t, s, village, 10, base, "")
	closed := addCase(t, s, village, 10, base, "")
	if _, err := s.UpdateStatus(ctx, closed.ID, domain.CaseStatusPending, domain.CaseStatusFalseReport, base); err != nil {
		t.Fatal(err)
	}
	for _, c := range []*domain.Case{open, closed} {
		a := &domain.Assignment{ID: types.NewID(), CaseID: c.ID, PsychologistID: psy, Role: domain.AssignmentPrimary, CreatedAt: base}
		if err := s.AddAssignment(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	loads, err := s.CountOpenAssignments(ctx, []types.ID{psy, idle})
	if err != nil {
		t.Fatal(err)
	}
	if loads[psy] != 1 || loads[idle] != 0 {
		t.Errorf("loads = %v", loads)
	}

	ids, _ := s.ListPsychologists(ctx, village)
	if len(ids) != 2 || ids[0] != psy {
		t.Errorf("psychologists = %v", ids)
	}
}

func TestAddAssignmentRejectsSecondPrimary(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	caseID := types.NewID()

	first := &domain.Assignment{ID: types.NewID(), CaseID: caseID, PsychologistID: types.NewID(), Role: domain.AssignmentPrimary}
	second := &domain.Assignment{ID: types.NewID(), CaseID: caseID, PsychologistID: types.NewID(), Role: domain.AssignmentPrimary}
	if err := s.AddAssignment(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := s.AddAssignment(ctx, second); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestListCasesOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	village := types.NewID()

	low := addCase(t, s, village, 20, base, "")
	highLate := addCase(t, s, village, 80, base.Add(time.Hour), "")
	highEarly := addCase(t, s, village, 80, base, "")
	addCase(t, s, types.NewID(), 99, base, "")

	got, err := s.ListCases(ctx, domain.ListFilter{VillageID: &village})
	if err != nil {
		t.Fatal(err)
	}
	want := []types.ID{highEarly.ID, highLate.ID, low.ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d cases, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, want[i])
		}
	}

	page, _ := s.ListCases(ctx, domain.ListFilter{VillageID: &village, Limit: 1, Offset: 2})
	if len(page) != 1 || page[0].ID != low.ID {
		t.Errorf("unexpected page %v", page)
	}
}

func TestHasRecentCaseMatching(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	village := types.NewID()
	addCase(t, s, village, 10, base, "Amine")

	tests := []struct {
		name string
		q    domain.RecurrenceQuery
		want bool
	}{
		{"same child", domain.RecurrenceQuery{VillageID: village, ChildName: "Amine", Since: base.AddDate(0, 0, -180)}, true},
		{"other village", domain.RecurrenceQuery{VillageID: types.NewID(), ChildName: "Amine", Since: base.AddDate(0, 0, -180)}, false},
		{"outside window", domain.RecurrenceQuery{VillageID: village, ChildName: "Amine", Since: base.Add(time.Hour)}, false},
		{"no names", domain.RecurrenceQuery{VillageID: village, Since: base.AddDate(0, 0, -180)}, false},
		{"abuser only", domain.RecurrenceQuery{VillageID: village, AbuserName: "Amine", Since: base.AddDate(0, 0, -180)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.HasRecentCaseMatching(ctx, tt.q)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidationCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := addCase(t, s, types.NewID(), 10, base, "")
	s.UpdateStatus(ctx, c.ID, domain.CaseStatusPending, domain.CaseStatusInProgress, base)

	sg := domain.Validation{At: base, By: types.NewID(), SignaturePath: "sig"}
	if ok, _ := s.RecordSafeguardingValidation(ctx, c.ID, sg); ok {
		t.Fatal("safeguarding validation recorded before director validation")
	}

	dir := domain.Validation{At: base, By: types.NewID(), SignaturePath: "sig"}
	if ok, _ := s.RecordDirectorValidation(ctx, c.ID, dir); !ok {
		t.Fatal("first director validation rejected")
	}
	if ok, _ := s.RecordDirectorValidation(ctx, c.ID, dir); ok {
		t.Fatal("second director validation accepted")
	}
	if ok, _ := s.RecordSafeguardingValidation(ctx, c.ID, sg); !ok {
		t.Fatal("safeguarding validation rejected")
	}

	got, _ := s.GetCase(ctx, c.ID)
	if got.Status != domain.CaseStatusSigned {
		t.Errorf("status = %s, want SIGNED", got.Status)
	}
}

func TestFailOnInjectsStoreErrors(t *testing.T) {
	s := NewMemoryStore()
	s.FailOn("Ping", fmt.Errorf("connection refused"))

	err := s.Ping(context.Background())
	if !errors.HasCode(err, errors.CodeStoreUnavailable) {
		t.Fatalf("expected STORE_UNAVAILABLE, got %v", err)
	}

	s.FailOn("Ping", nil)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping after clearing failure: %v", err)
	}
}
