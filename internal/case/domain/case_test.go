package domain

import (
	"testing"
	"time"

	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newTestCase(t *testing.T) *Case {
	t.Helper()
	c, err := NewCase(NewCaseParams{
		VillageID:    types.NewID(),
		CreatedBy:    types.NewID(),
		IncidentType: IncidentViolence,
		Urgency:      UrgencyHigh,
		ChildName:    "  Amine ",
		Description:  "",
		Score:        55,
		CreatedAt:    now,
	})
	if err != nil {
		t.Fatalf("NewCase failed: %v", err)
	}
	return c
}

func docs(kinds ...DocType) []Document {
	out := make([]Document, len(kinds))
	for i, dt := range kinds {
		out[i] = Document{ID: types.NewID(), DocType: dt}
	}
	return out
}

func completeDocs() []Document {
	return docs(DocTypeInitialForm, DocTypeDPEReport)
}

// TestNewCase tests creating a new case
func TestNewCase(t *testing.T) {
	c := newTestCase(t)

	if c.ID.IsZero() {
		t.Error("Expected non-zero ID")
	}
	if c.Status != CaseStatusPending {
		t.Errorf("Expected status %s, got %s", CaseStatusPending, c.Status)
	}
	if c.ChildName == nil || *c.ChildName != "Amine" {
		t.Errorf("Expected trimmed child name, got %v", c.ChildName)
	}
	if c.Description != nil {
		t.Error("Expected empty description stored as nil")
	}

	events := c.GetDomainEvents()
	if len(events) != 1 || events[0].Type != CaseEventTypeCreated {
		t.Fatalf("Expected one created event, got %+v", events)
	}
	if len(c.GetDomainEvents()) != 0 {
		t.Error("Expected events to be cleared after read")
	}
}

func TestNewCaseValidation(t *testing.T) {
	tests := []struct {
		name   string
		params NewCaseParams
		field  string
	}{
		{"missing village", NewCaseParams{CreatedBy: types.NewID(), IncidentType: IncidentOther, Urgency: UrgencyLow}, "village_id"},
		{"missing creator", NewCaseParams{VillageID: types.NewID(), IncidentType: IncidentOther, Urgency: UrgencyLow}, "created_by"},
		{"bad incident", NewCaseParams{VillageID: types.NewID(), CreatedBy: types.NewID(), IncidentType: "FIRE", Urgency: UrgencyLow}, "incident_type"},
		{"bad urgency", NewCaseParams{VillageID: types.NewID(), CreatedBy: types.NewID(), IncidentType: IncidentOther, Urgency: "NOW"}, "urgency"},
		{"score out of range", NewCaseParams{VillageID: types.NewID(), CreatedBy: types.NewID(), IncidentType: IncidentOther, Urgency: UrgencyLow, Score: 101}, "score"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCase(tt.params)
			var appErr *errors.AppError
			if !errors.As(err, &appErr) || appErr.Code != errors.CodeInvalidInput {
				t.Fatalf("Expected validation error, got %v", err)
			}
			if _, ok := appErr.Details[tt.field]; !ok {
				t.Errorf("Expected detail for %s, got %v", tt.field, appErr.Details)
			}
		})
	}
}

// TestStatusChangeSafety checks every (status, target) pair: allowed moves apply,
// the rest fail with a state conflict and leave the status unchanged.
func TestStatusChangeSafety(t *testing.T) {
	allowed := map[[2]CaseStatus]bool{
		{CaseStatusPending, CaseStatusInProgress}:     true,
		{CaseStatusPending, CaseStatusFalseReport}:    true,
		{CaseStatusInProgress, CaseStatusFalseReport}: true,
		{CaseStatusSigned, CaseStatusClosed}:          true,
	}

	for _, from := range Statuses() {
		for _, to := range Statuses() {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				c := newTestCase(t)
				c.Status = from

				err := c.ChangeStatus(to, types.NewID(), now)
				if allowed[[2]CaseStatus{from, to}] {
					if err != nil {
						t.Fatalf("Expected transition allowed, got %v", err)
					}
					if c.Status != to {
						t.Errorf("Expected status %s, got %s", to, c.Status)
					}
					return
				}

				var appErr *errors.AppError
				if !errors.As(err, &appErr) || appErr.HTTPStatus != 409 {
					t.Fatalf("Expected state conflict, got %v", err)
				}
				if c.Status != from {
					t.Errorf("Status changed to %s on rejected transition", c.Status)
				}
			})
		}
	}
}

func TestStatusChangeErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		from CaseStatus
		to   CaseStatus
		code string
	}{
		{"signed to in progress", CaseStatusSigned, CaseStatusInProgress, errors.CodeSignedCaseCanOnlyBeClosed},
		{"signed to false report", CaseStatusSigned, CaseStatusFalseReport, errors.CodeSignedCaseCanOnlyBeClosed},
		{"close pending", CaseStatusPending, CaseStatusClosed, errors.CodeOnlySignedCaseCanBeClosed},
		{"close closed", CaseStatusClosed, CaseStatusClosed, errors.CodeOnlySignedCaseCanBeClosed},
		{"reopen false report", CaseStatusFalseReport, CaseStatusPending, errors.CodeInvalidCaseStatus},
		{"in progress to signed", CaseStatusInProgress, CaseStatusSigned, errors.CodeInvalidCaseStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCase(t)
			c.Status = tt.from
			if err := c.CheckStatusChange(tt.to); !errors.HasCode(err, tt.code) {
				t.Errorf("Expected %s, got %v", tt.code, err)
			}
		})
	}

	c := newTestCase(t)
	if err := c.CheckStatusChange("ARCHIVED"); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Errorf("Expected INVALID_INPUT for unknown status, got %v", err)
	}
}

func TestAddDocument(t *testing.T) {
	c := newTestCase(t)
	doc := Document{ID: types.NewID(), DocType: DocTypeInitialForm, UploadedBy: types.NewID()}

	if err := c.AddDocument(doc, now); !errors.HasCode(err, errors.CodeInvalidCaseStatus) {
		t.Errorf("Expected INVALID_CASE_STATUS on pending case, got %v", err)
	}

	c.Status = CaseStatusInProgress
	if err := c.AddDocument(Document{DocType: "OTHER"}, now); !errors.HasCode(err, errors.CodeUnknownDocType) {
		t.Errorf("Expected UNKNOWN_DOC_TYPE, got %v", err)
	}
	if err := c.AddDocument(doc, now); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}
}

// TestDirectorValidationMissingDocuments covers a case holding only the initial form
func TestDirectorValidationMissingDocuments(t *testing.T) {
	c := newTestCase(t)
	c.Status = CaseStatusInProgress

	err := c.ValidateAsDirector(types.NewID(), docs(DocTypeInitialForm), "sig.png", now)

	var appErr *errors.AppError
	if !errors.As(err, &appErr) || appErr.Code != errors.CodeMissingRequiredDocuments {
		t.Fatalf("Expected MISSING_REQUIRED_DOCUMENTS, got %v", err)
	}
	if appErr.Details["missing"] != string(DocTypeDPEReport) {
		t.Errorf("Expected missing RAPPORT_DPE, got %v", appErr.Details)
	}
	if c.Status != CaseStatusInProgress || c.DirVillageValidation != nil {
		t.Error("Expected case unchanged after rejected validation")
	}
}

func TestDirectorValidation(t *testing.T) {
	director := types.NewID()

	t.Run("requires in progress", func(t *testing.T) {
		c := newTestCase(t)
		err := c.ValidateAsDirector(director, completeDocs(), "sig.png", now)
		if !errors.HasCode(err, errors.CodeInvalidCaseStatus) {
			t.Errorf("Expected INVALID_CASE_STATUS, got %v", err)
		}
	})

	t.Run("requires signature", func(t *testing.T) {
		c := newTestCase(t)
		c.Status = CaseStatusInProgress
		err := c.ValidateAsDirector(director, completeDocs(), " ", now)
		if !errors.HasCode(err, errors.CodeSignatureRequired) {
			t.Errorf("Expected SIGNATURE_REQUIRED, got %v", err)
		}
	})

	t.Run("records once", func(t *testing.T) {
		c := newTestCase(t)
		c.Status = CaseStatusInProgress
		if err := c.ValidateAsDirector(director, completeDocs(), "sig.png", now); err != nil {
			t.Fatalf("ValidateAsDirector failed: %v", err)
		}
		if c.DirVillageValidation == nil || c.DirVillageValidation.By != director {
			t.Fatal("Expected director validation recorded")
		}
		if c.Status != CaseStatusInProgress {
			t.Errorf("Expected status to stay in progress, got %s", c.Status)
		}

		err := c.ValidateAsDirector(director, completeDocs(), "sig2.png", now.Add(time.Minute))
		if !errors.HasCode(err, errors.CodeAlreadyValidated) {
			t.Errorf("Expected ALREADY_VALIDATED, got %v", err)
		}
		if c.DirVillageValidation.SignaturePath != "sig.png" {
			t.Error("Expected first validation kept")
		}
	})
}

func TestSafeguardingValidationOrdering(t *testing.T) {
	documentSets := map[string][]Document{
		"no documents":       nil,
		"partial documents":  docs(DocTypeDPEReport),
		"complete documents": completeDocs(),
	}

	for name, set := range documentSets {
		for _, status := range Statuses() {
			t.Run(name+" "+string(status), func(t *testing.T) {
				c := newTestCase(t)
				c.Status = status
				err := c.ValidateAsSafeguarding(types.NewID(), set, "sig.pdf", now)
				if !errors.HasCode(err, errors.CodeDirValidationRequired) {
					t.Errorf("Expected DIR_VILLAGE_VALIDATION_REQUIRED, got %v", err)
				}
				if c.SauvegardeValidation != nil {
					t.Error("Expected no safeguarding validation")
				}
			})
		}
	}
}

func TestSafeguardingValidation(t *testing.T) {
	director, officer := types.NewID(), types.NewID()

	validated := func(t *testing.T) *Case {
		c := newTestCase(t)
		c.Status = CaseStatusInProgress
		if err := c.ValidateAsDirector(director, completeDocs(), "dir.png", now); err != nil {
			t.Fatalf("ValidateAsDirector failed: %v", err)
		}
		return c
	}

	t.Run("missing director signature", func(t *testing.T) {
		c := validated(t)
		c.DirVillageValidation.SignaturePath = ""
		err := c.ValidateAsSafeguarding(officer, completeDocs(), "sig.pdf", now)
		if !errors.HasCode(err, errors.CodeDirSignatureRequired) {
			t.Errorf("Expected DIR_VILLAGE_SIGNATURE_REQUIRED, got %v", err)
		}
	})

	t.Run("missing documents", func(t *testing.T) {
		c := validated(t)
		err := c.ValidateAsSafeguarding(officer, docs(DocTypeInitialForm), "sig.pdf", now)
		if !errors.HasCode(err, errors.CodeMissingRequiredDocuments) {
			t.Errorf("Expected MISSING_REQUIRED_DOCUMENTS, got %v", err)
		}
	})

	t.Run("signs the case", func(t *testing.T) {
		c := validated(t)
		c.GetDomainEvents()

		if err := c.ValidateAsSafeguarding(officer, completeDocs(), "sig.pdf", now); err != nil {
			t.Fatalf("ValidateAsSafeguarding failed: %v", err)
		}
		if c.Status != CaseStatusSigned {
			t.Errorf("Expected status SIGNED, got %s", c.Status)
		}
		if c.SauvegardeValidation == nil || c.SauvegardeValidation.By != officer {
			t.Error("Expected safeguarding validation recorded")
		}

		events := c.GetDomainEvents()
		if len(events) != 1 || events[0].Type != CaseEventTypeSafeguardingValidated {
			t.Errorf("Expected safeguarding event, got %+v", events)
		}

		err := c.ValidateAsSafeguarding(officer, completeDocs(), "sig.pdf", now)
		if !errors.HasCode(err, errors.CodeInvalidCaseStatus) {
			t.Errorf("Expected INVALID_CASE_STATUS on signed case, got %v", err)
		}
	})
}

// TestCloseSignedCase walks a case to SIGNED and closes it twice
func TestCloseSignedCase(t *testing.T) {
	psy := types.NewID()
	c := newTestCase(t)

	if err := c.ChangeStatus(CaseStatusInProgress, psy, now); err != nil {
		t.Fatalf("ChangeStatus failed: %v", err)
	}
	if err := c.ValidateAsDirector(types.NewID(), completeDocs(), "dir.png", now); err != nil {
		t.Fatalf("ValidateAsDirector failed: %v", err)
	}
	if err := c.ValidateAsSafeguarding(types.NewID(), completeDocs(), "sauv.pdf", now); err != nil {
		t.Fatalf("ValidateAsSafeguarding failed: %v", err)
	}

	if err := c.ChangeStatus(CaseStatusClosed, psy, now); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if c.Status != CaseStatusClosed || !c.Status.Terminal() {
		t.Errorf("Expected terminal CLOSED, got %s", c.Status)
	}

	err := c.ChangeStatus(CaseStatusClosed, psy, now)
	if !errors.HasCode(err, errors.CodeOnlySignedCaseCanBeClosed) {
		t.Errorf("Expected ONLY_SIGNED_CASE_CAN_BE_CLOSED, got %v", err)
	}
}

func TestMissingDocTypes(t *testing.T) {
	if got := MissingDocTypes(nil); len(got) != 2 {
		t.Errorf("Expected both types missing, got %v", got)
	}
	if !IsDocumentComplete(docs(DocTypeDPEReport, DocTypeInitialForm, DocTypeDPEReport)) {
		t.Error("Expected document-complete")
	}
}
