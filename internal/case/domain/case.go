package domain

import (
	"strings"
	"time"

	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

// CaseStatus defines the status of a case
type CaseStatus string

const (
	CaseStatusPending     CaseStatus = "PENDING"
	CaseStatusInProgress  CaseStatus = "IN_PROGRESS"
	CaseStatusSigned      CaseStatus = "SIGNED"
	CaseStatusFalseReport CaseStatus = "FALSE_REPORT"
	CaseStatusClosed      CaseStatus = "CLOSED"
)

// Statuses returns every case status in lifecycle order
func Statuses() []CaseStatus {
	return []CaseStatus{
		CaseStatusPending,
		CaseStatusInProgress,
		CaseStatusSigned,
		CaseStatusFalseReport,
		CaseStatusClosed,
	}
}

// OpenStatuses are the statuses that count toward a psychologist's load
var OpenStatuses = []CaseStatus{CaseStatusPending, CaseStatusInProgress}

// Valid reports whether s is a known status
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseStatusPending, CaseStatusInProgress, CaseStatusSigned, CaseStatusFalseReport, CaseStatusClosed:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s
func (s CaseStatus) Terminal() bool {
	return s == CaseStatusFalseReport || s == CaseStatusClosed
}

// IncidentType classifies the reported incident
type IncidentType string

const (
	IncidentHealth      IncidentType = "HEALTH"
	IncidentBehavior    IncidentType = "BEHAVIOR"
	IncidentViolence    IncidentType = "VIOLENCE"
	IncidentSexualAbuse IncidentType = "SEXUAL_ABUSE"
	IncidentNeglect     IncidentType = "NEGLECT"
	IncidentConflict    IncidentType = "CONFLICT"
	IncidentOther       IncidentType = "OTHER"
)

// IncidentTypes returns incident types ordered from least to most severe
func IncidentTypes() []IncidentType {
	return []IncidentType{
		IncidentOther,
		IncidentConflict,
		IncidentBehavior,
		IncidentHealth,
		IncidentNeglect,
		IncidentViolence,
		IncidentSexualAbuse,
	}
}

// Valid reports whether t is a known incident type
func (t IncidentType) Valid() bool {
	for _, known := range IncidentTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Urgency is the declarant's urgency assessment
type Urgency string

const (
	UrgencyLow      Urgency = "LOW"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

// Urgencies returns urgency levels in ascending order
func Urgencies() []Urgency {
	return []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical}
}

// Valid reports whether u is a known urgency
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// Case is a child-protection report moving through the approval chain
type Case struct {
	ID           types.ID     `json:"id"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Status       CaseStatus   `json:"status"`
	Score        int          `json:"score"`
	IsAnonymous  bool         `json:"is_anonymous"`
	VillageID    types.ID     `json:"village_id"`
	IncidentType IncidentType `json:"incident_type"`
	Urgency      Urgency      `json:"urgency"`
	AbuserName   *string      `json:"abuser_name,omitempty"`
	ChildName    *string      `json:"child_name,omitempty"`
	Description  *string      `json:"description,omitempty"`
	CreatedBy    types.ID     `json:"created_by,omitempty"`

	DirVillageValidation *Validation `json:"dir_village_validation,omitempty"`
	SauvegardeValidation *Validation `json:"sauvegarde_validation,omitempty"`

	domainEvents []Event
}

// NewCaseParams carries the declarant's input for a new case
type NewCaseParams struct {
	VillageID    types.ID
	CreatedBy    types.ID
	IsAnonymous  bool
	IncidentType IncidentType
	Urgency      Urgency
	AbuserName   string
	ChildName    string
	Description  string
	Score        int
	CreatedAt    time.Time
}

// NewCase validates input and creates a pending case
func NewCase(p NewCaseParams) (*Case, error) {
	details := map[string]string{}
	if p.VillageID.IsZero() {
		details["village_id"] = "village is required"
	}
	if p.CreatedBy.IsZero() {
		details["created_by"] = "creator is required"
	}
	if !p.IncidentType.Valid() {
		details["incident_type"] = "unknown incident type"
	}
	if !p.Urgency.Valid() {
		details["urgency"] = "unknown urgency"
	}
	if p.Score < 0 || p.Score > 100 {
		details["score"] = "score must be within 0..100"
	}
	if len(details) > 0 {
		return nil, errors.Validation("invalid case", details)
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	c := &Case{
		ID:           types.NewID(),
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
		Status:       CaseStatusPending,
		Score:        p.Score,
		IsAnonymous:  p.IsAnonymous,
		VillageID:    p.VillageID,
		IncidentType: p.IncidentType,
		Urgency:      p.Urgency,
		AbuserName:   optional(p.AbuserName),
		ChildName:    optional(p.ChildName),
		Description:  optional(p.Description),
		CreatedBy:    p.CreatedBy,
	}

	c.addEvent(CaseEventTypeCreated, p.CreatedBy, createdAt, map[string]any{
		"village_id":    c.VillageID.String(),
		"incident_type": string(c.IncidentType),
		"urgency":       string(c.Urgency),
		"score":         c.Score,
	})

	return c, nil
}

// CanTransition reports whether the psychologist-driven transition table allows from -> to
func CanTransition(from, to CaseStatus) bool {
	switch {
	case from == CaseStatusPending && to == CaseStatusInProgress:
		return true
	case (from == CaseStatusPending || from == CaseStatusInProgress) && to == CaseStatusFalseReport:
		return true
	case from == CaseStatusSigned && to == CaseStatusClosed:
		return true
	}
	return false
}

// CheckStatusChange returns the state-conflict error for a psychologist moving the case to `to`
func (c *Case) CheckStatusChange(to CaseStatus) error {
	if !to.Valid() {
		return errors.BadRequest("unknown case status")
	}
	if c.Status == CaseStatusSigned && to != CaseStatusClosed {
		return errors.StateConflict(errors.CodeSignedCaseCanOnlyBeClosed, "a signed case can only be closed")
	}
	if to == CaseStatusClosed && c.Status != CaseStatusSigned {
		return errors.StateConflict(errors.CodeOnlySignedCaseCanBeClosed, "only a signed case can be closed")
	}
	if !CanTransition(c.Status, to) {
		return errors.StateConflict(errors.CodeInvalidCaseStatus, "invalid case status transition").
			WithDetail("from", string(c.Status)).
			WithDetail("to", string(to))
	}
	return nil
}

// ChangeStatus applies a psychologist-driven transition
func (c *Case) ChangeStatus(to CaseStatus, actorID types.ID, now time.Time) error {
	if err := c.CheckStatusChange(to); err != nil {
		return err
	}

	oldStatus := c.Status
	c.Status = to
	c.UpdatedAt = now

	c.addEvent(CaseEventTypeStatusChanged, actorID, now, map[string]any{
		"old_status": string(oldStatus),
		"new_status": string(to),
	})

	return nil
}

// CheckDocumentUpload ensures the case accepts new documents
func (c *Case) CheckDocumentUpload() error {
	if c.Status != CaseStatusInProgress {
		return errors.StateConflict(errors.CodeInvalidCaseStatus, "documents can only be added to a case in progress")
	}
	return nil
}

// AddDocument records a document upload
func (c *Case) AddDocument(doc Document, now time.Time) error {
	if err := c.CheckDocumentUpload(); err != nil {
		return err
	}
	if !doc.DocType.Valid() {
		return errors.Input(errors.CodeUnknownDocType, "unknown document type")
	}

	c.UpdatedAt = now
	c.addEvent(CaseEventTypeDocumentAdded, doc.UploadedBy, now, map[string]any{
		"document_id": doc.ID.String(),
		"doc_type":    string(doc.DocType),
	})
	return nil
}

// CheckDirectorValidation returns the first unmet precondition for director validation
func (c *Case) CheckDirectorValidation(docs []Document) error {
	if c.Status != CaseStatusInProgress {
		return errors.StateConflict(errors.CodeInvalidCaseStatus, "case must be in progress")
	}
	if c.DirVillageValidation != nil {
		return errors.StateConflict(errors.CodeAlreadyValidated, "case already validated by the village director")
	}
	if missing := MissingDocTypes(docs); len(missing) > 0 {
		return missingDocuments(missing)
	}
	return nil
}

// ValidateAsDirector records the village director's signed validation
func (c *Case) ValidateAsDirector(actorID types.ID, docs []Document, signaturePath string, now time.Time) error {
	if err := c.CheckDirectorValidation(docs); err != nil {
		return err
	}
	if strings.TrimSpace(signaturePath) == "" {
		return errors.Input(errors.CodeSignatureRequired, "signature is required")
	}

	c.DirVillageValidation = &Validation{At: now, By: actorID, SignaturePath: signaturePath}
	c.UpdatedAt = now

	c.addEvent(CaseEventTypeDirectorValidated, actorID, now, nil)
	return nil
}

// CheckSafeguardingValidation returns the first unmet precondition for safeguarding validation.
// Director validation is checked first so that it is reported whatever else is missing.
func (c *Case) CheckSafeguardingValidation(docs []Document) error {
	if c.DirVillageValidation == nil {
		return errors.StateConflict(errors.CodeDirValidationRequired, "village director validation is required first")
	}
	if c.Status != CaseStatusInProgress {
		return errors.StateConflict(errors.CodeInvalidCaseStatus, "case must be in progress")
	}
	if c.SauvegardeValidation != nil {
		return errors.StateConflict(errors.CodeAlreadyValidated, "case already validated by safeguarding")
	}
	if missing := MissingDocTypes(docs); len(missing) > 0 {
		return missingDocuments(missing)
	}
	if c.DirVillageValidation.SignaturePath == "" {
		return errors.StateConflict(errors.CodeDirSignatureRequired, "village director signature is missing")
	}
	return nil
}

// ValidateAsSafeguarding records the safeguarding validation and signs the case
func (c *Case) ValidateAsSafeguarding(actorID types.ID, docs []Document, signaturePath string, now time.Time) error {
	if err := c.CheckSafeguardingValidation(docs); err != nil {
		return err
	}
	if strings.TrimSpace(signaturePath) == "" {
		return errors.Input(errors.CodeSignatureRequired, "signature is required")
	}

	oldStatus := c.Status
	c.SauvegardeValidation = &Validation{At: now, By: actorID, SignaturePath: signaturePath}
	c.Status = CaseStatusSigned
	c.UpdatedAt = now

	c.addEvent(CaseEventTypeSafeguardingValidated, actorID, now, map[string]any{
		"old_status": string(oldStatus),
		"new_status": string(c.Status),
	})
	return nil
}

// GetDomainEvents returns and clears pending domain events
func (c *Case) GetDomainEvents() []Event {
	events := c.domainEvents
	c.domainEvents = nil
	return events
}

func (c *Case) addEvent(eventType CaseEventType, actorID types.ID, at time.Time, data map[string]any) {
	c.domainEvents = append(c.domainEvents, Event{
		ID:        types.NewID(),
		Type:      eventType,
		CaseID:    c.ID,
		ActorID:   actorID,
		Data:      data,
		Timestamp: at,
	})
}

func missingDocuments(missing []DocType) error {
	names := make([]string, len(missing))
	for i, t := range missing {
		names[i] = string(t)
	}
	return errors.StateConflict(errors.CodeMissingRequiredDocuments, "required documents are missing").
		WithDetail("missing", strings.Join(names, ","))
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
