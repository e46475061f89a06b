package domain

import (
	"time"

	"github.com/sos-villages/signalement/internal/shared/types"
)

// AssignmentRole tags a psychologist's place on a case
type AssignmentRole string

const (
	AssignmentPrimary   AssignmentRole = "PRIMARY"
	AssignmentSecondary AssignmentRole = "SECONDARY"
)

// Assignment links a case to a psychologist. Immutable once created.
type Assignment struct {
	ID             types.ID       `json:"id"`
	CaseID         types.ID       `json:"case_id"`
	PsychologistID types.ID       `json:"psychologist_id"`
	Role           AssignmentRole `json:"role"`
	CreatedAt      time.Time      `json:"created_at"`
}

// DocType identifies the kind of report a psychologist files on a case
type DocType string

const (
	DocTypeInitialForm DocType = "FICHE_INITIALE"
	DocTypeDPEReport   DocType = "RAPPORT_DPE"
)

// RequiredDocTypes lists the documents a case needs before validation
var RequiredDocTypes = []DocType{DocTypeInitialForm, DocTypeDPEReport}

// Valid reports whether t is a recognized document type
func (t DocType) Valid() bool {
	return t == DocTypeInitialForm || t == DocTypeDPEReport
}

// FileMeta describes a stored file. Only the storage path is kept, never the bytes.
type FileMeta struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Path     string `json:"-"`
}

// Document is a report uploaded by a psychologist
type Document struct {
	ID         types.ID  `json:"id"`
	CaseID     types.ID  `json:"case_id"`
	DocType    DocType   `json:"doc_type"`
	UploadedBy types.ID  `json:"uploaded_by"`
	File       FileMeta  `json:"file"`
	CreatedAt  time.Time `json:"created_at"`
}

// Attachment is a file supplied by the declarant at creation
type Attachment struct {
	ID        types.ID  `json:"id"`
	CaseID    types.ID  `json:"case_id"`
	File      FileMeta  `json:"file"`
	CreatedAt time.Time `json:"created_at"`
}

// IsDocumentComplete reports whether docs hold at least one of every required type
func IsDocumentComplete(docs []Document) bool {
	return len(MissingDocTypes(docs)) == 0
}

// MissingDocTypes returns the required types absent from docs
func MissingDocTypes(docs []Document) []DocType {
	present := make(map[DocType]bool, len(docs))
	for _, d := range docs {
		present[d.DocType] = true
	}

	var missing []DocType
	for _, t := range RequiredDocTypes {
		if !present[t] {
			missing = append(missing, t)
		}
	}
	return missing
}

// Validation is a signed approval recorded once per validating role
type Validation struct {
	At            time.Time `json:"at"`
	By            types.ID  `json:"by"`
	SignaturePath string    `json:"-"`
}

// CaseEventType defines the type of case event
type CaseEventType string

const (
	CaseEventTypeCreated               CaseEventType = "case.created"
	CaseEventTypeStatusChanged         CaseEventType = "case.status_changed"
	CaseEventTypeDocumentAdded         CaseEventType = "case.document_added"
	CaseEventTypeDirectorValidated     CaseEventType = "case.director_validated"
	CaseEventTypeSafeguardingValidated CaseEventType = "case.safeguarding_validated"
)

// Event is a domain event raised by the case aggregate
type Event struct {
	ID        types.ID       `json:"id"`
	Type      CaseEventType  `json:"type"`
	CaseID    types.ID       `json:"case_id"`
	ActorID   types.ID       `json:"actor_id"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
