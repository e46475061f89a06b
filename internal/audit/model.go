// Package audit keeps the append-only, hash-chained log of state-changing actions.
package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/sos-villages/signalement/internal/shared/types"
)

// Actions recorded by the case workflow and the directory
const (
	ActionCreateCase              = "CREATE_CASE"
	ActionPsyUpdateStatus         = "PSY_UPDATE_STATUS"
	ActionPsyUploadDocument       = "PSY_UPLOAD_DOCUMENT"
	ActionDirVillageValidateCase  = "DIR_VILLAGE_VALIDATE_CASE"
	ActionSauvegardeValidateCase  = "SAUVEGARDE_VALIDATE_CASE"
	ActionCreateUser              = "CREATE_USER"
	ActionCreateVillage           = "CREATE_VILLAGE"
	ActionMarkNotificationRead    = "MARK_NOTIFICATION_READ"
	ActionPendingReminderRecorded = "PENDING_REMINDER_RECORDED"
)

// Entity names used in entries
const (
	EntityCase         = "Case"
	EntityUser         = "User"
	EntityVillage      = "Village"
	EntityNotification = "Notification"
)

// Entry is an immutable audit log record. A nil ActorID means the system acted.
type Entry struct {
	ID        types.ID       `json:"id"`
	Sequence  int64          `json:"sequence"`
	Timestamp time.Time      `json:"timestamp"`
	Hash      string         `json:"hash"`
	PrevHash  string         `json:"prev_hash,omitempty"`
	ActorID   *types.ID      `json:"actor_id,omitempty"`
	ActorRole string         `json:"actor_role,omitempty"`
	Action    string         `json:"action"`
	Entity    string         `json:"entity"`
	EntityID  *types.ID      `json:"entity_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewEntry creates an unsealed entry; the store seals it against the chain head
func NewEntry(actorID *types.ID, actorRole, action, entity string, entityID *types.ID, metadata map[string]any) *Entry {
	return &Entry{
		ID:        types.NewID(),
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		ActorID:   actorID,
		ActorRole: actorRole,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Metadata:  metadata,
	}
}

// Seal links the entry to prevHash and computes its own hash
func (e *Entry) Seal(prevHash string) {
	e.PrevHash = prevHash
	e.Hash = e.calculateHash()
}

// VerifyHash verifies the entry's hash
func (e *Entry) VerifyHash() bool {
	return e.Hash == e.calculateHash()
}

// calculateHash hashes the entry's canonical JSON. Timestamps are hashed in UTC.
func (e *Entry) calculateHash() string {
	data := map[string]any{
		"id":        e.ID,
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
		"prev_hash": e.PrevHash,
		"action":    e.Action,
		"entity":    e.Entity,
	}
	if e.ActorID != nil {
		data["actor_id"] = e.ActorID
	}
	if e.ActorRole != "" {
		data["actor_role"] = e.ActorRole
	}
	if e.EntityID != nil {
		data["entity_id"] = e.EntityID
	}
	if len(e.Metadata) > 0 {
		data["metadata"] = e.Metadata
	}

	jsonData, _ := canonicalJSON(data)
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}

// VerifyResult reports the integrity of a run of entries
type VerifyResult struct {
	Valid          bool     `json:"valid"`
	EntriesChecked int      `json:"entries_checked"`
	FirstInvalid   *int64   `json:"first_invalid_sequence,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}

// VerifyChain checks hashes and links of entries ordered by sequence
func VerifyChain(entries []*Entry) *VerifyResult {
	result := &VerifyResult{Valid: true}

	prevHash := ""
	for i, e := range entries {
		result.EntriesChecked++

		if i > 0 && e.PrevHash != prevHash {
			result.fail(e.Sequence, "chain link broken at sequence %d")
		} else if !e.VerifyHash() {
			result.fail(e.Sequence, "hash mismatch at sequence %d")
		}
		prevHash = e.Hash
	}

	return result
}

func (r *VerifyResult) fail(seq int64, format string) {
	if r.FirstInvalid == nil {
		s := seq
		r.FirstInvalid = &s
	}
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, seq))
}

// ListFilter defines filters for listing audit entries
type ListFilter struct {
	ActorID  *types.ID `json:"actor_id,omitempty"`
	Action   string    `json:"action,omitempty"`
	Entity   string    `json:"entity,omitempty"`
	EntityID *types.ID `json:"entity_id,omitempty"`
	Limit    int       `json:"limit,omitempty"`
	Offset   int       `json:"offset,omitempty"`
}

// canonicalJSON produces JSON with sorted map keys so that hashes survive JSONB round trips
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	return canonicalMarshal(parsed)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(k)
			buf.Write(keyBytes)
			buf.WriteByte(':')
			valBytes, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(valBytes)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			itemBytes, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			buf.Write(itemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	default:
		return json.Marshal(val)
	}
}
