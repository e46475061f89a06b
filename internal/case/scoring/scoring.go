// Package scoring computes the 0-100 priority score of a new case.
package scoring

import (
	"time"

	"github.com/sos-villages/signalement/internal/case/domain"
)

const (
	maxScore         = 100
	maxKeywordPoints = 20
	maxAgingPoints   = 20
	agingPerHour     = 2
	attachmentBonus  = 5
	recurrenceBonus  = 10
)

// RecurrenceWindow is how far back an earlier case about the same child or abuser counts
const RecurrenceWindow = 180 * 24 * time.Hour

var urgencyPoints = map[domain.Urgency]int{
	domain.UrgencyLow:      0,
	domain.UrgencyMedium:   10,
	domain.UrgencyHigh:     20,
	domain.UrgencyCritical: 30,
}

var incidentPoints = map[domain.IncidentType]int{
	domain.IncidentSexualAbuse: 45,
	domain.IncidentViolence:    35,
	domain.IncidentNeglect:     30,
	domain.IncidentHealth:      25,
	domain.IncidentBehavior:    15,
	domain.IncidentConflict:    10,
	domain.IncidentOther:       5,
}

// Input holds everything the score depends on. At is the evaluation time;
// at creation it equals CreatedAt, so aging contributes nothing.
type Input struct {
	Urgency       domain.Urgency
	IncidentType  domain.IncidentType
	Description   string
	HasAttachment bool
	Recurrence    bool
	CreatedAt     time.Time
	At            time.Time
}

// Breakdown is the per-contribution detail of a score
type Breakdown struct {
	Urgency      int `json:"urgency"`
	IncidentType int `json:"incident_type"`
	Keywords     int `json:"keywords"`
	Attachment   int `json:"attachment"`
	Recurrence   int `json:"recurrence"`
	Aging        int `json:"aging"`
	Total        int `json:"total"`
}

// Engine scores cases against a keyword lexicon
type Engine struct {
	lexicon Lexicon
}

// NewEngine creates an engine; a nil lexicon disables keyword points
func NewEngine(lexicon Lexicon) *Engine {
	return &Engine{lexicon: lexicon}
}

// Default returns an engine using the French lexicon
func Default() *Engine {
	return NewEngine(FrenchLexicon)
}

// Score returns the clamped total
func (e *Engine) Score(in Input) int {
	return e.Breakdown(in).Total
}

// Breakdown computes every contribution and the clamped total
func (e *Engine) Breakdown(in Input) Breakdown {
	b := Breakdown{
		Urgency:      urgencyPoints[in.Urgency],
		IncidentType: incidentPoints[in.IncidentType],
		Keywords:     e.KeywordPoints(in.Description),
		Aging:        AgingPoints(in.CreatedAt, in.At),
	}
	if in.HasAttachment {
		b.Attachment = attachmentBonus
	}
	if in.Recurrence {
		b.Recurrence = recurrenceBonus
	}

	b.Total = min(maxScore, b.Urgency+b.IncidentType+b.Keywords+b.Attachment+b.Recurrence+b.Aging)
	return b
}

// KeywordPoints sums the points of every matched tier, capped at 20
func (e *Engine) KeywordPoints(description string) int {
	points := 0
	for _, tier := range e.lexicon.Matches(description) {
		points += tier.Points
	}
	return min(maxKeywordPoints, points)
}

// AgingPoints gives 2 points per full hour between createdAt and at, capped at 20
func AgingPoints(createdAt, at time.Time) int {
	if createdAt.IsZero() || at.IsZero() || !at.After(createdAt) {
		return 0
	}
	hours := int(at.Sub(createdAt) / time.Hour)
	return min(maxAgingPoints, hours*agingPerHour)
}
