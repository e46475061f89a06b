// Package assignment picks the psychologists who take a new case.
package assignment

import (
	"context"
	"sort"

	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

// LoadSource exposes the village psychologists and their open-case loads
type LoadSource interface {
	ListPsychologists(ctx context.Context, villageID types.ID) ([]types.ID, error)
	CountOpenAssignments(ctx context.Context, psychologistIDs []types.ID) (map[types.ID]int, error)
}

// Pick is the outcome of balancing: two distinct psychologists
type Pick struct {
	Primary   types.ID
	Secondary types.ID
}

// Candidate is a psychologist with the number of open cases they hold
type Candidate struct {
	PsychologistID types.ID `json:"psychologist_id"`
	Load           int      `json:"load"`
}

// Balancer assigns the two least-loaded psychologists of a village
type Balancer struct {
	source LoadSource
}

// NewBalancer creates a balancer reading loads from source
func NewBalancer(source LoadSource) *Balancer {
	return &Balancer{source: source}
}

// Assign returns the primary and secondary psychologist for a new case in villageID.
// It reads loads through source, which the caller passes so the read joins its transaction.
func (b *Balancer) Assign(ctx context.Context, source LoadSource, villageID types.ID) (Pick, error) {
	if source == nil {
		source = b.source
	}

	ids, err := source.ListPsychologists(ctx, villageID)
	if err != nil {
		return Pick{}, errors.Wrap(err, "failed to list psychologists")
	}
	if len(ids) == 0 {
		return Pick{}, errors.Unavailable(errors.CodeNoPsychologistAvailable, "no psychologist available in this village")
	}

	loads, err := source.CountOpenAssignments(ctx, ids)
	if err != nil {
		return Pick{}, errors.Wrap(err, "failed to count open assignments")
	}

	ranked := Rank(ids, loads)
	if len(ranked) < 2 {
		return Pick{}, errors.Unavailable(errors.CodeNotEnoughPsyInVillage, "a case needs two psychologists in its village")
	}
	return Pick{Primary: ranked[0].PsychologistID, Secondary: ranked[1].PsychologistID}, nil
}

// Rank orders psychologists by ascending load. Ties keep the order of ids,
// so the result is deterministic for a given listing.
func Rank(ids []types.ID, loads map[types.ID]int) []Candidate {
	candidates := make([]Candidate, 0, len(ids))
	seen := make(map[types.ID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		candidates = append(candidates, Candidate{PsychologistID: id, Load: loads[id]})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Load < candidates[j].Load
	})
	return candidates
}
