// Package analytics computes the anonymous national statistics shown to the
// national director. No case content or identity leaves this package.
package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/case/domain"
	"github.com/sos-villages/signalement/internal/directory"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

// CaseSource provides grouped case counts
type CaseSource interface {
	AggregateCases(ctx context.Context) ([]domain.CaseAggregate, error)
}

// VillageSource resolves village names
type VillageSource interface {
	ListVillages(ctx context.Context) ([]directory.Village, error)
}

// Summary is the national dashboard
type Summary struct {
	GeneratedAt    time.Time      `json:"generated_at"`
	TotalCases     int            `json:"total_cases"`
	AverageScore   float64        `json:"average_score"`
	ByStatus       map[string]int `json:"by_status"`
	ByIncidentType map[string]int `json:"by_incident_type"`
	ByUrgency      map[string]int `json:"by_urgency"`
	Villages       []VillageStats `json:"villages"`
}

// VillageStats is one village's line of the dashboard
type VillageStats struct {
	VillageID    types.ID       `json:"village_id"`
	VillageName  string         `json:"village_name"`
	TotalCases   int            `json:"total_cases"`
	AverageScore float64        `json:"average_score"`
	ByStatus     map[string]int `json:"by_status"`
}

// Service builds summaries for callers allowed to see national analytics
type Service struct {
	cases    CaseSource
	villages VillageSource
	now      func() time.Time
}

// NewService creates an analytics service
func NewService(cases CaseSource, villages VillageSource) *Service {
	return &Service{
		cases:    cases,
		villages: villages,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Summary aggregates every case in the store
func (s *Service) Summary(ctx context.Context, actor auth.Identity) (*Summary, error) {
	if actor.IsZero() {
		return nil, errors.Unauthenticated("authentication required")
	}
	if !actor.Can().CanViewNationalAnalytics {
		return nil, errors.Forbidden("national analytics are restricted to the national director")
	}

	rows, err := s.cases.AggregateCases(ctx)
	if err != nil {
		return nil, err
	}
	villages, err := s.villages.ListVillages(ctx)
	if err != nil {
		return nil, err
	}
	return summarize(rows, villages, s.now()), nil
}

func summarize(rows []domain.CaseAggregate, villages []directory.Village, now time.Time) *Summary {
	sum := &Summary{
		GeneratedAt:    now,
		ByStatus:       zeroCounts(domain.Statuses()),
		ByIncidentType: zeroCounts(domain.IncidentTypes()),
		ByUrgency:      zeroCounts(domain.Urgencies()),
	}

	type villageTotals struct {
		stats    *VillageStats
		scoreSum int
	}
	byVillage := make(map[types.ID]*villageTotals, len(villages))
	for _, v := range villages {
		byVillage[v.ID] = &villageTotals{stats: &VillageStats{
			VillageID:   v.ID,
			VillageName: v.Name,
			ByStatus:    zeroCounts(domain.Statuses()),
		}}
	}

	scoreSum := 0
	for _, row := range rows {
		sum.TotalCases += row.Count
		scoreSum += row.ScoreSum
		sum.ByStatus[string(row.Status)] += row.Count
		sum.ByIncidentType[string(row.IncidentType)] += row.Count
		sum.ByUrgency[string(row.Urgency)] += row.Count

		vt, ok := byVillage[row.VillageID]
		if !ok {
			vt = &villageTotals{stats: &VillageStats{
				VillageID: row.VillageID,
				ByStatus:  zeroCounts(domain.Statuses()),
			}}
			byVillage[row.VillageID] = vt
		}
		vt.stats.TotalCases += row.Count
		vt.stats.ByStatus[string(row.Status)] += row.Count
		vt.scoreSum += row.ScoreSum
	}
	sum.AverageScore = average(scoreSum, sum.TotalCases)

	sum.Villages = make([]VillageStats, 0, len(byVillage))
	for _, vt := range byVillage {
		vt.stats.AverageScore = average(vt.scoreSum, vt.stats.TotalCases)
		sum.Villages = append(sum.Villages, *vt.stats)
	}
	sort.Slice(sum.Villages, func(i, j int) bool {
		a, b := sum.Villages[i], sum.Villages[j]
		if a.VillageName != b.VillageName {
			return a.VillageName < b.VillageName
		}
		return a.VillageID < b.VillageID
	})
	return sum
}

func zeroCounts[T ~string](values []T) map[string]int {
	out := make(map[string]int, len(values))
	for _, v := range values {
		out[string(v)] = 0
	}
	return out
}

// average rounds to one decimal
func average(total, count int) float64 {
	if count == 0 {
		return 0
	}
	return math.Round(float64(total)/float64(count)*10) / 10
}
