package stockrisk

import (
	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
)

const (
	leadTimeWeight = 2.0
	usageWeight    = 1.5
	stockWeight    = 0.5
)

// ScorePriority combines lead time, usage, criticality and on-hand stock into a single
// urgency score rounded to two decimals. The score is not clamped and may be negative.
func ScorePriority(profile domain.UsageProfile, criticality float64) float64 {
	raw := float64(profile.LeadTimeDays)*leadTimeWeight +
		profile.AvgDailyUsage*usageWeight +
		criticality -
		float64(profile.ClosingStock)*stockWeight
	return Round2(raw)
}

// ScoreGroups resolves criticality, priority score and reorder plan for every group.
// cfg is read only; callers pass a snapshot.
func ScoreGroups(groups []domain.GroupRisk, cfg domain.CriticalityConfig) []domain.ScoredGroup {
	out := make([]domain.ScoredGroup, 0, len(groups))
	for _, g := range groups {
		crit := ResolveCriticality(g.Key.Location, g.Key.Item, cfg)
		sg := domain.ScoredGroup{
			GroupRisk:     g,
			Criticality:   crit,
			PriorityScore: ScorePriority(g.Profile, crit),
		}
		if rec, ok := PlanReorder(g.Profile); ok {
			rec.Key = g.Key
			sg.Reorder = &rec
		}
		out = append(out, sg)
	}
	return out
}
