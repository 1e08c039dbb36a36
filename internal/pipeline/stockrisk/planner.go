package stockrisk

import (
	"math"
	"sort"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
)

const criticalLeadFraction = 0.5

// PlanReorder sizes the order needed to cover the supplier lead time.
// ok is false when the current stock already covers it. The returned
// recommendation has no key; callers that know the group set it.
func PlanReorder(profile domain.UsageProfile) (domain.ReorderRecommendation, bool) {
	required := float64(profile.LeadTimeDays) * profile.AvgDailyUsage
	qty := math.Round(required - float64(profile.ClosingStock))
	if qty <= 0 {
		return domain.ReorderRecommendation{}, false
	}
	return domain.ReorderRecommendation{
		Profile:     profile,
		ReorderQty:  int(qty),
		Urgency:     UrgencyFor(profile.DaysLeft, profile.LeadTimeDays),
		RequiredQty: Round2(required),
	}, true
}

// UrgencyFor buckets days-left against the lead time.
func UrgencyFor(daysLeft float64, leadTimeDays int) domain.UrgencyTier {
	lead := float64(leadTimeDays)
	switch {
	case daysLeft <= 0 || daysLeft <= lead*criticalLeadFraction:
		return domain.UrgencyCritical
	case daysLeft <= lead:
		return domain.UrgencyHigh
	default:
		return domain.UrgencyMedium
	}
}

// PlanReorders returns the positive recommendations for groups, most severe tier first
// and, within a tier, the group that runs out soonest first.
func PlanReorders(groups []domain.GroupRisk) []domain.ReorderRecommendation {
	out := make([]domain.ReorderRecommendation, 0)
	for _, g := range groups {
		rec, ok := PlanReorder(g.Profile)
		if !ok {
			continue
		}
		rec.Key = g.Key
		out = append(out, rec)
	}
	SortReorders(out)
	return out
}

// SortReorders orders recommendations in place by tier severity then days left.
func SortReorders(recs []domain.ReorderRecommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		si, sj := recs[i].Urgency.Severity(), recs[j].Urgency.Severity()
		if si != sj {
			return si < sj
		}
		return recs[i].Profile.DaysLeft < recs[j].Profile.DaysLeft
	})
}

// SummarizeUrgency totals quantities and counts per tier, in severity order.
// Tiers without recommendations are omitted.
func SummarizeUrgency(recs []domain.ReorderRecommendation) []domain.UrgencySummary {
	byTier := make(map[domain.UrgencyTier]*domain.UrgencySummary)
	for _, r := range recs {
		s, ok := byTier[r.Urgency]
		if !ok {
			s = &domain.UrgencySummary{Urgency: r.Urgency}
			byTier[r.Urgency] = s
		}
		s.TotalQty += r.ReorderQty
		s.NumberOfItems++
	}

	out := make([]domain.UrgencySummary, 0, len(byTier))
	for _, s := range byTier {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Urgency.Severity() < out[j].Urgency.Severity()
	})
	return out
}
