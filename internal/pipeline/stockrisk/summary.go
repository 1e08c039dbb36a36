package stockrisk

import (
	"sort"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
)

// Summarize counts distinct organizations, distinct items, groups and HIGH-risk groups.
func Summarize(groups []domain.GroupRisk) domain.Overview {
	orgs := make(map[string]struct{})
	items := make(map[string]struct{})
	ov := domain.Overview{TotalGroups: len(groups)}
	for _, g := range groups {
		orgs[g.Key.Organization] = struct{}{}
		items[g.Key.Item] = struct{}{}
		if g.Risk == domain.RiskHigh {
			ov.HighRiskCount++
		}
	}
	ov.TotalOrganizations = len(orgs)
	ov.TotalItems = len(items)
	return ov
}

// Alerts returns HIGH-risk groups, highest priority score first. Ties keep input order.
func Alerts(scored []domain.ScoredGroup) []domain.ScoredGroup {
	out := make([]domain.ScoredGroup, 0)
	for _, g := range scored {
		if g.Risk == domain.RiskHigh {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PriorityScore > out[j].PriorityScore
	})
	return out
}

// Heatmap sums each group's latest closing stock per (item, location) across
// organizations. Cells are sorted by item then location.
func Heatmap(groups []domain.GroupRisk) []domain.HeatmapCell {
	type cellKey struct{ item, location string }
	totals := make(map[cellKey]int)
	for _, g := range groups {
		totals[cellKey{g.Key.Item, g.Key.Location}] += g.Profile.ClosingStock
	}

	out := make([]domain.HeatmapCell, 0, len(totals))
	for k, total := range totals {
		out = append(out, domain.HeatmapCell{Item: k.item, Location: k.location, TotalClosingStock: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Item != out[j].Item {
			return out[i].Item < out[j].Item
		}
		return out[i].Location < out[j].Location
	})
	return out
}
