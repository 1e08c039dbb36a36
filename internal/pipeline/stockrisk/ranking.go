package stockrisk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
)

// RankTopN drops excluded groups, orders the rest by priority score (highest first,
// ties keep input order) and returns the first n with rank, explanation and action set.
// The result is never nil.
func RankTopN(scored []domain.ScoredGroup, n int, excluded domain.KeySet) []domain.RankedEntry {
	out := make([]domain.RankedEntry, 0)
	if n <= 0 || len(scored) == 0 {
		return out
	}

	candidates := make([]domain.ScoredGroup, 0, len(scored))
	for _, g := range scored {
		if excluded.Has(g.Key) {
			continue
		}
		candidates = append(candidates, g)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].PriorityScore > candidates[j].PriorityScore
	})

	if len(candidates) > n {
		candidates = candidates[:n]
	}

	for i, g := range candidates {
		entry := domain.RankedEntry{ScoredGroup: g, Rank: i + 1}
		entry.Explanation = Explain(entry)
		entry.Action = ActionSummary(entry)
		out = append(out, entry)
	}
	return out
}

// Explain renders the fixed plain-language explanation for an entry.
func Explain(e domain.RankedEntry) string {
	k := e.Key
	p := e.Profile
	where := fmt.Sprintf("%s at %s - %s", k.Item, k.Organization, k.Location)

	if !p.HasUsage() {
		return fmt.Sprintf(
			"%s has no recorded usage in the selected period. Supplier lead time is %d days and current stock of %d units is not being drawn down.",
			where, p.LeadTimeDays, p.ClosingStock,
		)
	}

	if e.Risk == domain.RiskHigh {
		return fmt.Sprintf(
			"%s is at high risk of stock-out. Average daily usage is %.1f units with a supplier lead time of %d days. Current stock will last approximately %.1f days, which is insufficient to cover the lead time period.",
			where, p.AvgDailyUsage, p.LeadTimeDays, p.DaysLeft,
		)
	}

	return fmt.Sprintf(
		"%s is not at immediate risk of stock-out. Average daily usage is %.1f units with a supplier lead time of %d days. Current stock will last approximately %.1f days, which covers the lead time period.",
		where, p.AvgDailyUsage, p.LeadTimeDays, p.DaysLeft,
	)
}

// ActionSummary is the one-line caption shown with an action panel entry.
func ActionSummary(e domain.RankedEntry) string {
	k := e.Key
	var b strings.Builder
	if e.Reorder != nil {
		fmt.Fprintf(&b, "Reorder %d units of %s at %s - %s.", e.Reorder.ReorderQty, k.Item, k.Organization, k.Location)
	} else {
		fmt.Fprintf(&b, "Review %s at %s - %s.", k.Item, k.Organization, k.Location)
	}

	if e.Rank == 1 {
		b.WriteString(" High daily usage and long supplier lead time make this the most urgent action.")
	} else {
		fmt.Fprintf(&b, " Ranked #%d with a priority score of %.2f.", e.Rank, e.PriorityScore)
	}
	return b.String()
}
