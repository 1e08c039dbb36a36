package stockrisk

import (
	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
)

// groupAccumulator collects the running figures for one group while rows stream in.
type groupAccumulator struct {
	key        domain.GroupKey
	issuedSum  int64
	rows       int
	latest     domain.LedgerRow
	firstLead  int
	consistent bool
}

func (a *groupAccumulator) add(r domain.LedgerRow) {
	if a.rows == 0 {
		a.latest = r
		a.firstLead = r.LeadTimeDays
		a.consistent = true
	} else {
		if r.LeadTimeDays != a.firstLead {
			a.consistent = false
		}
		// Later input wins a tie on date.
		if !r.Date.Before(a.latest.Date) {
			a.latest = r
		}
	}
	a.issuedSum += int64(r.Issued)
	a.rows++
}

func (a *groupAccumulator) profile() domain.UsageProfile {
	var avg float64
	if a.rows > 0 {
		avg = float64(a.issuedSum) / float64(a.rows)
	}
	p := NewProfile(avg, a.latest.ClosingStock, a.latest.LeadTimeDays)
	p.RowCount = a.rows
	p.LeadTimeConsistent = a.consistent
	return p
}

// Aggregate partitions rows by (organization, location, item) and derives each group's
// usage profile and risk classification. Groups are returned in first-appearance order.
// A nil filter keeps every row.
func Aggregate(rows []domain.LedgerRow, filter domain.RowPredicate) []domain.GroupRisk {
	index := make(map[domain.GroupKey]int)
	accs := make([]*groupAccumulator, 0)

	for _, r := range rows {
		if filter != nil && !filter(r) {
			continue
		}
		key := r.Key()
		i, ok := index[key]
		if !ok {
			i = len(accs)
			index[key] = i
			accs = append(accs, &groupAccumulator{key: key})
		}
		accs[i].add(r)
	}

	out := make([]domain.GroupRisk, 0, len(accs))
	for _, a := range accs {
		p := a.profile()
		out = append(out, domain.GroupRisk{
			Key:     a.key,
			Profile: p,
			Risk:    Classify(p),
		})
	}
	return out
}

// NewProfile builds a usage profile from its inputs and fills in DaysLeft.
func NewProfile(avgDailyUsage float64, closingStock, leadTimeDays int) domain.UsageProfile {
	return domain.UsageProfile{
		AvgDailyUsage:      avgDailyUsage,
		ClosingStock:       closingStock,
		LeadTimeDays:       leadTimeDays,
		DaysLeft:           DaysLeft(closingStock, avgDailyUsage),
		LeadTimeConsistent: true,
	}
}

// DaysLeft is closing / avg, or domain.InfiniteDaysLeft when nothing is being used.
func DaysLeft(closingStock int, avgDailyUsage float64) float64 {
	if avgDailyUsage <= 0 {
		return domain.InfiniteDaysLeft
	}
	return float64(closingStock) / avgDailyUsage
}

// Classify flags a group HIGH when its stock will not outlast the supplier lead time.
func Classify(p domain.UsageProfile) domain.RiskClassification {
	if p.DaysLeft <= float64(p.LeadTimeDays) {
		return domain.RiskHigh
	}
	return domain.RiskNormal
}
