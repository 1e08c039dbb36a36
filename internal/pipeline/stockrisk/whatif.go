package stockrisk

import (
	"math"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
)

const (
	suggestedCoverageDays = 30
	minSuggestedOrder     = 10
)

// SuggestedOrderQty is the default what-if order: roughly 30 days of usage minus what is
// on hand, never less than minSuggestedOrder.
func SuggestedOrderQty(p domain.UsageProfile) int {
	qty := int(p.AvgDailyUsage*suggestedCoverageDays) - p.ClosingStock
	if qty < minSuggestedOrder {
		return minSuggestedOrder
	}
	return qty
}

// CoverageQty is the order needed for stock to last the given number of days.
func CoverageQty(p domain.UsageProfile, days int) int {
	qty := math.Round(float64(days)*p.AvgDailyUsage - float64(p.ClosingStock))
	if qty <= 0 {
		return 0
	}
	return int(qty)
}

// OutlookFor classifies projected days-left against the lead time.
func OutlookFor(daysLeft float64, leadTimeDays int) domain.OrderOutlook {
	lead := float64(leadTimeDays)
	switch {
	case daysLeft > lead*2:
		return domain.OutlookSafe
	case daysLeft > lead:
		return domain.OutlookModerate
	default:
		return domain.OutlookAtRisk
	}
}

// ProjectOrder computes the effect of ordering orderQty units for a group.
// A negative orderQty is treated as zero; pass SuggestedOrderQty for the default.
func ProjectOrder(key domain.GroupKey, p domain.UsageProfile, orderQty int) domain.OrderProjection {
	if orderQty < 0 {
		orderQty = 0
	}
	stock := p.ClosingStock + orderQty
	days := DaysLeft(stock, p.AvgDailyUsage)

	var gained float64
	if p.HasUsage() {
		gained = Round2(days - p.DaysLeft)
	}

	return domain.OrderProjection{
		Key:               key,
		Profile:           p,
		OrderQty:          orderQty,
		SuggestedOrderQty: SuggestedOrderQty(p),
		ProjectedStock:    stock,
		ProjectedDaysLeft: Round2(days),
		DaysGained:        gained,
		Outlook:           OutlookFor(days, p.LeadTimeDays),
		Coverage60Qty:     CoverageQty(p, 60),
		Coverage90Qty:     CoverageQty(p, 90),
	}
}
