package domain

import (
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// InfiniteDaysLeft stands in for "stock lasts indefinitely" when usage is zero.
// It is a large finite number so sorting and threshold comparisons stay well defined.
const InfiniteDaysLeft = 9999.0

// ErrGroupNotFound is returned when a lookup for a single group finds no ledger rows.
var ErrGroupNotFound = errors.New("group not found")

// RiskClassification is the binary stock-out risk of a group.
type RiskClassification string

const (
	RiskHigh   RiskClassification = "HIGH"
	RiskNormal RiskClassification = "NORMAL"
)

func (r RiskClassification) String() string { return string(r) }

// UrgencyTier is the reorder-focused severity bucket.
type UrgencyTier string

const (
	UrgencyCritical UrgencyTier = "CRITICAL"
	UrgencyHigh     UrgencyTier = "HIGH"
	UrgencyMedium   UrgencyTier = "MEDIUM"
)

var urgencySeverity = map[UrgencyTier]int{
	UrgencyCritical: 0,
	UrgencyHigh:     1,
	UrgencyMedium:   2,
}

func (u UrgencyTier) String() string { return string(u) }

// Severity orders tiers from most (0) to least severe. Unknown tiers sort last.
func (u UrgencyTier) Severity() int {
	if s, ok := urgencySeverity[u]; ok {
		return s
	}
	return len(urgencySeverity)
}

// ParseUrgencyTier returns the tier for a label (case-insensitive).
func ParseUrgencyTier(label string) (UrgencyTier, bool) {
	tier := UrgencyTier(strings.ToUpper(strings.TrimSpace(label)))
	_, ok := urgencySeverity[tier]
	return tier, ok
}

// UsageProfile is derived per group from its ledger rows. Values are unrounded.
type UsageProfile struct {
	AvgDailyUsage float64 `json:"avg_daily_usage"`
	ClosingStock  int     `json:"closing_stock"`
	LeadTimeDays  int     `json:"lead_time_days"`
	DaysLeft      float64 `json:"days_left"`
	RowCount      int     `json:"row_count"`
	// LeadTimeConsistent is false when rows in the group disagree on lead time.
	LeadTimeConsistent bool `json:"lead_time_consistent"`
}

// MarshalJSON presents AvgDailyUsage and DaysLeft rounded to two decimals.
// The struct itself keeps full precision for ranking and thresholds.
func (p UsageProfile) MarshalJSON() ([]byte, error) {
	type plain UsageProfile
	out := plain(p)
	out.AvgDailyUsage = round2(p.AvgDailyUsage)
	out.DaysLeft = round2(p.DaysLeft)
	return json.Marshal(out)
}

func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// HasUsage reports whether the group consumed anything in scope.
func (p UsageProfile) HasUsage() bool {
	return p.AvgDailyUsage > 0
}

// GroupRisk is the aggregator output for one group.
type GroupRisk struct {
	Key     GroupKey           `json:"key"`
	Profile UsageProfile       `json:"profile"`
	Risk    RiskClassification `json:"risk"`
}

// ReorderRecommendation is emitted only for groups with a positive quantity.
type ReorderRecommendation struct {
	Key         GroupKey     `json:"key"`
	Profile     UsageProfile `json:"profile"`
	ReorderQty  int          `json:"reorder_qty"`
	Urgency     UrgencyTier  `json:"urgency"`
	RequiredQty float64      `json:"required_stock"`
}

// ScoredGroup combines the aggregator, scorer and planner outputs for a group.
type ScoredGroup struct {
	GroupRisk
	Criticality   float64                `json:"criticality"`
	PriorityScore float64                `json:"priority_score"`
	Reorder       *ReorderRecommendation `json:"reorder,omitempty"`
}

// RankedEntry is one row of the action panel.
type RankedEntry struct {
	ScoredGroup
	Rank        int    `json:"rank"`
	Explanation string `json:"explanation"`
	Action      string `json:"action"`
}

// UrgencySummary aggregates reorder recommendations per tier.
type UrgencySummary struct {
	Urgency       UrgencyTier `json:"urgency"`
	TotalQty      int         `json:"total_reorder_qty"`
	NumberOfItems int         `json:"number_of_items"`
}

// Overview holds the headline dashboard counts.
type Overview struct {
	TotalOrganizations int `json:"total_organizations"`
	TotalItems         int `json:"total_items"`
	TotalGroups        int `json:"total_groups"`
	HighRiskCount      int `json:"high_risk_count"`
}

// HeatmapCell is the summed latest closing stock for an (item, location) pair.
type HeatmapCell struct {
	Item              string `json:"item"`
	Location          string `json:"location"`
	TotalClosingStock int    `json:"total_closing_stock"`
}

// OrderOutlook classifies projected coverage after a hypothetical order.
type OrderOutlook string

const (
	OutlookSafe     OrderOutlook = "SAFE"
	OutlookModerate OrderOutlook = "MODERATE"
	OutlookAtRisk   OrderOutlook = "AT_RISK"
)

// OrderProjection is the result of a what-if order calculation.
type OrderProjection struct {
	Key               GroupKey     `json:"key"`
	Profile           UsageProfile `json:"profile"`
	OrderQty          int          `json:"order_qty"`
	SuggestedOrderQty int          `json:"suggested_order_qty"`
	ProjectedStock    int          `json:"projected_stock"`
	ProjectedDaysLeft float64      `json:"projected_days_left"`
	DaysGained        float64      `json:"days_gained"`
	Outlook           OrderOutlook `json:"outlook"`
	Coverage60Qty     int          `json:"coverage_60_qty"`
	Coverage90Qty     int          `json:"coverage_90_qty"`
}
