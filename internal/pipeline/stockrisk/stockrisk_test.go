package stockrisk

import (
	"math"
	"testing"
	"time"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
)

func day(n int) time.Time {
	return time.Date(2024, time.January, n, 0, 0, 0, 0, time.UTC)
}

func paracetamolRows() []domain.LedgerRow {
	issued := []int{10, 15, 12, 8, 20}
	rows := make([]domain.LedgerRow, 0, len(issued))
	for i, n := range issued {
		rows = append(rows, domain.LedgerRow{
			Date:         day(i + 1),
			Organization: "OrgA",
			Location:     "Emergency Unit",
			Item:         "Paracetamol",
			Issued:       n,
			ClosingStock: 50,
			LeadTimeDays: 7,
		})
	}
	return rows
}

func TestParacetamolScenario(t *testing.T) {
	groups := Aggregate(paracetamolRows(), nil)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]

	if g.Profile.AvgDailyUsage != 13.0 {
		t.Errorf("avg daily usage = %v, want 13", g.Profile.AvgDailyUsage)
	}
	if got := Round2(g.Profile.DaysLeft); got != 3.85 {
		t.Errorf("days left = %v, want 3.85", got)
	}
	if g.Risk != domain.RiskHigh {
		t.Errorf("risk = %s, want HIGH", g.Risk)
	}

	cfg := domain.DefaultCriticalityConfig()
	crit := ResolveCriticality(g.Key.Location, g.Key.Item, cfg)
	if crit != 10 {
		t.Errorf("criticality = %v, want 10", crit)
	}
	if score := ScorePriority(g.Profile, crit); score != 18.5 {
		t.Errorf("priority score = %v, want 18.5", score)
	}

	rec, ok := PlanReorder(g.Profile)
	if !ok {
		t.Fatal("expected a reorder recommendation")
	}
	if rec.ReorderQty != 41 {
		t.Errorf("reorder qty = %d, want 41", rec.ReorderQty)
	}
	if rec.Urgency != domain.UrgencyHigh {
		t.Errorf("urgency = %s, want HIGH", rec.Urgency)
	}
}

func TestResolveCriticality(t *testing.T) {
	cfg := domain.CriticalityConfig{
		LocationRules: []domain.LocationRule{{Pattern: "Emergency Unit", Score: 10}},
		ItemRules:     []domain.ItemRule{{Items: []string{"Rice"}, Score: 5}},
		DefaultScore:  3,
	}

	tests := []struct {
		name     string
		location string
		item     string
		cfg      domain.CriticalityConfig
		want     float64
	}{
		{name: "location and item match takes max", location: "Central Emergency Unit", item: "Rice", cfg: cfg, want: 10},
		{name: "item only", location: "Ward B", item: "Rice", cfg: cfg, want: 5},
		{name: "no match falls back to default", location: "Ward B", item: "Soap", cfg: cfg, want: 3},
		{name: "location match is case sensitive", location: "central emergency unit", item: "Soap", cfg: cfg, want: 3},
		{name: "item match is exact", location: "Ward B", item: "Rice Flour", cfg: cfg, want: 3},
		{
			name:     "empty pattern never matches",
			location: "Ward B",
			item:     "Soap",
			cfg: domain.CriticalityConfig{
				LocationRules: []domain.LocationRule{{Pattern: "", Score: 99}},
				DefaultScore:  3,
			},
			want: 3,
		},
		{
			name:     "lower rule does not reduce default",
			location: "Clinic",
			item:     "Soap",
			cfg: domain.CriticalityConfig{
				LocationRules: []domain.LocationRule{{Pattern: "Clinic", Score: 1}},
				DefaultScore:  3,
			},
			want: 3,
		},
		{
			name:     "all matching location rules considered",
			location: "North Clinic",
			item:     "Soap",
			cfg: domain.CriticalityConfig{
				LocationRules: []domain.LocationRule{
					{Pattern: "North", Score: 4},
					{Pattern: "Clinic", Score: 8},
				},
				DefaultScore: 3,
			},
			want: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveCriticality(tt.location, tt.item, tt.cfg); got != tt.want {
				t.Errorf("ResolveCriticality(%q, %q) = %v, want %v", tt.location, tt.item, got, tt.want)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		got := Aggregate(nil, nil)
		if got == nil || len(got) != 0 {
			t.Fatalf("expected empty non-nil slice, got %#v", got)
		}
	})

	t.Run("zero usage uses sentinel and is never high risk", func(t *testing.T) {
		rows := []domain.LedgerRow{
			{Date: day(1), Organization: "O", Location: "L", Item: "I", ClosingStock: 0, LeadTimeDays: 30},
			{Date: day(2), Organization: "O", Location: "L", Item: "I", ClosingStock: 0, LeadTimeDays: 30},
		}
		g := Aggregate(rows, nil)[0]
		if g.Profile.DaysLeft != domain.InfiniteDaysLeft {
			t.Errorf("days left = %v, want sentinel", g.Profile.DaysLeft)
		}
		if g.Risk != domain.RiskNormal {
			t.Errorf("risk = %s, want NORMAL", g.Risk)
		}
	})

	t.Run("boundary is inclusive", func(t *testing.T) {
		rows := []domain.LedgerRow{
			{Date: day(1), Organization: "O", Location: "L", Item: "I", Issued: 10, ClosingStock: 70, LeadTimeDays: 7},
		}
		g := Aggregate(rows, nil)[0]
		if g.Profile.DaysLeft != 7 || g.Risk != domain.RiskHigh {
			t.Errorf("days left %v risk %s, want 7 HIGH", g.Profile.DaysLeft, g.Risk)
		}
	})

	t.Run("latest row supplies closing stock and lead time", func(t *testing.T) {
		rows := []domain.LedgerRow{
			{Date: day(3), Organization: "O", Location: "L", Item: "I", Issued: 2, ClosingStock: 30, LeadTimeDays: 5},
			{Date: day(1), Organization: "O", Location: "L", Item: "I", Issued: 4, ClosingStock: 90, LeadTimeDays: 9},
			{Date: day(3), Organization: "O", Location: "L", Item: "I", Issued: 6, ClosingStock: 20, LeadTimeDays: 6},
		}
		p := Aggregate(rows, nil)[0].Profile
		if p.ClosingStock != 20 || p.LeadTimeDays != 6 {
			t.Errorf("closing %d lead %d, want 20 and 6", p.ClosingStock, p.LeadTimeDays)
		}
		if p.LeadTimeConsistent {
			t.Error("expected inconsistent lead time to be flagged")
		}
		if p.AvgDailyUsage != 4 || p.RowCount != 3 {
			t.Errorf("avg %v rows %d, want 4 and 3", p.AvgDailyUsage, p.RowCount)
		}
	})

	t.Run("groups keep first appearance order", func(t *testing.T) {
		rows := []domain.LedgerRow{
			{Date: day(1), Organization: "O", Location: "L", Item: "B", Issued: 1},
			{Date: day(1), Organization: "O", Location: "L", Item: "A", Issued: 1},
			{Date: day(2), Organization: "O", Location: "L", Item: "B", Issued: 1},
		}
		groups := Aggregate(rows, nil)
		if len(groups) != 2 || groups[0].Key.Item != "B" || groups[1].Key.Item != "A" {
			t.Fatalf("unexpected groups %#v", groups)
		}
	})

	t.Run("filter applies before grouping", func(t *testing.T) {
		from := day(3)
		rows := paracetamolRows()
		f := domain.LedgerFilter{Item: "Paracetamol", From: &from}
		groups := Aggregate(rows, f.Predicate())
		if len(groups) != 1 {
			t.Fatalf("expected 1 group, got %d", len(groups))
		}
		// issued on days 3..5 is 12, 8, 20
		if groups[0].Profile.RowCount != 3 || groups[0].Profile.AvgDailyUsage != 40.0/3.0 {
			t.Errorf("unexpected profile %#v", groups[0].Profile)
		}
	})

	t.Run("negative stock is accepted", func(t *testing.T) {
		rows := []domain.LedgerRow{
			{Date: day(1), Organization: "O", Location: "L", Item: "I", Issued: 5, ClosingStock: -10, LeadTimeDays: 2},
		}
		g := Aggregate(rows, nil)[0]
		if g.Profile.DaysLeft != -2 || g.Risk != domain.RiskHigh {
			t.Errorf("days left %v risk %s", g.Profile.DaysLeft, g.Risk)
		}
	})
}

func TestRiskMatchesThreshold(t *testing.T) {
	for closing := -5; closing <= 60; closing += 5 {
		for lead := 0; lead <= 10; lead++ {
			p := NewProfile(7, closing, lead)
			want := p.DaysLeft <= float64(lead)
			if got := Classify(p) == domain.RiskHigh; got != want {
				t.Fatalf("closing %d lead %d: high=%v want %v", closing, lead, got, want)
			}
		}
	}
}

func TestScorePriorityMonotonic(t *testing.T) {
	base := NewProfile(10, 40, 5)
	baseScore := ScorePriority(base, 3)

	tests := []struct {
		name    string
		profile domain.UsageProfile
		higher  bool
	}{
		{name: "longer lead time", profile: NewProfile(10, 40, 6), higher: true},
		{name: "higher usage", profile: NewProfile(11, 40, 5), higher: true},
		{name: "more stock", profile: NewProfile(10, 41, 5), higher: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScorePriority(tt.profile, 3)
			if tt.higher && got <= baseScore {
				t.Errorf("score %v should exceed %v", got, baseScore)
			}
			if !tt.higher && got >= baseScore {
				t.Errorf("score %v should be below %v", got, baseScore)
			}
		})
	}
}

func TestScorePriorityRoundsHalfAwayFromZero(t *testing.T) {
	tests := []struct {
		crit float64
		want float64
	}{
		{crit: 0.005, want: 0.01},
		{crit: -0.005, want: -0.01},
		{crit: 1.234, want: 1.23},
		{crit: 2.675, want: 2.68},
	}
	for _, tt := range tests {
		if got := ScorePriority(domain.UsageProfile{}, tt.crit); got != tt.want {
			t.Errorf("ScorePriority(crit=%v) = %v, want %v", tt.crit, got, tt.want)
		}
	}
}

func TestScoreIsIdempotent(t *testing.T) {
	rows := paracetamolRows()
	cfg := domain.DefaultCriticalityConfig()
	first := ScoreGroups(Aggregate(rows, nil), cfg)
	second := ScoreGroups(Aggregate(rows, nil), cfg)
	for i := range first {
		if math.Float64bits(first[i].PriorityScore) != math.Float64bits(second[i].PriorityScore) {
			t.Fatalf("score changed between runs: %v vs %v", first[i].PriorityScore, second[i].PriorityScore)
		}
	}
}

func TestPlanReorder(t *testing.T) {
	tests := []struct {
		name    string
		profile domain.UsageProfile
		wantOK  bool
		wantQty int
		tier    domain.UrgencyTier
	}{
		{name: "covered stock", profile: NewProfile(2, 100, 7), wantOK: false},
		{name: "exact cover", profile: NewProfile(10, 70, 7), wantOK: false},
		{name: "rounds small shortfall to zero", profile: NewProfile(10.04, 70, 7), wantOK: false},
		{name: "critical under half lead", profile: NewProfile(10, 30, 7), wantOK: true, wantQty: 40, tier: domain.UrgencyCritical},
		{name: "critical when out of stock", profile: NewProfile(4, 0, 3), wantOK: true, wantQty: 12, tier: domain.UrgencyCritical},
		{name: "zero usage never reorders", profile: NewProfile(0, 0, 30), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := PlanReorder(tt.profile)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if rec.ReorderQty <= 0 || rec.ReorderQty != tt.wantQty {
				t.Errorf("qty = %d, want %d", rec.ReorderQty, tt.wantQty)
			}
			if rec.Urgency != tt.tier {
				t.Errorf("tier = %s, want %s", rec.Urgency, tt.tier)
			}
		})
	}
}

func TestUrgencyFor(t *testing.T) {
	tests := []struct {
		days float64
		lead int
		want domain.UrgencyTier
	}{
		{days: -1, lead: 5, want: domain.UrgencyCritical},
		{days: 0, lead: 0, want: domain.UrgencyCritical},
		{days: 3.5, lead: 7, want: domain.UrgencyCritical},
		{days: 3.51, lead: 7, want: domain.UrgencyHigh},
		{days: 7, lead: 7, want: domain.UrgencyHigh},
		{days: 7.01, lead: 7, want: domain.UrgencyMedium},
	}
	for _, tt := range tests {
		if got := UrgencyFor(tt.days, tt.lead); got != tt.want {
			t.Errorf("UrgencyFor(%v, %d) = %s, want %s", tt.days, tt.lead, got, tt.want)
		}
	}
}

func TestPlanReordersOrdering(t *testing.T) {
	groups := []domain.GroupRisk{
		{Key: domain.GroupKey{Item: "high-mid"}, Profile: NewProfile(1, 8, 10)},
		{Key: domain.GroupKey{Item: "high-later"}, Profile: NewProfile(1, 9, 10)},
		{Key: domain.GroupKey{Item: "covered"}, Profile: NewProfile(1, 50, 10)},
		{Key: domain.GroupKey{Item: "critical"}, Profile: NewProfile(1, 2, 10)},
		{Key: domain.GroupKey{Item: "high-sooner"}, Profile: NewProfile(1, 6, 10)},
	}
	recs := PlanReorders(groups)

	want := []string{"critical", "high-sooner", "high-mid", "high-later"}
	if len(recs) != len(want) {
		t.Fatalf("got %d recs, want %d", len(recs), len(want))
	}
	for i, item := range want {
		if recs[i].Key.Item != item {
			t.Errorf("position %d = %s, want %s", i, recs[i].Key.Item, item)
		}
	}

	summary := SummarizeUrgency(recs)
	if len(summary) != 2 || summary[0].Urgency != domain.UrgencyCritical || summary[1].Urgency != domain.UrgencyHigh {
		t.Fatalf("unexpected summary %#v", summary)
	}
	if summary[1].NumberOfItems != 3 || summary[1].TotalQty != 4+2+1 {
		t.Errorf("unexpected HIGH totals %#v", summary[1])
	}
}

func TestRankTopN(t *testing.T) {
	top := domain.GroupKey{Organization: "O", Location: "L", Item: "top"}
	scored := []domain.ScoredGroup{
		{GroupRisk: domain.GroupRisk{Key: domain.GroupKey{Item: "a"}}, PriorityScore: 5},
		{GroupRisk: domain.GroupRisk{Key: top}, PriorityScore: 50},
		{GroupRisk: domain.GroupRisk{Key: domain.GroupKey{Item: "b"}}, PriorityScore: 5},
		{GroupRisk: domain.GroupRisk{Key: domain.GroupKey{Item: "c"}}, PriorityScore: 9},
	}

	t.Run("excluded top entry is dropped", func(t *testing.T) {
		got := RankTopN(scored, 3, domain.NewKeySet(top))
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		for _, e := range got {
			if e.Key == top {
				t.Fatal("excluded key returned")
			}
		}
		items := []string{got[0].Key.Item, got[1].Key.Item, got[2].Key.Item}
		if items[0] != "c" || items[1] != "a" || items[2] != "b" {
			t.Errorf("order = %v, want [c a b]", items)
		}
		for i, e := range got {
			if e.Rank != i+1 || e.Explanation == "" || e.Action == "" {
				t.Errorf("entry %d incomplete: %#v", i, e)
			}
		}
	})

	t.Run("length never exceeds n", func(t *testing.T) {
		for n := 0; n <= 6; n++ {
			got := RankTopN(scored, n, nil)
			if len(got) > n {
				t.Fatalf("n=%d returned %d entries", n, len(got))
			}
		}
	})

	t.Run("non-positive n and empty input return empty", func(t *testing.T) {
		if got := RankTopN(scored, 0, nil); got == nil || len(got) != 0 {
			t.Errorf("n=0 returned %#v", got)
		}
		if got := RankTopN(scored, -1, nil); got == nil || len(got) != 0 {
			t.Errorf("n=-1 returned %#v", got)
		}
		if got := RankTopN(nil, 3, nil); got == nil || len(got) != 0 {
			t.Errorf("empty input returned %#v", got)
		}
	})
}

func TestExplain(t *testing.T) {
	cfg := domain.DefaultCriticalityConfig()
	scored := ScoreGroups(Aggregate(paracetamolRows(), nil), cfg)
	entries := RankTopN(scored, 1, nil)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	want := "Paracetamol at OrgA - Emergency Unit is at high risk of stock-out. Average daily usage is 13.0 units with a supplier lead time of 7 days. Current stock will last approximately 3.8 days, which is insufficient to cover the lead time period."
	if entries[0].Explanation != want {
		t.Errorf("explanation = %q\nwant %q", entries[0].Explanation, want)
	}

	wantAction := "Reorder 41 units of Paracetamol at OrgA - Emergency Unit. High daily usage and long supplier lead time make this the most urgent action."
	if entries[0].Action != wantAction {
		t.Errorf("action = %q\nwant %q", entries[0].Action, wantAction)
	}

	normal := domain.RankedEntry{ScoredGroup: domain.ScoredGroup{GroupRisk: domain.GroupRisk{
		Key:     domain.GroupKey{Organization: "OrgA", Location: "Ward", Item: "Rice"},
		Profile: NewProfile(2, 100, 5),
		Risk:    domain.RiskNormal,
	}}}
	if Explain(normal) == Explain(domain.RankedEntry{ScoredGroup: domain.ScoredGroup{GroupRisk: domain.GroupRisk{
		Key: normal.Key, Profile: normal.Profile, Risk: domain.RiskHigh,
	}}}) {
		t.Error("HIGH and NORMAL explanations should differ")
	}
}

func TestProjectOrder(t *testing.T) {
	key := domain.GroupKey{Organization: "OrgA", Location: "Emergency Unit", Item: "Paracetamol"}
	p := NewProfile(13, 50, 7)

	tests := []struct {
		name    string
		qty     int
		stock   int
		outlook domain.OrderOutlook
	}{
		{name: "no order stays at risk", qty: 0, stock: 50, outlook: domain.OutlookAtRisk},
		{name: "negative treated as zero", qty: -20, stock: 50, outlook: domain.OutlookAtRisk},
		{name: "moderate cover", qty: 50, stock: 100, outlook: domain.OutlookModerate},
		{name: "safe cover", qty: 200, stock: 250, outlook: domain.OutlookSafe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProjectOrder(key, p, tt.qty)
			if got.ProjectedStock != tt.stock {
				t.Errorf("stock = %d, want %d", got.ProjectedStock, tt.stock)
			}
			if got.Outlook != tt.outlook {
				t.Errorf("outlook = %s, want %s", got.Outlook, tt.outlook)
			}
		})
	}

	got := ProjectOrder(key, p, 0)
	if got.SuggestedOrderQty != 13*30-50 {
		t.Errorf("suggested = %d, want %d", got.SuggestedOrderQty, 13*30-50)
	}
	if got.Coverage60Qty != 730 || got.Coverage90Qty != 1120 {
		t.Errorf("coverage 60/90 = %d/%d", got.Coverage60Qty, got.Coverage90Qty)
	}
	if SuggestedOrderQty(NewProfile(0, 100, 7)) != minSuggestedOrder {
		t.Error("suggested order should not drop below the minimum")
	}
	if z := ProjectOrder(key, NewProfile(0, 10, 7), 5); z.DaysGained != 0 || z.ProjectedDaysLeft != domain.InfiniteDaysLeft {
		t.Errorf("zero usage projection %#v", z)
	}
}

func TestSummarizeAndHeatmap(t *testing.T) {
	groups := []domain.GroupRisk{
		{Key: domain.GroupKey{Organization: "A", Location: "L1", Item: "X"}, Profile: NewProfile(1, 10, 1), Risk: domain.RiskHigh},
		{Key: domain.GroupKey{Organization: "B", Location: "L1", Item: "X"}, Profile: NewProfile(1, 5, 1), Risk: domain.RiskNormal},
		{Key: domain.GroupKey{Organization: "B", Location: "L2", Item: "Y"}, Profile: NewProfile(1, 7, 1), Risk: domain.RiskHigh},
	}

	ov := Summarize(groups)
	if ov.TotalOrganizations != 2 || ov.TotalItems != 2 || ov.TotalGroups != 3 || ov.HighRiskCount != 2 {
		t.Errorf("unexpected overview %#v", ov)
	}

	cells := Heatmap(groups)
	if len(cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(cells))
	}
	if cells[0].Item != "X" || cells[0].TotalClosingStock != 15 {
		t.Errorf("unexpected first cell %#v", cells[0])
	}
	if cells[1].Item != "Y" || cells[1].TotalClosingStock != 7 {
		t.Errorf("unexpected second cell %#v", cells[1])
	}
}

func TestAlertsOrderedByPriorityScore(t *testing.T) {
	cfg := domain.DefaultCriticalityConfig()
	groups := []domain.GroupRisk{
		{Key: domain.GroupKey{Organization: "A", Location: "Store", Item: "Pens"}, Profile: NewProfile(2, 1, 10)},
		{Key: domain.GroupKey{Organization: "A", Location: "Ward", Item: "Gauze"}, Profile: NewProfile(1, 50, 10)},
		{Key: domain.GroupKey{Organization: "A", Location: "Emergency Unit", Item: "Insulin"}, Profile: NewProfile(4, 12, 14)},
	}
	for i := range groups {
		groups[i].Risk = Classify(groups[i].Profile)
	}
	scored := ScoreGroups(groups, cfg)

	got := Alerts(scored)
	if len(got) != 2 {
		t.Fatalf("expected 2 alerts, got %#v", got)
	}
	// Pens runs out sooner but Insulin carries the higher score.
	if got[0].Key.Item != "Insulin" || got[1].Key.Item != "Pens" {
		t.Fatalf("unexpected order %s, %s", got[0].Key.Item, got[1].Key.Item)
	}
	if got[0].Profile.DaysLeft <= got[1].Profile.DaysLeft {
		t.Fatalf("expected the sooner stock-out to rank second, days left %v and %v",
			got[0].Profile.DaysLeft, got[1].Profile.DaysLeft)
	}

	tied := []domain.ScoredGroup{
		{GroupRisk: domain.GroupRisk{Key: domain.GroupKey{Item: "first"}, Risk: domain.RiskHigh}, PriorityScore: 10},
		{GroupRisk: domain.GroupRisk{Key: domain.GroupKey{Item: "second"}, Risk: domain.RiskHigh}, PriorityScore: 10},
	}
	if got := Alerts(tied); got[0].Key.Item != "first" || got[1].Key.Item != "second" {
		t.Errorf("ties must keep input order, got %s, %s", got[0].Key.Item, got[1].Key.Item)
	}
}
