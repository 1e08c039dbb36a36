package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/stockrisk/backend-go/internal/cache"
	"github.com/andresuchdata/stockrisk/backend-go/internal/config"
	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
	"github.com/andresuchdata/stockrisk/backend-go/internal/metrics"
	"github.com/andresuchdata/stockrisk/backend-go/internal/pipeline/stockrisk"
	"github.com/andresuchdata/stockrisk/backend-go/internal/repository"
)

const defaultHistoryPoints = 7

// ReorderReport is the reorder list together with its per-tier summary.
type ReorderReport struct {
	Recommendations []domain.ReorderRecommendation `json:"recommendations"`
	Summary         []domain.UrgencySummary        `json:"summary"`
}

// RiskService evaluates the ledger on demand. Nothing derived is stored: each call
// loads rows, aggregates, and scores against the current criticality snapshot.
type RiskService struct {
	ledger      repository.LedgerRepository
	criticality *config.CriticalityStore
	sessions    cache.SessionStore
	cache       cache.QueryCache
	ranking     config.RankingConfig
}

func NewRiskService(
	ledger repository.LedgerRepository,
	criticality *config.CriticalityStore,
	sessions cache.SessionStore,
	queryCache cache.QueryCache,
	ranking config.RankingConfig,
) *RiskService {
	if queryCache == nil {
		queryCache = cache.NewNoopQueryCache()
	}
	if ranking.DefaultLimit <= 0 {
		ranking.DefaultLimit = 5
	}
	if ranking.MaxLimit < ranking.DefaultLimit {
		ranking.MaxLimit = ranking.DefaultLimit
	}
	return &RiskService{
		ledger:      ledger,
		criticality: criticality,
		sessions:    sessions,
		cache:       queryCache,
		ranking:     ranking,
	}
}

type evaluation struct {
	groups   []domain.GroupRisk
	scored   []domain.ScoredGroup
	excluded domain.KeySet
}

// evaluate loads the filtered ledger and the session's ordered set concurrently, then
// runs aggregation and scoring.
func (s *RiskService) evaluate(ctx context.Context, filter domain.LedgerFilter, sessionID string) (*evaluation, error) {
	timer := prometheus.NewTimer(metrics.Evaluations)
	defer timer.ObserveDuration()

	var (
		rows     []domain.LedgerRow
		excluded domain.KeySet
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.ledger.ListRows(gctx, filter)
		if err != nil {
			return fmt.Errorf("list ledger rows: %w", err)
		}
		return nil
	})
	if sessionID != "" && s.sessions != nil {
		g.Go(func() error {
			var err error
			excluded, err = s.sessions.Ordered(gctx, sessionID)
			if err != nil {
				return fmt.Errorf("load ordered items: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	groups := stockrisk.Aggregate(rows, filter.Predicate())
	scored := stockrisk.ScoreGroups(groups, s.criticality.Config())

	high := 0
	for _, gr := range groups {
		if gr.Risk == domain.RiskHigh {
			high++
		}
	}
	metrics.EvaluatedGroups.Set(float64(len(groups)))
	metrics.HighRiskGroups.Set(float64(high))

	return &evaluation{groups: groups, scored: scored, excluded: excluded}, nil
}

// Overview returns headline counts, cached per filter until the next ingest.
func (s *RiskService) Overview(ctx context.Context, filter domain.LedgerFilter) (domain.Overview, error) {
	var cached domain.Overview
	if ok, err := s.cache.Get(ctx, cache.KindOverview, filter, &cached); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("risk: cache get overview failed")
	}

	ev, err := s.evaluate(ctx, filter, "")
	if err != nil {
		return domain.Overview{}, err
	}
	overview := stockrisk.Summarize(ev.groups)

	if err := s.cache.Set(ctx, cache.KindOverview, filter, overview); err != nil {
		log.Warn().Err(err).Msg("risk: cache set overview failed")
	}
	return overview, nil
}

// Alerts lists HIGH-risk groups, highest priority score first.
func (s *RiskService) Alerts(ctx context.Context, filter domain.LedgerFilter) ([]domain.ScoredGroup, error) {
	ev, err := s.evaluate(ctx, filter, "")
	if err != nil {
		return nil, err
	}
	return stockrisk.Alerts(ev.scored), nil
}

// Actions is the action panel: the top HIGH-risk groups by priority score, skipping
// anything the session already marked as ordered. An empty panel means nothing in scope
// needs action.
func (s *RiskService) Actions(ctx context.Context, filter domain.LedgerFilter, sessionID string, limit int) ([]domain.RankedEntry, error) {
	ev, err := s.evaluate(ctx, filter, sessionID)
	if err != nil {
		return nil, err
	}
	high := make([]domain.ScoredGroup, 0, len(ev.scored))
	for _, g := range ev.scored {
		if g.Risk == domain.RiskHigh {
			high = append(high, g)
		}
	}
	return stockrisk.RankTopN(high, s.clampLimit(limit), ev.excluded), nil
}

func (s *RiskService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.ranking.DefaultLimit
	}
	if limit > s.ranking.MaxLimit {
		return s.ranking.MaxLimit
	}
	return limit
}

// Reorders lists every group needing stock, most urgent first, with the tier summary.
func (s *RiskService) Reorders(ctx context.Context, filter domain.LedgerFilter) (ReorderReport, error) {
	ev, err := s.evaluate(ctx, filter, "")
	if err != nil {
		return ReorderReport{}, err
	}
	recs := stockrisk.PlanReorders(ev.groups)
	return ReorderReport{
		Recommendations: recs,
		Summary:         stockrisk.SummarizeUrgency(recs),
	}, nil
}

func (s *RiskService) Heatmap(ctx context.Context, filter domain.LedgerFilter) ([]domain.HeatmapCell, error) {
	ev, err := s.evaluate(ctx, filter, "")
	if err != nil {
		return nil, err
	}
	return stockrisk.Heatmap(ev.groups), nil
}

// WhatIf projects the effect of ordering orderQty units for a single group.
// A nil orderQty uses the suggested quantity.
func (s *RiskService) WhatIf(ctx context.Context, key domain.GroupKey, window domain.LedgerFilter, orderQty *int) (domain.OrderProjection, error) {
	if key.IsZero() {
		return domain.OrderProjection{}, domain.ErrGroupNotFound
	}
	filter := window
	filter.Organization = key.Organization
	filter.Location = key.Location
	filter.Item = key.Item

	ev, err := s.evaluate(ctx, filter, "")
	if err != nil {
		return domain.OrderProjection{}, err
	}
	for _, g := range ev.groups {
		if g.Key != key {
			continue
		}
		qty := stockrisk.SuggestedOrderQty(g.Profile)
		if orderQty != nil {
			qty = *orderQty
		}
		return stockrisk.ProjectOrder(key, g.Profile, qty), nil
	}
	return domain.OrderProjection{}, domain.ErrGroupNotFound
}

// History returns up to limit dated closing-stock points for a group, oldest first.
func (s *RiskService) History(ctx context.Context, key domain.GroupKey, limit int) ([]domain.StockPoint, error) {
	if limit <= 0 {
		limit = defaultHistoryPoints
	}
	points, err := s.ledger.StockHistory(ctx, key, limit)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, domain.ErrGroupNotFound
	}
	return points, nil
}

// FilterOptions lists distinct organizations, locations and items.
func (s *RiskService) FilterOptions(ctx context.Context) (domain.FilterOptions, error) {
	var opts domain.FilterOptions
	if ok, err := s.cache.Get(ctx, cache.KindFilterOptions, domain.LedgerFilter{}, &opts); err == nil && ok {
		return opts, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("risk: cache get filter options failed")
	}

	opts, err := s.ledger.FilterOptions(ctx)
	if err != nil {
		return domain.FilterOptions{}, err
	}
	if opts.Organizations == nil {
		opts.Organizations = make([]string, 0)
	}
	if opts.Locations == nil {
		opts.Locations = make([]string, 0)
	}
	if opts.Items == nil {
		opts.Items = make([]string, 0)
	}

	if err := s.cache.Set(ctx, cache.KindFilterOptions, domain.LedgerFilter{}, opts); err != nil {
		log.Warn().Err(err).Msg("risk: cache set filter options failed")
	}
	return opts, nil
}

const (
	reorderSheet = "Reorders"
	summarySheet = "Summary"
)

var reorderHeader = []interface{}{
	"Organization", "Location", "Item", "Urgency", "Reorder Qty",
	"Closing Stock", "Avg Daily Usage", "Days Left", "Lead Time (days)", "Required Stock",
}

// ExportReorders writes the reorder list and tier summary as an XLSX workbook.
// It returns the number of recommendations written.
func (s *RiskService) ExportReorders(ctx context.Context, filter domain.LedgerFilter, w io.Writer) (int, error) {
	report, err := s.Reorders(ctx, filter)
	if err != nil {
		return 0, err
	}
	if err := writeReorderWorkbook(report, w); err != nil {
		return 0, err
	}
	return len(report.Recommendations), nil
}

func writeReorderWorkbook(report ReorderReport, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reorderSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(reorderSheet, "A1", &reorderHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range report.Recommendations {
		row := []interface{}{
			r.Key.Organization, r.Key.Location, r.Key.Item, r.Urgency.String(), r.ReorderQty,
			r.Profile.ClosingStock, stockrisk.Round2(r.Profile.AvgDailyUsage), stockrisk.Round2(r.Profile.DaysLeft),
			r.Profile.LeadTimeDays, r.RequiredQty,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(reorderSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	if err := f.SetSheetRow(summarySheet, "A1", &[]interface{}{"Urgency", "Total Reorder Qty", "Number of Items"}); err != nil {
		return err
	}
	for i, sum := range report.Summary {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &[]interface{}{sum.Urgency.String(), sum.TotalQty, sum.NumberOfItems}); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// ParseGroupKey reads a key from its three parts, trimming whitespace.
func ParseGroupKey(organization, location, item string) domain.GroupKey {
	return domain.GroupKey{
		Organization: strings.TrimSpace(organization),
		Location:     strings.TrimSpace(location),
		Item:         strings.TrimSpace(item),
	}
}
