package repository

import (
	"context"
	"time"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
)

// LedgerRepository is the row source for risk evaluation and the sink for ingestion.
type LedgerRepository interface {
	ListRows(ctx context.Context, filter domain.LedgerFilter) ([]domain.LedgerRow, error)
	InsertRows(ctx context.Context, rows []domain.LedgerRow) (int64, error)
	FilterOptions(ctx context.Context) (domain.FilterOptions, error)
	StockHistory(ctx context.Context, key domain.GroupKey, limit int) ([]domain.StockPoint, error)
}

// OrderRepository persists placed orders and the action log.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	ListOrders(ctx context.Context, key domain.GroupKey, limit int) ([]domain.Order, error)
	LogAction(ctx context.Context, action *domain.ActionLog) error
	RecentActions(ctx context.Context, since time.Time, limit int) ([]domain.ActionLog, error)
}
