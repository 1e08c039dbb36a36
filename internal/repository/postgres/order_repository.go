package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
	"github.com/andresuchdata/stockrisk/backend-go/internal/repository"
)

type orderRepository struct {
	db *DB
}

var _ repository.OrderRepository = (*orderRepository)(nil)

func NewOrderRepository(db *DB) *orderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO order_tracking (
			organization, location, item, ordered_qty, priority, status, user_name, session_id
		) VALUES (:organization, :location, :item, :ordered_qty, :priority, :status, :user_name, :session_id)
		RETURNING id, created_at
	`

	stmt, err := r.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare order insert: %w", err)
	}
	defer stmt.Close()

	if err := stmt.QueryRowxContext(ctx, order).Scan(&order.ID, &order.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (r *orderRepository) ListOrders(ctx context.Context, key domain.GroupKey, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, organization, location, item, ordered_qty, priority, status,
		       user_name, session_id, created_at
		FROM order_tracking
		WHERE organization = $1 AND location = $2 AND item = $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`

	orders := make([]domain.Order, 0)
	if err := r.db.SelectContext(ctx, &orders, query, key.Organization, key.Location, key.Item, limit); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (r *orderRepository) LogAction(ctx context.Context, action *domain.ActionLog) error {
	query := `
		INSERT INTO action_log (
			correlation_id, action_type, user_name, session_id, organization, location, item, details
		) VALUES (:correlation_id, :action_type, :user_name, :session_id, :organization, :location, :item, :details)
		RETURNING id, created_at
	`

	stmt, err := r.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare action insert: %w", err)
	}
	defer stmt.Close()

	if err := stmt.QueryRowxContext(ctx, action).Scan(&action.ID, &action.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert action: %w", err)
	}
	return nil
}

func (r *orderRepository) RecentActions(ctx context.Context, since time.Time, limit int) ([]domain.ActionLog, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, correlation_id, action_type, user_name, session_id,
		       organization, location, item, details, created_at
		FROM action_log
		WHERE created_at >= $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	actions := make([]domain.ActionLog, 0)
	if err := r.db.SelectContext(ctx, &actions, query, since, limit); err != nil {
		return nil, fmt.Errorf("failed to list recent actions: %w", err)
	}
	return actions, nil
}
