package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockrisk/backend-go/internal/cache"
	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
	"github.com/andresuchdata/stockrisk/backend-go/internal/repository"
)

// ErrInvalidOrder is returned for orders without a group or a positive quantity.
var ErrInvalidOrder = errors.New("invalid order")

const (
	defaultRecentHours  = 24
	defaultActionsLimit = 100
)

// OrderRequest places an order for one group.
type OrderRequest struct {
	Key       domain.GroupKey
	Qty       int
	Priority  string
	UserName  string
	SessionID string
}

// OrderService owns per-session ordered marks, placed orders and the action log.
type OrderService struct {
	orders   repository.OrderRepository
	sessions cache.SessionStore
	now      func() time.Time
}

func NewOrderService(orders repository.OrderRepository, sessions cache.SessionStore) *OrderService {
	return &OrderService{orders: orders, sessions: sessions, now: time.Now}
}

func (s *OrderService) CreateSession(ctx context.Context) (string, error) {
	return s.sessions.Create(ctx)
}

// Ordered lists the keys a session marked as ordered, sorted.
func (s *OrderService) Ordered(ctx context.Context, sessionID string) ([]domain.GroupKey, error) {
	set, err := s.sessions.Ordered(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return cache.OrderedKeys(set), nil
}

// MarkOrdered hides a group from the session's action panel.
func (s *OrderService) MarkOrdered(ctx context.Context, sessionID, userName string, key domain.GroupKey) error {
	if key.IsZero() {
		return fmt.Errorf("%w: group is required", ErrInvalidOrder)
	}
	if err := s.sessions.Mark(ctx, sessionID, key); err != nil {
		return err
	}
	s.record(ctx, keyAction(domain.ActionOrderMarked, userName, sessionID, key, nil))
	return nil
}

// UnmarkOrdered brings a group back into the session's action panel.
func (s *OrderService) UnmarkOrdered(ctx context.Context, sessionID, userName string, key domain.GroupKey) error {
	if err := s.sessions.Unmark(ctx, sessionID, key); err != nil {
		return err
	}
	s.record(ctx, keyAction(domain.ActionOrderUnmarked, userName, sessionID, key, nil))
	return nil
}

// PlaceOrder persists an order and, when a session is given, marks the group ordered.
// An empty priority defaults to MEDIUM.
func (s *OrderService) PlaceOrder(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	if req.Key.IsZero() {
		return nil, fmt.Errorf("%w: group is required", ErrInvalidOrder)
	}
	if req.Qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	priority := domain.UrgencyMedium
	if req.Priority != "" {
		p, ok := domain.ParseUrgencyTier(req.Priority)
		if !ok {
			return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidOrder, req.Priority)
		}
		priority = p
	}

	order := &domain.Order{
		Organization: req.Key.Organization,
		Location:     req.Key.Location,
		Item:         req.Key.Item,
		OrderedQty:   req.Qty,
		Priority:     priority,
		Status:       domain.OrderStatusPlaced,
		UserName:     req.UserName,
		SessionID:    req.SessionID,
	}
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if req.SessionID != "" {
		if err := s.sessions.Mark(ctx, req.SessionID, req.Key); err != nil {
			log.Warn().Err(err).Str("session_id", req.SessionID).Msg("orders: failed to mark group ordered")
		}
	}

	details := fmt.Sprintf("qty=%d priority=%s", order.OrderedQty, order.Priority)
	s.record(ctx, keyAction(domain.ActionOrderPlaced, req.UserName, req.SessionID, req.Key, &details))
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, key domain.GroupKey, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = defaultActionsLimit
	}
	return s.orders.ListOrders(ctx, key, limit)
}

// RecentActions lists actions logged within the last hours, newest first.
func (s *OrderService) RecentActions(ctx context.Context, hours, limit int) ([]domain.ActionLog, error) {
	if hours <= 0 {
		hours = defaultRecentHours
	}
	if limit <= 0 {
		limit = defaultActionsLimit
	}
	since := s.now().Add(-time.Duration(hours) * time.Hour)
	actions, err := s.orders.RecentActions(ctx, since, limit)
	if err != nil {
		return nil, err
	}
	if actions == nil {
		actions = make([]domain.ActionLog, 0)
	}
	return actions, nil
}

// LogAction records an action that has no group of its own.
func (s *OrderService) LogAction(ctx context.Context, action domain.ActionType, userName, sessionID, details string) {
	entry := domain.ActionLog{ActionType: action, UserName: userName, SessionID: sessionID}
	if details != "" {
		entry.Details = &details
	}
	s.record(ctx, entry)
}

// record writes to the action log. Failures are logged, never returned.
func (s *OrderService) record(ctx context.Context, entry domain.ActionLog) {
	if entry.CorrelationID == "" {
		entry.CorrelationID = uuid.NewString()
	}
	if err := s.orders.LogAction(ctx, &entry); err != nil {
		log.Warn().Err(err).Str("action", string(entry.ActionType)).Msg("orders: failed to write action log")
	}
}

func keyAction(t domain.ActionType, userName, sessionID string, key domain.GroupKey, details *string) domain.ActionLog {
	return domain.ActionLog{
		ActionType:   t,
		UserName:     userName,
		SessionID:    sessionID,
		Organization: strPtr(key.Organization),
		Location:     strPtr(key.Location),
		Item:         strPtr(key.Item),
		Details:      details,
	}
}
