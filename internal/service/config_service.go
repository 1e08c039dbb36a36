package service

import (
	"context"
	"fmt"

	"github.com/andresuchdata/stockrisk/backend-go/internal/config"
	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
)

// ConfigService wraps the criticality store with action logging.
type ConfigService struct {
	store   *config.CriticalityStore
	actions *OrderService
}

func NewConfigService(store *config.CriticalityStore, actions *OrderService) *ConfigService {
	return &ConfigService{store: store, actions: actions}
}

func (s *ConfigService) Criticality() config.CriticalitySnapshot {
	return s.store.Snapshot()
}

// SaveCriticality validates and persists cfg. Invalid rules return domain.ErrInvalidConfig.
func (s *ConfigService) SaveCriticality(ctx context.Context, cfg domain.CriticalityConfig, userName, sessionID string) (config.CriticalitySnapshot, error) {
	snap, err := s.store.Save(cfg)
	if err != nil {
		return snap, err
	}
	if s.actions != nil {
		s.actions.LogAction(ctx, domain.ActionConfigSaved, userName, sessionID,
			fmt.Sprintf("version=%d location_rules=%d item_rules=%d", snap.Version, len(cfg.LocationRules), len(cfg.ItemRules)))
	}
	return snap, nil
}

func (s *ConfigService) ResetCriticality(ctx context.Context, userName, sessionID string) (config.CriticalitySnapshot, error) {
	snap, err := s.store.Reset()
	if err != nil {
		return snap, err
	}
	if s.actions != nil {
		s.actions.LogAction(ctx, domain.ActionConfigReset, userName, sessionID, fmt.Sprintf("version=%d", snap.Version))
	}
	return snap, nil
}
