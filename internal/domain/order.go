package domain

import (
	"strings"
	"time"
)

// ActionType labels entries in the action log.
type ActionType string

const (
	ActionOrderPlaced      ActionType = "ORDER_PLACED"
	ActionOrderMarked      ActionType = "ORDER_MARKED"
	ActionOrderUnmarked    ActionType = "ORDER_UNMARKED"
	ActionLedgerUploaded   ActionType = "LEDGER_UPLOADED"
	ActionConfigSaved      ActionType = "CONFIG_SAVED"
	ActionConfigReset      ActionType = "CONFIG_RESET"
	ActionExportDownloaded ActionType = "EXPORT_DOWNLOADED"
)

var actionTypes = map[string]ActionType{
	"order_placed":      ActionOrderPlaced,
	"order_marked":      ActionOrderMarked,
	"order_unmarked":    ActionOrderUnmarked,
	"ledger_uploaded":   ActionLedgerUploaded,
	"config_saved":      ActionConfigSaved,
	"config_reset":      ActionConfigReset,
	"export_downloaded": ActionExportDownloaded,
}

// ParseActionType returns the action type for a label (case-insensitive).
func ParseActionType(label string) (ActionType, bool) {
	t, ok := actionTypes[strings.ToLower(strings.TrimSpace(label))]
	return t, ok
}

// OrderStatus tracks an order placed for a group.
type OrderStatus string

const (
	OrderStatusPlaced   OrderStatus = "PLACED"
	OrderStatusReceived OrderStatus = "RECEIVED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// Order is a reorder placed by a user for one group.
type Order struct {
	ID           int64       `json:"id" db:"id"`
	Organization string      `json:"organization" db:"organization"`
	Location     string      `json:"location" db:"location"`
	Item         string      `json:"item" db:"item"`
	OrderedQty   int         `json:"ordered_qty" db:"ordered_qty"`
	Priority     UrgencyTier `json:"priority" db:"priority"`
	Status       OrderStatus `json:"status" db:"status"`
	UserName     string      `json:"user_name" db:"user_name"`
	SessionID    string      `json:"session_id" db:"session_id"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

// Key returns the group the order was placed for.
func (o Order) Key() GroupKey {
	return GroupKey{Organization: o.Organization, Location: o.Location, Item: o.Item}
}

// ActionLog is one audited user or system action.
type ActionLog struct {
	ID            int64      `json:"id" db:"id"`
	CorrelationID string     `json:"correlation_id" db:"correlation_id"`
	ActionType    ActionType `json:"action_type" db:"action_type"`
	UserName      string     `json:"user_name" db:"user_name"`
	SessionID     string     `json:"session_id" db:"session_id"`
	Organization  *string    `json:"organization,omitempty" db:"organization"`
	Location      *string    `json:"location,omitempty" db:"location"`
	Item          *string    `json:"item,omitempty" db:"item"`
	Details       *string    `json:"details,omitempty" db:"details"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}
