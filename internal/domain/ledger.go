package domain

import (
	"strings"
	"time"
)

// DateLayout is the wire format for ledger dates.
const DateLayout = "2006-01-02"

// LedgerRow is one daily stock record for an (organization, location, item) group.
type LedgerRow struct {
	Date         time.Time `json:"date" db:"ledger_date"`
	Organization string    `json:"organization" db:"organization"`
	Location     string    `json:"location" db:"location"`
	Item         string    `json:"item" db:"item"`
	OpeningStock int       `json:"opening_stock" db:"opening_stock"`
	Received     int       `json:"received" db:"received"`
	Issued       int       `json:"issued" db:"issued"`
	ClosingStock int       `json:"closing_stock" db:"closing_stock"`
	LeadTimeDays int       `json:"lead_time_days" db:"lead_time_days"`
}

// Key returns the group the row belongs to.
func (r LedgerRow) Key() GroupKey {
	return GroupKey{
		Organization: r.Organization,
		Location:     r.Location,
		Item:         r.Item,
	}
}

// Balanced reports whether closing = opening + received - issued.
func (r LedgerRow) Balanced() bool {
	return r.ClosingStock == r.OpeningStock+r.Received-r.Issued
}

// GroupKey identifies one trackable inventory line.
type GroupKey struct {
	Organization string `json:"organization" db:"organization"`
	Location     string `json:"location" db:"location"`
	Item         string `json:"item" db:"item"`
}

func (k GroupKey) String() string {
	return k.Organization + " / " + k.Location + " / " + k.Item
}

// IsZero reports whether every part of the key is blank.
func (k GroupKey) IsZero() bool {
	return strings.TrimSpace(k.Organization) == "" &&
		strings.TrimSpace(k.Location) == "" &&
		strings.TrimSpace(k.Item) == ""
}

// KeySet is a set of group keys, e.g. the items a session already marked as ordered.
type KeySet map[GroupKey]struct{}

// NewKeySet builds a set from the given keys.
func NewKeySet(keys ...GroupKey) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has is safe on a nil set.
func (s KeySet) Has(k GroupKey) bool {
	if s == nil {
		return false
	}
	_, ok := s[k]
	return ok
}

// RowPredicate selects ledger rows before aggregation.
type RowPredicate func(LedgerRow) bool

// LedgerFilter holds the equality and date-window filters callers can apply
// to the ledger before aggregation. Empty fields do not filter.
type LedgerFilter struct {
	Organization string     `json:"organization,omitempty"`
	Location     string     `json:"location,omitempty"`
	Item         string     `json:"item,omitempty"`
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
}

// Matches applies the filter to a single row. From and To are inclusive.
func (f LedgerFilter) Matches(r LedgerRow) bool {
	if f.Organization != "" && r.Organization != f.Organization {
		return false
	}
	if f.Location != "" && r.Location != f.Location {
		return false
	}
	if f.Item != "" && r.Item != f.Item {
		return false
	}
	if f.From != nil && r.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && r.Date.After(*f.To) {
		return false
	}
	return true
}

// Predicate returns the filter as a RowPredicate, or nil when it is empty.
func (f LedgerFilter) Predicate() RowPredicate {
	if f.IsEmpty() {
		return nil
	}
	return f.Matches
}

// IsEmpty reports whether no filter field is set.
func (f LedgerFilter) IsEmpty() bool {
	return f.Organization == "" && f.Location == "" && f.Item == "" && f.From == nil && f.To == nil
}

// FilterOptions lists the distinct values available for each equality filter.
type FilterOptions struct {
	Organizations []string `json:"organizations"`
	Locations     []string `json:"locations"`
	Items         []string `json:"items"`
}

// StockPoint is one dated closing-stock value, used for history sparklines.
type StockPoint struct {
	Date         time.Time `json:"date" db:"ledger_date"`
	ClosingStock int       `json:"closing_stock" db:"closing_stock"`
}
