package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig wraps every criticality config validation failure.
var ErrInvalidConfig = errors.New("invalid criticality config")

// LocationRule raises criticality when Pattern occurs in the location name.
type LocationRule struct {
	Pattern     string  `json:"pattern" mapstructure:"pattern"`
	Score       float64 `json:"score" mapstructure:"score"`
	Description string  `json:"description" mapstructure:"description"`
}

// ItemRule raises criticality when the item name is one of Items.
type ItemRule struct {
	Items       []string `json:"items" mapstructure:"items"`
	Score       float64  `json:"score" mapstructure:"score"`
	Description string   `json:"description" mapstructure:"description"`
}

// CriticalityConfig is the persisted rule set used to weight locations and items.
type CriticalityConfig struct {
	LocationRules []LocationRule `json:"location_rules" mapstructure:"location_rules"`
	ItemRules     []ItemRule     `json:"item_rules" mapstructure:"item_rules"`
	DefaultScore  float64        `json:"default_score" mapstructure:"default_score"`
}

// DefaultCriticalityConfig returns the built-in rules used when nothing is persisted.
func DefaultCriticalityConfig() CriticalityConfig {
	return CriticalityConfig{
		LocationRules: []LocationRule{
			{Pattern: "Emergency Unit", Score: 10, Description: "Critical emergency care location"},
		},
		ItemRules: []ItemRule{
			{
				Items:       []string{"Paracetamol", "Insulin", "Syringes", "Bandages", "Masks", "Gloves"},
				Score:       7,
				Description: "Critical medical supplies",
			},
			{Items: []string{"Rice"}, Score: 5, Description: "Essential food supplies"},
		},
		DefaultScore: 3,
	}
}

// Clone returns a deep copy so callers can hand out snapshots safely.
func (c CriticalityConfig) Clone() CriticalityConfig {
	out := CriticalityConfig{DefaultScore: c.DefaultScore}
	if c.LocationRules != nil {
		out.LocationRules = append([]LocationRule(nil), c.LocationRules...)
	}
	if c.ItemRules != nil {
		out.ItemRules = make([]ItemRule, len(c.ItemRules))
		for i, r := range c.ItemRules {
			r.Items = append([]string(nil), r.Items...)
			out.ItemRules[i] = r
		}
	}
	return out
}

// Validate reports rules that can never match or would match everything.
// An empty location pattern is rejected because it would be a substring of every location.
func (c CriticalityConfig) Validate() error {
	var problems []string
	for i, r := range c.LocationRules {
		if strings.TrimSpace(r.Pattern) == "" {
			problems = append(problems, fmt.Sprintf("location rule %d has an empty pattern", i+1))
		}
	}
	for i, r := range c.ItemRules {
		if len(r.Items) == 0 {
			problems = append(problems, fmt.Sprintf("item rule %d has no items", i+1))
			continue
		}
		for _, item := range r.Items {
			if strings.TrimSpace(item) == "" {
				problems = append(problems, fmt.Sprintf("item rule %d contains an empty item name", i+1))
				break
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
