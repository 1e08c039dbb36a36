package stockrisk

import (
	"strings"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
)

// ResolveCriticality returns the criticality weight for a location/item pair.
//
// Every matching rule is considered and the highest score wins, starting from the
// config default. Location rules match on case-sensitive substring, item rules on exact
// membership. Empty patterns never match.
func ResolveCriticality(location, item string, cfg domain.CriticalityConfig) float64 {
	crit := cfg.DefaultScore

	for _, rule := range cfg.LocationRules {
		if rule.Pattern == "" {
			continue
		}
		if strings.Contains(location, rule.Pattern) && rule.Score > crit {
			crit = rule.Score
		}
	}

	for _, rule := range cfg.ItemRules {
		if rule.Score <= crit {
			continue
		}
		for _, candidate := range rule.Items {
			if candidate == item {
				crit = rule.Score
				break
			}
		}
	}

	return crit
}
