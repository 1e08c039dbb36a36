package postgres

import (
	"fmt"
	"strings"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
)

// buildLedgerFilterClause constructs the WHERE clause for a ledger filter.
// alias may be empty or end with a dot.
func buildLedgerFilterClause(filter domain.LedgerFilter, alias string, startIndex int) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	idx := startIndex

	add := func(expr string, arg interface{}) {
		clauses = append(clauses, fmt.Sprintf(expr, alias, idx))
		args = append(args, arg)
		idx++
	}

	if filter.Organization != "" {
		add("%sorganization = $%d", filter.Organization)
	}
	if filter.Location != "" {
		add("%slocation = $%d", filter.Location)
	}
	if filter.Item != "" {
		add("%sitem = $%d", filter.Item)
	}
	if filter.From != nil {
		add("%sledger_date >= $%d", filter.From.Format(domain.DateLayout))
	}
	if filter.To != nil {
		add("%sledger_date <= $%d", filter.To.Format(domain.DateLayout))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
