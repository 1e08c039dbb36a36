package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/stockrisk/backend-go/internal/cache"
	"github.com/andresuchdata/stockrisk/backend-go/internal/config"
	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
	"github.com/andresuchdata/stockrisk/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/stockrisk/backend-go/internal/service"
)

func reportFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "organization"},
		&cli.StringFlag{Name: "location"},
		&cli.StringFlag{Name: "item"},
		&cli.TimestampFlag{Name: "from", Layout: domain.DateLayout},
		&cli.TimestampFlag{Name: "to", Layout: domain.DateLayout},
		&cli.IntFlag{Name: "limit", Usage: "Action panel size", Value: 3},
		&cli.StringFlag{Name: "export", Usage: "Also write the reorder list to this XLSX file"},
	}
}

func runReport(c *cli.Context) error {
	cfg := config.Load()
	db := dbFrom(c)

	risk := service.NewRiskService(
		postgres.NewLedgerRepository(db),
		config.NewCriticalityStore(cfg.Criticality.Path),
		cache.NewMemorySessionStore(time.Hour),
		nil,
		cfg.Ranking,
	)

	filter := domain.LedgerFilter{
		Organization: c.String("organization"),
		Location:     c.String("location"),
		Item:         c.String("item"),
		From:         c.Timestamp("from"),
		To:           c.Timestamp("to"),
	}

	actions, err := risk.Actions(c.Context, filter, "", c.Int("limit"))
	if err != nil {
		return err
	}
	report, err := risk.Reorders(c.Context, filter)
	if err != nil {
		return err
	}

	out := c.App.Writer
	if out == nil {
		out = os.Stdout
	}
	printActions(out, actions)
	fmt.Fprintln(out)
	printReorders(out, report)

	if path := c.String("export"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := risk.ExportReorders(c.Context, filter, f); err != nil {
			return err
		}
	}
	return nil
}

func printActions(w io.Writer, entries []domain.RankedEntry) {
	fmt.Fprintln(w, "ACTION PANEL")
	if len(entries) == 0 {
		fmt.Fprintln(w, "  all items healthy, no action needed")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%d. [%s] %s (score %.2f)\n", e.Rank, e.Risk, e.Action, e.PriorityScore)
		fmt.Fprintf(w, "   %s\n", e.Explanation)
	}
}

func printReorders(w io.Writer, report service.ReorderReport) {
	fmt.Fprintln(w, "REORDERS")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "URGENCY\tORGANIZATION\tLOCATION\tITEM\tQTY\tDAYS LEFT\tLEAD")
	for _, r := range report.Recommendations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.2f\t%d\n",
			r.Urgency, r.Key.Organization, r.Key.Location, r.Key.Item, r.ReorderQty, r.Profile.DaysLeft, r.Profile.LeadTimeDays)
	}
	tw.Flush()

	for _, s := range report.Summary {
		fmt.Fprintf(w, "%s: %d units across %d items\n", s.Urgency, s.TotalQty, s.NumberOfItems)
	}
}
