// Package reporting renders store summaries for the report CLI.
package reporting

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"option-pipeline/internal/domain"
	"option-pipeline/internal/storage"
)

// Report is a point-in-time view of the store.
type Report struct {
	GeneratedAt time.Time
	Summary     *domain.StoreSummary
	Recent      []*domain.Snapshot
	Lifespans   []*domain.Lifespan
}

// Generator builds reports from the stores.
type Generator struct {
	snapshots storage.SnapshotStore
	lifespans storage.LifespanStore
	stats     storage.StatsStore
}

// NewGenerator creates a new Generator.
func NewGenerator(snapshots storage.SnapshotStore, lifespans storage.LifespanStore, stats storage.StatsStore) *Generator {
	return &Generator{snapshots: snapshots, lifespans: lifespans, stats: stats}
}

// Generate collects summary counts, the most recent snapshot rows, and
// the latest lifespan summaries.
func (g *Generator) Generate(ctx context.Context, recentRows int) (*Report, error) {
	summary, err := g.stats.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("store summary: %w", err)
	}
	recent, err := g.snapshots.Recent(ctx, recentRows)
	if err != nil {
		return nil, fmt.Errorf("recent snapshots: %w", err)
	}
	lifespans, err := g.lifespans.Summaries(ctx, recentRows)
	if err != nil {
		return nil, fmt.Errorf("lifespan summaries: %w", err)
	}
	return &Report{
		GeneratedAt: time.Now().UTC(),
		Summary:     summary,
		Recent:      recent,
		Lifespans:   lifespans,
	}, nil
}

// Render writes the report as aligned text.
func Render(w io.Writer, r *Report) error {
	fmt.Fprintf(w, "Store report, generated %s\n\n", r.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintln(w, "Summary")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  hot snapshots\t%d\n", r.Summary.Snapshots)
	fmt.Fprintf(tw, "  hot contracts\t%d\n", r.Summary.SnapshotContracts)
	fmt.Fprintf(tw, "  hot symbols\t%d\n", r.Summary.SnapshotSymbols)
	fmt.Fprintf(tw, "  archive rows\t%d\n", r.Summary.ArchiveRows)
	fmt.Fprintf(tw, "  archive contracts\t%d\n", r.Summary.ArchiveContracts)
	fmt.Fprintf(tw, "  feature rows\t%d\n", r.Summary.FeatureRows)
	fmt.Fprintf(tw, "  lifespans\t%d\n", r.Summary.Lifespans)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Recent) > 0 {
		fmt.Fprintf(w, "\nMost recent snapshots (%d)\n", len(r.Recent))
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  osi_key\ttimestamp\tsymbol\tlast\tbid\task\tdte")
		for _, s := range r.Recent {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\t%.1f\n",
				s.OSIKey, s.Timestamp, s.Symbol,
				fmtPtr(s.LastPrice), fmtPtr(s.Bid), fmtPtr(s.Ask), s.DaysToExpiration)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(r.Lifespans) > 0 {
		fmt.Fprintf(w, "\nCompleted contract lifespans (%d)\n", len(r.Lifespans))
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  osi_key\tstart\tend\tchange\tavg_iv\trows")
		for _, l := range r.Lifespans {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%d\n",
				l.OSIKey, l.StartDate, l.EndDate,
				fmtPtr(l.TotalChange), fmtPtr(l.AvgIV), l.TotalSnapshots)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func fmtPtr(v *float64) string {
	if v == nil {
		return "-"
	}
	s := fmt.Sprintf("%.4f", *v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
