package reporting

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"option-pipeline/internal/domain"
	"option-pipeline/internal/storage"
	"option-pipeline/internal/storage/sqlite"
)

func setupGenerator(t *testing.T) (*Generator, *sqlite.DB) {
	t.Helper()

	db, err := sqlite.Open(context.Background(), sqlite.Options{
		Path: filepath.Join(t.TempDir(), "report.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	g := NewGenerator(
		sqlite.NewSnapshotStore(db),
		sqlite.NewLifespanStore(db),
		sqlite.NewStatsStore(db),
	)
	return g, db
}

func seedContract(t *testing.T, db *sqlite.DB, osiKey string, n int, daysToExp float64) {
	t.Helper()

	snaps := make([]*domain.Snapshot, n)
	for i := range snaps {
		price := 5.0 + float64(i)
		iv := 0.3
		snaps[i] = &domain.Snapshot{
			OSIKey: osiKey,
			Timestamp: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC).
				Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
			Symbol:           "AAPL",
			StrikePrice:      180,
			LastPrice:        &price,
			IV:               &iv,
			DaysToExpiration: daysToExp,
		}
	}
	require.NoError(t, sqlite.NewSnapshotStore(db).UpsertBatch(context.Background(), snaps))
}

func TestGenerator_Generate(t *testing.T) {
	g, db := setupGenerator(t)
	ctx := context.Background()

	seedContract(t, db, "HOT1", 3, 14)
	seedContract(t, db, "DONE1", 2, 0)
	outcome := sqlite.NewArchiveStore(db).Archive(ctx, "DONE1")
	require.Equal(t, storage.MoveSuccess, outcome.Status)

	r, err := g.Generate(ctx, 5)
	require.NoError(t, err)

	assert.False(t, r.GeneratedAt.IsZero())
	assert.Equal(t, 3, r.Summary.Snapshots)
	assert.Equal(t, 2, r.Summary.ArchiveRows)
	assert.Equal(t, 1, r.Summary.Lifespans)
	assert.Len(t, r.Recent, 3)
	require.Len(t, r.Lifespans, 1)
	assert.Equal(t, "DONE1", r.Lifespans[0].OSIKey)
}

func TestGenerator_GenerateEmptyStore(t *testing.T) {
	g, _ := setupGenerator(t)

	r, err := g.Generate(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Summary.Snapshots)
	assert.Empty(t, r.Recent)
	assert.Empty(t, r.Lifespans)
}

func TestRender(t *testing.T) {
	g, db := setupGenerator(t)
	ctx := context.Background()

	seedContract(t, db, "HOT1", 2, 14)
	seedContract(t, db, "DONE1", 2, 0)
	require.Equal(t, storage.MoveSuccess, sqlite.NewArchiveStore(db).Archive(ctx, "DONE1").Status)

	r, err := g.Generate(ctx, 5)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r))
	out := buf.String()

	assert.Contains(t, out, "Store report")
	assert.Contains(t, out, "hot snapshots")
	assert.Contains(t, out, "Most recent snapshots")
	assert.Contains(t, out, "Completed contract lifespans")
	assert.Contains(t, out, "HOT1")
	assert.Contains(t, out, "DONE1")
}

func TestRender_EmptyReportSkipsSections(t *testing.T) {
	r := &Report{
		GeneratedAt: time.Now(),
		Summary:     &domain.StoreSummary{},
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r))
	out := buf.String()

	assert.Contains(t, out, "Summary")
	assert.NotContains(t, out, "Most recent snapshots")
	assert.NotContains(t, out, "Completed contract lifespans")
}

func TestFmtPtr(t *testing.T) {
	assert.Equal(t, "-", fmtPtr(nil))

	v := 1.25
	assert.Equal(t, "1.25", fmtPtr(&v))

	whole := 3.0
	assert.Equal(t, "3", fmtPtr(&whole))
}
