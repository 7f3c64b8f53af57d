package s3blob

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

type fakeArchiveStore struct {
	opps []domain.Opportunity
}

func (f *fakeArchiveStore) ListBefore(_ context.Context, before time.Time, _ int) ([]domain.Opportunity, error) {
	var out []domain.Opportunity
	for _, opp := range f.opps {
		if opp.DetectedAt.Before(before) {
			out = append(out, opp)
		}
	}
	return out, nil
}

type fakeWriter struct {
	objects map[string]string
	types   map[string]string
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{objects: make(map[string]string), types: make(map[string]string)}
}

func (f *fakeWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[path] = string(body)
	f.types[path] = contentType
	return nil
}

func (f *fakeWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return f.Put(ctx, path, data, "application/octet-stream")
}

func archTestOpportunity(id string, detectedAt time.Time) domain.Opportunity {
	return domain.Opportunity{
		ID:           id,
		BuyExchange:  "alpha",
		SellExchange: "beta",
		BuyPrice:     decimal.RequireFromString("100.10"),
		SellPrice:    decimal.RequireFromString("100.30"),
		ProfitAbs:    decimal.RequireFromString("0.20"),
		ProfitPct:    decimal.RequireFromString("0.1998"),
		DetectedAt:   detectedAt,
	}
}

func TestArchiverGroupsByDetectionMonth(t *testing.T) {
	june := time.Date(2026, 6, 12, 10, 0, 0, 0, time.UTC)
	july := time.Date(2026, 7, 3, 9, 0, 0, 0, time.UTC)
	store := &fakeArchiveStore{opps: []domain.Opportunity{
		archTestOpportunity("b", july),
		archTestOpportunity("a", june),
		archTestOpportunity("c", july.Add(time.Hour)),
	}}
	writer := newFakeWriter()
	arch := NewArchiver(writer, store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	n, err := arch.ArchiveOpportunities(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.Contains(t, writer.objects, "archive/opportunities/2026-06.jsonl")
	require.Contains(t, writer.objects, "archive/opportunities/2026-07.jsonl")
	assert.Equal(t, "application/x-ndjson", writer.types["archive/opportunities/2026-07.jsonl"])

	julyLines := strings.Split(strings.TrimSpace(writer.objects["archive/opportunities/2026-07.jsonl"]), "\n")
	require.Len(t, julyLines, 2)

	var first, second domain.Opportunity
	require.NoError(t, json.Unmarshal([]byte(julyLines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(julyLines[1]), &second))
	assert.Equal(t, "b", first.ID, "records inside one file are oldest first")
	assert.Equal(t, "c", second.ID)
	assert.True(t, first.BuyPrice.Equal(decimal.RequireFromString("100.10")))
}

func TestArchiverSkipsUploadWhenNothingToArchive(t *testing.T) {
	store := &fakeArchiveStore{opps: []domain.Opportunity{
		archTestOpportunity("late", time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)),
	}}
	writer := newFakeWriter()
	arch := NewArchiver(writer, store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := arch.ArchiveOpportunities(context.Background(), time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, writer.objects)
}
