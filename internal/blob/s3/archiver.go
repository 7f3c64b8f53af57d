package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// OpportunityArchiveStore is the slice of the opportunity store the
// archiver needs.
type OpportunityArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Opportunity, error)
}

// ArchiveImpl implements domain.Archiver: it reads opportunity history
// older than a cutoff, groups it by detection month, and uploads one
// JSONL object per month.
//
// Archived rows are NOT deleted from the primary store. Because every
// run rewrites each touched month from the store in full, reruns are
// idempotent.
type ArchiveImpl struct {
	writer domain.BlobWriter
	store  OpportunityArchiveStore
	logger *slog.Logger
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates an ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, store OpportunityArchiveStore, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		store:  store,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOpportunities uploads all opportunities detected strictly
// before the cutoff, one archive/opportunities/YYYY-MM.jsonl object per
// month, ordered oldest first within each file. It returns the number
// of archived records.
func (a *ArchiveImpl) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.store.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	months := make(map[string][]domain.Opportunity)
	for _, opp := range opps {
		month := opp.DetectedAt.UTC().Format("2006-01")
		months[month] = append(months[month], opp)
	}

	var total int64
	for month, batch := range months {
		sort.Slice(batch, func(i, j int) bool {
			return batch[i].DetectedAt.Before(batch[j].DetectedAt)
		})

		buf, err := marshalJSONL(batch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive opportunities marshal %s: %w", month, err)
		}

		path := archivePath(month)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("s3blob: archive opportunities upload %s: %w", path, err)
		}

		total += int64(len(batch))
		a.logger.InfoContext(ctx, "archive file written",
			slog.String("path", path),
			slog.Int("records", len(batch)))
	}

	return total, nil
}

// archivePath builds the object key for one month of history, e.g.
// archive/opportunities/2026-07.jsonl.
func archivePath(month string) string {
	return fmt.Sprintf("archive/opportunities/%s.jsonl", month)
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
