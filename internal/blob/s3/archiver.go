package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

// multipartThreshold switches uploads to the multipart manager.
const multipartThreshold = 16 * 1024 * 1024

// TradeArchiveStore is the slice of the journal the archiver needs.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver implements domain.Archiver. It serialises journal rows older than
// a cutoff to JSONL, uploads them, and only then prunes them from the
// database.
type Archiver struct {
	writer domain.BlobWriter
	trades TradeArchiveStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, trades TradeArchiveStore, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		trades: trades,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveTrades uploads every journal row before the cutoff to
// archive/trades/YYYY/MM/DD/<unix>.jsonl and returns the number archived.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if len(buf) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(trades))
	deleted, err := a.trades.DeleteBefore(ctx, before)
	if err != nil {
		return count, fmt.Errorf("s3blob: archive trades prune: %w", err)
	}

	a.logger.InfoContext(ctx, "journal archived",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Int64("pruned", deleted),
	)

	if a.audit != nil {
		if err := a.audit.Log(ctx, domain.EventArchive, map[string]any{
			"path":   path,
			"count":  count,
			"pruned": deleted,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			a.logger.WarnContext(ctx, "archive audit log failed", slog.String("error", err.Error()))
		}
	}

	return count, nil
}

// archivePath builds the object key for a batch cut at before.
func archivePath(kind string, before time.Time) string {
	u := before.UTC()
	return fmt.Sprintf("archive/%s/%04d/%02d/%02d/%d.jsonl", kind, u.Year(), u.Month(), u.Day(), u.Unix())
}

// marshalJSONL encodes records one JSON object per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
