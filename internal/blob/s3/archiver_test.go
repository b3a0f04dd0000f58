package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	err     error
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.err != nil {
		return w.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = b
	return nil
}

func (w *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "")
}

type memTrades struct {
	rows    []domain.TradeRecord
	deleted int
}

func (m *memTrades) ListBefore(_ context.Context, before time.Time) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	for _, r := range m.rows {
		if r.CreatedAt.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memTrades) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	var keep []domain.TradeRecord
	var n int64
	for _, r := range m.rows {
		if r.CreatedAt.Before(before) {
			n++
			continue
		}
		keep = append(keep, r)
	}
	m.rows = keep
	m.deleted += int(n)
	return n, nil
}

type memAudit struct{ events []string }

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveTrades_UploadsThenPrunes(t *testing.T) {
	cutoff := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	store := &memTrades{rows: []domain.TradeRecord{
		{ID: "a", Instrument: "NVDA", Side: domain.OrderSideBuy, Price: 10, Volume: 1, CreatedAt: cutoff.Add(-2 * time.Hour)},
		{ID: "b", Instrument: "AMD", Side: domain.OrderSideSell, Price: 11, Volume: 2, CreatedAt: cutoff.Add(-time.Hour)},
		{ID: "c", Instrument: "ASML", Side: domain.OrderSideBuy, Price: 12, Volume: 3, CreatedAt: cutoff.Add(time.Hour)},
	}}
	w := &memWriter{objects: map[string][]byte{}}
	audit := &memAudit{}

	n, err := NewArchiver(w, store, audit, testLogger()).ArchiveTrades(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	path := archivePath("trades", cutoff)
	assert.Equal(t, "archive/trades/2026/10/01/1790812800.jsonl", path)
	require.Contains(t, w.objects, path)

	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(w.objects[path]))
	for sc.Scan() {
		var rec domain.TradeRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)

	require.Len(t, store.rows, 1)
	assert.Equal(t, "c", store.rows[0].ID)
	assert.Equal(t, []string{domain.EventArchive}, audit.events)
}

func TestArchiveTrades_UploadFailureKeepsRows(t *testing.T) {
	cutoff := time.Now()
	store := &memTrades{rows: []domain.TradeRecord{{ID: "a", CreatedAt: cutoff.Add(-time.Minute)}}}
	w := &memWriter{objects: map[string][]byte{}, err: errors.New("boom")}

	_, err := NewArchiver(w, store, nil, testLogger()).ArchiveTrades(context.Background(), cutoff)
	require.Error(t, err)
	assert.Len(t, store.rows, 1)
	assert.Zero(t, store.deleted)
}

func TestArchiveTrades_NothingToDo(t *testing.T) {
	w := &memWriter{objects: map[string][]byte{}}
	n, err := NewArchiver(w, &memTrades{}, nil, testLogger()).ArchiveTrades(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://x", normaliseEndpoint("http://x", true))
}
