// Package requestlog is an async, buffered per-request audit trail
// (SPEC_FULL §11): one row per completed request (transaction id,
// classification, status, timing) persisted for offline analysis. This is
// the ambient "audit log" concern, scoped down from the teacher's
// multi-tenant schema-per-customer design to a single flat table, since
// this proxy has no tenants.
//
// Adapted from internal/audit/audit.go's Writer: same channel-buffered,
// ticker-flushed batching shape, with the tenant-schema grouping removed
// and the query hand-written against pgx directly (one table doesn't earn
// sqlc codegen).
package requestlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one completed request, as observed by the dispatcher.
type Entry struct {
	TransID    string
	Method     string
	Path       string
	Kind       string
	Account    string
	Container  string
	Object     string
	Status     int
	DurationMS int64
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// Writer is an async, buffered request-log writer. Entries are sent to an
// internal channel and flushed by a background goroutine; the enqueuing
// caller (the dispatcher) is never blocked by database latency.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

// NewWriter creates a request-log Writer. Call Start to begin processing.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start launches the background flush loop and returns immediately. The
// loop exits, after flushing every pending entry, once ctx is cancelled or
// Close is called.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to flush.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Enqueue submits entry for async persistence. Never blocks: if the
// buffer is full, the entry is dropped and a warning logged, matching the
// teacher's Writer.Log behavior.
func (w *Writer) Enqueue(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("request log buffer full, dropping entry",
			"trans_id", entry.TransID, "path", entry.Path)
	}
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		w.logger.Error("acquiring connection for request log flush", "error", err, "count", len(entries))
		return
	}
	defer conn.Release()

	const insertSQL = `INSERT INTO request_log
		(trans_id, method, path, kind, account, container, object, status, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(insertSQL, e.TransID, e.Method, e.Path, e.Kind, e.Account, e.Container, e.Object, e.Status, e.DurationMS)
	}

	br := conn.SendBatch(ctx, batch)
	defer br.Close()
	for range entries {
		if _, err := br.Exec(); err != nil {
			w.logger.Error("writing request log entry", "error", err)
		}
	}
}
