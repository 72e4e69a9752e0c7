package logger

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Closer flushes and stops background logging on shutdown.
type Closer interface {
	Close()
}

// nopCloser is the Closer for synchronous logging.
type nopCloser struct{}

func (nopCloser) Close() {}

// BufferedHandler decouples log emission from the request path by queueing
// records to a single drain goroutine. One goroutine, not a pool: audit
// trails for governance actions must keep their emission order. When the
// queue is full the record is counted as lost rather than blocking a
// handler.
type BufferedHandler struct {
	inner  slog.Handler
	queue  chan queued
	stop   chan struct{}
	done   chan struct{}
	closed *atomic.Bool
	lost   *atomic.Int64
}

// queued pairs a record with the handler that accepted it, so records
// emitted through a WithAttrs or WithGroup derivative keep their attributes
// when drained.
type queued struct {
	sink slog.Handler
	rec  slog.Record
}

// NewBufferedHandler wraps inner with a queue of the given depth.
func NewBufferedHandler(inner slog.Handler, depth int) *BufferedHandler {
	h := &BufferedHandler{
		inner:  inner,
		queue:  make(chan queued, depth),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		closed: &atomic.Bool{},
		lost:   &atomic.Int64{},
	}
	go h.drain()
	return h
}

func (h *BufferedHandler) drain() {
	defer close(h.done)
	for {
		select {
		case q := <-h.queue:
			_ = q.sink.Handle(context.Background(), q.rec)
		case <-h.stop:
			for {
				select {
				case q := <-h.queue:
					_ = q.sink.Handle(context.Background(), q.rec)
				default:
					return
				}
			}
		}
	}
}

// Enabled delegates to the inner handler.
func (h *BufferedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record, dropping it if the queue is full. After Close
// the record is written synchronously so shutdown logging still lands.
func (h *BufferedHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if h.closed.Load() {
		return h.inner.Handle(ctx, rec)
	}
	select {
	case h.queue <- queued{sink: h.inner, rec: rec}:
	default:
		h.lost.Add(1)
	}
	return nil
}

// WithAttrs shares the queue and wraps a derived inner handler.
func (h *BufferedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &BufferedHandler{
		inner:  h.inner.WithAttrs(attrs),
		queue:  h.queue,
		stop:   h.stop,
		done:   h.done,
		closed: h.closed,
		lost:   h.lost,
	}
}

// WithGroup shares the queue and wraps a derived inner handler.
func (h *BufferedHandler) WithGroup(name string) slog.Handler {
	return &BufferedHandler{
		inner:  h.inner.WithGroup(name),
		queue:  h.queue,
		stop:   h.stop,
		done:   h.done,
		closed: h.closed,
		lost:   h.lost,
	}
}

// Lost reports how many records were dropped on a full queue.
func (h *BufferedHandler) Lost() int64 {
	return h.lost.Load()
}

// Close flushes queued records and stops the drain goroutine. Idempotent.
func (h *BufferedHandler) Close() {
	if h.closed.CompareAndSwap(false, true) {
		close(h.stop)
	}
	<-h.done
}
