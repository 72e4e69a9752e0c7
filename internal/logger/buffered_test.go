package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// lockedBuffer serializes writes from the drain goroutine and the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) lines() int {
	s := strings.TrimSpace(b.String())
	if s == "" {
		return 0
	}
	return len(strings.Split(s, "\n"))
}

func TestBufferedHandlerDeliversRecords(t *testing.T) {
	out := &lockedBuffer{}
	h := NewBufferedHandler(slog.NewJSONHandler(out, nil), 64)
	log := slog.New(h)

	log.Info("version promoted", "version_id", "v-1")
	h.Close()

	if !strings.Contains(out.String(), "version promoted") {
		t.Errorf("output missing record: %s", out.String())
	}
}

func TestBufferedHandlerCloseFlushesBacklog(t *testing.T) {
	out := &lockedBuffer{}
	h := NewBufferedHandler(slog.NewJSONHandler(out, nil), 1024)
	log := slog.New(h)

	const n = 500
	for i := range n {
		log.Info("event", "seq", i)
	}
	h.Close()

	if got := out.lines(); got != n {
		t.Errorf("flushed lines = %d, want %d (lost = %d)", got, n, h.Lost())
	}
}

func TestBufferedHandlerDerivedAttrsSurvive(t *testing.T) {
	out := &lockedBuffer{}
	h := NewBufferedHandler(slog.NewJSONHandler(out, nil), 64)
	log := slog.New(h).With("service", "fleetgate")

	log.Info("instance quarantined", "instance_id", "i-1")
	h.Close()

	if !strings.Contains(out.String(), `"service":"fleetgate"`) {
		t.Errorf("derived attribute dropped: %s", out.String())
	}
}

func TestBufferedHandlerCountsLostRecords(t *testing.T) {
	// blockingHandler stalls the drain goroutine so the queue backs up.
	release := make(chan struct{})
	inner := &blockingHandler{release: release}
	h := NewBufferedHandler(inner, 1)
	log := slog.New(h)

	for range 50 {
		log.Info("burst")
	}
	close(release)
	h.Close()

	if h.Lost() == 0 {
		t.Error("expected lost records with a depth-1 queue under burst")
	}
	if h.Lost() >= 50 {
		t.Errorf("lost = %d, want some records delivered", h.Lost())
	}
}

func TestBufferedHandlerCloseIdempotent(t *testing.T) {
	h := NewBufferedHandler(slog.NewJSONHandler(&lockedBuffer{}, nil), 8)
	h.Close()

	done := make(chan struct{})
	go func() {
		h.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Close did not return")
	}

	// Post-close records are written synchronously, not dropped.
	if err := h.Handle(context.Background(), slog.Record{}); err != nil {
		t.Fatalf("Handle after Close: %v", err)
	}
	if h.Lost() != 0 {
		t.Errorf("lost = %d, want 0", h.Lost())
	}
}

type blockingHandler struct {
	release chan struct{}
}

func (b *blockingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (b *blockingHandler) Handle(context.Context, slog.Record) error { //nolint:gocritic // slog.Handler interface
	<-b.release
	return nil
}

func (b *blockingHandler) WithAttrs([]slog.Attr) slog.Handler { return b }
func (b *blockingHandler) WithGroup(string) slog.Handler      { return b }
