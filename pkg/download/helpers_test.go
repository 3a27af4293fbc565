package download

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"modelfetch/pkg/progress"
	"modelfetch/pkg/provider"
)

// gateProvider serves gate:// URLs. Each URL's transfer emits whatever the
// test sends on its channel and completes when the channel is closed.
type gateProvider struct {
	mu    sync.Mutex
	gates map[string]chan progress.Snapshot
	name  string
}

func newGateProvider() *gateProvider {
	return &gateProvider{gates: make(map[string]chan progress.Snapshot)}
}

func (g *gateProvider) gate(rawURL string) chan progress.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[rawURL]
	if !ok {
		ch = make(chan progress.Snapshot)
		g.gates[rawURL] = ch
	}
	return ch
}

func (g *gateProvider) Name() string { return "gate" }

func (g *gateProvider) Accepts(rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	return err == nil && u.Scheme == "gate", nil
}

func (g *gateProvider) ResolveFilename(ctx context.Context, rawURL string) string { return g.name }

func (g *gateProvider) Download(ctx context.Context, rawURL, destination, label string) *provider.Stream {
	ch := g.gate(rawURL)
	return provider.NewStream(ctx, func(emit provider.Emit) error {
		for {
			select {
			case snap, ok := <-ch:
				if !ok {
					return os.WriteFile(destination, []byte("done"), 0644)
				}
				if !emit(snap) {
					return ctx.Err()
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

// waitFor polls State until cond holds or the deadline passes.
func waitFor(t *testing.T, m Manager, cond func(OverallState) bool) OverallState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		st := m.State()
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached, last state %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitDone(t *testing.T, m Manager) OverallState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Wait(ctx); err != nil {
		t.Fatalf("batch did not finish: %v", err)
	}
	if m.IsRunning() {
		t.Fatal("IsRunning() true after Wait")
	}
	return m.State()
}

func progressAt(st OverallState, id string) int64 {
	r, ok := st.Records[id]
	if !ok || r.Progress == nil {
		return -1
	}
	return r.Progress.BytesReady
}

// logBuffer collects slog output written from task goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *logBuffer {
	t.Helper()
	b := &logBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(b, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return b
}
