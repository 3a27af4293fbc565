// Package download runs batches of catalog items concurrently and aggregates
// their progress into a state that can be polled.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"modelfetch/pkg/catalog"
	"modelfetch/pkg/provider"
)

var (
	// ErrAlreadyRunning is returned by Start while a batch is active.
	ErrAlreadyRunning = errors.New("a download batch is already running")
	// ErrInvalidBatch is returned for empty batches and duplicate item ids.
	ErrInvalidBatch = errors.New("invalid batch")
)

// Mutable
type manager struct {
	registry      *provider.Registry
	maxConcurrent int

	mu              sync.Mutex
	started         bool
	batchID         string
	records         map[string]RecordState
	baseline        map[string]RecordState
	stoppedEarly    map[string]bool
	cancel          context.CancelFunc
	cancelRequested bool
	running         int
	done            chan struct{}
}

// Manager orchestrates one batch at a time.
type Manager = *manager

// Option configures a Manager.
type Option func(*manager)

// WithMaxConcurrent bounds how many items download at once. n <= 0 means one
// goroutine per item, which is the default.
func WithMaxConcurrent(n int) Option {
	return func(m *manager) { m.maxConcurrent = n }
}

// NewManager creates a manager resolving URLs through registry.
func NewManager(registry *provider.Registry, opts ...Option) Manager {
	m := &manager{registry: registry}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var (
	defaultOnce    sync.Once
	defaultManager Manager
)

// Default returns the process-wide manager, built on first use with the
// built-in providers. Hosts that need configuration use NewManager instead.
func Default() Manager {
	defaultOnce.Do(func() {
		defaultManager = NewManager(provider.NewDefaultRegistry(provider.NewHTTP(), nil, nil))
	})
	return defaultManager
}

// Start launches one task per item and returns immediately.
func (m *manager) Start(items []catalog.Item) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidBatch)
	}
	records := make(map[string]RecordState, len(items))
	for _, it := range items {
		if _, dup := records[it.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidBatch, it.ID)
		}
		records[it.ID] = RecordState{Status: StatusPending}
	}

	m.mu.Lock()
	if m.running > 0 {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.started = true
	m.batchID = uuid.NewString()
	m.records = records
	m.baseline = make(map[string]RecordState)
	m.stoppedEarly = make(map[string]bool)
	m.cancel = cancel
	m.cancelRequested = false
	m.running = len(items)
	m.done = done
	batchID := m.batchID
	m.mu.Unlock()

	slog.Info("Starting batch", "batch", batchID, "items", len(items), "max_concurrent", m.maxConcurrent)

	// Launching from a goroutine keeps Start non-blocking when SetLimit
	// makes g.Go wait for a free slot.
	go func() {
		defer close(done)
		defer cancel()

		var g errgroup.Group
		if m.maxConcurrent > 0 {
			g.SetLimit(m.maxConcurrent)
		}
		for _, it := range items {
			g.Go(func() error {
				m.runTask(ctx, records, it)
				return nil
			})
		}
		g.Wait()
	}()
	return nil
}

func (m *manager) runTask(ctx context.Context, records map[string]RecordState, it catalog.Item) {
	update := func(fn func(r *RecordState)) {
		m.mu.Lock()
		defer m.mu.Unlock()
		r := records[it.ID]
		if r.Status.IsTerminal() {
			return
		}
		fn(&r)
		records[it.ID] = r
	}

	finished := newTask(it, m.registry, update).run(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !finished {
		m.stoppedEarly[it.ID] = true
	}
	m.running--
	// Logged under the lock: once running is zero a new Start may replace records.
	if m.running == 0 {
		slog.Info("Batch finished", "batch", m.batchID, "status", m.generalLocked())
	}
}

// Stop cancels the active batch. It does not wait for tasks to notice.
func (m *manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running == 0 || m.cancel == nil {
		return
	}
	if !m.cancelRequested {
		slog.Info("Cancelling batch", "batch", m.batchID)
	}
	m.cancelRequested = true
	m.cancel()
}

// IsRunning reports whether any task of the current batch is still running.
func (m *manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running > 0
}

// Wait blocks until the current batch has finished or ctx is done.
func (m *manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BatchID identifies the current or last batch in logs.
func (m *manager) BatchID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchID
}

// State returns a copy of every record and the derived overall status.
func (m *manager) State() OverallState {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.overallLocked()
	for id, r := range m.records {
		st.Records[id] = r.Clone()
	}
	return st
}

// LatestState returns only the records that changed since the previous call
// and makes the current values the new baseline. It serves a single consumer:
// two pollers sharing one manager would each see part of the changes.
func (m *manager) LatestState() OverallState {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.overallLocked()
	for id, r := range m.records {
		if prev, ok := m.baseline[id]; ok && prev.Equal(r) {
			continue
		}
		st.Records[id] = r.Clone()
		m.baseline[id] = r.Clone()
	}
	return st
}

func (m *manager) overallLocked() OverallState {
	st := OverallState{
		GeneralStatus: m.generalLocked(),
		Records:       make(map[string]RecordState),
	}
	if st.GeneralStatus == GeneralError {
		failed := 0
		for _, r := range m.records {
			if r.Status == StatusError {
				failed++
			}
		}
		st.Exception = fmt.Sprintf("%d of %d downloads failed", failed, len(m.records))
	}
	return st
}

func (m *manager) generalLocked() GeneralStatus {
	if !m.started {
		return GeneralIdle
	}
	if m.cancelRequested {
		for id, r := range m.records {
			if !r.Status.IsTerminal() || m.stoppedEarly[id] {
				return GeneralCancelled
			}
		}
	}
	anyError, allTerminal := false, true
	for _, r := range m.records {
		if r.Status == StatusError {
			anyError = true
		}
		if !r.Status.IsTerminal() {
			allTerminal = false
		}
	}
	switch {
	case anyError:
		return GeneralError
	case allTerminal:
		return GeneralCompleted
	default:
		return GeneralInProgress
	}
}
