package tui

import (
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"modelfetch/pkg/download"
	"modelfetch/pkg/progress"
)

type fakeSource struct {
	mu      sync.Mutex
	states  []download.OverallState
	stopped int
}

func (f *fakeSource) LatestState() download.OverallState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return download.OverallState{GeneralStatus: download.GeneralInProgress, Records: map[string]download.RecordState{}}
	}
	st := f.states[0]
	f.states = f.states[1:]
	return st
}

func (f *fakeSource) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestModelMergesDiffs(t *testing.T) {
	src := &fakeSource{states: []download.OverallState{
		{
			GeneralStatus: download.GeneralInProgress,
			Records: map[string]download.RecordState{
				"sdxl": {Status: download.StatusInProgress, Filename: "sdxl.safetensors", Progress: &progress.Snapshot{BytesReady: 512, BytesTotal: 1024}},
				"vae":  {Status: download.StatusPending},
			},
		},
		{
			GeneralStatus: download.GeneralInProgress,
			Records: map[string]download.RecordState{
				"vae": {Status: download.StatusExists, Filename: "vae.pt"},
			},
		},
	}}

	m := NewModel(src)
	m, cmd := step(t, m, tickMsg(time.Now()))
	if cmd == nil || isQuit(cmd) {
		t.Fatal("expected another tick while the batch runs")
	}

	view := m.View()
	for _, want := range []string{"modelfetch", "sdxl.safetensors", "512 B / 1.0 kB", "Pending", "q: stop"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in view:\n%s", want, view)
		}
	}

	m, _ = step(t, m, tickMsg(time.Now()))
	st := m.State()
	if st.Records["sdxl"].Status != download.StatusInProgress {
		t.Errorf("record missing from diff should be kept, got %+v", st.Records["sdxl"])
	}
	if st.Records["vae"].Status != download.StatusExists {
		t.Errorf("expected vae Exists, got %s", st.Records["vae"].Status)
	}
}

func TestModelQuitsOnFinalStatus(t *testing.T) {
	src := &fakeSource{states: []download.OverallState{{
		GeneralStatus: download.GeneralError,
		Exception:     "1 of 1 downloads failed",
		Records: map[string]download.RecordState{
			"bad": {Status: download.StatusError, Exception: "no provider found"},
		},
	}}}

	m, cmd := step(t, NewModel(src), tickMsg(time.Now()))
	if !isQuit(cmd) {
		t.Fatal("expected quit once the batch finished")
	}
	view := m.View()
	if !strings.Contains(view, "no provider found") || !strings.Contains(view, "1 of 1 downloads failed") {
		t.Errorf("expected errors in view:\n%s", view)
	}
	if strings.Contains(view, "q: stop") {
		t.Error("finished view should not offer to stop")
	}
	if m.State().GeneralStatus != download.GeneralError {
		t.Errorf("unexpected final status %s", m.State().GeneralStatus)
	}
}

func TestModelStopKey(t *testing.T) {
	src := &fakeSource{}
	m := NewModel(src)

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if src.stopped != 1 {
		t.Errorf("expected exactly one Stop, got %d", src.stopped)
	}
	if !strings.Contains(m.View(), "stopping") {
		t.Errorf("expected stopping notice:\n%s", m.View())
	}

	// The view keeps polling until the manager reports Cancelled.
	_, cmd := step(t, m, tickMsg(time.Now()))
	if isQuit(cmd) {
		t.Error("should not quit before the batch settles")
	}
	src.states = []download.OverallState{{GeneralStatus: download.GeneralCancelled}}
	_, cmd = step(t, m, tickMsg(time.Now()))
	if !isQuit(cmd) {
		t.Error("expected quit after cancellation")
	}
}

func TestWindowResize(t *testing.T) {
	m, _ := step(t, NewModel(&fakeSource{}), tea.WindowSizeMsg{Width: 300, Height: 40})
	if m.progress.Width != 50 {
		t.Errorf("expected capped bar width, got %d", m.progress.Width)
	}
	m, _ = step(t, m, tea.WindowSizeMsg{Width: 12, Height: 40})
	if m.progress.Width != 10 {
		t.Errorf("expected minimum bar width, got %d", m.progress.Width)
	}
}
