package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"modelfetch/pkg/catalog"
	"modelfetch/pkg/config"
	"modelfetch/pkg/disk"
	"modelfetch/pkg/display"
	"modelfetch/pkg/download"
	"modelfetch/pkg/progress"
	"modelfetch/pkg/provider"
	"modelfetch/pkg/tui"
)

// RenderInterval is how often the console view polls for state changes.
const RenderInterval = 200 * time.Millisecond

var (
	infoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// App holds what the command handlers share.
type App struct {
	Cfg  config.ReadOnly
	Disp display.Display
	Out  io.Writer
	In   io.Reader

	// Registry builds the provider registry. Defaults to one configured
	// from settings.
	Registry func() (*provider.Registry, error)
}

func NewApp(cfg config.ReadOnly, disp display.Display) *App {
	a := &App{Cfg: cfg, Disp: disp, Out: os.Stdout, In: os.Stdin}
	a.Registry = a.defaultRegistry
	return a
}

// Bind registers every command handler on e.
func (a *App) Bind(e *Engine) {
	e.Register("download", HandlerFunc(a.runDownload))
	e.Register("catalog/list", HandlerFunc(a.runCatalogList))
	e.Register("catalog/check", HandlerFunc(a.runCatalogCheck))
	e.Register("script/list", HandlerFunc(a.runScriptList))
	e.Register("script/repl", HandlerFunc(a.runScriptRepl))
	e.Register("info", HandlerFunc(a.runInfo))
	e.Register("version", HandlerFunc(a.runVersion))
}

func (a *App) settings() config.Settings {
	s, err := a.Cfg.GetSettings()
	if err != nil {
		slog.Warn("Using default settings", "path", a.Cfg.GetSettingsPath(), "error", err)
	}
	return s
}

func (a *App) newHTTP(s config.Settings) *provider.HTTP {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = s.HTTPTimeout()
	return provider.NewHTTP(
		provider.WithClient(&http.Client{Transport: transport}),
		provider.WithUserAgent(s.UserAgent),
		provider.WithChunkSize(s.ChunkSize),
		provider.WithSpaceCheck(s.CheckDiskSpace),
	)
}

func (a *App) defaultRegistry() (*provider.Registry, error) {
	h := a.newHTTP(a.settings())
	scripts, err := provider.LoadScripts(a.Cfg.GetScriptsDir(), h)
	if err != nil {
		return nil, err
	}
	// Mega links are recognised but left unsupported until a client is configured.
	return provider.NewDefaultRegistry(h, scripts, nil), nil
}

// loadItems reads the catalog named by the invocation, applies the group and
// query filters and places relative dirs under the download directory.
func (a *App) loadItems(inv *Invocation) ([]catalog.Item, error) {
	path := inv.Arg("catalog")
	if path == "" {
		path = filepath.Join(a.Cfg.GetConfigDir(), "catalog.json")
	}
	items, err := catalog.Load(path)
	if err != nil {
		return nil, err
	}
	items = catalog.ByGroup(items, inv.String("group"))
	if items, err = catalog.Filter(items, inv.String("query")); err != nil {
		return nil, err
	}
	return catalog.Rebase(items, a.Cfg.GetDownloadDir()), nil
}

func (a *App) runDownload(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	items, err := a.loadItems(inv)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		fmt.Fprintln(a.Out, "Nothing to download.")
		return &ExecutionResult{ExitCode: 0}, nil
	}

	jobs, err := inv.Int("jobs", a.settings().MaxConcurrent)
	if err != nil {
		return nil, err
	}
	reg, err := a.Registry()
	if err != nil {
		return nil, err
	}

	mgr := download.NewManager(reg, download.WithMaxConcurrent(jobs))
	if err := mgr.Start(items); err != nil {
		return nil, err
	}
	slog.Info("Batch started", "batch", mgr.BatchID(), "items", len(items), "jobs", jobs)

	if inv.Bool("tui") {
		if _, err := tui.Run(ctx, mgr); err != nil {
			slog.Warn("Progress view closed", "error", err)
		}
	} else {
		a.watch(ctx, mgr)
	}

	if err := mgr.Wait(context.Background()); err != nil {
		return nil, err
	}
	final := mgr.State()
	a.Disp.Summary(final)
	return &ExecutionResult{ExitCode: exitCode(final.GeneralStatus)}, nil
}

// watch renders state diffs until the batch settles. Cancelling ctx stops
// the batch; watching continues until the workers wind down.
func (a *App) watch(ctx context.Context, mgr download.Manager) {
	ticker := time.NewTicker(RenderInterval)
	defer ticker.Stop()

	done := ctx.Done()
	for mgr.IsRunning() {
		select {
		case <-done:
			slog.Info("Stopping batch", "batch", mgr.BatchID())
			mgr.Stop()
			done = nil
		case <-ticker.C:
			a.Disp.Render(mgr.LatestState())
		}
	}
	a.Disp.Render(mgr.LatestState())
}

func exitCode(s download.GeneralStatus) int {
	switch s {
	case download.GeneralCompleted:
		return 0
	case download.GeneralCancelled:
		return 130
	default:
		return 1
	}
}

func (a *App) runCatalogList(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	items, err := a.loadItems(inv)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(a.Out, "%-16s %-12s %s\n", "ID", "GROUP", "DESTINATION")
	fmt.Fprintln(a.Out, strings.Repeat("-", 60))
	for _, it := range items {
		dest := it.Dir + string(filepath.Separator)
		if it.Filename != "" {
			dest = filepath.Join(it.Dir, it.Filename)
		}
		fmt.Fprintf(a.Out, "%-16s %-12s %s\n", it.ID, it.Group, dest)
	}
	fmt.Fprintln(a.Out, strings.Repeat("-", 60))
	fmt.Fprintf(a.Out, "%d items\n", len(items))
	return &ExecutionResult{ExitCode: 0}, nil
}

func (a *App) runCatalogCheck(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	items, err := a.loadItems(inv)
	if err != nil {
		return nil, err
	}
	reg, err := a.Registry()
	if err != nil {
		return nil, err
	}

	failed := 0
	for _, it := range items {
		p, err := reg.Resolve(it.URL)
		if err != nil {
			failed++
			fmt.Fprintf(a.Out, "%-16s %-8s %s\n", it.ID, "-", err)
			continue
		}
		fmt.Fprintf(a.Out, "%-16s %-8s %s\n", it.ID, p.Name(), it.URL)
	}
	if failed > 0 {
		fmt.Fprintf(a.Out, "%d of %d items have no usable provider\n", failed, len(items))
		return &ExecutionResult{ExitCode: 1}, nil
	}
	return &ExecutionResult{ExitCode: 0}, nil
}

func (a *App) runScriptList(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	dir := a.Cfg.GetScriptsDir()
	scripts, err := provider.LoadScripts(dir, nil)
	if err != nil {
		return nil, err
	}
	if scripts.Len() == 0 {
		fmt.Fprintf(a.Out, "No rules in %s\n", dir)
		return &ExecutionResult{ExitCode: 0}, nil
	}
	fmt.Fprintf(a.Out, "Rules in %s (match order):\n", dir)
	for _, r := range scripts.Rules() {
		fmt.Fprintf(a.Out, "  %-16s %s\n", r.Name, strings.Join(r.Functions(), ", "))
	}
	return &ExecutionResult{ExitCode: 0}, nil
}

func (a *App) runInfo(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	s := a.settings()
	rows := [][2]string{
		{"Config", a.Cfg.GetConfigDir()},
		{"Data", a.Cfg.GetDataDir()},
		{"Settings", a.Cfg.GetSettingsPath()},
		{"Rules", a.Cfg.GetScriptsDir()},
		{"Downloads", a.Cfg.GetDownloadDir()},
		{"Jobs", fmt.Sprintf("%d", s.MaxConcurrent)},
		{"Chunk size", progress.Bytes(int64(s.ChunkSize))},
		{"Timeout", s.HTTPTimeout().String()},
		{"User agent", s.UserAgent},
		{"Space check", fmt.Sprintf("%t", s.CheckDiskSpace)},
	}
	for _, r := range rows {
		fmt.Fprintf(a.Out, "%-12s %s\n", infoStyle.Render(r[0]+":"), r[1])
	}

	u, err := disk.DirUsage(a.Cfg.GetDownloadDir())
	if err != nil {
		slog.Warn("Disk usage unavailable", "path", u.Path, "error", err)
		return &ExecutionResult{ExitCode: 0}, nil
	}
	fmt.Fprintf(a.Out, "%-12s %s in %d files, %s free\n", infoStyle.Render("Stored:"), progress.Bytes(u.Size), u.Items, progress.Bytes(int64(u.Free)))
	return &ExecutionResult{ExitCode: 0}, nil
}

func (a *App) runVersion(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	fmt.Fprintln(a.Out, config.GetBuildInfo())
	return &ExecutionResult{ExitCode: 0}, nil
}
