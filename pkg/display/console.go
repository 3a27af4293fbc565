package display

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"modelfetch/pkg/download"
	"modelfetch/pkg/progress"
)

// consoleDisplay prints one line per record change.
// Mutable
type consoleDisplay struct {
	mu      sync.Mutex
	out     io.Writer
	theme   *Theme
	verbose bool
	last    map[string]string
	general download.GeneralStatus
}

// NewConsole creates a Display that writes to standard error.
func NewConsole() Display {
	return NewWriterDisplay(os.Stderr)
}

// NewWriterDisplay creates a Display that writes to the provided io.Writer.
func NewWriterDisplay(w io.Writer) Display {
	return &consoleDisplay{
		out:   w,
		theme: DefaultTheme(),
		last:  make(map[string]string),
	}
}

func (d *consoleDisplay) SetVerbose(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.verbose = v
}

func (d *consoleDisplay) Print(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprint(d.out, msg)
}

func (d *consoleDisplay) Render(st download.OverallState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range sortedIDs(st.Records) {
		line := d.recordLine(id, st.Records[id])
		// Rate and elapsed change on every chunk; compare without them.
		key := RecordLine(id, st.Records[id], false)
		if !d.verbose && d.last[id] == key {
			continue
		}
		d.last[id] = key
		fmt.Fprintln(d.out, line)
	}

	if st.GeneralStatus != d.general {
		d.general = st.GeneralStatus
		fmt.Fprintf(d.out, "%s batch %s\n", d.theme.Arrow, d.theme.GeneralStyle(st.GeneralStatus).Render(string(st.GeneralStatus)))
	}
}

func (d *consoleDisplay) recordLine(id string, r download.RecordState) string {
	t := d.theme
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %-16s %s", t.Bullet, id, t.StatusStyle(r.Status).Render(fmt.Sprintf("%-10s", r.Status)))
	if r.Filename != "" {
		sb.WriteString(" " + r.Filename)
	}
	if r.Progress != nil {
		fmt.Fprintf(&sb, " %3d%% %s", r.Progress.Percent(), r.Progress.Amount())
		if rate := r.Progress.Rate(); rate != "" && d.verbose {
			sb.WriteString(" " + t.Dim.Render(rate))
		}
	}
	if r.PreviewProgress != nil && r.PreviewProgress.BytesTotal > 0 {
		fmt.Fprintf(&sb, " preview %d%%", r.PreviewProgress.Percent())
	}
	if r.Exception != "" {
		sb.WriteString(" " + t.Red.Render(r.Exception))
	}
	if r.PreviewException != "" {
		sb.WriteString(" " + t.Yellow.Render("preview: "+r.PreviewException))
	}
	return sb.String()
}

// RecordLine renders r as plain text, with or without the speed details.
func RecordLine(id string, r download.RecordState, withRate bool) string {
	parts := []string{id, string(r.Status)}
	if r.Filename != "" {
		parts = append(parts, r.Filename)
	}
	if r.Progress != nil {
		parts = append(parts, fmt.Sprintf("%d%%", r.Progress.Percent()), r.Progress.Amount())
		if rate := r.Progress.Rate(); withRate && rate != "" {
			parts = append(parts, rate)
		}
	}
	if r.PreviewProgress != nil {
		parts = append(parts, fmt.Sprintf("preview %d%%", r.PreviewProgress.Percent()))
	}
	if r.Exception != "" {
		parts = append(parts, r.Exception)
	}
	if r.PreviewException != "" {
		parts = append(parts, "preview: "+r.PreviewException)
	}
	return strings.Join(parts, " ")
}

func (d *consoleDisplay) Summary(st download.OverallState) {
	table := &Table{Header: []string{"ID", "STATUS", "FILE", "SIZE", "ERROR"}}
	for _, id := range sortedIDs(st.Records) {
		r := st.Records[id]
		size := ""
		if r.Progress != nil {
			size = progress.Bytes(r.Progress.BytesReady)
		}
		errMsg := r.Exception
		if errMsg == "" && r.PreviewException != "" {
			errMsg = "preview: " + r.PreviewException
		}
		table.Rows = append(table.Rows, []string{id, string(r.Status), r.Destination, size, errMsg})
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.renderTable(table)
	fmt.Fprintf(d.out, "%s %s", d.theme.Bold.Render("Result:"), d.theme.GeneralStyle(st.GeneralStatus).Render(string(st.GeneralStatus)))
	if st.Exception != "" {
		fmt.Fprintf(d.out, " (%s)", st.Exception)
	}
	fmt.Fprintln(d.out)
}

// Table is a simple column layout.
type Table struct {
	Header []string
	Rows   [][]string
}

func (d *consoleDisplay) renderTable(t *Table) {
	if len(t.Header) == 0 {
		return
	}

	widths := make([]int, len(t.Header))
	for i, h := range t.Header {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var sb strings.Builder
	for i, h := range t.Header {
		fmt.Fprintf(&sb, "%-*s  ", widths[i], h)
	}
	fmt.Fprintln(d.out, strings.TrimRight(sb.String(), " "))

	total := 0
	for _, w := range widths {
		total += w + 2
	}
	fmt.Fprintln(d.out, strings.Repeat("-", total))

	for _, row := range t.Rows {
		sb.Reset()
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(&sb, "%-*s  ", widths[i], cell)
			}
		}
		fmt.Fprintln(d.out, strings.TrimRight(sb.String(), " "))
	}
}

func sortedIDs(records map[string]download.RecordState) []string {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
