package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"modelfetch/pkg/provider"
)

const replPrompt = "rule> "

// scriptRepl loads one rule file and runs it against URLs typed by the user.
// Mutable
type scriptRepl struct {
	in   *bufio.Reader
	out  io.Writer
	err  io.Writer
	path string

	rule *provider.Rule
}

func (a *App) runScriptRepl(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	file := inv.Arg("file")
	if file == "" {
		return nil, fmt.Errorf("rule file required")
	}

	repl := &scriptRepl{
		in:   bufio.NewReader(a.In),
		out:  a.Out,
		err:  a.Out,
		path: file,
	}
	if err := repl.Run(ctx); err != nil {
		return nil, err
	}
	return &ExecutionResult{ExitCode: 0}, nil
}

func (r *scriptRepl) Run(ctx context.Context) error {
	if err := r.reload(); err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Rule REPL: %s\n", r.path)
	r.printSummary()
	r.printHelp()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := fmt.Fprint(r.out, replPrompt); err != nil {
			return err
		}
		line, err := r.in.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			if herr := r.handleLine(line); herr != nil {
				if herr == io.EOF {
					return nil
				}
				fmt.Fprintf(r.err, "Error: %v\n", herr)
			}
		}
		if err == io.EOF {
			fmt.Fprintln(r.out)
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (r *scriptRepl) reload() error {
	absPath, err := filepath.Abs(r.path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return err
	}
	rule, err := provider.ParseRule(strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath)), string(data))
	if err != nil {
		return err
	}
	r.path = absPath
	r.rule = rule
	return nil
}

func (r *scriptRepl) handleLine(line string) error {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])

	switch cmd {
	case "help", "?":
		r.printHelp()
		return nil
	case "show":
		r.printSummary()
		return nil
	case "reload":
		if err := r.reload(); err != nil {
			return err
		}
		r.printSummary()
		return nil
	case "exit", "quit":
		return io.EOF
	case "try":
		if len(fields) < 2 {
			return fmt.Errorf("usage: try <url>")
		}
		return r.try(fields[1])
	default:
		if strings.Contains(cmd, "://") {
			return r.try(fields[0])
		}
		return fmt.Errorf("unknown command: %s (try 'help')", cmd)
	}
}

func (r *scriptRepl) try(rawURL string) error {
	tr, err := r.rule.Trace(rawURL)
	if err != nil {
		return err
	}
	if !tr.Accepts {
		fmt.Fprintf(r.out, "not accepted: %s\n", rawURL)
		return nil
	}
	fmt.Fprintf(r.out, "accepted: %s\n", rawURL)
	fmt.Fprintf(r.out, "  resolve  -> %s\n", tr.Target)
	if tr.Filename != "" {
		fmt.Fprintf(r.out, "  filename -> %s\n", tr.Filename)
	} else {
		fmt.Fprintln(r.out, "  filename -> (from server)")
	}
	return nil
}

func (r *scriptRepl) printSummary() {
	fmt.Fprintf(r.out, "Rule: %s\n", r.rule.Name)
	fmt.Fprintf(r.out, "Functions: %s\n", strings.Join(r.rule.Functions(), ", "))
}

func (r *scriptRepl) printHelp() {
	fmt.Fprintln(r.out, "Commands:")
	fmt.Fprintln(r.out, "  try <url> | <url>   Run accepts, resolve and filename")
	fmt.Fprintln(r.out, "  show                Show rule functions")
	fmt.Fprintln(r.out, "  reload              Reload rule file")
	fmt.Fprintln(r.out, "  exit | quit         Exit the REPL")
}
