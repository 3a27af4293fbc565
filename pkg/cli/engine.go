package cli

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"modelfetch/pkg/display"
)

//go:embed cli.def
var DefaultDSL string

// Engine parses a command definition and dispatches command lines to the
// registered handlers. Commands are addressed by path, e.g. "catalog/list".
// Mutable
type Engine struct {
	GlobalFlags []*Flag
	Commands    []*Command
	Topics      []*Topic
	Handlers    map[string]Handler
	Theme       *display.Theme
	Out         io.Writer
}

func NewEngine(dsl string) (*Engine, error) {
	e := &Engine{
		Handlers: make(map[string]Handler),
		Theme:    display.DefaultTheme(),
		Out:      os.Stdout,
	}
	if err := e.parseDSL(dsl); err != nil {
		return nil, err
	}
	e.Commands = append(e.Commands, &Command{
		Name: "help",
		Desc: "Show help information",
	})
	return e, nil
}

func (e *Engine) Register(cmdPath string, h Handler) {
	e.Handlers[cmdPath] = h
}

func (e *Engine) parseDSL(dsl string) error {
	p := newParser(dsl, e)
	return p.parse()
}

type ParseResult struct {
	Invocation *Invocation
	Help       bool
	HelpArgs   []string
	Error      error
}

func (e *Engine) Run(ctx context.Context, args []string) (*ExecutionResult, error) {
	res := e.Parse(args)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.Help {
		e.PrintHelp(res.HelpArgs...)
		return &ExecutionResult{ExitCode: 0}, nil
	}
	return e.Execute(ctx, res.Invocation)
}

func (e *Engine) Parse(args []string) *ParseResult {
	res := &ParseResult{
		Invocation: &Invocation{
			Args:   make(map[string]string),
			Flags:  make(map[string]string),
			Global: make(map[string]string),
		},
	}

	var remaining []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--help" || arg == "-h" {
			res.Help = true
			continue
		}
		f := matchFlag(e.GlobalFlags, arg)
		if f == nil {
			remaining = append(remaining, arg)
			continue
		}
		if f.Type == "bool" {
			res.Invocation.Global[f.Name] = "true"
		} else if i+1 < len(args) {
			res.Invocation.Global[f.Name] = args[i+1]
			i++
		} else {
			res.Error = fmt.Errorf("flag --%s needs a value", f.Name)
			return res
		}
	}

	if res.Help || len(remaining) == 0 {
		res.Help = true
		res.HelpArgs = remaining
		return res
	}
	if remaining[0] == "help" {
		res.Help = true
		res.HelpArgs = remaining[1:]
		return res
	}

	cmd, rest, err := e.resolve(e.Commands, remaining)
	if err != nil {
		res.Error = err
		return res
	}
	if len(cmd.Subs) > 0 {
		// A group on its own, or followed by an unknown word, shows its help.
		res.Help = true
		res.HelpArgs = commandWords(cmd)
		return res
	}
	res.Invocation.Command = cmd
	if err := e.parseParams(res.Invocation, cmd, rest); err != nil {
		res.Error = err
	}
	return res
}

func (e *Engine) Execute(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	path := getCmdPath(inv.Command)
	if h, ok := e.Handlers[path]; ok {
		return h.Execute(ctx, inv)
	}
	return nil, fmt.Errorf("no handler registered for command: %s", path)
}

// resolve walks args down the command tree. Unique prefixes are accepted.
func (e *Engine) resolve(cmds []*Command, args []string) (*Command, []string, error) {
	word := args[0]
	var matches []*Command
	for _, c := range cmds {
		if c.Name == "help" {
			continue
		}
		if c.Name == word {
			matches = []*Command{c}
			break
		}
		if strings.HasPrefix(c.Name, word) {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return nil, nil, fmt.Errorf("unknown command: %s", word)
	case 1:
	default:
		var names []string
		for _, m := range matches {
			names = append(names, m.Name)
		}
		return nil, nil, fmt.Errorf("ambiguous command: %s (candidates: %s)", word, strings.Join(names, ", "))
	}

	cmd, rest := matches[0], args[1:]
	if len(rest) > 0 && len(cmd.Subs) > 0 && !strings.HasPrefix(rest[0], "-") {
		sub, subRest, err := e.resolve(cmd.Subs, rest)
		if err != nil {
			if strings.HasPrefix(err.Error(), "unknown command") {
				return cmd, rest, nil
			}
			return nil, nil, err
		}
		return sub, subRest, nil
	}
	return cmd, rest, nil
}

func (e *Engine) parseParams(inv *Invocation, cmd *Command, args []string) error {
	argIdx := 0
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "-") && arg != "-" {
			f := matchFlag(cmd.Flags, arg)
			if f == nil {
				f = matchFlag(e.GlobalFlags, arg)
			}
			if f == nil {
				return fmt.Errorf("unknown flag %s for %s", arg, getCmdPath(cmd))
			}
			target := inv.Flags
			if !containsFlag(cmd.Flags, f) {
				target = inv.Global
			}
			if f.Type == "bool" {
				target[f.Name] = "true"
				continue
			}
			if i+1 >= len(args) {
				return fmt.Errorf("flag --%s needs a value", f.Name)
			}
			target[f.Name] = args[i+1]
			i++
			continue
		}
		if argIdx >= len(cmd.Args) {
			return fmt.Errorf("unexpected argument %q for %s", arg, getCmdPath(cmd))
		}
		inv.Args[cmd.Args[argIdx].Name] = arg
		argIdx++
	}

	for ; argIdx < len(cmd.Args); argIdx++ {
		if cmd.Args[argIdx].Required() {
			return fmt.Errorf("argument %s is missing", cmd.Args[argIdx].Name)
		}
	}
	return nil
}

func matchFlag(flags []*Flag, arg string) *Flag {
	for _, f := range flags {
		if arg == "--"+f.Name || (f.Short != "" && arg == "-"+f.Short) {
			return f
		}
	}
	return nil
}

func containsFlag(flags []*Flag, f *Flag) bool {
	for _, x := range flags {
		if x == f {
			return true
		}
	}
	return false
}

func (e *Engine) PrintHelp(args ...string) {
	t := e.Theme
	if len(args) > 0 {
		subject := args[0]
		for _, topic := range e.Topics {
			if topic.Name == subject || strings.HasPrefix(topic.Name, subject) {
				e.PrintTopicHelp(topic)
				return
			}
		}
		curr := e.Commands
		var found *Command
		for _, arg := range args {
			var match *Command
			for _, c := range curr {
				if c.Name == arg || strings.HasPrefix(c.Name, arg) {
					match = c
					break
				}
			}
			if match == nil {
				break
			}
			found = match
			curr = match.Subs
		}
		if found != nil {
			e.PrintCommandHelp(found)
			return
		}
	}

	w := e.Out
	fmt.Fprintf(w, "%s\n", t.Styled(t.Cyan.Bold(true), "modelfetch - model and asset downloader"))
	fmt.Fprintf(w, "\n%s\n", t.Styled(t.Bold, "Usage:"))
	fmt.Fprintf(w, "  modelfetch %s\n", t.Styled(t.Yellow, "[flags] <command>"))
	fmt.Fprintf(w, "\n%s\n", t.Styled(t.Bold, "Global Flags:"))
	fmt.Fprintf(w, "  %-16s %s\n", t.Styled(t.Cyan, "--help, -h"), t.Styled(t.Dim, "Show help [command | topic]"))
	for _, f := range e.GlobalFlags {
		short := ""
		if f.Short != "" {
			short = ", -" + f.Short
		}
		fmt.Fprintf(w, "  %-16s %s\n", t.Styled(t.Cyan, "--"+f.Name+short), t.Styled(t.Dim, f.Desc))
	}

	categories := []struct {
		name string
		icon string
		cmds []string
	}{
		{"DOWNLOAD", t.IconDownload, []string{"download"}},
		{"CATALOG", t.IconCatalog, []string{"catalog"}},
		{"SCRIPT", t.IconScript, []string{"script"}},
	}
	shown := make(map[string]bool)
	fmt.Fprintln(w)
	for _, cat := range categories {
		for _, name := range cat.cmds {
			for _, c := range e.Commands {
				if c.Name == name {
					e.printCommandTree(c, "", true, cat.icon)
					fmt.Fprintln(w)
					shown[c.Name] = true
				}
			}
		}
	}

	var misc []*Command
	for _, c := range e.Commands {
		if !shown[c.Name] && c.Name != "help" {
			misc = append(misc, c)
		}
	}
	if len(misc) > 0 {
		fmt.Fprintf(w, "%s %s\n", t.Bullet, t.Styled(t.Bold, "MISC"))
		for i, c := range misc {
			e.printCommandTree(c, "", i == len(misc)-1, "")
		}
		fmt.Fprintln(w)
	}

	if len(e.Topics) > 0 {
		fmt.Fprintf(w, "%s %s\n", t.IconHelp, t.Styled(t.Bold, "Topics:"))
		for _, topic := range e.Topics {
			fmt.Fprintf(w, "  %s %s %s\n", t.Styled(t.Cyan, topic.Name), e.getPadding(topic.Name, 20), t.Styled(t.Dim, topic.Desc))
		}
	}
	fmt.Fprintf(w, "\nType '%s' for more details.\n", t.Styled(t.Yellow, "modelfetch help <command>"))
}

func (e *Engine) getPadding(name string, target int) string {
	dots := max(target-len(name), 2)
	return e.Theme.Styled(e.Theme.Dim, strings.Repeat(".", dots))
}

func (e *Engine) printCommandTree(c *Command, indent string, isLast bool, icon string) {
	t := e.Theme
	prefix := t.BoxTree
	if isLast {
		prefix = t.BoxLast
	}
	namePart := indent + prefix + " "
	if icon != "" {
		namePart += icon + " "
	}
	namePart += t.Styled(t.Cyan, c.Name)

	// Box prefix is three cells plus a space; icons are two cells wide.
	visualLen := len(indent) + 4 + len(c.Name)
	if icon != "" {
		visualLen += 3
	}
	padding := e.getPadding(strings.Repeat(" ", visualLen), 30)
	fmt.Fprintf(e.Out, "%s %s %s\n", namePart, padding, t.Styled(t.Dim, c.Desc))

	newIndent := indent
	if isLast {
		newIndent += "    "
	} else {
		newIndent += t.BoxItem + " "
	}
	for i, s := range c.Subs {
		e.printCommandTree(s, newIndent, i == len(c.Subs)-1, "")
	}
}

func (e *Engine) PrintCommandHelp(c *Command) {
	t := e.Theme
	w := e.Out
	fmt.Fprintf(w, "\n%s %s\n", t.Styled(t.Bold, "Command:"), t.Styled(t.Cyan, strings.Join(commandWords(c), " ")))
	fmt.Fprintf(w, "%s %s\n\n", t.Styled(t.Bold, "Description:"), t.Styled(t.Dim, c.Desc))

	if len(c.Subs) > 0 {
		fmt.Fprintf(w, "%s\n", t.Styled(t.Bold, "Subcommands:"))
		for i, s := range c.Subs {
			prefix := t.BoxTree
			if i == len(c.Subs)-1 {
				prefix = t.BoxLast
			}
			fmt.Fprintf(w, "  %s %-12s %s\n", prefix, t.Styled(t.Cyan, s.Name), t.Styled(t.Dim, s.Desc))
		}
		fmt.Fprintln(w)
	}
	if len(c.Args) > 0 {
		fmt.Fprintf(w, "%s\n", t.Styled(t.Bold, "Arguments:"))
		for _, a := range c.Args {
			name := "<" + a.Name + ">"
			if !a.Required() {
				name = "[" + a.Name + "]"
			}
			fmt.Fprintf(w, "  %-15s %s\n", t.Styled(t.Yellow, name), t.Styled(t.Dim, a.Desc))
		}
		fmt.Fprintln(w)
	}
	if len(c.Flags) > 0 {
		fmt.Fprintf(w, "%s\n", t.Styled(t.Bold, "Flags:"))
		for _, f := range c.Flags {
			short := ""
			if f.Short != "" {
				short = ", -" + f.Short
			}
			fmt.Fprintf(w, "  %-20s %s\n", t.Styled(t.Cyan, "--"+f.Name+short), t.Styled(t.Dim, f.Desc))
		}
		fmt.Fprintln(w)
	}
	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "%s\n", t.Styled(t.Bold, "Examples:"))
		for _, ex := range c.Examples {
			fmt.Fprintf(w, "  %s %s\n", t.Styled(t.Green, "$"), ex)
		}
		fmt.Fprintln(w)
	}
}

func (e *Engine) PrintTopicHelp(topic *Topic) {
	t := e.Theme
	fmt.Fprintf(e.Out, "\n%s %s\n", t.Styled(t.Bold, "Topic:"), t.Styled(t.Cyan, topic.Name))
	fmt.Fprintf(e.Out, "%s %s\n\n", t.Styled(t.Bold, "Description:"), t.Styled(t.Dim, topic.Desc))
	fmt.Fprintf(e.Out, "%s\n\n", topic.Text)
}

func getCmdPath(c *Command) string {
	if c.Parent == nil {
		return c.Name
	}
	return getCmdPath(c.Parent) + "/" + c.Name
}

func commandWords(c *Command) []string {
	return strings.Split(getCmdPath(c), "/")
}
