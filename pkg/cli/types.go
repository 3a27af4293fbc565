package cli

import (
	"context"
	"fmt"
	"strconv"
)

type Flag struct {
	Name  string
	Short string
	Type  string // "bool", "string", "int"
	Desc  string
}

type Arg struct {
	Name string
	Type string // "string" is required, "optional" may be left out
	Desc string
}

func (a *Arg) Required() bool { return a.Type != "optional" }

type Command struct {
	Name     string
	Desc     string
	Args     []*Arg
	Flags    []*Flag
	Subs     []*Command
	Parent   *Command
	Examples []string
}

type Topic struct {
	Name string
	Desc string
	Text string
}

// Invocation is a parsed command line.
type Invocation struct {
	Command *Command
	Args    map[string]string
	Flags   map[string]string
	Global  map[string]string
}

func (inv *Invocation) Arg(name string) string { return inv.Args[name] }

func (inv *Invocation) String(name string) string {
	if v, ok := inv.Flags[name]; ok {
		return v
	}
	return inv.Global[name]
}

func (inv *Invocation) Bool(name string) bool {
	return inv.String(name) == "true"
}

// Int returns the flag value, or def when the flag was not given.
func (inv *Invocation) Int(name string, def int) (int, error) {
	v := inv.String(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("flag --%s: %q is not a number", name, v)
	}
	return n, nil
}

type ExecutionResult struct {
	ExitCode int
}

type Handler interface {
	Execute(ctx context.Context, inv *Invocation) (*ExecutionResult, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, inv *Invocation) (*ExecutionResult, error)

func (f HandlerFunc) Execute(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	return f(ctx, inv)
}
