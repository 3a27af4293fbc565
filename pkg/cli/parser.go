package cli

import (
	"fmt"
	"strings"
)

// Operand kinds of a statement shape.
const (
	opName  = 'n' // one identifier
	opPath  = 'p' // one or more identifiers
	opText  = 't' // a quoted string
	opShort = 'c' // optional single-letter identifier
)

// shapes lists, per keyword, the operands that follow it.
var shapes = map[string]string{
	"global":  "",
	"cmd":     "pt",
	"flag":    "nntc",
	"arg":     "nnt",
	"example": "t",
	"topic":   "nt",
	"text":    "t",
}

var (
	flagTypes = map[string]bool{"bool": true, "string": true, "int": true}
	argTypes  = map[string]bool{"string": true, "optional": true}
)

// statement is one keyword with its operands, read before it is applied.
// Immutable
type statement struct {
	keyword string
	line    int
	path    []string
	ops     []string
}

// parser reads statements and attaches them to the engine. flag, arg and
// example bind to the last cmd; text binds to the last topic.
// Mutable
type parser struct {
	lex    *lexer
	tok    token
	engine *Engine

	cmds  map[string]*Command // by "a/b" path
	cmd   *Command
	topic *Topic
}

func newParser(dsl string, engine *Engine) *parser {
	p := &parser{
		lex:    newLexer(dsl),
		engine: engine,
		cmds:   make(map[string]*Command),
	}
	p.next()
	return p
}

func (p *parser) next() {
	p.tok = p.lex.nextToken()
}

func (p *parser) parse() error {
	for p.tok.kind != tokEOF {
		st, err := p.read()
		if err != nil {
			return err
		}
		if err := p.apply(st); err != nil {
			return fmt.Errorf("line %d: %w", st.line, err)
		}
	}
	return nil
}

// read consumes one keyword and the operands its shape asks for.
func (p *parser) read() (statement, error) {
	if p.tok.kind == tokError {
		return statement{}, fmt.Errorf("line %d: %s", p.tok.line, p.tok.value)
	}
	if p.tok.kind != tokIdentifier {
		return statement{}, fmt.Errorf("line %d: expected keyword, got %q", p.tok.line, p.tok.value)
	}
	st := statement{keyword: p.tok.value, line: p.tok.line}
	shape, ok := shapes[st.keyword]
	if !ok {
		return st, fmt.Errorf("line %d: unknown keyword %q", st.line, st.keyword)
	}
	p.next()

	for _, op := range shape {
		switch op {
		case opPath:
			for p.tok.kind == tokIdentifier {
				st.path = append(st.path, p.tok.value)
				p.next()
			}
			if len(st.path) == 0 {
				return st, p.expected(st.keyword, "a command path")
			}
		case opName:
			if p.tok.kind != tokIdentifier {
				return st, p.expected(st.keyword, "a name")
			}
			st.ops = append(st.ops, p.tok.value)
			p.next()
		case opText:
			if p.tok.kind != tokString {
				return st, p.expected(st.keyword, "a quoted string")
			}
			st.ops = append(st.ops, p.tok.value)
			p.next()
		case opShort:
			short := ""
			if p.tok.kind == tokIdentifier && len(p.tok.value) == 1 {
				short = p.tok.value
				p.next()
			}
			st.ops = append(st.ops, short)
		}
	}
	return st, nil
}

func (p *parser) expected(keyword, what string) error {
	if p.tok.kind == tokError {
		return fmt.Errorf("line %d: %s", p.tok.line, p.tok.value)
	}
	return fmt.Errorf("line %d: %s expects %s", p.tok.line, keyword, what)
}

func (p *parser) apply(st statement) error {
	switch st.keyword {
	case "global":
		p.cmd, p.topic = nil, nil

	case "cmd":
		p.cmd = p.command(st.path)
		p.cmd.Desc = st.ops[0]
		p.topic = nil

	case "flag":
		f := &Flag{Name: st.ops[0], Type: st.ops[1], Desc: st.ops[2], Short: st.ops[3]}
		if !flagTypes[f.Type] {
			return fmt.Errorf("unknown flag type %q", f.Type)
		}
		list := &p.engine.GlobalFlags
		if p.cmd != nil {
			list = &p.cmd.Flags
		}
		for _, other := range *list {
			if other.Name == f.Name || (f.Short != "" && other.Short == f.Short) {
				return fmt.Errorf("flag %s clashes with --%s", f.Name, other.Name)
			}
		}
		*list = append(*list, f)

	case "arg":
		if p.cmd == nil {
			return fmt.Errorf("arg %s must follow a cmd", st.ops[0])
		}
		a := &Arg{Name: st.ops[0], Type: st.ops[1], Desc: st.ops[2]}
		if !argTypes[a.Type] {
			return fmt.Errorf("unknown arg type %q", a.Type)
		}
		if n := len(p.cmd.Args); a.Required() && n > 0 && !p.cmd.Args[n-1].Required() {
			return fmt.Errorf("required arg %s follows an optional one", a.Name)
		}
		p.cmd.Args = append(p.cmd.Args, a)

	case "example":
		if p.cmd == nil {
			return fmt.Errorf("example must follow a cmd")
		}
		p.cmd.Examples = append(p.cmd.Examples, st.ops[0])

	case "topic":
		for _, t := range p.engine.Topics {
			if t.Name == st.ops[0] {
				return fmt.Errorf("topic %s defined twice", t.Name)
			}
		}
		p.topic = &Topic{Name: st.ops[0], Desc: st.ops[1]}
		p.engine.Topics = append(p.engine.Topics, p.topic)

	case "text":
		if p.topic == nil {
			return fmt.Errorf("text must follow a topic")
		}
		p.topic.Text = st.ops[0]
	}
	return nil
}

// command returns the command at path, creating it and any missing parents.
func (p *parser) command(path []string) *Command {
	var parent *Command
	for i, name := range path {
		key := strings.Join(path[:i+1], "/")
		c, ok := p.cmds[key]
		if !ok {
			c = &Command{Name: name, Parent: parent}
			if parent == nil {
				p.engine.Commands = append(p.engine.Commands, c)
			} else {
				parent.Subs = append(parent.Subs, c)
			}
			p.cmds[key] = c
		}
		parent = c
	}
	return parent
}
