package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Rule is one compiled Starlark host rule. A rule file defines
//
//	def accepts(url): ...   # bool, or fail() when the URL is recognised but unusable
//	def resolve(url): ...   # the direct download URL
//	def filename(url): ...  # optional, a suggested filename
//
// Immutable
type Rule struct {
	Name    string
	globals starlark.StringDict
}

// ParseRule compiles a rule from source. The resulting globals are frozen, so
// one rule may be called from many goroutines.
func ParseRule(name, source string) (*Rule, error) {
	thread := newThread(name)
	globals, err := starlark.ExecFile(thread, name+".star", source, scriptBuiltins())
	if err != nil {
		return nil, fmt.Errorf("failed to load rule %s: %w", name, err)
	}
	for _, fn := range []string{"accepts", "resolve"} {
		if _, ok := globals[fn].(starlark.Callable); !ok {
			return nil, fmt.Errorf("rule %s: missing function %s(url)", name, fn)
		}
	}
	return &Rule{Name: name, globals: globals}, nil
}

func (r *Rule) call(fn, rawURL string) (starlark.Value, error) {
	callable, ok := r.globals[fn].(starlark.Callable)
	if !ok {
		return starlark.None, nil
	}
	return starlark.Call(newThread(r.Name), callable, starlark.Tuple{starlark.String(rawURL)}, nil)
}

func (r *Rule) accepts(rawURL string) (bool, error) {
	v, err := r.call("accepts", rawURL)
	if err != nil {
		return false, err
	}
	return bool(v.Truth()), nil
}

func (r *Rule) callString(fn, rawURL string) (string, error) {
	v, err := r.call(fn, rawURL)
	if err != nil {
		return "", err
	}
	if v == starlark.None {
		return "", nil
	}
	s, ok := starlark.AsString(v)
	if !ok {
		return "", fmt.Errorf("rule %s: %s returned %s, want string", r.Name, fn, v.Type())
	}
	return s, nil
}

// Functions lists the callables the rule defines.
func (r *Rule) Functions() []string {
	var names []string
	for name, v := range r.globals {
		if _, ok := v.(starlark.Callable); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Trace is what a rule makes of one URL.
type Trace struct {
	Accepts  bool
	Target   string
	Filename string
}

// Trace runs every function of the rule against rawURL without touching the
// network. A rule that does not accept the URL leaves Target empty.
func (r *Rule) Trace(rawURL string) (Trace, error) {
	var t Trace
	ok, err := r.accepts(rawURL)
	if err != nil {
		return t, fmt.Errorf("accepts: %w", err)
	}
	if t.Accepts = ok; !ok {
		return t, nil
	}
	if t.Target, err = r.callString("resolve", rawURL); err != nil {
		return t, fmt.Errorf("resolve: %w", err)
	}
	if t.Filename, err = r.callString("filename", rawURL); err != nil {
		return t, fmt.Errorf("filename: %w", err)
	}
	return t, nil
}

// Script services URLs matched by user rules. Rules rewrite a page URL into a
// direct one and the transfer is delegated to HTTP.
// Immutable
type Script struct {
	rules []*Rule
	http  *HTTP
}

// NewScript creates a provider over rules, in the given order.
func NewScript(http *HTTP, rules ...*Rule) *Script {
	return &Script{rules: rules, http: http}
}

// LoadScripts compiles every *.star file in dir, sorted by name. A missing dir
// yields a provider with no rules.
func LoadScripts(dir string, http *HTTP) (*Script, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return NewScript(http), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rules dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".star") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var rules []*Rule
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		rule, err := ParseRule(strings.TrimSuffix(name, ".star"), string(data))
		if err != nil {
			return nil, err
		}
		slog.Debug("Loaded rule", "name", rule.Name, "dir", dir)
		rules = append(rules, rule)
	}
	return NewScript(http, rules...), nil
}

// Len returns the number of loaded rules.
func (s *Script) Len() int { return len(s.rules) }

// Rules returns the loaded rules in match order.
func (s *Script) Rules() []*Rule { return s.rules }

func (s *Script) Name() string { return "script" }

func (s *Script) Accepts(rawURL string) (bool, error) {
	rule, err := s.match(rawURL)
	return rule != nil, err
}

func (s *Script) match(rawURL string) (*Rule, error) {
	for _, r := range s.rules {
		ok, err := r.accepts(rawURL)
		if err != nil {
			return nil, unsupported("rule %s: %v", r.Name, err)
		}
		if ok {
			return r, nil
		}
	}
	return nil, nil
}

func (s *Script) direct(rawURL string) (*Rule, string, error) {
	rule, err := s.match(rawURL)
	if err != nil {
		return nil, "", err
	}
	if rule == nil {
		return nil, "", fmt.Errorf("%w: %s", ErrNoProviderFound, rawURL)
	}
	target, err := rule.callString("resolve", rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("rule %s: resolve: %w", rule.Name, err)
	}
	if target == "" {
		return nil, "", fmt.Errorf("rule %s: resolve returned an empty URL", rule.Name)
	}
	return rule, target, nil
}

func (s *Script) ResolveFilename(ctx context.Context, rawURL string) string {
	rule, target, err := s.direct(rawURL)
	if err != nil {
		slog.Debug("Rule resolve failed", "url", rawURL, "error", err)
		return ""
	}
	if name, err := rule.callString("filename", rawURL); err == nil && name != "" {
		return safeBase(name)
	}
	return s.http.ResolveFilename(ctx, target)
}

func (s *Script) Download(ctx context.Context, rawURL, destination, label string) *Stream {
	_, target, err := s.direct(rawURL)
	if err != nil {
		return FailedStream(&TransferError{URL: rawURL, Err: err})
	}
	slog.Debug("Rule rewrote URL", "url", rawURL, "target", target)
	return s.http.Download(ctx, target, destination, label)
}

func newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(thread *starlark.Thread, msg string) {
			slog.Info(msg, "rule", thread.Name)
		},
	}
}

func scriptBuiltins() starlark.StringDict {
	return starlark.StringDict{
		"struct":   starlark.NewBuiltin("struct", starlarkstruct.Make),
		"urlparse": starlark.NewBuiltin("urlparse", urlparse),
	}
}

// urlparse splits a URL into a struct with scheme, host, path, query (a dict
// of first values) and fragment.
func urlparse(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var raw string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "url", &raw); err != nil {
		return nil, err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}

	query := starlark.NewDict(0)
	values := u.Query()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := query.SetKey(starlark.String(k), starlark.String(values.Get(k))); err != nil {
			return nil, err
		}
	}

	return starlarkstruct.FromStringDict(starlark.String("url"), starlark.StringDict{
		"scheme":   starlark.String(u.Scheme),
		"host":     starlark.String(strings.ToLower(u.Hostname())),
		"path":     starlark.String(u.Path),
		"query":    query,
		"fragment": starlark.String(u.Fragment),
	}), nil
}
