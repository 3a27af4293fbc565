// Package catalog reads the user-curated list of assets to download.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/itchyny/gojq"

	"modelfetch/pkg/jsonfile"
)

// Item describes one asset to fetch.
// Immutable
type Item struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	URL        string `json:"url"`
	PreviewURL string `json:"preview_url,omitempty"`
	Dir        string `json:"dir"`
	Filename   string `json:"filename,omitempty"`
	Group      string `json:"group,omitempty"`
	// Extract unpacks a downloaded .zip or tar bundle into Dir.
	Extract    bool   `json:"extract,omitempty"`
}

// Label is the name used for the item in logs and progress views.
func (i Item) Label() string {
	if i.Name != "" {
		return i.Name
	}
	return i.ID
}

// Load reads a catalog file: a JSON array of items, optionally compressed
// (.json.zst, .json.gz).
func Load(path string) ([]Item, error) {
	items, err := jsonfile.Read[[]Item](path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	if err := Validate(*items); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return *items, nil
}

// Validate checks that every item has an id, a URL and a directory, and that
// ids are unique.
func Validate(items []Item) error {
	seen := make(map[string]bool, len(items))
	for i, it := range items {
		switch {
		case it.ID == "":
			return fmt.Errorf("item %d: missing id", i)
		case it.URL == "":
			return fmt.Errorf("item %s: missing url", it.ID)
		case it.Dir == "":
			return fmt.Errorf("item %s: missing dir", it.ID)
		case seen[it.ID]:
			return fmt.Errorf("item %s: duplicate id", it.ID)
		}
		seen[it.ID] = true
	}
	return nil
}

// Rebase returns a copy of items with relative dirs joined onto base. A
// leading ~/ expands to the home directory.
func Rebase(items []Item, base string) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		if strings.HasPrefix(it.Dir, "~/") {
			if home, err := os.UserHomeDir(); err == nil {
				it.Dir = filepath.Join(home, it.Dir[2:])
			}
		}
		if !filepath.IsAbs(it.Dir) {
			it.Dir = filepath.Join(base, it.Dir)
		}
		out[i] = it
	}
	return out
}

// ByGroup returns the items tagged with group. An empty group selects all.
func ByGroup(items []Item, group string) []Item {
	if group == "" {
		return items
	}
	var out []Item
	for _, it := range items {
		if it.Group == group {
			out = append(out, it)
		}
	}
	return out
}

// Filter keeps the items for which the jq expression yields a truthy value,
// e.g. `.group == "lora" and (.url | test("huggingface"))`.
func Filter(items []Item, query string) ([]Item, error) {
	if query == "" {
		return items, nil
	}
	q, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("invalid query %q: %w", query, err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("invalid query %q: %w", query, err)
	}

	var out []Item
	for _, it := range items {
		v, err := toJQ(it)
		if err != nil {
			return nil, err
		}
		ok, err := matches(code, v)
		if err != nil {
			return nil, fmt.Errorf("query %q on %s: %w", query, it.ID, err)
		}
		if ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func matches(code *gojq.Code, v any) (bool, error) {
	iter := code.Run(v)
	for {
		res, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, ok := res.(error); ok {
			return false, err
		}
		if res != nil && res != false {
			return true, nil
		}
	}
}

// toJQ converts an item to the generic map form gojq operates on.
func toJQ(it Item) (any, error) {
	data, err := json.Marshal(it)
	if err != nil {
		return nil, err
	}
	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
