package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/equityscope/research-orchestrator/internal/domain"
)

// Watchlist is a local symbol list that can stand in for, or extend, the
// backend catalog. Stored as YAML so it is comfortable to hand-edit.
type Watchlist struct {
	// Symbols always included in a batch, ahead of the catalog
	Symbols []string `yaml:"symbols"`
	// Exclude removes symbols from the combined list
	Exclude []string `yaml:"exclude"`
	// Only restricts batches to the listed symbols when true
	Only bool `yaml:"only"`
}

// LoadWatchlist reads a watchlist file. A missing file yields an empty
// watchlist, not an error.
func LoadWatchlist(path string) (*Watchlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Watchlist{}, nil
		}
		return nil, err
	}

	var wl Watchlist
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("parsing watchlist %s: %w", path, err)
	}

	normalized := wl.Symbols[:0]
	for _, s := range wl.Symbols {
		sym, err := domain.ParseSymbol(s)
		if err != nil {
			return nil, fmt.Errorf("watchlist %s: %w", path, err)
		}
		normalized = append(normalized, sym)
	}
	wl.Symbols = normalized

	excluded := wl.Exclude[:0]
	for _, s := range wl.Exclude {
		sym, err := domain.ParseSymbol(s)
		if err != nil {
			return nil, fmt.Errorf("watchlist %s: %w", path, err)
		}
		excluded = append(excluded, sym)
	}
	wl.Exclude = excluded

	return &wl, nil
}

// Apply combines the backend catalog with the watchlist: watchlist symbols
// first, then catalog symbols, minus exclusions. With Only set the catalog
// is ignored entirely.
func (w *Watchlist) Apply(catalog []string) []string {
	excluded := make(map[string]bool, len(w.Exclude))
	for _, s := range w.Exclude {
		excluded[s] = true
	}

	var combined []string
	combined = append(combined, w.Symbols...)
	if !w.Only {
		combined = append(combined, catalog...)
	}

	seen := make(map[string]bool, len(combined))
	out := combined[:0]
	for _, s := range combined {
		if seen[s] || excluded[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
