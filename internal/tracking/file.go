package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileMutator keeps the tracked state in a YAML file. Writes go to a temp file
// in the same directory and are renamed over the original.
type FileMutator struct {
	mu   sync.Mutex
	path string
}

func NewFileMutator(path string) *FileMutator {
	return &FileMutator{path: path}
}

// Load returns the current state. A missing file is an empty state.
func (m *FileMutator) Load(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read()
}

func (m *FileMutator) AddRepos(ctx context.Context, repos []string) ([]string, error) {
	return m.update(ctx, "add_repos", func(s *State) []string {
		var changed []string
		s.Repositories, changed = addAll(s.Repositories, repos, strings.EqualFold)
		return changed
	})
}

func (m *FileMutator) RemoveRepos(ctx context.Context, repos []string) ([]string, error) {
	return m.update(ctx, "remove_repos", func(s *State) []string {
		var changed []string
		s.Repositories, changed = removeAll(s.Repositories, repos, strings.EqualFold)
		return changed
	})
}

func (m *FileMutator) AddSearchTerms(ctx context.Context, terms []string) ([]string, error) {
	return m.update(ctx, "add_terms", func(s *State) []string {
		var changed []string
		s.SearchTerms, changed = addAll(s.SearchTerms, trimmed(terms), strings.EqualFold)
		return changed
	})
}

func (m *FileMutator) RemoveSearchTerms(ctx context.Context, terms []string) ([]string, error) {
	return m.update(ctx, "remove_terms", func(s *State) []string {
		var changed []string
		s.SearchTerms, changed = removeAll(s.SearchTerms, trimmed(terms), strings.EqualFold)
		return changed
	})
}

func (m *FileMutator) ApplyConfigDelta(ctx context.Context, delta map[string]any) ([]string, error) {
	return m.update(ctx, "config_delta", func(s *State) []string {
		if s.Config == nil {
			s.Config = make(map[string]any)
		}
		changed := mergeConfig(s.Config, delta, "")
		sort.Strings(changed)
		return changed
	})
}

func (m *FileMutator) update(ctx context.Context, op string, fn func(*State) []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.read()
	if err != nil {
		return nil, err
	}

	changed := fn(&state)
	if len(changed) == 0 {
		return nil, nil
	}

	if err := m.write(state); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "tracked state updated", "op", op, "changed", len(changed), "path", m.path)
	return changed, nil
}

func (m *FileMutator) read() (State, error) {
	var state State

	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state, nil
		}
		return state, fmt.Errorf("reading tracked state: %w", err)
	}

	if err := yaml.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("decoding tracked state %s: %w", m.path, err)
	}
	return state, nil
}

func (m *FileMutator) write(state State) error {
	if state.Repositories == nil {
		state.Repositories = []string{}
	}
	if state.SearchTerms == nil {
		state.SearchTerms = []string{}
	}

	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding tracked state: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tracking-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing tracked state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing tracked state: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("replacing tracked state: %w", err)
	}
	return nil
}

func addAll(set, items []string, eq func(a, b string) bool) ([]string, []string) {
	var added []string
	for _, item := range items {
		if item == "" || contains(set, item, eq) {
			continue
		}
		set = append(set, item)
		added = append(added, item)
	}
	return set, added
}

func removeAll(set, items []string, eq func(a, b string) bool) ([]string, []string) {
	var removed []string
	kept := set[:0:0]
	for _, existing := range set {
		if contains(items, existing, eq) {
			removed = append(removed, existing)
			continue
		}
		kept = append(kept, existing)
	}
	return kept, removed
}

func contains(set []string, item string, eq func(a, b string) bool) bool {
	for _, s := range set {
		if eq(s, item) {
			return true
		}
	}
	return false
}

func trimmed(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// mergeConfig merges nested maps key by key; any other value replaces the
// existing one.
func mergeConfig(dst, delta map[string]any, prefix string) []string {
	var changed []string
	for k, v := range delta {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		if sub, ok := v.(map[string]any); ok {
			existing, ok := dst[k].(map[string]any)
			if !ok {
				existing = make(map[string]any)
			}
			nested := mergeConfig(existing, sub, key)
			if len(nested) > 0 {
				dst[k] = existing
				changed = append(changed, nested...)
			}
			continue
		}

		if old, ok := dst[k]; ok && reflect.DeepEqual(normalize(old), normalize(v)) {
			continue
		}
		dst[k] = v
		changed = append(changed, key)
	}
	return changed
}

// normalize folds the numeric types produced by yaml and json decoding so a
// re-applied delta compares equal.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case []any:
		out := make([]any, len(n))
		for i := range n {
			out[i] = normalize(n[i])
		}
		return out
	default:
		return v
	}
}
