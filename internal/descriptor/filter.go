package descriptor

import (
	"fmt"
	"path"
	"slices"
	"strings"
)

// Filter narrows a store to a targeted subset. Empty fields do not filter.
type Filter struct {
	// IDs selects repositories by id. Unknown ids are an error.
	IDs []string
	// Labels keeps repositories carrying at least one of the labels.
	Labels []string
	// Include and Exclude are path.Match patterns. A pattern containing '/'
	// is matched against "owner/name" from the remote URL, otherwise
	// against the id.
	Include []string
	Exclude []string
}

func (f Filter) Empty() bool {
	return len(f.IDs) == 0 && len(f.Labels) == 0 && len(f.Include) == 0 && len(f.Exclude) == 0
}

// Select returns a new store holding only the descriptors that pass f, in
// declaration order.
func (s *Store) Select(f Filter) (*Store, error) {
	for _, id := range f.IDs {
		if _, ok := s.index[id]; !ok {
			return nil, fmt.Errorf("unknown repository id %q", id)
		}
	}

	out := &Store{index: make(map[string]int)}
	for _, d := range s.items {
		if !f.matches(d) {
			continue
		}
		out.index[d.ID] = len(out.items)
		out.items = append(out.items, d.Clone())
	}
	return out, nil
}

func (f Filter) matches(d Descriptor) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, d.ID) {
		return false
	}
	if len(f.Labels) > 0 && !matchesAnyLabel(f.Labels, d.Labels) {
		return false
	}

	fullName := d.FullName()
	if len(f.Include) > 0 && !matchesAnyPattern(f.Include, fullName, d.ID) {
		return false
	}
	if len(f.Exclude) > 0 && matchesAnyPattern(f.Exclude, fullName, d.ID) {
		return false
	}
	return true
}

func matchesAnyLabel(wanted, labels []string) bool {
	for _, w := range wanted {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if slices.Contains(labels, w) {
			return true
		}
	}
	return false
}

func matchesAnyPattern(patterns []string, fullName, id string) bool {
	for _, p := range patterns {
		if matchPattern(p, fullName, id) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, fullName, id string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	if strings.Contains(pattern, "/") {
		matched, _ := path.Match(pattern, fullName)
		return matched
	}
	matched, _ := path.Match(pattern, id)
	return matched
}
