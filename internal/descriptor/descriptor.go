// Package descriptor holds the declarative list of repositories a run
// synchronizes, together with their per-repository sync policy.
package descriptor

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Descriptor describes one upstream repository and how it should be synced.
// Values handed out by a Store are deep copies; callers may not mutate the
// store through them.
type Descriptor struct {
	ID           string
	RemoteURL    string
	Branch       string
	Labels       []string
	PartialPaths []string
	LocalPath    string
	// Private repositories require a credential; public ones tolerate none.
	Private  bool
	TokenEnv string
}

func (d Descriptor) Clone() Descriptor {
	out := d
	out.Labels = slices.Clone(d.Labels)
	out.PartialPaths = slices.Clone(d.PartialPaths)
	return out
}

func (d Descriptor) HasLabel(label string) bool {
	return slices.Contains(d.Labels, label)
}

// FullName returns "owner/name" derived from the remote URL, or the id when
// the URL has no owner component.
func (d Descriptor) FullName() string {
	ep, err := transport.NewEndpoint(d.RemoteURL)
	if err != nil {
		return d.ID
	}
	p := strings.Trim(ep.Path, "/")
	p = strings.TrimSuffix(p, ".git")
	parts := strings.Split(p, "/")
	if len(parts) < 2 {
		return d.ID
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1]
}

// Store is the immutable, ordered set of descriptors for a run.
type Store struct {
	items []Descriptor
	index map[string]int
}

// NewStore validates descriptors and builds a store preserving their order.
// Local paths must already be absolute or will be made absolute relative to
// the working directory.
func NewStore(ds []Descriptor) (*Store, error) {
	s := &Store{index: make(map[string]int, len(ds))}
	for i, d := range ds {
		d = d.Clone()
		if err := normalize(&d); err != nil {
			return nil, fmt.Errorf("repositories[%d] (%s): %w", i, d.ID, err)
		}
		if _, dup := s.index[d.ID]; dup {
			return nil, fmt.Errorf("repositories[%d]: duplicate id %q", i, d.ID)
		}
		s.index[d.ID] = len(s.items)
		s.items = append(s.items, d)
	}
	if err := checkLocalPaths(s.items); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Len() int { return len(s.items) }

// All returns copies of every descriptor in declaration order.
func (s *Store) All() []Descriptor {
	out := make([]Descriptor, 0, len(s.items))
	for _, d := range s.items {
		out = append(out, d.Clone())
	}
	return out
}

func (s *Store) Get(id string) (Descriptor, bool) {
	i, ok := s.index[id]
	if !ok {
		return Descriptor{}, false
	}
	return s.items[i].Clone(), true
}

func (s *Store) IDs() []string {
	out := make([]string, 0, len(s.items))
	for _, d := range s.items {
		out = append(out, d.ID)
	}
	return out
}

func normalize(d *Descriptor) error {
	d.ID = strings.TrimSpace(d.ID)
	if err := validateID(d.ID); err != nil {
		return err
	}

	d.RemoteURL = strings.TrimSpace(d.RemoteURL)
	if err := ValidateRemoteURL(d.RemoteURL); err != nil {
		return err
	}

	d.Branch = strings.TrimSpace(d.Branch)
	if d.Branch == "" {
		return fmt.Errorf("branch is required")
	}
	if err := validateBranch(d.Branch); err != nil {
		return err
	}

	d.Labels = dedupe(d.Labels)

	paths, err := normalizePartialPaths(d.PartialPaths)
	if err != nil {
		return err
	}
	d.PartialPaths = paths

	if strings.TrimSpace(d.LocalPath) == "" {
		return fmt.Errorf("local path is required")
	}
	abs, err := filepath.Abs(d.LocalPath)
	if err != nil {
		return fmt.Errorf("resolve local path: %w", err)
	}
	d.LocalPath = abs
	d.TokenEnv = strings.TrimSpace(d.TokenEnv)
	return nil
}

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if id == "." || id == ".." {
		return fmt.Errorf("invalid id %q", id)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return fmt.Errorf("invalid id %q: only letters, digits, '.', '_' and '-' are allowed", id)
		}
	}
	return nil
}

// ValidateRemoteURL reports whether raw is a remote the git CLI can talk to.
func ValidateRemoteURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("remote_url is required")
	}
	ep, err := transport.NewEndpoint(raw)
	if err != nil {
		return fmt.Errorf("invalid remote_url %q: %w", raw, err)
	}
	switch ep.Protocol {
	case "https", "http", "ssh", "git":
		if ep.Host == "" {
			return fmt.Errorf("invalid remote_url %q: missing host", raw)
		}
	case "file":
	default:
		return fmt.Errorf("invalid remote_url %q: unsupported protocol %q", raw, ep.Protocol)
	}
	return nil
}

func validateBranch(branch string) error {
	if strings.HasPrefix(branch, "refs/") || strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch %q must be a short branch name", branch)
	}
	if err := plumbing.NewBranchReferenceName(branch).Validate(); err != nil {
		return fmt.Errorf("invalid branch %q: %w", branch, err)
	}
	return nil
}

func normalizePartialPaths(in []string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{}, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		p = filepath.ToSlash(p)
		if strings.HasPrefix(p, "/") || filepath.IsAbs(p) {
			return nil, fmt.Errorf("partial path %q must be relative", p)
		}
		clean := filepath.ToSlash(filepath.Clean(p))
		if clean == "." {
			return nil, fmt.Errorf("partial path %q selects the whole tree; drop partial_paths instead", p)
		}
		if clean == ".." || strings.HasPrefix(clean, "../") {
			return nil, fmt.Errorf("partial path %q escapes the repository", p)
		}
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return out, nil
}

func dedupe(in []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// checkLocalPaths rejects descriptors whose working copies would overlap.
func checkLocalPaths(items []Descriptor) error {
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			a, b := items[i], items[j]
			if a.LocalPath == b.LocalPath {
				return fmt.Errorf("repositories %q and %q share local path %s", a.ID, b.ID, a.LocalPath)
			}
			if within(a.LocalPath, b.LocalPath) || within(b.LocalPath, a.LocalPath) {
				return fmt.Errorf("local paths of %q (%s) and %q (%s) are nested", a.ID, a.LocalPath, b.ID, b.LocalPath)
			}
		}
	}
	return nil
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
