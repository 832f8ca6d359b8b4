// Package labels turns a repository's declared labels into a sync strategy.
//
// Rules are an ordered table evaluated against labels in declaration order;
// the first label that matches a mode rule decides the checkout mode.
// Modifier rules (shallow, force-refresh) adjust the chosen strategy without
// competing for the mode.
package labels

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"reposync/internal/descriptor"
)

const (
	Full         = "full"
	MirrorOnly   = "mirror-only"
	Sparse       = "sparse"
	Shallow      = "shallow"
	ForceRefresh = "force-refresh"
)

var ErrInvalidLabelCombination = errors.New("invalid label combination")

type Mode string

const (
	ModeFull Mode = "full"
	// ModeSparse checks out IncludePaths in cone mode. Cone mode always
	// keeps the files at the repository root too, so the working tree is
	// the include paths plus top-level files, never nested siblings.
	ModeSparse Mode = "sparse"
	ModeMirror Mode = "mirror"
)

// SyncStrategy is what the executor needs to know about how to materialize a
// repository locally.
type SyncStrategy struct {
	Mode Mode `json:"mode"`
	// Full is true whenever the whole tree is checked out (or mirrored).
	Full         bool     `json:"full"`
	IncludePaths []string `json:"include_paths,omitempty"`
	// Depth limits history; 0 means complete history.
	Depth        int    `json:"depth,omitempty"`
	ForceRefresh bool   `json:"force_refresh,omitempty"`
	MatchedLabel string `json:"matched_label,omitempty"`
}

// String renders a compact, stable description such as "sparse[docs,src]+shallow".
func (s SyncStrategy) String() string {
	var b strings.Builder
	b.WriteString(string(s.Mode))
	if s.Mode == ModeSparse {
		b.WriteString("[" + strings.Join(s.IncludePaths, ",") + "]")
	}
	if s.Depth > 0 {
		b.WriteString("+shallow")
	}
	if s.ForceRefresh {
		b.WriteString("+force-refresh")
	}
	return b.String()
}

type RuleKind int

const (
	// KindMode rules compete; the first matching one sets the mode.
	KindMode RuleKind = iota
	// KindModifier rules all apply.
	KindModifier
)

// Rule is one tagged entry of the resolver table.
type Rule struct {
	Label string
	Kind  RuleKind
	Apply func(s *SyncStrategy, d descriptor.Descriptor)
}

// Resolver evaluates an ordered rule table. The zero value is not usable;
// build one with New or Default.
type Resolver struct {
	rules     []Rule
	exclusive [][2]string
}

func New(rules []Rule, exclusive [][2]string) *Resolver {
	return &Resolver{
		rules:     slices.Clone(rules),
		exclusive: slices.Clone(exclusive),
	}
}

// Default returns the resolver for the built-in labels.
func Default() *Resolver {
	return New(DefaultRules(), DefaultExclusions())
}

func DefaultRules() []Rule {
	return []Rule{
		{Label: Full, Kind: KindMode, Apply: applyFull},
		{Label: MirrorOnly, Kind: KindMode, Apply: applyMirror},
		{Label: Sparse, Kind: KindMode, Apply: applySparse},
		{Label: Shallow, Kind: KindModifier, Apply: func(s *SyncStrategy, _ descriptor.Descriptor) { s.Depth = 1 }},
		{Label: ForceRefresh, Kind: KindModifier, Apply: func(s *SyncStrategy, _ descriptor.Descriptor) { s.ForceRefresh = true }},
	}
}

func DefaultExclusions() [][2]string {
	return [][2]string{
		{Full, MirrorOnly},
		{Full, Sparse},
		{Sparse, MirrorOnly},
		{MirrorOnly, Shallow},
	}
}

func applyFull(s *SyncStrategy, _ descriptor.Descriptor) {
	s.Mode = ModeFull
	s.Full = true
	s.IncludePaths = nil
}

func applyMirror(s *SyncStrategy, _ descriptor.Descriptor) {
	s.Mode = ModeMirror
	s.Full = true
	s.IncludePaths = nil
}

func applySparse(s *SyncStrategy, d descriptor.Descriptor) {
	if len(d.PartialPaths) == 0 {
		applyFull(s, d)
		return
	}
	s.Mode = ModeSparse
	s.Full = false
	s.IncludePaths = slices.Clone(d.PartialPaths)
}

// Resolve computes the strategy for d. Unknown labels are ignored; they are
// free-form tags used for targeting.
func (r *Resolver) Resolve(d descriptor.Descriptor) (SyncStrategy, error) {
	if err := r.checkExclusive(d); err != nil {
		return SyncStrategy{}, err
	}

	var s SyncStrategy
	moded := false
	for _, label := range d.Labels {
		for _, rule := range r.rules {
			if rule.Label != label {
				continue
			}
			switch rule.Kind {
			case KindMode:
				if moded {
					continue
				}
				rule.Apply(&s, d)
				s.MatchedLabel = label
				moded = true
			case KindModifier:
				rule.Apply(&s, d)
			}
		}
	}

	if !moded {
		// Implicit rule: partial paths mean sparse, otherwise full.
		applySparse(&s, d)
	}
	if len(d.PartialPaths) == 0 {
		s.Full = true
	}
	return s, nil
}

func (r *Resolver) checkExclusive(d descriptor.Descriptor) error {
	for _, pair := range r.exclusive {
		if d.HasLabel(pair[0]) && d.HasLabel(pair[1]) {
			return fmt.Errorf("%w: %q and %q are mutually exclusive", ErrInvalidLabelCombination, pair[0], pair[1])
		}
	}
	if d.HasLabel(MirrorOnly) && len(d.PartialPaths) > 0 {
		return fmt.Errorf("%w: %q cannot be combined with partial paths", ErrInvalidLabelCombination, MirrorOnly)
	}
	return nil
}
