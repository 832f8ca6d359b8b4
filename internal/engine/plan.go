package engine

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"reposync/internal/descriptor"
	"reposync/internal/labels"
	"reposync/internal/vcs"
)

// Plan actions.
const (
	ActionClone   = "clone"
	ActionFetch   = "fetch"
	ActionBlocked = "blocked"
	ActionInvalid = "invalid"
)

// PlanEntry is what a sync would do for one repository.
type PlanEntry struct {
	ID        string              `json:"id"`
	Strategy  labels.SyncStrategy `json:"strategy"`
	Action    string              `json:"action"`
	LocalPath string              `json:"local_path"`
	Note      string              `json:"note,omitempty"`
}

// RepoPlan is the dry-run view of a store, in declaration order.
type RepoPlan struct {
	Entries []PlanEntry `json:"entries"`
}

// Plan resolves every repository's strategy and inspects its local path
// without running git or resolving credentials.
func Plan(store *descriptor.Store, resolver *labels.Resolver) (*RepoPlan, error) {
	if store == nil {
		return nil, fmt.Errorf("descriptor store is nil")
	}
	if resolver == nil {
		resolver = labels.Default()
	}

	p := &RepoPlan{Entries: make([]PlanEntry, 0, store.Len())}
	for _, d := range store.All() {
		entry := PlanEntry{ID: d.ID, LocalPath: d.LocalPath}

		s, err := resolver.Resolve(d)
		if err != nil {
			entry.Action = ActionInvalid
			entry.Note = err.Error()
			p.Entries = append(p.Entries, entry)
			continue
		}
		entry.Strategy = s

		st, err := vcs.Inspect(d.LocalPath)
		switch {
		case err != nil:
			entry.Action = ActionBlocked
			entry.Note = err.Error()
		case st.HasCheckout():
			entry.Action = ActionFetch
			if msg := modeMismatch(st, s); msg != "" {
				entry.Action = ActionBlocked
				entry.Note = msg
			}
		case !st.Exists || st.Empty:
			entry.Action = ActionClone
		default:
			entry.Action = ActionBlocked
			entry.Note = "local path exists and is not a git repository"
		}
		p.Entries = append(p.Entries, entry)
	}
	return p, nil
}

// Blocked reports whether any entry cannot be synced as planned.
func (p *RepoPlan) Blocked() bool {
	for _, e := range p.Entries {
		if e.Action == ActionBlocked || e.Action == ActionInvalid {
			return true
		}
	}
	return false
}

// Render writes the plan as a table.
func (p *RepoPlan) Render(w io.Writer) error {
	table := tablewriter.NewTable(w)
	table.Header("ID", "Mode", "Action", "Paths", "Local Path", "Note")
	for _, e := range p.Entries {
		mode := "-"
		paths := "-"
		if e.Action != ActionInvalid {
			mode = e.Strategy.String()
			if len(e.Strategy.IncludePaths) > 0 {
				paths = strings.Join(e.Strategy.IncludePaths, ",")
			}
		}
		if err := table.Append([]string{e.ID, mode, e.Action, paths, e.LocalPath, e.Note}); err != nil {
			return err
		}
	}
	return table.Render()
}
