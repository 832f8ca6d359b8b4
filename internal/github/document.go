package github

import (
	"fmt"

	"github.com/google/go-github/v81/github"

	"reposync/internal/descriptor"
)

// DocumentOptions shape the descriptor document produced from discovered
// repositories.
type DocumentOptions struct {
	Workspace string
	// Branch overrides each repository's default branch.
	Branch string
	Labels []string
	// Protocol is "https" (default) or "ssh".
	Protocol string
	TokenEnv string
}

// BuildDocument turns discovered repositories into a descriptor document.
// Repository names become ids; names are unique per owner.
func BuildDocument(owner string, repos []*github.Repository, opts DocumentOptions) (*descriptor.Document, error) {
	doc := &descriptor.Document{
		Workspace: opts.Workspace,
		Defaults: descriptor.Defaults{
			Labels:   append([]string(nil), opts.Labels...),
			TokenEnv: opts.TokenEnv,
		},
		Repositories: make([]descriptor.Entry, 0, len(repos)),
		Metadata:     &descriptor.Metadata{GeneratedBy: "reposync discover", Owner: owner},
	}

	seen := make(map[string]string, len(repos))
	for _, r := range repos {
		if r == nil {
			continue
		}
		id := r.GetName()
		if other, dup := seen[id]; dup {
			return nil, fmt.Errorf("repositories %s and %s map to the same id %q", other, r.GetFullName(), id)
		}
		seen[id] = r.GetFullName()

		remote := r.GetCloneURL()
		if opts.Protocol == "ssh" {
			remote = r.GetSSHURL()
		}
		if remote == "" {
			return nil, fmt.Errorf("repository %s has no %s clone url", r.GetFullName(), protocolName(opts.Protocol))
		}

		branch := opts.Branch
		if branch == "" {
			branch = r.GetDefaultBranch()
		}

		if branch == "" {
			doc.Defaults.Branch = "main"
		}

		doc.Repositories = append(doc.Repositories, descriptor.Entry{
			ID:        id,
			RemoteURL: remote,
			Branch:    branch,
			Private:   repoVisibility(r) != "public",
		})
	}
	return doc, nil
}

func protocolName(p string) string {
	if p == "" {
		return "https"
	}
	return p
}
