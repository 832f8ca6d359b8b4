package github

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/google/go-github/v81/github"
)

// DefaultDiscoveryLimit bounds how many repositories are listed for one
// owner before filtering.
const DefaultDiscoveryLimit = 1000

// Query selects repositories of one GitHub account.
type Query struct {
	Owner string
	// Visibility is all, public, private or internal.
	Visibility string
	// Archived and Forks are exclude, include or only.
	Archived string
	Forks    string
	Topics   []string
	// Include and Exclude are path.Match patterns against the repository
	// name, or against owner/name when they contain '/'.
	Include []string
	Exclude []string
	// MaxRepos caps the result after filtering; 0 means no cap.
	MaxRepos int
	// ListLimit caps how many repositories are listed; 0 means DefaultDiscoveryLimit.
	ListLimit int
	// UserForks overrides Forks with "include" when the owner turns out to
	// be a user account.
	UserForks bool
}

// Discover lists the owner's repositories, applies the query filters and
// returns them sorted by full name.
func Discover(ctx context.Context, client *Client, q Query) ([]*github.Repository, error) {
	if client == nil || client.Client == nil {
		return nil, fmt.Errorf("discover: github client is nil")
	}
	owner, err := NormalizeAccountSelector(q.Owner)
	if err != nil {
		return nil, fmt.Errorf("invalid owner value: %w", err)
	}
	if owner == "" {
		return nil, fmt.Errorf("discover: owner is required")
	}

	limit := q.ListLimit
	if limit <= 0 {
		limit = DefaultDiscoveryLimit
	}

	repos, isUser, err := listOwnerRepos(ctx, client, owner, limit)
	if err != nil {
		return nil, err
	}
	if isUser && q.UserForks {
		q.Forks = "include"
	}
	repos = dedupeRepos(repos)
	slices.SortFunc(repos, func(a, b *github.Repository) int {
		return strings.Compare(strings.ToLower(a.GetFullName()), strings.ToLower(b.GetFullName()))
	})
	return FilterRepos(repos, q), nil
}

// listOwnerRepos picks the listing endpoint for owner: the authenticated
// user's own endpoint (which includes private repositories), the
// organization endpoint, or the public user endpoint.
func listOwnerRepos(ctx context.Context, client *Client, owner string, limit int) (repos []*github.Repository, isUser bool, err error) {
	gc := client.Client

	if me, _, err := gc.Users.Get(ctx, ""); err == nil && strings.EqualFold(me.GetLogin(), owner) {
		opts := &github.RepositoryListByAuthenticatedUserOptions{
			ListOptions: github.ListOptions{PerPage: 100},
			Visibility:  "all",
			Affiliation: "owner",
		}
		repos, err = paginate(limit, func(page int) ([]*github.Repository, *github.Response, error) {
			opts.Page = page
			return gc.Repositories.ListByAuthenticatedUser(ctx, opts)
		})
		return repos, true, err
	}

	account, _, err := gc.Users.Get(ctx, owner)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up owner %s: %s", owner, DescribeError(err, false))
	}

	if strings.EqualFold(account.GetType(), "Organization") {
		opts := &github.RepositoryListByOrgOptions{
			ListOptions: github.ListOptions{PerPage: 100},
			Type:        "all",
		}
		repos, err = paginate(limit, func(page int) ([]*github.Repository, *github.Response, error) {
			opts.Page = page
			return gc.Repositories.ListByOrg(ctx, owner, opts)
		})
		return repos, false, err
	}

	opts := &github.RepositoryListByUserOptions{
		ListOptions: github.ListOptions{PerPage: 100},
		Type:        "owner",
	}
	repos, err = paginate(limit, func(page int) ([]*github.Repository, *github.Response, error) {
		opts.Page = page
		return gc.Repositories.ListByUser(ctx, owner, opts)
	})
	return repos, true, err
}

// paginate follows NextPage until limit repositories are collected or the
// listing ends.
func paginate(limit int, list func(page int) ([]*github.Repository, *github.Response, error)) ([]*github.Repository, error) {
	out := make([]*github.Repository, 0, min(limit, 100))
	page := 0
	for {
		repos, resp, err := list(page)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories: %s", DescribeError(err, false))
		}
		for _, repo := range repos {
			if len(out) >= limit {
				return out, nil
			}
			out = append(out, repo)
		}
		if len(out) >= limit || resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		page = resp.NextPage
	}
}

func dedupeRepos(in []*github.Repository) []*github.Repository {
	seen := make(map[string]struct{}, len(in))
	out := make([]*github.Repository, 0, len(in))
	for _, r := range in {
		if r == nil {
			continue
		}
		key := strings.ToLower(r.GetFullName())
		if r.GetID() != 0 {
			key = fmt.Sprintf("id:%d", r.GetID())
		}
		if key == "" {
			out = append(out, r)
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// NormalizeAccountSelector accepts a login or a github.com account URL
// (including /orgs/<name> and /users/<name>) and returns the login.
func NormalizeAccountSelector(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if strings.HasPrefix(raw, "github.com/") || strings.HasPrefix(raw, "www.github.com/") {
		raw = "https://" + raw
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("%q", raw)
		}
		host := strings.ToLower(u.Hostname())
		if host == "www.github.com" {
			host = DefaultHost
		}
		if host != DefaultHost {
			return "", fmt.Errorf("%q", raw)
		}
		parts := strings.FieldsFunc(strings.Trim(u.Path, "/"), func(r rune) bool { return r == '/' })
		if len(parts) == 0 {
			return "", fmt.Errorf("%q", raw)
		}
		if parts[0] == "orgs" || parts[0] == "users" {
			if len(parts) < 2 {
				return "", fmt.Errorf("%q", raw)
			}
			return parts[1], nil
		}
		return parts[0], nil
	}
	if strings.Contains(raw, "/") {
		return "", fmt.Errorf("%q", raw)
	}
	return raw, nil
}
