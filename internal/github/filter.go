package github

import (
	"path"
	"slices"
	"strings"

	"github.com/google/go-github/v81/github"
)

// FilterRepos applies the visibility, archived, fork, topic and name
// filters of q, then caps the result at q.MaxRepos.
func FilterRepos(repos []*github.Repository, q Query) []*github.Repository {
	visibility := strings.TrimSpace(q.Visibility)
	if visibility == "" {
		visibility = "all"
	}
	archivedPolicy := strings.TrimSpace(q.Archived)
	if archivedPolicy == "" {
		archivedPolicy = "exclude"
	}
	forksPolicy := strings.TrimSpace(q.Forks)
	if forksPolicy == "" {
		forksPolicy = "exclude"
	}

	var filtered []*github.Repository
	for _, r := range repos {
		if r == nil {
			continue
		}
		if visibility != "all" && visibility != repoVisibility(r) {
			continue
		}
		if !keep(archivedPolicy, r.GetArchived()) {
			continue
		}
		if !keep(forksPolicy, r.GetFork()) {
			continue
		}
		if len(q.Topics) > 0 && !matchesAnyTopic(q.Topics, r.Topics) {
			continue
		}

		fullName := r.GetFullName()
		repoName := r.GetName()
		if len(q.Include) > 0 && !matchesAnyPattern(q.Include, fullName, repoName) {
			continue
		}
		if len(q.Exclude) > 0 && matchesAnyPattern(q.Exclude, fullName, repoName) {
			continue
		}

		filtered = append(filtered, r)
	}

	if q.MaxRepos > 0 && len(filtered) > q.MaxRepos {
		filtered = filtered[:q.MaxRepos]
	}
	return filtered
}

// keep applies an exclude|include|only policy to a boolean attribute.
func keep(policy string, set bool) bool {
	switch policy {
	case "exclude":
		return !set
	case "only":
		return set
	}
	return true
}

func repoVisibility(r *github.Repository) string {
	if v := strings.TrimSpace(r.GetVisibility()); v != "" {
		return v
	}
	if r.GetPrivate() {
		return "private"
	}
	return "public"
}

func matchesAnyTopic(requiredTopics, repoTopics []string) bool {
	for _, required := range requiredTopics {
		required = strings.TrimSpace(required)
		if required != "" && slices.Contains(repoTopics, required) {
			return true
		}
	}
	return false
}

func matchesAnyPattern(patterns []string, fullName, repoName string) bool {
	for _, p := range patterns {
		if matchPattern(p, fullName, repoName) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, fullName, repoName string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	// A pattern with an owner component matches the full name; otherwise the
	// repository name, so "*-service" works for any owner.
	if strings.Contains(pattern, "/") {
		matched, _ := path.Match(pattern, fullName)
		return matched
	}
	matched, _ := path.Match(pattern, repoName)
	return matched
}
