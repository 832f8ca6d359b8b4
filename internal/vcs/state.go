package vcs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalState describes what currently occupies a descriptor's local path.
type LocalState struct {
	Exists bool
	// Empty is true when the path is a directory with no entries.
	Empty bool
	// Repo is true for a working tree (".git" present).
	Repo bool
	// Bare is true for a bare or mirror repository.
	Bare   bool
	Sparse bool
}

// HasCheckout reports whether a previous sync left something to fetch into.
func (s LocalState) HasCheckout() bool { return s.Repo || s.Bare }

// Inspect looks at path without running git.
func Inspect(path string) (LocalState, error) {
	var st LocalState
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	st.Exists = true
	if !info.IsDir() {
		return st, fmt.Errorf("%s exists and is not a directory", path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return st, err
	}
	if len(entries) == 0 {
		st.Empty = true
		return st, nil
	}

	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
		st.Repo = true
		gitDir := filepath.Join(path, ".git")
		st.Sparse = sparseEnabled(filepath.Join(gitDir, "config.worktree")) || sparseEnabled(filepath.Join(gitDir, "config"))
		return st, nil
	}
	if isBare(path) {
		st.Bare = true
	}
	return st, nil
}

func isBare(path string) bool {
	for _, name := range []string{"HEAD", "objects", "refs", "config"} {
		if _, err := os.Stat(filepath.Join(path, name)); err != nil {
			return false
		}
	}
	return true
}

// sparseEnabled reads core.sparseCheckout from a repository config file.
// Newer git writes it to config.worktree.
func sparseEnabled(configPath string) bool {
	f, err := os.Open(configPath)
	if err != nil {
		return false
	}
	defer f.Close()

	inCore := false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "[") {
			inCore = strings.EqualFold(strings.Trim(line, "[] \t"), "core")
			continue
		}
		if !inCore {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(k), "sparseCheckout") {
			return strings.EqualFold(strings.TrimSpace(v), "true")
		}
	}
	return false
}

// StagingPath returns the sibling directory a fresh clone is assembled in
// before being moved to localPath.
func StagingPath(localPath string) string {
	return filepath.Join(filepath.Dir(localPath), "."+filepath.Base(localPath)+".reposync-staging")
}

// Promote moves a completed staging clone into place. localPath must be
// absent or an empty directory.
func Promote(staging, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	if err := os.Remove(localPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear %s: %w", localPath, err)
	}
	if err := os.Rename(staging, localPath); err != nil {
		return fmt.Errorf("move clone into %s: %w", localPath, err)
	}
	return nil
}

// Discard removes a staging directory left behind by a failed clone.
func Discard(staging string) error {
	return os.RemoveAll(staging)
}
