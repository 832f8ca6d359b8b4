package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"reposync/internal/descriptor"
	"reposync/internal/health"
	"reposync/internal/labels"
	"reposync/internal/retry"
	"reposync/internal/vcs"
)

// StepInspect is the attempt step reported when the local path cannot hold
// a checkout.
const StepInspect = "inspect"

// repoSync performs one attempt of a repository's sync sequence:
//
//	ls-remote -> clone | fetch (+ sparse-checkout, checkout, merge/reset, clean) -> rev-parse
//
// A shallow fetch first counts local commits (rev-list) so its reset never
// discards them.
//
// A successful attempt leaves remote and local holding the commits the
// health decision compares.
type repoSync struct {
	exec       vcs.Executor
	d          descriptor.Descriptor
	strategy   labels.SyncStrategy
	credential string
	opTimeout  time.Duration

	remote string
	local  string
	// diverged is set when the local branch could not be moved to the
	// remote tip without discarding local work.
	diverged bool
}

func (s *repoSync) request(op vcs.Op, dir string) vcs.Request {
	return vcs.Request{
		Op:         op,
		Descriptor: s.d,
		Strategy:   s.strategy,
		Credential: s.credential,
		Dir:        dir,
		Timeout:    s.opTimeout,
	}
}

// attempt is a retry.AttemptFunc.
func (s *repoSync) attempt(ctx context.Context, _ int) retry.AttemptResult {
	s.remote, s.local, s.diverged = "", "", false

	res := s.exec.Execute(ctx, s.request(vcs.OpLsRemote, ""))
	if !res.Success() {
		return failed(health.OpVerify, res)
	}
	ref := "refs/heads/" + s.d.Branch
	sha, ok := vcs.ParseLsRemote(res.Stdout, ref)
	if !ok {
		return retry.AttemptResult{
			Operation: health.OpVerify,
			Step:      string(vcs.OpLsRemote),
			ExitCode:  exitCode(res),
			Stderr:    res.Stderr,
			Failure:   &retry.Failure{Kind: retry.KindNotFound, Message: fmt.Sprintf("branch %s not found on remote", s.d.Branch)},
		}
	}
	s.remote = sha

	st, err := vcs.Inspect(s.d.LocalPath)
	if err != nil {
		return inspectFailure(err.Error())
	}

	var op health.Operation
	switch {
	case st.HasCheckout():
		if msg := modeMismatch(st, s.strategy); msg != "" {
			return inspectFailure(msg)
		}
		op = health.OpFetch
		if r, ok := s.fetch(ctx, st); !ok {
			return r
		}
	case !st.Exists || st.Empty:
		op = health.OpClone
		if r, ok := s.clone(ctx); !ok {
			return r
		}
	default:
		return inspectFailure(fmt.Sprintf("local path %s exists and is not a git repository", s.d.LocalPath))
	}

	res = s.exec.Execute(ctx, s.request(vcs.OpRevParse, ""))
	if !res.Success() {
		return failed(op, res)
	}
	s.local = strings.TrimSpace(res.Stdout)

	return retry.AttemptResult{Operation: op, Step: string(vcs.OpRevParse), ExitCode: exitCode(res)}
}

// clone assembles the repository in a staging directory and moves it into
// place only once it is complete, so a failed attempt never leaves a
// half-cloned local path behind.
func (s *repoSync) clone(ctx context.Context) (retry.AttemptResult, bool) {
	staging := vcs.StagingPath(s.d.LocalPath)
	if err := vcs.Discard(staging); err != nil {
		return inspectFailure(fmt.Sprintf("remove stale staging directory: %v", err)), false
	}

	steps := []vcs.Op{vcs.OpClone}
	if s.strategy.Mode == labels.ModeSparse {
		steps = append(steps, vcs.OpSparseCheckout, vcs.OpCheckout)
	}
	for _, op := range steps {
		res := s.exec.Execute(ctx, s.request(op, staging))
		if !res.Success() {
			_ = vcs.Discard(staging)
			return failed(health.OpClone, res), false
		}
	}

	if err := vcs.Promote(staging, s.d.LocalPath); err != nil {
		_ = vcs.Discard(staging)
		return retry.AttemptResult{
			Operation: health.OpClone,
			Step:      "promote",
			Failure:   &retry.Failure{Kind: retry.KindFilesystem, Message: err.Error()},
		}, false
	}
	return retry.AttemptResult{}, true
}

func (s *repoSync) fetch(ctx context.Context, st vcs.LocalState) (retry.AttemptResult, bool) {
	var (
		steps     []vcs.Op
		keepLocal bool
	)
	switch {
	case s.strategy.Mode == labels.ModeMirror:
		steps = []vcs.Op{vcs.OpFetch}
	default:
		steps = []vcs.Op{vcs.OpFetch}
		if s.strategy.Mode == labels.ModeSparse || st.Sparse {
			steps = append(steps, vcs.OpSparseCheckout)
		}
		steps = append(steps, vcs.OpCheckout)
		switch {
		case s.strategy.ForceRefresh:
			steps = append(steps, vcs.OpReset, vcs.OpClean)
		case s.strategy.Depth > 0:
			// A shallow history cannot be fast-forwarded, so the branch is
			// reset instead, but only when that drops no local commits.
			n, r, ok := s.localCommits(ctx)
			if !ok {
				return r, false
			}
			if n == 0 {
				steps = append(steps, vcs.OpReset)
			} else {
				keepLocal = true
			}
		default:
			steps = append(steps, vcs.OpMerge)
		}
	}

	for _, op := range steps {
		res := s.exec.Execute(ctx, s.request(op, ""))
		if res.Success() {
			continue
		}
		if divergent(op, res) {
			// Local work stays untouched; the commit comparison reports drift.
			s.diverged = true
			return retry.AttemptResult{}, true
		}
		return failed(health.OpFetch, res), false
	}
	s.diverged = keepLocal
	return retry.AttemptResult{}, true
}

// localCommits counts commits on the tracked branch missing from the remote
// tip recorded by the previous sync. It must run before fetch moves that
// tip: a depth-1 fetch cuts the ancestry an is-ancestor check would walk.
func (s *repoSync) localCommits(ctx context.Context) (int, retry.AttemptResult, bool) {
	res := s.exec.Execute(ctx, s.request(vcs.OpLocalCommits, ""))
	if !res.Success() {
		return 0, failed(health.OpFetch, res), false
	}
	n, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
	if err != nil {
		return 0, retry.AttemptResult{
			Operation: health.OpFetch,
			Step:      string(vcs.OpLocalCommits),
			ExitCode:  exitCode(res),
			Failure:   &retry.Failure{Kind: retry.KindUnknown, Message: fmt.Sprintf("unexpected rev-list output %q", res.Stdout)},
		}, false
	}
	return n, retry.AttemptResult{}, true
}

// divergent reports a refusal to move the branch because of local commits
// or local changes. Only force-refresh overrides those.
func divergent(op vcs.Op, res vcs.Result) bool {
	if !res.Exited() {
		return false
	}
	switch op {
	case vcs.OpMerge, vcs.OpReset, vcs.OpCheckout:
	default:
		return false
	}
	lower := strings.ToLower(res.Stderr)
	for _, needle := range []string{
		"not possible to fast-forward",
		"would be overwritten",
		"have diverged",
		"entry '",
		"please commit your changes or stash them",
	} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

func modeMismatch(st vcs.LocalState, s labels.SyncStrategy) string {
	if st.Bare && s.Mode != labels.ModeMirror {
		return fmt.Sprintf("local copy is a bare mirror but the %s strategy needs a working tree", s.Mode)
	}
	if st.Repo && s.Mode == labels.ModeMirror {
		return "local copy is a working tree but the mirror strategy needs a bare repository"
	}
	return ""
}

// failed turns an unsuccessful executor result into a classified attempt.
// ls-remote and rev-parse are verification steps regardless of path.
func failed(path health.Operation, res vcs.Result) retry.AttemptResult {
	op := path
	if res.Op == vcs.OpLsRemote || res.Op == vcs.OpRevParse {
		op = health.OpVerify
	}
	f := retry.Classify(res)
	return retry.AttemptResult{
		Operation: op,
		Step:      string(res.Op),
		ExitCode:  exitCode(res),
		Stderr:    res.Stderr,
		Failure:   &f,
	}
}

func inspectFailure(msg string) retry.AttemptResult {
	return retry.AttemptResult{
		Operation: health.OpVerify,
		Step:      StepInspect,
		Failure:   &retry.Failure{Kind: retry.KindFilesystem, Message: msg},
	}
}

func exitCode(res vcs.Result) *int {
	if !res.Exited() {
		return nil
	}
	c := res.ExitCode
	return &c
}
