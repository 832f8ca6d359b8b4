package vcs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"reposync/internal/labels"
)

const (
	defaultMaxStdout = 1 << 20
	defaultMaxStderr = 64 << 10
	defaultWaitDelay = 5 * time.Second
)

// Git executes operations with the git command-line tool.
type Git struct {
	binary    string
	env       []string
	maxStdout int
	maxStderr int
	waitDelay time.Duration
}

type Option func(*Git)

// WithBinary sets the git executable (name on PATH or absolute path).
func WithBinary(path string) Option {
	return func(g *Git) {
		if strings.TrimSpace(path) != "" {
			g.binary = path
		}
	}
}

// WithEnv appends KEY=VALUE pairs to every subprocess environment.
func WithEnv(env ...string) Option {
	return func(g *Git) { g.env = append(g.env, env...) }
}

func WithOutputLimits(stdout, stderr int) Option {
	return func(g *Git) {
		if stdout > 0 {
			g.maxStdout = stdout
		}
		if stderr > 0 {
			g.maxStderr = stderr
		}
	}
}

// WithWaitDelay bounds how long a killed process may keep its output pipes
// open before Execute gives up on it.
func WithWaitDelay(d time.Duration) Option {
	return func(g *Git) { g.waitDelay = d }
}

func NewGit(opts ...Option) *Git {
	g := &Git{
		binary:    "git",
		maxStdout: defaultMaxStdout,
		maxStderr: defaultMaxStderr,
		waitDelay: defaultWaitDelay,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Git) Binary() string { return g.binary }

// Version returns the output of `git --version`, trimmed.
func (g *Git) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, g.binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", g.binary, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (g *Git) Execute(ctx context.Context, req Request) Result {
	res := Result{Op: req.Op, ExitCode: -1}

	args, dir, err := Args(req)
	if err != nil {
		res.StartErr = err
		return res
	}
	res.Args = redactArgs(args)

	if req.Op == OpClone {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			res.StartErr = fmt.Errorf("prepare clone parent: %w", err)
			return res
		}
	}

	opCtx := ctx
	cancel := context.CancelFunc(func() {})
	if req.Timeout > 0 {
		opCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(opCtx, g.binary, args...)
	cmd.Dir = dir
	cmd.Env = g.environ(req)
	cmd.WaitDelay = g.waitDelay
	stdout := newTailBuffer(g.maxStdout)
	stderr := newTailBuffer(g.maxStderr)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	started := time.Now()
	runErr := cmd.Run()
	res.Duration = time.Since(started)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	switch {
	case runErr == nil:
		res.ExitCode = 0
	case ctx.Err() != nil:
		res.Cancelled = true
	case opCtx.Err() != nil:
		res.TimedOut = true
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.StartErr = runErr
		}
	}
	return res
}

func (g *Git) environ(req Request) []string {
	env := append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GCM_INTERACTIVE=never",
		"LC_ALL=C",
		"LANG=C",
	)
	env = append(env, g.env...)
	if req.Credential != "" && req.Op.Network() && isHTTPRemote(req.Descriptor.RemoteURL) {
		env = append(env, credentialEnv(req.Credential)...)
	}
	return env
}

// credentialEnv injects the token as an Authorization header through git's
// environment-based config, so it never appears in argv or remote URLs.
func credentialEnv(token string) []string {
	basic := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + token))
	return []string{
		"GIT_CONFIG_COUNT=1",
		"GIT_CONFIG_KEY_0=http.extraHeader",
		"GIT_CONFIG_VALUE_0=Authorization: Basic " + basic,
	}
}

func isHTTPRemote(remote string) bool {
	lower := strings.ToLower(remote)
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://")
}

// Args builds the git argument list and working directory for req.
func Args(req Request) ([]string, string, error) {
	d := req.Descriptor
	s := req.Strategy
	dir := req.dir()
	remoteBranch := "refs/remotes/origin/" + d.Branch

	switch req.Op {
	case OpLsRemote:
		return []string{"ls-remote", "--exit-code", "--", d.RemoteURL, "refs/heads/" + d.Branch}, "", nil

	case OpClone:
		if dir == "" {
			return nil, "", fmt.Errorf("clone %s: no target directory", d.ID)
		}
		args := []string{"clone", "--quiet"}
		if s.Mode == labels.ModeMirror {
			args = append(args, "--mirror")
		} else {
			args = append(args, "--branch", d.Branch, "--single-branch")
			if s.Mode == labels.ModeSparse {
				args = append(args, "--filter=blob:none", "--no-checkout")
			}
			if s.Depth > 0 {
				args = append(args, "--depth", strconv.Itoa(s.Depth))
			}
		}
		args = append(args, "--", d.RemoteURL, dir)
		return args, filepath.Dir(dir), nil

	case OpFetch:
		args := []string{"fetch", "--quiet", "--prune"}
		if s.Mode == labels.ModeMirror {
			return append(args, "origin"), dir, nil
		}
		if s.Depth > 0 {
			args = append(args, "--depth", strconv.Itoa(s.Depth))
		}
		args = append(args, "origin", "+refs/heads/"+d.Branch+":"+remoteBranch)
		return args, dir, nil

	case OpSparseCheckout:
		if s.Mode == labels.ModeSparse {
			args := []string{"sparse-checkout", "set", "--cone", "--"}
			return append(args, s.IncludePaths...), dir, nil
		}
		return []string{"sparse-checkout", "disable"}, dir, nil

	case OpCheckout:
		args := []string{"checkout", "--quiet"}
		if s.ForceRefresh {
			args = append(args, "--force")
		}
		return append(args, d.Branch, "--"), dir, nil

	case OpMerge:
		return []string{"merge", "--ff-only", "--quiet", remoteBranch}, dir, nil

	case OpReset:
		mode := "--keep"
		if s.ForceRefresh {
			mode = "--hard"
		}
		return []string{"reset", "--quiet", mode, remoteBranch}, dir, nil

	case OpClean:
		return []string{"clean", "-q", "-f", "-d", "-x"}, dir, nil

	case OpLocalCommits:
		return []string{"rev-list", "--count", remoteBranch + "..refs/heads/" + d.Branch, "--"}, dir, nil

	case OpRevParse:
		ref := "HEAD^{commit}"
		if s.Mode == labels.ModeMirror {
			ref = "refs/heads/" + d.Branch + "^{commit}"
		}
		return []string{"rev-parse", "--verify", ref}, dir, nil
	}
	return nil, "", fmt.Errorf("unsupported operation %q", req.Op)
}

func redactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = redactURL(a)
	}
	return out
}

func redactURL(s string) string {
	if !strings.Contains(s, "://") || !strings.Contains(s, "@") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s
	}
	return u.Redacted()
}

// ParseLsRemote returns the object id from `git ls-remote` output for ref.
func ParseLsRemote(stdout, ref string) (string, bool) {
	for _, line := range strings.Split(stdout, "\n") {
		sha, name, ok := strings.Cut(strings.TrimSpace(line), "\t")
		if ok && name == ref {
			return sha, true
		}
	}
	return "", false
}
