package github

import (
	"context"
	"errors"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"
)

const DefaultHost = "github.com"

type AuthTokenSource string

const (
	AuthTokenSourceExplicit AuthTokenSource = "explicit"
	AuthTokenSourceEnv      AuthTokenSource = "env"
	AuthTokenSourceGitHubCL AuthTokenSource = "gh"
)

// Env vars gh itself reads for github.com and for Enterprise Server hosts.
var (
	dotcomTokenEnv     = []string{"GITHUB_TOKEN", "GH_TOKEN"}
	enterpriseTokenEnv = []string{"GH_ENTERPRISE_TOKEN", "GITHUB_ENTERPRISE_TOKEN"}
)

// TokenOptions selects where ResolveAuthToken looks for an API token.
type TokenOptions struct {
	// Explicit wins when non-empty.
	Explicit string
	// EnvVars overrides the variables consulted for Host.
	EnvVars []string
	// Host is the GitHub host; empty means github.com.
	Host string
	// NoCLI skips the `gh auth token` fallback.
	NoCLI bool
	// Lookup defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// TokenEnvVars returns the variables consulted for host, in order.
// Enterprise hosts use the GH_ENTERPRISE_TOKEN family like gh does.
func TokenEnvVars(host string) []string {
	if host == "" || strings.EqualFold(host, DefaultHost) {
		return dotcomTokenEnv
	}
	return enterpriseTokenEnv
}

// HostFromBaseURL returns the host of a GitHub Enterprise Server URL, or
// github.com when baseURL is empty or unparsable.
func HostFromBaseURL(baseURL string) string {
	if strings.TrimSpace(baseURL) == "" {
		return DefaultHost
	}
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Hostname() == "" {
		return DefaultHost
	}
	return u.Hostname()
}

// ResolveAuthToken resolves a GitHub access token for API calls.
//
// Precedence:
//  1. opts.Explicit (if non-empty)
//  2. opts.EnvVars, or TokenEnvVars(opts.Host)
//  3. GitHub CLI: `gh auth token -h <host>`, unless opts.NoCLI
//
// An empty token with a nil error means nothing was found. It never prints
// the token.
func ResolveAuthToken(ctx context.Context, opts TokenOptions) (token string, source AuthTokenSource, err error) {
	if tok := strings.TrimSpace(opts.Explicit); tok != "" {
		return tok, AuthTokenSourceExplicit, nil
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	vars := opts.EnvVars
	if len(vars) == 0 {
		vars = TokenEnvVars(opts.Host)
	}
	for _, name := range vars {
		if env, ok := lookup(name); ok && strings.TrimSpace(env) != "" {
			return strings.TrimSpace(env), AuthTokenSourceEnv, nil
		}
	}

	if opts.NoCLI {
		return "", "", nil
	}
	tok, ok, err := TokenFromGitHubCLI(ctx, opts.Host)
	if err != nil {
		return "", "", err
	}
	if ok {
		return tok, AuthTokenSourceGitHubCL, nil
	}
	return "", "", nil
}

// TokenFromGitHubCLI asks an installed, logged-in `gh` for its token.
// A missing or logged-out gh yields ok=false and no error.
func TokenFromGitHubCLI(ctx context.Context, host string) (token string, ok bool, err error) {
	if host == "" {
		host = DefaultHost
	}
	if _, err := exec.LookPath("gh"); err != nil {
		return "", false, nil
	}

	// A broken gh config or credential helper must not hang a sync.
	cmdCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(cmdCtx, "gh", "auth", "token", "--hostname", host)
	cmd.Env = withEnv(os.Environ(), "GH_PAGER", "cat")
	cmd.Env = withEnv(cmd.Env, "GH_PROMPT_DISABLED", "1")
	out, runErr := cmd.Output()
	if runErr != nil {
		if cmdCtx.Err() != nil {
			return "", false, cmdCtx.Err()
		}
		// Logged out for this host. gh's message is not surfaced.
		return "", false, nil
	}

	tok := strings.TrimSpace(string(out))
	if tok == "" {
		return "", false, nil
	}
	if strings.ContainsAny(tok, " \t\n\r") {
		return "", false, errors.New("invalid token returned by gh: contains whitespace")
	}
	return tok, true, nil
}

// withEnv returns env with key set to value exactly once.
func withEnv(env []string, key, value string) []string {
	out := make([]string, 0, len(env)+1)
	for _, entry := range env {
		if strings.HasPrefix(entry, key+"=") {
			continue
		}
		out = append(out, entry)
	}
	return append(out, key+"="+value)
}
