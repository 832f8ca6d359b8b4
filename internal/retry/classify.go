package retry

import (
	"fmt"
	"strings"

	"reposync/internal/vcs"
)

// Kind classifies why an attempt failed. Each kind has a fixed disposition.
type Kind string

const (
	KindNetwork                 Kind = "network"
	KindRateLimited             Kind = "rate_limited"
	KindTimeout                 Kind = "timeout"
	KindAuth                    Kind = "auth"
	KindCredentialUnavailable   Kind = "credential_unavailable"
	KindInvalidRemote           Kind = "invalid_remote"
	KindFilesystem              Kind = "filesystem"
	KindNotFound                Kind = "not_found"
	KindInvalidLabelCombination Kind = "invalid_label_combination"
	KindCancelled               Kind = "cancelled"
	KindUnknown                 Kind = "unknown"
)

// Transient reports whether a failure of this kind may succeed on retry.
// Unknown failures are retried.
func (k Kind) Transient() bool {
	switch k {
	case KindNetwork, KindRateLimited, KindTimeout, KindUnknown:
		return true
	}
	return false
}

// Failure is a classified attempt failure.
type Failure struct {
	Kind    Kind
	Message string
}

func (f Failure) Transient() bool { return f.Kind.Transient() }

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

type pattern struct {
	kind   Kind
	needle string
}

// patterns are matched in order against lower-cased stderr; the first hit
// wins. Auth precedes filesystem so "permission denied (publickey)" is not
// read as a local permission problem.
var patterns = []pattern{
	{KindAuth, "authentication failed"},
	{KindAuth, "could not read username"},
	{KindAuth, "could not read password"},
	{KindAuth, "terminal prompts disabled"},
	{KindAuth, "permission denied (publickey"},
	{KindAuth, "invalid username or password"},
	{KindAuth, "invalid credentials"},
	{KindAuth, "the requested url returned error: 401"},
	{KindAuth, "the requested url returned error: 403"},
	{KindAuth, "host key verification failed"},

	{KindRateLimited, "rate limit"},
	{KindRateLimited, "the requested url returned error: 429"},
	{KindRateLimited, "too many requests"},

	{KindNotFound, "repository not found"},
	{KindNotFound, "does not appear to be a git repository"},
	{KindNotFound, "the requested url returned error: 404"},
	{KindNotFound, "couldn't find remote ref"},
	{KindNotFound, "remote branch"},

	{KindInvalidRemote, "unsupported protocol"},
	{KindInvalidRemote, "is not supported"},
	{KindInvalidRemote, "url using bad/illegal format"},
	{KindInvalidRemote, "unable to find remote helper"},
	{KindInvalidRemote, "port number"},

	{KindFilesystem, "permission denied"},
	{KindFilesystem, "read-only file system"},
	{KindFilesystem, "could not create work tree dir"},
	{KindFilesystem, "could not create leading directories"},
	{KindFilesystem, "no space left on device"},
	{KindFilesystem, "already exists and is not an empty directory"},
	{KindFilesystem, "unable to create"},
	{KindFilesystem, "not a git repository"},

	{KindNetwork, "could not resolve host"},
	{KindNetwork, "could not resolve hostname"},
	{KindNetwork, "connection refused"},
	{KindNetwork, "connection reset"},
	{KindNetwork, "connection timed out"},
	{KindNetwork, "operation timed out"},
	{KindNetwork, "network is unreachable"},
	{KindNetwork, "early eof"},
	{KindNetwork, "rpc failed"},
	{KindNetwork, "the remote end hung up unexpectedly"},
	{KindNetwork, "unexpected disconnect"},
	{KindNetwork, "gnutls"},
	{KindNetwork, "ssl"},
	{KindNetwork, "tls"},
	{KindNetwork, "the requested url returned error: 5"},
	{KindNetwork, "unable to access"},
	{KindNetwork, "could not read from remote repository"},
}

// Classify maps a raw executor result to a failure. It must only be called
// for results that did not succeed.
func Classify(res vcs.Result) Failure {
	switch {
	case res.Cancelled:
		return Failure{Kind: KindCancelled, Message: fmt.Sprintf("%s cancelled", res.Op)}
	case res.TimedOut:
		return Failure{Kind: KindTimeout, Message: fmt.Sprintf("%s timed out", res.Op)}
	case res.StartErr != nil:
		return Failure{Kind: KindFilesystem, Message: res.StartErr.Error()}
	}

	msg := lastLine(res.Stderr)
	if msg == "" {
		msg = fmt.Sprintf("%s exited with status %d", res.Op, res.ExitCode)
	}

	lower := strings.ToLower(res.Stderr)
	for _, p := range patterns {
		if strings.Contains(lower, p.needle) {
			return Failure{Kind: p.kind, Message: msg}
		}
	}

	// ls-remote --exit-code exits 2 when the remote answered but has no
	// matching ref.
	if res.Op == vcs.OpLsRemote && res.ExitCode == 2 && strings.TrimSpace(res.Stderr) == "" {
		return Failure{Kind: KindNotFound, Message: "branch not found on remote"}
	}
	return Failure{Kind: KindUnknown, Message: msg}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		l := strings.TrimSpace(lines[i])
		if l != "" && !strings.HasPrefix(l, "Please make sure") && l != "and the repository exists." {
			return l
		}
	}
	return ""
}
