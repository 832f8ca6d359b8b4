package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v81/github"
)

// DescribeError renders a GitHub API error for humans without leaking the
// full request URL. verbose keeps the raw error text.
func DescribeError(err error, verbose bool) string {
	if err == nil {
		return "unknown error"
	}
	if verbose {
		return err.Error()
	}

	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return fmt.Sprintf("GitHub API rate limit exceeded (resets at %s)", rle.Rate.Reset.UTC().Format("15:04:05 MST"))
	}

	var er *github.ErrorResponse
	if errors.As(err, &er) {
		msg := strings.TrimSpace(er.Message)
		if msg == "" {
			msg = "GitHub API request failed"
		}
		if er.Response == nil {
			return fmt.Sprintf("GitHub API request failed: %s", msg)
		}
		code := er.Response.StatusCode
		if code == http.StatusNotFound {
			return fmt.Sprintf("not found (404): %s", msg)
		}
		return fmt.Sprintf("GitHub API request failed (%d %s): %s", code, http.StatusText(code), msg)
	}

	full := err.Error()
	if scrubbed := scrubGitHubRequestFromErrorString(strings.TrimSpace(full)); scrubbed != "" {
		return scrubbed
	}
	return full
}

// IsNotFound reports whether err is a GitHub 404.
func IsNotFound(err error) bool {
	var er *github.ErrorResponse
	return errors.As(err, &er) && er.Response != nil && er.Response.StatusCode == http.StatusNotFound
}

func scrubGitHubRequestFromErrorString(s string) string {
	// Typical go-github error format:
	//   GET https://api.github.com/...: 403 Some message. [..]
	// Drop the leading "GET https://...: " part.
	for _, m := range []string{"GET ", "POST ", "PUT ", "PATCH ", "DELETE "} {
		if !strings.HasPrefix(s, m) {
			continue
		}
		if i := strings.Index(s, "://"); i >= 0 {
			if j := strings.Index(s[i:], ": "); j >= 0 {
				return strings.TrimSpace(s[i+j+2:])
			}
		}
		if j := strings.Index(s, ": "); j >= 0 {
			return strings.TrimSpace(s[j+2:])
		}
		break
	}
	return ""
}
