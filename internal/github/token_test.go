package github

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(vals map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vals[k]
		return v, ok
	}
}

// fakeGH puts a gh stub printing script's output first on PATH.
func fakeGH(t *testing.T, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test uses a shell script gh stub")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gh"), []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	t.Setenv("PATH", dir)
}

func TestResolveAuthToken(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		opts     TokenOptions
		wantTok  string
		wantFrom AuthTokenSource
	}{
		{
			name:     "explicit token wins",
			opts:     TokenOptions{Explicit: " explicit ", Lookup: envMap(map[string]string{"GITHUB_TOKEN": "env"})},
			wantTok:  "explicit",
			wantFrom: AuthTokenSourceExplicit,
		},
		{
			name:     "GITHUB_TOKEN before GH_TOKEN",
			opts:     TokenOptions{NoCLI: true, Lookup: envMap(map[string]string{"GITHUB_TOKEN": " a ", "GH_TOKEN": "b"})},
			wantTok:  "a",
			wantFrom: AuthTokenSourceEnv,
		},
		{
			name:     "blank GITHUB_TOKEN falls through",
			opts:     TokenOptions{NoCLI: true, Lookup: envMap(map[string]string{"GITHUB_TOKEN": " ", "GH_TOKEN": "b"})},
			wantTok:  "b",
			wantFrom: AuthTokenSourceEnv,
		},
		{
			name:     "enterprise host reads enterprise vars",
			opts:     TokenOptions{Host: "ghe.example.com", NoCLI: true, Lookup: envMap(map[string]string{"GITHUB_TOKEN": "dotcom", "GITHUB_ENTERPRISE_TOKEN": "ghe"})},
			wantTok:  "ghe",
			wantFrom: AuthTokenSourceEnv,
		},
		{
			name:     "explicit env list",
			opts:     TokenOptions{EnvVars: []string{"CI_TOKEN"}, NoCLI: true, Lookup: envMap(map[string]string{"GITHUB_TOKEN": "x", "CI_TOKEN": "ci"})},
			wantTok:  "ci",
			wantFrom: AuthTokenSourceEnv,
		},
		{
			name: "nothing found without cli",
			opts: TokenOptions{NoCLI: true, Lookup: envMap(nil)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, src, err := ResolveAuthToken(ctx, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTok, tok)
			assert.Equal(t, tt.wantFrom, src)
		})
	}
}

func TestResolveAuthToken_GitHubCLI(t *testing.T) {
	noEnv := envMap(nil)

	t.Run("gh token used when env empty", func(t *testing.T) {
		fakeGH(t, "echo gh-token")
		tok, src, err := ResolveAuthToken(context.Background(), TokenOptions{Lookup: noEnv})
		require.NoError(t, err)
		assert.Equal(t, "gh-token", tok)
		assert.Equal(t, AuthTokenSourceGitHubCL, src)
	})

	t.Run("host is passed to gh", func(t *testing.T) {
		fakeGH(t, `[ "$3" = "--hostname" ] && [ "$4" = "ghe.example.com" ] && echo ghe-token`)
		tok, _, err := ResolveAuthToken(context.Background(), TokenOptions{Host: "ghe.example.com", Lookup: noEnv})
		require.NoError(t, err)
		assert.Equal(t, "ghe-token", tok)
	})

	t.Run("logged out gh yields no token", func(t *testing.T) {
		fakeGH(t, "echo 'not logged in' >&2; exit 1")
		tok, src, err := ResolveAuthToken(context.Background(), TokenOptions{Lookup: noEnv})
		require.NoError(t, err)
		assert.Empty(t, tok)
		assert.Empty(t, src)
	})

	t.Run("missing gh yields no token", func(t *testing.T) {
		t.Setenv("PATH", t.TempDir())
		tok, _, err := ResolveAuthToken(context.Background(), TokenOptions{Lookup: noEnv})
		require.NoError(t, err)
		assert.Empty(t, tok)
	})

	t.Run("multi-line output is rejected", func(t *testing.T) {
		fakeGH(t, `printf 'line1\nline2\n'`)
		_, _, err := ResolveAuthToken(context.Background(), TokenOptions{Lookup: noEnv})
		assert.ErrorContains(t, err, "contains whitespace")
	})

	t.Run("cancelled context propagates", func(t *testing.T) {
		fakeGH(t, "echo gh-token")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := ResolveAuthToken(ctx, TokenOptions{Lookup: noEnv})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestHostFromBaseURL(t *testing.T) {
	assert.Equal(t, DefaultHost, HostFromBaseURL(""))
	assert.Equal(t, "ghe.example.com", HostFromBaseURL("https://ghe.example.com/api/v3/"))
	assert.Equal(t, DefaultHost, HostFromBaseURL("://bad"))
	assert.Equal(t, []string{"GITHUB_TOKEN", "GH_TOKEN"}, TokenEnvVars("GitHub.com"))
	assert.Equal(t, []string{"GH_ENTERPRISE_TOKEN", "GITHUB_ENTERPRISE_TOKEN"}, TokenEnvVars("ghe.example.com"))
}

func TestWithEnv(t *testing.T) {
	got := withEnv([]string{"A=1", "GH_PAGER=less", "B=2", "GH_PAGER=more"}, "GH_PAGER", "cat")
	assert.Equal(t, []string{"A=1", "B=2", "GH_PAGER=cat"}, got)
}
