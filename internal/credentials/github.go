package credentials

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/bradleyfalzon/ghinstallation/v2"

	"reposync/internal/descriptor"
	gh "reposync/internal/github"
)

// GitHubCLI resolves the token of a logged-in GitHub CLI. Host defaults to
// github.com.
type GitHubCLI struct {
	Host string
}

func (g GitHubCLI) Resolve(ctx context.Context, _ descriptor.Descriptor) (string, error) {
	tok, ok, err := gh.TokenFromGitHubCLI(ctx, g.Host)
	if err != nil {
		return "", fmt.Errorf("gh auth token: %w", err)
	}
	if !ok {
		return "", nil
	}
	return tok, nil
}

// GitHubApp mints installation tokens for a GitHub App. The underlying
// transport refreshes tokens shortly before they expire.
type GitHubApp struct {
	AppID          int64
	InstallationID int64
	PrivateKeyFile string
	// BaseURL is the API root for GitHub Enterprise Server; empty means
	// api.github.com.
	BaseURL string

	mu sync.Mutex
	tr *ghinstallation.Transport
}

func (a *GitHubApp) Resolve(ctx context.Context, _ descriptor.Descriptor) (string, error) {
	tr, err := a.transport()
	if err != nil {
		return "", err
	}
	tok, err := tr.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("github app installation token: %w", err)
	}
	return tok, nil
}

func (a *GitHubApp) transport() (*ghinstallation.Transport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tr != nil {
		return a.tr, nil
	}
	key, err := os.ReadFile(a.PrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read github app private key: %w", err)
	}
	tr, err := ghinstallation.New(http.DefaultTransport, a.AppID, a.InstallationID, key)
	if err != nil {
		return nil, fmt.Errorf("github app transport: %w", err)
	}
	if a.BaseURL != "" {
		tr.BaseURL = strings.TrimSuffix(a.BaseURL, "/")
	}
	a.tr = tr
	return tr, nil
}
