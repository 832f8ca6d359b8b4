package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"

	"reposync/internal/descriptor"
)

// DefaultEnvVars are consulted, in order, for repositories without a
// token_env override.
var DefaultEnvVars = []string{"GITHUB_TOKEN", "GH_TOKEN"}

// Env reads tokens from environment variables. A descriptor's TokenEnv
// replaces the defaults entirely; if that variable is unset the repository
// gets no token from Env.
type Env struct {
	Vars   []string
	Lookup func(string) (string, bool)
}

func (e Env) Resolve(_ context.Context, d descriptor.Descriptor) (string, error) {
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if d.TokenEnv != "" {
		v, ok := lookup(d.TokenEnv)
		if !ok || strings.TrimSpace(v) == "" {
			if d.Private {
				return "", fmt.Errorf("%w: %s is not set", ErrCredentialUnavailable, d.TokenEnv)
			}
			return "", nil
		}
		return strings.TrimSpace(v), nil
	}

	vars := e.Vars
	if vars == nil {
		vars = DefaultEnvVars
	}
	for _, name := range vars {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return "", nil
}
