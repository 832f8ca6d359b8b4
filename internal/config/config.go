package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"reposync/internal/flags"
	"reposync/internal/output"
)

// MaxConcurrency caps the default worker count.
const MaxConcurrency = 8

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields that affect sync
	// behavior, keep the CLI flags in internal/cli/sync.go in sync.
	Input       Input
	Targeting   Targeting
	Retry       Retry
	Credentials Credentials
	Output      Output
	Runtime     Runtime
	Discover    Discover
}

type Input struct {
	// File is the repository descriptor document, YAML or JSON (see --file).
	File string
}

type Targeting struct {
	// IDs selects repositories by descriptor id (see --repos).
	// Values may be provided as repeated flags and/or comma-separated lists.
	IDs []string

	// Labels keeps repositories carrying at least one of the labels (see --labels).
	Labels []string

	// Include filters repositories using Go path.Match style (see --include).
	// If a pattern contains '/', it matches OWNER/REPO from the remote URL;
	// otherwise it matches the descriptor id.
	Include []string

	// Exclude filters repositories; same matching rules as Include.
	Exclude []string

	// DryRun resolves strategies and prints the plan without running git (see --dry-run).
	DryRun bool
}

type Retry struct {
	// MaxAttempts bounds attempts per repository, first attempt included.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the +/- fraction applied to each backoff delay, in [0, 1].
	Jitter float64
}

type Credentials struct {
	// EnvVars are consulted in order for repositories without token_env.
	EnvVars []string

	// UseGitHubCLI falls back to `gh auth token` (see --gh-auth).
	UseGitHubCLI bool
	GitHubHost   string

	// GitHub App installation tokens. All three must be set together.
	AppID          int64
	InstallationID int64
	AppPrivateKey  string
	AppBaseURL     string

	// RatePerSecond throttles calls into the credential source (see --credential-rate).
	RatePerSecond float64

	// Serialize allows only one credential lookup in flight.
	Serialize bool

	// CacheTTL bounds how long a resolved token is reused.
	CacheTTL time.Duration
}

type Output struct {
	// Report writes the deterministic JSON run report to this path (see --report).
	Report string

	// Markdown writes a human-readable summary to this path (see --markdown).
	Markdown string

	// ConsoleFormat controls the human-facing console sink format (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string

	// ConsoleFilterStatus filters console output by repository status (see --console-filter-status).
	ConsoleFilterStatus []string

	// Out writes structured output to this path (see --out).
	Out string

	// OutFormat selects the format for --out. If empty, it is inferred from
	// the --out file extension.
	OutFormat string

	// Emit writes an additional structured event stream to stdout (see --emit).
	// Allowed values: json, ndjson.
	Emit []string

	// NoConsole suppresses the console sink (see --no-console).
	NoConsole bool

	// Progress draws a progress bar on stderr.
	Progress bool

	// MetricsOut writes Prometheus metrics in textfile format at the end of the run.
	MetricsOut string
}

type Runtime struct {
	// Concurrency controls parallel repository syncs (see --concurrency).
	Concurrency int

	// Timeout bounds the whole run (see --timeout).
	Timeout time.Duration

	// OpTimeout bounds a single git invocation (see --op-timeout).
	OpTimeout time.Duration

	// GitBinary is the git executable (see --git).
	GitBinary string

	// RunID overrides the generated run identifier.
	RunID string

	LogLevel  string
	LogFormat string

	// Verbose lowers the log level to debug and prints raw API errors.
	Verbose bool
}

type Discover struct {
	// Owner is the GitHub user or organization (name or URL; see --owner).
	Owner      string
	Visibility string
	Archived   string
	Forks      string
	Topics     []string
	Include    []string
	Exclude    []string
	MaxRepos   int

	// Out is the descriptor document to write; empty means stdout.
	Out string

	Workspace string
	Labels    []string
	Branch    string
	// Protocol selects the remote URL form: https or ssh.
	Protocol string
	// BaseURL targets GitHub Enterprise Server.
	BaseURL string
}

// DefaultConcurrency is min(NumCPU, MaxConcurrency).
func DefaultConcurrency() int {
	return min(runtime.NumCPU(), MaxConcurrency)
}

func New() *Config {
	return &Config{
		Retry: Retry{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    30 * time.Second,
			Jitter:      0.2,
		},
		Credentials: Credentials{
			UseGitHubCLI: true,
			CacheTTL:     30 * time.Minute,
		},
		Output: Output{
			ConsoleFormat: "text",
		},
		Runtime: Runtime{
			Concurrency: DefaultConcurrency(),
			Timeout:     60 * time.Minute,
			OpTimeout:   10 * time.Minute,
			GitBinary:   "git",
			LogLevel:    "info",
			LogFormat:   "text",
		},
		Discover: Discover{
			Visibility: "all",
			Archived:   "exclude",
			Forks:      "exclude",
			Workspace:  ".",
			Protocol:   "https",
		},
	}
}

// Validate normalizes and checks the settings used by sync and plan.
func (c *Config) Validate() error {
	c.Targeting.IDs = splitCommaList(c.Targeting.IDs)
	c.Targeting.Labels = splitCommaList(c.Targeting.Labels)
	c.Targeting.Include = splitCommaList(c.Targeting.Include)
	c.Targeting.Exclude = splitCommaList(c.Targeting.Exclude)
	c.Credentials.EnvVars = splitCommaList(c.Credentials.EnvVars)
	c.Output.ConsoleFilterStatus = splitCommaList(c.Output.ConsoleFilterStatus)
	c.Output.Emit = splitCommaList(c.Output.Emit)

	c.Input.File = strings.TrimSpace(c.Input.File)
	if c.Input.File == "" {
		return fmt.Errorf("--%s is required", flags.FlagFile)
	}

	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateCredentials(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	return c.validateRuntime()
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("--%s must be >= 1", flags.FlagMaxAttempts)
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("--%s must be >= 0", flags.FlagBaseDelay)
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("--%s must be >= --%s", flags.FlagMaxDelay, flags.FlagBaseDelay)
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("--%s must be between 0 and 1", flags.FlagJitter)
	}
	return nil
}

func (c *Config) validateCredentials() error {
	app := c.Credentials.AppID != 0 || c.Credentials.InstallationID != 0 || strings.TrimSpace(c.Credentials.AppPrivateKey) != ""
	if app && (c.Credentials.AppID == 0 || c.Credentials.InstallationID == 0 || strings.TrimSpace(c.Credentials.AppPrivateKey) == "") {
		return fmt.Errorf("--%s, --%s and --%s must be set together", flags.FlagAppID, flags.FlagInstallationID, flags.FlagAppPrivateKey)
	}
	if c.Credentials.RatePerSecond < 0 {
		return fmt.Errorf("--%s must be >= 0", flags.FlagCredentialRate)
	}
	if c.Credentials.CacheTTL < 0 {
		return errors.New("credential cache ttl must be >= 0")
	}
	return nil
}

func (c *Config) validateOutput() error {
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return fmt.Errorf("--%s must be one of: text, json, ndjson", flags.FlagConsoleFormat)
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --%s: %s (must be one of: text, json, ndjson)", flags.FlagConsoleFormat, c.Output.ConsoleFormat)
	}

	for i, emit := range c.Output.Emit {
		f, err := output.ParseFormat(emit)
		if err != nil {
			return fmt.Errorf("unsupported --%s value: %s (must be one of: json, ndjson)", flags.FlagEmit, emit)
		}
		c.Output.Emit[i] = string(f)
	}

	if c.Output.Out != "" {
		var (
			f   output.Format
			err error
		)
		if c.Output.OutFormat == "" {
			f, err = output.FormatForPath(c.Output.Out)
			if err != nil {
				return fmt.Errorf("%w; use --%s", err, flags.FlagOutFormat)
			}
		} else if f, err = output.ParseFormat(c.Output.OutFormat); err != nil {
			return err
		}
		c.Output.OutFormat = string(f)
	}

	for _, p := range []string{c.Output.Report, c.Output.Markdown, c.Output.Out, c.Output.MetricsOut} {
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, string(filepath.Separator)) {
			return fmt.Errorf("output path %q names a directory", p)
		}
	}
	return nil
}

func (c *Config) validateRuntime() error {
	if c.Runtime.Concurrency <= 0 {
		return fmt.Errorf("--%s must be >= 1", flags.FlagConcurrency)
	}
	if c.Runtime.Timeout <= 0 {
		return fmt.Errorf("--%s must be > 0", flags.FlagTimeout)
	}
	if c.Runtime.OpTimeout <= 0 {
		return fmt.Errorf("--%s must be > 0", flags.FlagOpTimeout)
	}
	c.Runtime.GitBinary = strings.TrimSpace(c.Runtime.GitBinary)
	if c.Runtime.GitBinary == "" {
		c.Runtime.GitBinary = "git"
	}
	return c.validateLogging()
}

func (c *Config) validateLogging() error {
	c.Runtime.LogFormat = normalizeEnumValue(c.Runtime.LogFormat)
	if c.Runtime.LogFormat == "" {
		c.Runtime.LogFormat = "text"
	}
	if c.Runtime.LogFormat != "text" && c.Runtime.LogFormat != "json" {
		return fmt.Errorf("unsupported --%s: %s (must be one of: text, json)", flags.FlagLogFormat, c.Runtime.LogFormat)
	}
	c.Runtime.LogLevel = normalizeEnumValue(c.Runtime.LogLevel)
	if c.Runtime.Verbose {
		c.Runtime.LogLevel = "debug"
	}
	return nil
}

// ValidateDiscover normalizes and checks the settings used by discover.
func (c *Config) ValidateDiscover() error {
	d := &c.Discover
	d.Topics = splitCommaList(d.Topics)
	d.Include = splitCommaList(d.Include)
	d.Exclude = splitCommaList(d.Exclude)
	d.Labels = splitCommaList(d.Labels)

	d.Owner = strings.TrimSpace(d.Owner)
	if d.Owner == "" {
		return fmt.Errorf("--%s is required", flags.FlagOwner)
	}

	d.Visibility = normalizeEnumValue(d.Visibility)
	if d.Visibility == "" {
		d.Visibility = "all"
	}
	if d.Visibility != "public" && d.Visibility != "private" && d.Visibility != "internal" && d.Visibility != "all" {
		return fmt.Errorf("unsupported --%s: %s (must be one of: public, private, internal, all)", flags.FlagVisibility, d.Visibility)
	}

	d.Archived = normalizeEnumValue(d.Archived)
	if d.Archived == "" {
		d.Archived = "exclude"
	}
	if d.Archived != "include" && d.Archived != "exclude" && d.Archived != "only" {
		return fmt.Errorf("unsupported --%s: %s (must be one of: include, exclude, only)", flags.FlagArchived, d.Archived)
	}

	d.Forks = normalizeEnumValue(d.Forks)
	if d.Forks == "" {
		d.Forks = "exclude"
	}
	if d.Forks != "include" && d.Forks != "exclude" && d.Forks != "only" {
		return fmt.Errorf("unsupported --%s: %s (must be one of: include, exclude, only)", flags.FlagForks, d.Forks)
	}

	d.Protocol = normalizeEnumValue(d.Protocol)
	if d.Protocol == "" {
		d.Protocol = "https"
	}
	if d.Protocol != "https" && d.Protocol != "ssh" {
		return fmt.Errorf("unsupported --%s: %s (must be one of: https, ssh)", flags.FlagProtocol, d.Protocol)
	}

	if d.MaxRepos < 0 {
		return fmt.Errorf("--%s must be >= 0", flags.FlagMaxRepos)
	}
	return c.validateLogging()
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
