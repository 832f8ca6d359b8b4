package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"reposync/internal/config"
	"reposync/internal/flags"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var cfg = config.New()

var rootCmd = &cobra.Command{
	Use:   "reposync",
	Short: "Keep local clones of many git repositories in sync with their remotes",
	Long: `RepoSync keeps a workspace of local git clones in sync with their upstream
remotes and reports the health of every repository.

RepoSync never rewrites local work unless a repository is labelled
force-refresh: local changes that block a fast-forward are reported as drift.

Examples:
	# Show available commands and global flags
	reposync --help

	# Sync every repository in a descriptor file
	reposync sync -f repos.yaml --report out/report.json

	# Show what a sync would do
	reposync plan -f repos.yaml

	# Generate a descriptor file from a GitHub organization
	reposync discover --owner my-org --out repos.yaml

	# Print build info
	reposync version

Output:
	Human-readable progress goes to stdout; logs go to stderr.
	Structured event streams are available via --emit (see sync --help).`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&cfg.Runtime.Verbose, flags.FlagVerbose, false, "Enable verbose logging (debug level, every GitHub API call and full error details)")
	rootCmd.PersistentFlags().StringVar(&cfg.Runtime.LogLevel, flags.FlagLogLevel, cfg.Runtime.LogLevel, "Log level: debug|info|warn|error|off")
	rootCmd.PersistentFlags().Var(newLogFormatFlag(&logFormat), flags.FlagLogFormat, "Log format: text|json (default: text)")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

// signalContext is cancelled on SIGINT or SIGTERM so an interrupted run
// still writes its report.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
