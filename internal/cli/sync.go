package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"reposync/internal/credentials"
	"reposync/internal/engine"
	"reposync/internal/flags"
)

const syncHelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}Usage:
  {{.UseLine}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}Environment:
	Private repositories need a token. RepoSync passes it to git as an
	HTTP header, never in the command line or the remote URL.

	Sources (in order):
	1) the repository's token_env variable, if the descriptor sets one
	2) GITHUB_TOKEN, then GH_TOKEN (override with --token-env)
	3) a GitHub App installation (--app-id, --app-installation-id, --app-private-key)
	4) GitHub CLI (gh) authentication via gh auth token

  Examples:
    # macOS/Linux
    export GITHUB_TOKEN="<your_token>"
    reposync sync -f repos.yaml

    # GitHub CLI auth
    gh auth login
    reposync sync -f repos.yaml

{{if .HasAvailableSubCommands}}Available Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Clone or update every repository in a descriptor file",
	Long: `Clone missing repositories and fast-forward existing ones, then report the
health of each repository.

Each repository is synced independently: one failure never stops the
others. Transient failures (network, rate limits, timeouts) are retried with
exponential backoff; authentication and missing-remote failures are not.

Output:
	Console output is controlled by --console-format (default: text).
	The JSON run report is opt-in: without --report no report file is
	written. Pass --report for orchestrators that consume the run result.

	Structured outputs can be written via:
	- --report: the deterministic JSON run report (written even when interrupted)
	- --markdown: a human-readable summary
	- --out / --out-format: an aggregate JSON array or NDJSON stream
	- --emit: an additional structured stream on stdout (json or ndjson)
	- --no-console: suppress the console sink (use with --emit for machine output)

	NDJSON mode emits one JSON object per line with a "type" field
	(run.started, repo.started, attempt.finished, retry.scheduled,
	repo.finished, run.finished).

Exit codes:
	0 = every repository synced
	1 = drift or missing remotes, nothing failed
	2 = a repository or its credentials failed (includes interrupted runs)
	3 = fatal error (invalid input, report could not be written)

Examples:
  reposync sync -f repos.yaml --report out/report.json

  # Only the shallow repositories, four at a time
  reposync sync -f repos.yaml --labels shallow --concurrency 4

  # AI Agent: stream machine-readable events to stdout
  reposync sync -f repos.yaml --no-console --emit ndjson
`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 && cmd.Flags().NFlag() == 0 {
			_ = cmd.Help()
			return
		}
		os.Exit(runSync(cmd))
	},
}

func runSync(cmd *cobra.Command) int {
	applyEnumFlags()
	applyImplicitDefaults(cmd)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return engine.ExitFatal
	}

	ctx, stop := signalContext()
	defer stop()
	return engine.Session{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}.Execute(ctx, cfg)
}

// applyImplicitDefaults fills settings derived from other flags.
func applyImplicitDefaults(cmd *cobra.Command) {
	// An explicit --token-env list replaces the defaults instead of extending them.
	if cmd != nil && !cmd.Flags().Changed(flags.FlagTokenEnv) {
		cfg.Credentials.EnvVars = credentials.DefaultEnvVars
	}
	// NDJSON on stdout must not interleave with the progress bar's redraws.
	if cfg.Output.Progress && !cfg.Output.NoConsole && cfg.Output.ConsoleFormat != "text" {
		cfg.Output.Progress = false
	}
}

func addTargetingFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&cfg.Input.File, flags.FlagFile, "f", "", "Repository descriptor file (YAML or JSON)")
	cmd.Flags().StringSliceVar(&cfg.Targeting.IDs, flags.FlagRepos, nil, "Only these repository ids (repeatable; comma-separated accepted)")
	cmd.Flags().StringSliceVar(&cfg.Targeting.Labels, flags.FlagLabels, nil, "Only repositories carrying one of these labels (repeatable; comma-separated accepted)")
	cmd.Flags().StringSliceVar(&cfg.Targeting.Include, flags.FlagInclude, nil, "Include pattern(s). Go path.Match style; if pattern contains '/', matches OWNER/REPO of the remote, else the id")
	cmd.Flags().StringSliceVar(&cfg.Targeting.Exclude, flags.FlagExclude, nil, "Exclude pattern(s). Same matching rules as --include")
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.SetHelpTemplate(syncHelpTemplate)

	// MAINTAINER NOTE: keep these in sync with internal/config.Config.

	// Input & targeting
	addTargetingFlags(syncCmd)
	syncCmd.Flags().BoolVar(&cfg.Targeting.DryRun, flags.FlagDryRun, false, "Print the plan without running git (same as 'reposync plan')")

	// Retry
	syncCmd.Flags().IntVar(&cfg.Retry.MaxAttempts, flags.FlagMaxAttempts, cfg.Retry.MaxAttempts, "Attempts per repository, first one included")
	syncCmd.Flags().DurationVar(&cfg.Retry.BaseDelay, flags.FlagBaseDelay, cfg.Retry.BaseDelay, "Backoff base: the wait before attempt k+1 is base*2^k, capped at --max-delay")
	syncCmd.Flags().DurationVar(&cfg.Retry.MaxDelay, flags.FlagMaxDelay, cfg.Retry.MaxDelay, "Upper bound for a single backoff")
	syncCmd.Flags().Float64Var(&cfg.Retry.Jitter, flags.FlagJitter, cfg.Retry.Jitter, "Random +/- fraction applied to each backoff (0-1)")

	// Credentials
	syncCmd.Flags().StringSliceVar(&cfg.Credentials.EnvVars, flags.FlagTokenEnv, nil, "Environment variables holding the default token, in order (default: GITHUB_TOKEN,GH_TOKEN)")
	syncCmd.Flags().BoolVar(&cfg.Credentials.UseGitHubCLI, flags.FlagGitHubCLIAuth, cfg.Credentials.UseGitHubCLI, "Fall back to 'gh auth token'")
	syncCmd.Flags().StringVar(&cfg.Credentials.GitHubHost, flags.FlagGitHubHost, "", "Host passed to 'gh auth token' (default: github.com)")
	syncCmd.Flags().Int64Var(&cfg.Credentials.AppID, flags.FlagAppID, 0, "GitHub App id for installation tokens")
	syncCmd.Flags().Int64Var(&cfg.Credentials.InstallationID, flags.FlagInstallationID, 0, "GitHub App installation id")
	syncCmd.Flags().StringVar(&cfg.Credentials.AppPrivateKey, flags.FlagAppPrivateKey, "", "Path to the GitHub App private key (PEM)")
	syncCmd.Flags().StringVar(&cfg.Credentials.AppBaseURL, flags.FlagAppBaseURL, "", "GitHub Enterprise API root for the App token endpoint")
	syncCmd.Flags().Float64Var(&cfg.Credentials.RatePerSecond, flags.FlagCredentialRate, 0, "Maximum credential lookups per second (0 = unlimited)")
	syncCmd.Flags().BoolVar(&cfg.Credentials.Serialize, flags.FlagSerialize, false, "Allow only one credential lookup at a time")

	// Output
	syncCmd.Flags().StringVar(&cfg.Output.Report, flags.FlagReport, "", "Write the JSON run report to this path (opt-in; no report is written without it)")
	syncCmd.Flags().StringVar(&cfg.Output.Markdown, flags.FlagMarkdown, "", "Write a Markdown summary to this path")
	syncCmd.Flags().Var(newConsoleFormatFlag(&consoleFmt), flags.FlagConsoleFormat, "Console output format: text|json|ndjson (default: text)")
	syncCmd.Flags().StringSliceVar(&cfg.Output.ConsoleFilterStatus, flags.FlagConsoleFilterStatus, nil, "Only print repositories with these statuses (synced, drifted, missing, credential_failure, failed). Comma-separated.")
	syncCmd.Flags().StringVar(&cfg.Output.Out, flags.FlagOut, "", "Write structured output to this path")
	syncCmd.Flags().StringVar(&cfg.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	syncCmd.Flags().StringSliceVar(&cfg.Output.Emit, flags.FlagEmit, nil, "Emit additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
	syncCmd.Flags().BoolVar(&cfg.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output (use with --emit/--out/--report)")
	syncCmd.Flags().BoolVar(&cfg.Output.Progress, flags.FlagProgress, false, "Draw a progress bar on stderr")
	syncCmd.Flags().StringVar(&cfg.Output.MetricsOut, flags.FlagMetricsOut, "", "Write Prometheus metrics in textfile format to this path")

	// Runtime
	syncCmd.Flags().IntVar(&cfg.Runtime.Concurrency, flags.FlagConcurrency, cfg.Runtime.Concurrency, "Repositories synced in parallel (default: number of CPUs, at most 8)")
	syncCmd.Flags().DurationVar(&cfg.Runtime.Timeout, flags.FlagTimeout, cfg.Runtime.Timeout, "Timeout for the whole run")
	syncCmd.Flags().DurationVar(&cfg.Runtime.OpTimeout, flags.FlagOpTimeout, cfg.Runtime.OpTimeout, "Timeout for a single git command")
	syncCmd.Flags().StringVar(&cfg.Runtime.GitBinary, flags.FlagGit, cfg.Runtime.GitBinary, "git executable")
	syncCmd.Flags().StringVar(&cfg.Runtime.RunID, flags.FlagRunID, "", "Run identifier recorded in the report (default: a new UUIDv7)")
}
