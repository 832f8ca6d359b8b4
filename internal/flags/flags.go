package flags

// Package flags defines canonical CLI flag names shared across the CLI and
// config validation messages. Keeping these as constants helps avoid drift
// between Cobra flag wiring and error text that names a flag.
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&cfg.Input.File, flags.FlagFile, "", "...")
//	arg := "--" + flags.FlagFile
const (
	// Input
	FlagFile = "file"

	// Targeting
	FlagRepos   = "repos"
	FlagLabels  = "labels"
	FlagInclude = "include"
	FlagExclude = "exclude"
	FlagDryRun  = "dry-run"

	// Retry
	FlagMaxAttempts = "max-attempts"
	FlagBaseDelay   = "base-delay"
	FlagMaxDelay    = "max-delay"
	FlagJitter      = "jitter"

	// Credentials
	FlagTokenEnv       = "token-env"
	FlagGitHubCLIAuth  = "gh-auth"
	FlagGitHubHost     = "gh-host"
	FlagAppID          = "app-id"
	FlagInstallationID = "app-installation-id"
	FlagAppPrivateKey  = "app-private-key"
	FlagAppBaseURL     = "app-base-url"
	FlagCredentialRate = "credential-rate"
	FlagSerialize      = "serialize-credentials"

	// Output
	FlagReport              = "report"
	FlagMarkdown            = "markdown"
	FlagConsoleFormat       = "console-format"
	FlagConsoleFilterStatus = "console-filter-status"
	FlagOut                 = "out"
	FlagOutFormat           = "out-format"
	FlagEmit                = "emit"
	FlagNoConsole           = "no-console"
	FlagProgress            = "progress"
	FlagMetricsOut          = "metrics-out"

	// Runtime
	FlagConcurrency = "concurrency"
	FlagTimeout     = "timeout"
	FlagOpTimeout   = "op-timeout"
	FlagGit         = "git"
	FlagRunID       = "run-id"
	FlagLogLevel    = "log-level"
	FlagLogFormat   = "log-format"
	FlagVerbose     = "verbose"

	// Discover
	FlagOwner      = "owner"
	FlagVisibility = "visibility"
	FlagArchived   = "archived"
	FlagForks      = "forks"
	FlagTopic      = "topic"
	FlagMaxRepos   = "max-repos"
	FlagWorkspace  = "workspace"
	FlagBranch     = "branch"
	FlagProtocol   = "protocol"
	FlagBaseURL    = "base-url"
)
