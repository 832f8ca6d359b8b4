package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"reposync/internal/config"
	"reposync/internal/descriptor"
	"reposync/internal/engine"
	"reposync/internal/flags"
	gh "reposync/internal/github"
	"reposync/internal/logging"
	"reposync/internal/report"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Generate a descriptor file from a GitHub user or organization",
	Long: `List the repositories of a GitHub user or organization and write them as a
repository descriptor document that 'reposync sync' accepts.

Archived repositories and forks are skipped unless --archived or --forks say
otherwise. When the owner is a user account and --forks is omitted, forks
are included.

Authentication:
  A token is optional for public repositories. RepoSync prefers GITHUB_TOKEN,
  then GH_TOKEN, then GitHub CLI authentication. With --base-url the
  GH_ENTERPRISE_TOKEN and GITHUB_ENTERPRISE_TOKEN variables are read instead.`,
	Example: `  reposync discover --owner my-org --out repos.yaml
  reposync discover --owner https://github.com/octocat --protocol ssh --labels shallow
  reposync discover --owner my-org --topic backend --exclude 'legacy-*'`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 && cmd.Flags().NFlag() == 0 {
			_ = cmd.Help()
			return
		}
		applyEnumFlags()
		if err := cfg.ValidateDiscover(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			os.Exit(engine.ExitFatal)
		}
		ctx, stop := signalContext()
		defer stop()
		os.Exit(runDiscover(ctx, cmd, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr()))
	},
}

func runDiscover(ctx context.Context, cmd *cobra.Command, cfg *config.Config, stdout, stderr io.Writer) int {
	d := cfg.Discover
	log, err := logging.New(logging.Options{
		Level:  cfg.Runtime.LogLevel,
		Format: logging.Format(cfg.Runtime.LogFormat),
		Writer: stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return engine.ExitFatal
	}

	token, source, err := gh.ResolveAuthToken(ctx, gh.TokenOptions{Host: gh.HostFromBaseURL(d.BaseURL)})
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to resolve GitHub auth token: %v\n", err)
		return engine.ExitFatal
	}
	if token == "" {
		log.Warn().Msg("no GitHub token found; only public repositories will be listed")
	} else {
		log.Debug().Str("source", string(source)).Msg("github token resolved")
	}

	client, err := gh.NewClient(ctx, token, gh.WithVerbose(cfg.Runtime.Verbose, log), gh.WithBaseURL(d.BaseURL))
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to create GitHub client: %v\n", err)
		return engine.ExitFatal
	}

	repos, err := gh.Discover(ctx, client, gh.Query{
		Owner:      d.Owner,
		Visibility: d.Visibility,
		Archived:   d.Archived,
		Forks:      d.Forks,
		Topics:     d.Topics,
		Include:    d.Include,
		Exclude:    d.Exclude,
		MaxRepos:   d.MaxRepos,
		UserForks:  forksDefaultedForUsers(cmd),
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", gh.DescribeError(err, cfg.Runtime.Verbose))
		return engine.ExitFatal
	}

	owner, _ := gh.NormalizeAccountSelector(d.Owner)
	doc, err := gh.BuildDocument(owner, repos, gh.DocumentOptions{
		Workspace: d.Workspace,
		Branch:    d.Branch,
		Labels:    d.Labels,
		Protocol:  d.Protocol,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return engine.ExitFatal
	}
	bs, err := doc.Marshal()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return engine.ExitFatal
	}
	if _, err := descriptor.ParseDocument(bs); err != nil {
		fmt.Fprintf(stderr, "Error: generated document is invalid: %v\n", err)
		return engine.ExitFatal
	}

	if d.Out == "" {
		if _, err := stdout.Write(bs); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return engine.ExitFatal
		}
	} else if err := report.WriteFileAtomic(d.Out, bs, 0o644); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return engine.ExitFatal
	}
	log.Info().Str("owner", owner).Int("repositories", len(doc.Repositories)).Msg("discovery finished")
	return engine.ExitOK
}

// forksDefaultedForUsers reports whether forks should be included for user
// accounts because --forks was not given explicitly.
func forksDefaultedForUsers(cmd *cobra.Command) bool {
	return cmd == nil || !cmd.Flags().Changed(flags.FlagForks)
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	d := &cfg.Discover
	discoverCmd.Flags().StringVar(&d.Owner, flags.FlagOwner, "", "GitHub user or organization (name or URL)")
	discoverCmd.Flags().StringVar(&d.Visibility, flags.FlagVisibility, d.Visibility, "Visibility filter: public|private|internal|all")
	discoverCmd.Flags().StringVar(&d.Archived, flags.FlagArchived, d.Archived, "Archived repos policy: include|exclude|only")
	discoverCmd.Flags().StringVar(&d.Forks, flags.FlagForks, d.Forks, "Forks policy: include|exclude|only. For user accounts, forks default to include when this flag is omitted")
	discoverCmd.Flags().StringSliceVar(&d.Topics, flags.FlagTopic, nil, "Require at least one topic match (repeatable; comma-separated accepted; exact match)")
	discoverCmd.Flags().StringSliceVar(&d.Include, flags.FlagInclude, nil, "Include pattern(s). Go path.Match style; if pattern contains '/', matches OWNER/REPO, else matches repo name")
	discoverCmd.Flags().StringSliceVar(&d.Exclude, flags.FlagExclude, nil, "Exclude pattern(s). Same matching rules as --include")
	discoverCmd.Flags().IntVar(&d.MaxRepos, flags.FlagMaxRepos, 0, "Maximum number of repositories to write (0 = unlimited)")
	discoverCmd.Flags().StringVar(&d.Out, flags.FlagOut, "", "Write the descriptor document to this path (default: stdout)")
	discoverCmd.Flags().StringVar(&d.Workspace, flags.FlagWorkspace, d.Workspace, "Workspace directory recorded in the document")
	discoverCmd.Flags().StringSliceVar(&d.Labels, flags.FlagLabels, nil, "Default labels for every repository (e.g. shallow)")
	discoverCmd.Flags().StringVar(&d.Branch, flags.FlagBranch, "", "Branch to track (default: each repository's default branch)")
	discoverCmd.Flags().StringVar(&d.Protocol, flags.FlagProtocol, d.Protocol, "Remote URL form: https|ssh")
	discoverCmd.Flags().StringVar(&d.BaseURL, flags.FlagBaseURL, "", "GitHub Enterprise Server URL")
}
