package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"reposync/internal/config"
	"reposync/internal/credentials"
	"reposync/internal/descriptor"
	"reposync/internal/labels"
	"reposync/internal/logging"
	"reposync/internal/metrics"
	"reposync/internal/output"
	"reposync/internal/report"
	"reposync/internal/retry"
	"reposync/internal/vcs"
)

// Session holds the process-level collaborators of a sync invocation.
// Zero fields fall back to the real implementations.
type Session struct {
	Stdout io.Writer
	Stderr io.Writer

	// Executor replaces the git subprocess adapter.
	Executor vcs.Executor
	// Credentials replaces the resolver chain built from config.
	Credentials credentials.Resolver
	// Sleep replaces the retry backoff wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Execute runs sync (or the dry-run plan) for cfg and returns the process
// exit code. cfg must already be validated.
func (s Session) Execute(ctx context.Context, cfg *config.Config) int {
	stdout, stderr := s.Stdout, s.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	log, err := logging.New(logging.Options{
		Level:  cfg.Runtime.LogLevel,
		Format: logging.Format(cfg.Runtime.LogFormat),
		Writer: stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitFatal
	}

	store, err := loadStore(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitFatal
	}

	if cfg.Targeting.DryRun {
		return printPlan(stdout, stderr, store)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Runtime.Timeout)
	defer cancel()

	outMgr, err := setupOutputManager(cfg, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error creating output sinks: %v\n", err)
		return ExitFatal
	}

	exec := s.Executor
	if exec == nil {
		exec = vcs.NewGit(vcs.WithBinary(cfg.Runtime.GitBinary))
	}
	creds := s.Credentials
	if creds == nil {
		creds = buildCredentials(cfg, log)
	}

	m := metrics.NewSync()
	eng := New(exec, creds)
	eng.Policy = retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Jitter:      cfg.Retry.Jitter,
	}
	eng.Concurrency = cfg.Runtime.Concurrency
	eng.OpTimeout = cfg.Runtime.OpTimeout
	eng.RunID = cfg.Runtime.RunID
	eng.Output = outMgr
	eng.Metrics = m
	eng.Logger = log
	eng.Sleep = s.Sleep

	rr, runErr := eng.Run(ctx, store)
	if closeErr := outMgr.Close(); closeErr != nil {
		log.Error().Err(closeErr).Msg("failed to close output sinks")
		runErr = closeErr
	}
	if rr == nil {
		fmt.Fprintf(stderr, "Error: %v\n", runErr)
		return ExitFatal
	}

	code := ExitCode(rr)
	if runErr != nil {
		log.Error().Err(runErr).Msg("run finished with internal errors")
		code = ExitFatal
	}

	if cfg.Output.Report != "" {
		if err := report.Write(cfg.Output.Report, rr); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitFatal
		}
		log.Debug().Str("path", cfg.Output.Report).Msg("report written")
	}
	if cfg.Output.MetricsOut != "" {
		if err := m.WriteTextfile(cfg.Output.MetricsOut); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitFatal
		}
	}
	return code
}

func loadStore(cfg *config.Config) (*descriptor.Store, error) {
	store, err := descriptor.Load(cfg.Input.File)
	if err != nil {
		return nil, err
	}
	f := descriptor.Filter{
		IDs:     cfg.Targeting.IDs,
		Labels:  cfg.Targeting.Labels,
		Include: cfg.Targeting.Include,
		Exclude: cfg.Targeting.Exclude,
	}
	if f.Empty() {
		return store, nil
	}
	return store.Select(f)
}

func printPlan(stdout, stderr io.Writer, store *descriptor.Store) int {
	plan, err := Plan(store, labels.Default())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitFatal
	}
	if err := plan.Render(stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitFatal
	}
	if plan.Blocked() {
		return ExitFailure
	}
	return ExitOK
}

func setupOutputManager(cfg *config.Config, stdout, stderr io.Writer) (*output.Manager, error) {
	outMgr := output.NewManager()

	// Console Sink
	if !cfg.Output.NoConsole {
		if err := outMgr.AddSink(output.NewConsoleSink(stdout, cfg.Output.ConsoleFormat, cfg.Output.ConsoleFilterStatus)); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Emit Sinks (additional structured streams)
	for _, emit := range cfg.Output.Emit {
		es, err := output.NewEmitSink(stdout, emit)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(es); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// File Sink
	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(fs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Markdown Sink
	if cfg.Output.Markdown != "" {
		ms, err := output.NewMarkdownSink(cfg.Output.Markdown)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(ms); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	if cfg.Output.Progress {
		if err := outMgr.AddSink(output.NewProgressSink(stderr)); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	return outMgr, nil
}

// buildCredentials chains env vars, a GitHub App and the GitHub CLI, then
// throttles, caches and finally enforces that private repositories get a
// token.
func buildCredentials(cfg *config.Config, log zerolog.Logger) credentials.Resolver {
	c := cfg.Credentials
	chain := credentials.Chain{credentials.Env{Vars: c.EnvVars}}
	if c.AppID != 0 {
		chain = append(chain, &credentials.GitHubApp{
			AppID:          c.AppID,
			InstallationID: c.InstallationID,
			PrivateKeyFile: c.AppPrivateKey,
			BaseURL:        c.AppBaseURL,
		})
		log.Debug().Int64("app_id", c.AppID).Msg("github app credentials enabled")
	}
	if c.UseGitHubCLI {
		chain = append(chain, credentials.GitHubCLI{Host: c.GitHubHost})
	}

	var r credentials.Resolver = chain
	if c.Serialize {
		r = credentials.NewSerialized(r)
	}
	if c.RatePerSecond > 0 {
		r = credentials.NewThrottled(r, c.RatePerSecond, 1)
	}
	r = credentials.NewCaching(r, credentials.SharedKey, 0, c.CacheTTL)
	return credentials.Required(r)
}
