// Package vcs runs version-control operations against a single repository
// as supervised git subprocesses.
//
// An Executor never retries and never classifies failures; it reports the
// raw exit status, captured output, and whether the operation hit its own
// timeout or was cancelled by the caller.
package vcs

import (
	"context"
	"time"

	"reposync/internal/descriptor"
	"reposync/internal/labels"
)

type Op string

const (
	OpLsRemote       Op = "ls-remote"
	OpClone          Op = "clone"
	OpFetch          Op = "fetch"
	OpSparseCheckout Op = "sparse-checkout"
	OpCheckout       Op = "checkout"
	OpMerge          Op = "merge"
	OpReset          Op = "reset"
	OpClean          Op = "clean"
	OpRevParse       Op = "rev-parse"
	// OpLocalCommits counts commits on the tracked branch that the last
	// fetched remote tip does not contain.
	OpLocalCommits Op = "rev-list"
)

// Network reports whether the operation talks to the remote.
func (o Op) Network() bool {
	switch o {
	case OpLsRemote, OpClone, OpFetch:
		return true
	}
	return false
}

type Request struct {
	Op         Op
	Descriptor descriptor.Descriptor
	Strategy   labels.SyncStrategy
	// Credential is a bearer token for the remote; empty means anonymous.
	Credential string
	// Dir overrides the directory the operation acts on. Clone writes into
	// it; other operations run inside it. Defaults to Descriptor.LocalPath.
	Dir     string
	Timeout time.Duration
}

func (r Request) dir() string {
	if r.Dir != "" {
		return r.Dir
	}
	return r.Descriptor.LocalPath
}

// Result is the raw outcome of one subprocess.
type Result struct {
	Op   Op
	Args []string
	// ExitCode is the process exit status. It is -1 when the process did not
	// exit on its own (start failure, timeout, cancellation).
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
	// Cancelled is set when the caller's context ended the process.
	Cancelled bool
	// StartErr is set when the process could not be started or its working
	// directory could not be prepared.
	StartErr error
}

func (r Result) Success() bool {
	return r.StartErr == nil && !r.TimedOut && !r.Cancelled && r.ExitCode == 0
}

// Exited reports whether ExitCode is a real process exit status.
func (r Result) Exited() bool {
	return r.StartErr == nil && !r.TimedOut && !r.Cancelled && r.ExitCode >= 0
}

type Executor interface {
	Execute(ctx context.Context, req Request) Result
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req Request) Result

func (f ExecutorFunc) Execute(ctx context.Context, req Request) Result {
	return f(ctx, req)
}
