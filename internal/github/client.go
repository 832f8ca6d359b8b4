// Package github talks to the GitHub REST API for repository discovery.
package github

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v81/github"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

type Client struct {
	Client *github.Client
	HTTP   *http.Client
	Budget *RequestBudget
}

type options struct {
	verbose bool
	// logger receives verbose HTTP logs. It writes to stderr so structured
	// output on stdout stays clean.
	logger  zerolog.Logger
	baseURL string
	budget  *RequestBudget
}

type Option func(*options)

func WithVerbose(enabled bool, logger zerolog.Logger) Option {
	return func(o *options) {
		o.verbose = enabled
		o.logger = logger
	}
}

// WithBaseURL points the client at a GitHub Enterprise Server (or a test
// server) instead of api.github.com.
func WithBaseURL(raw string) Option {
	return func(o *options) {
		o.baseURL = raw
	}
}

// WithBudget shares a request budget across clients. By default every
// client gets its own.
func WithBudget(b *RequestBudget) Option {
	return func(o *options) {
		o.budget = b
	}
}

// loggingRoundTripper wraps an underlying transport and emits one debug
// event per request and response (including latency).
type loggingRoundTripper struct {
	base http.RoundTripper
	log  zerolog.Logger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	t.log.Debug().Str("method", req.Method).Str("url", req.URL.String()).Msg("github api request")
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start).Truncate(time.Millisecond)
	if err != nil {
		t.log.Debug().Err(err).Dur("elapsed", dur).Msg("github api error")
		return resp, err
	}
	t.log.Debug().
		Int("status", resp.StatusCode).
		Str("remaining", resp.Header.Get("X-RateLimit-Remaining")).
		Dur("elapsed", dur).
		Msg("github api response")
	return resp, err
}

// budgetRoundTripper spends one unit of the request budget per request and
// refreshes it from the rate-limit headers of each response.
type budgetRoundTripper struct {
	base   http.RoundTripper
	budget *RequestBudget
}

func (t *budgetRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.budget.Acquire(req.Context(), 1); err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(req)
	if resp != nil {
		t.budget.UpdateFromResponse(resp)
	}
	return resp, err
}

func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("github client: ctx is nil")
	}

	o := &options{logger: zerolog.Nop()}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}
	if o.budget == nil {
		o.budget = NewRequestBudget()
	}

	transport := http.DefaultTransport
	if o.verbose {
		transport = &loggingRoundTripper{base: transport, log: o.logger}
	}
	transport = &budgetRoundTripper{base: transport, budget: o.budget}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	// Always provide an http.Client so verbose logging works even without a token.
	tc := &http.Client{Transport: transport}

	gc := github.NewClient(tc)
	if o.baseURL != "" {
		var err error
		gc, err = gc.WithEnterpriseURLs(o.baseURL, o.baseURL)
		if err != nil {
			return nil, fmt.Errorf("github client: invalid base url %q: %w", o.baseURL, err)
		}
	}

	return &Client{
		Client: gc,
		HTTP:   tc,
		Budget: o.budget,
	}, nil
}
