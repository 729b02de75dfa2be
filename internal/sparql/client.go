// Package sparql executes SELECT queries against Virtuoso-style SPARQL
// endpoints and decodes their JSON result bindings.
package sparql

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// FormatJSON is the output format requested by default.
const FormatJSON = "application/json"

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxResponseBytes = 32 << 20
)

// Recorder observes the outcome of every remote call.
type Recorder interface {
	ObserveQuery(endpoint string, outcome Kind, duration time.Duration)
}

// OutcomeOK is reported to the Recorder for successful calls.
const OutcomeOK Kind = "ok"

// Options configures a Client. Zero values select defaults.
type Options struct {
	HTTPClient       *http.Client
	Timeout          time.Duration
	MaxResponseBytes int64
	Format           string
	UserAgent        string
	Logger           *zap.Logger
	Recorder         Recorder
}

// Client runs queries against remote endpoints. It holds no per-request
// state and is safe for concurrent use.
type Client struct {
	http     *http.Client
	timeout  time.Duration
	maxBytes int64
	format   string
	agent    string
	log      *zap.Logger
	recorder Recorder
}

// NewClient constructs a Client from opts.
func NewClient(opts Options) *Client {
	c := &Client{
		http:     opts.HTTPClient,
		timeout:  opts.Timeout,
		maxBytes: opts.MaxResponseBytes,
		format:   opts.Format,
		agent:    opts.UserAgent,
		log:      opts.Logger,
		recorder: opts.Recorder,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxBytes <= 0 {
		c.maxBytes = defaultMaxResponseBytes
	}
	if c.format == "" {
		c.format = FormatJSON
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// formValues builds the fixed Virtuoso parameter set; unused options are
// sent empty.
func (c *Client) formValues(query string) url.Values {
	return url.Values{
		"default-graph": {""},
		"should-sponge": {"soft"},
		"query":         {query},
		"debug":         {"off"},
		"timeout":       {""},
		"format":        {c.format},
		"save":          {"display"},
		"fname":         {""},
	}
}

// Execute sends query to endpoint and returns the decoded bindings. Failures
// are reported as *QueryError. There is no retry.
func (c *Client) Execute(ctx context.Context, endpoint, query string) (*Result, error) {
	started := time.Now()
	res, err := c.execute(ctx, endpoint, query)
	if c.recorder != nil {
		outcome := OutcomeOK
		var qerr *QueryError
		if errors.As(err, &qerr) {
			outcome = qerr.Kind
		}
		c.recorder.ObserveQuery(endpoint, outcome, time.Since(started))
	}
	return res, err
}

func (c *Client) execute(ctx context.Context, endpoint, query string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := strings.NewReader(c.formValues(query).Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, &QueryError{Kind: KindTransport, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json, application/json")
	if c.agent != "" {
		req.Header.Set("User-Agent", c.agent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &QueryError{Kind: KindTransport, Endpoint: endpoint, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &QueryError{Kind: KindStatus, Endpoint: endpoint, Status: resp.StatusCode}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, &QueryError{Kind: KindTransport, Endpoint: endpoint, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(payload)) > c.maxBytes {
		return nil, &QueryError{Kind: KindUnparseable, Endpoint: endpoint, Err: fmt.Errorf("response exceeds %d bytes", c.maxBytes)}
	}
	res, err := DecodeResult(payload)
	if err != nil {
		return nil, &QueryError{Kind: KindUnparseable, Endpoint: endpoint, Err: err}
	}
	return res, nil
}

// Select is the degrade-to-empty form of Execute: any failure is logged and
// an empty Result is returned so aggregation proceeds with zero rows.
func (c *Client) Select(ctx context.Context, endpoint, query string) *Result {
	res, err := c.Execute(ctx, endpoint, query)
	if err != nil {
		c.log.Warn("sparql query degraded to empty result",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return &Result{}
	}
	return res
}
