// Package aicore is the client for the external generation service.
package aicore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"genesis/internal/domain"
	"genesis/internal/health"
	"genesis/internal/infra"
)

const (
	defaultTimeout      = 300 * time.Second
	defaultRetryBackoff = 500 * time.Millisecond
	probeTimeout        = 5 * time.Second
	maxErrorBody        = 4 << 10
)

// Options configures the generation service client.
type Options struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
	Logger       *infra.Logger

	// BreakerFailures is the number of consecutive Timeout/Unreachable
	// attempts that open the breaker. Zero disables it.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Client calls POST /run on the generation service.
type Client struct {
	baseURL      string
	timeout      time.Duration
	maxRetries   int
	retryBackoff time.Duration
	httpClient   *http.Client
	breaker      *gobreaker.CircuitBreaker
	logger       *infra.Logger
}

// Result is a successful generation.
type Result struct {
	Files       []domain.GeneratedFile
	Output      string
	ProjectPath string
}

type runRequest struct {
	Prompt  string `json:"prompt"`
	Backend string `json:"backend"`
}

type runResponse struct {
	Success *bool    `json:"success"`
	Message string   `json:"message"`
	Data    *runData `json:"data"`
}

type runData struct {
	Files       *[]runFile `json:"files"`
	Output      *string    `json:"output"`
	ProjectPath string     `json:"project_path"`
}

type runFile struct {
	Name         *string    `json:"name"`
	Content      *string    `json:"content"`
	Language     *string    `json:"language"`
	Size         *int64     `json:"size"`
	LastModified *time.Time `json:"last_modified"`
}

type errorResponse struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// NewClient constructs a client with defaults for every unset option.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("aicore: base url is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retryBackoff := opts.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = defaultRetryBackoff
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}

	c := &Client{
		baseURL:      baseURL,
		timeout:      timeout,
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
		httpClient:   httpClient,
		logger:       logger,
	}

	if opts.BreakerFailures > 0 {
		cooldown := opts.BreakerCooldown
		if cooldown <= 0 {
			cooldown = 30 * time.Second
		}
		threshold := opts.BreakerFailures
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "ai_core",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				if err == nil || errors.Is(err, context.Canceled) {
					return true
				}
				var e *Error
				if errors.As(err, &e) {
					return !e.Retryable()
				}
				return false
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("aicore: circuit breaker state changed")
			},
		})
	}
	return c, nil
}

// Run asks the service to generate a project. Timeout and Unreachable failures
// are retried with exponential backoff up to MaxRetries times; every other
// failure is returned after the first attempt.
func (c *Client) Run(ctx context.Context, prompt string, backend domain.Backend) (*Result, error) {
	body, err := json.Marshal(runRequest{Prompt: prompt, Backend: string(backend)})
	if err != nil {
		return nil, fmt.Errorf("aicore: encode request: %w", err)
	}

	attempt := 0
	operation := func() (*Result, error) {
		attempt++
		res, err := c.attempt(ctx, body)
		if err == nil {
			return res, nil
		}
		var e *Error
		if errors.As(err, &e) && e.Retryable() && ctx.Err() == nil {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryBackoff
	policy.MaxInterval = 30 * c.retryBackoff
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_retries", c.maxRetries).
			Dur("retry_in", wait).
			Msg("aicore: retrying generation call")
	}

	res, err := backoff.RetryNotifyWithData(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx),
		notify,
	)
	if err != nil {
		var e *Error
		if !errors.As(err, &e) {
			err = classify(err)
		}
		return nil, err
	}
	return res, nil
}

func (c *Client) attempt(ctx context.Context, body []byte) (*Result, error) {
	if c.breaker == nil {
		return c.do(ctx, body)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &Error{Kind: KindUnreachable, Message: "circuit breaker open", Err: err}
		}
		return nil, err
	}
	return out.(*Result), nil
}

func (c *Client) do(ctx context.Context, body []byte) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindUnreachable, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &Error{Kind: KindServiceError, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(err)
	}
	res, err := parseRunResponse(raw)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().
		Int("files", len(res.Files)).
		Dur("took", time.Since(start)).
		Msg("aicore: generation call succeeded")
	return res, nil
}

func parseRunResponse(raw []byte) (*Result, error) {
	var payload runResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &Error{Kind: KindParseError, Err: err}
	}
	if payload.Success == nil {
		return nil, &Error{Kind: KindParseError, Message: "missing success flag"}
	}
	if !*payload.Success {
		msg := payload.Message
		if msg == "" {
			msg = "generation reported failure"
		}
		return nil, &Error{Kind: KindParseError, Message: msg}
	}
	if payload.Data == nil {
		return nil, &Error{Kind: KindParseError, Message: "missing data"}
	}
	if payload.Data.Files == nil {
		return nil, &Error{Kind: KindParseError, Message: "missing files"}
	}
	if payload.Data.Output == nil {
		return nil, &Error{Kind: KindParseError, Message: "missing output"}
	}

	files := make([]domain.GeneratedFile, 0, len(*payload.Data.Files))
	for i, f := range *payload.Data.Files {
		if f.Name == nil || f.Content == nil || f.Language == nil {
			return nil, &Error{Kind: KindParseError, Message: fmt.Sprintf("file %d is missing name, content or language", i)}
		}
		size := f.Size
		if size == nil {
			n := int64(len(*f.Content))
			size = &n
		}
		files = append(files, domain.GeneratedFile{
			Name:         *f.Name,
			Content:      *f.Content,
			Language:     *f.Language,
			Size:         size,
			LastModified: f.LastModified,
		})
	}

	return &Result{Files: files, Output: *payload.Data.Output, ProjectPath: payload.Data.ProjectPath}, nil
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindUnreachable, Err: err}
}

func errorMessage(raw []byte) string {
	var payload errorResponse
	if err := json.Unmarshal(raw, &payload); err == nil {
		for _, msg := range []string{payload.Detail, payload.Message, payload.Error} {
			if msg != "" {
				return msg
			}
		}
	}
	return strings.TrimSpace(string(raw))
}

// Probe checks GET /health with a fixed short timeout. It bypasses retries and
// the circuit breaker.
func (c *Client) Probe(ctx context.Context) health.Result {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return health.Unhealthy(err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return health.Unhealthy(classify(err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode != http.StatusOK {
		return health.Unhealthy(fmt.Errorf("HTTP %d", resp.StatusCode))
	}
	return health.Healthy()
}

var _ health.Prober = (*Client)(nil)
