package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/ads-adapter/internal/metrics"
	"github.com/Checker-Finance/ads-adapter/internal/rate"
	"github.com/Checker-Finance/ads-adapter/pkg/apierror"
	"github.com/Checker-Finance/ads-adapter/pkg/utils"
)

// TokenSource supplies bearer tokens to the executor.
type TokenSource interface {
	// Current returns the cached access token if it is still valid.
	Current() (string, bool)
	// Refresh obtains a new access token. stale is the token the caller last
	// used (empty if none); concurrent callers share one exchange.
	Refresh(ctx context.Context, stale string) (string, error)
}

// Policy bounds retries and the overall duration of one call.
type Policy struct {
	MaxRetries int
	Timeout    time.Duration
	Backoff    Backoff
}

// Call describes one logical request. Body is kept as bytes so every attempt
// re-sends the full payload.
type Call struct {
	Method       string
	URL          string
	Path         string
	Header       http.Header
	Body         []byte
	RateLimitKey string
}

// Result is the outcome of a successful call.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// Executor drives calls through the retry state machine.
type Executor struct {
	logger   *zap.Logger
	http     *http.Client
	tokens   TokenSource
	rateMgr  *rate.Manager
	policy   Policy
	observer Observer
	now      func() time.Time
}

// New creates an Executor. rateMgr may be nil.
func New(
	logger *zap.Logger,
	httpClient *http.Client,
	tokens TokenSource,
	rateMgr *rate.Manager,
	policy Policy,
) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	policy.Backoff = policy.Backoff.withDefaults()
	return &Executor{
		logger:  logger,
		http:    httpClient,
		tokens:  tokens,
		rateMgr: rateMgr,
		policy:  policy,
		now:     time.Now,
	}
}

// SetObserver installs a transition hook. It must be set before the first call.
func (e *Executor) SetObserver(o Observer) {
	e.observer = o
}

// Do runs call to completion. A non-nil error is one of the apierror types,
// a wrapped transport error, or a context cancellation.
func (e *Executor) Do(ctx context.Context, call *Call) (*Result, error) {
	if e.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.policy.Timeout)
		defer cancel()
	}

	r := &run{
		e:     e,
		call:  call,
		id:    uuid.NewString(),
		state: StateIdle,
	}

	for !r.state.Terminal() {
		var next State
		switch r.state {
		case StateIdle:
			next = r.idle()
		case StateRefreshing:
			next = r.refreshing(ctx)
		case StateSending:
			next = r.sending(ctx)
		case StateAwaitingBackoff:
			next = r.awaitBackoff(ctx)
		}
		r.transition(next)
	}

	if r.state == StateFailed {
		return nil, r.err
	}
	return r.result, nil
}

// run is the per-call request context.
type run struct {
	e    *Executor
	call *Call
	id   string

	state        State
	token        string
	attempts     int
	retries      int
	refreshed401 bool
	fresh        bool // token came from Refresh and has not been sent yet

	delay       time.Duration
	retryReason string

	result *Result
	err    error
}

func (r *run) transition(next State) {
	if r.e.observer != nil {
		r.e.observer(r.id, r.state, next)
	}
	r.state = next
}

func (r *run) idle() State {
	if tok, ok := r.e.tokens.Current(); ok {
		r.token = tok
		return StateSending
	}
	return StateRefreshing
}

func (r *run) refreshing(ctx context.Context) State {
	tok, err := r.e.tokens.Refresh(ctx, r.token)
	if err == nil {
		r.token = tok
		r.fresh = true
		return StateSending
	}
	if ctx.Err() != nil {
		return r.failContext(ctx)
	}

	var transient *apierror.TransientAuthError
	if errors.As(err, &transient) && r.retries < r.e.policy.MaxRetries {
		r.e.logger.Warn("ads.token_refresh_retry",
			zap.String("call_id", r.id),
			zap.Int("retry", r.retries+1),
			zap.Error(err))
		return r.backoff("auth", 0)
	}

	r.err = err
	return StateFailed
}

func (r *run) sending(ctx context.Context) State {
	c := r.call
	if r.e.rateMgr != nil {
		if err := r.e.rateMgr.Wait(ctx, c.RateLimitKey); err != nil {
			return r.failContext(ctx)
		}
		// The wait can outlast the token. A token just returned by Refresh is
		// sent as is, so a lifetime shorter than the expiry buffer cannot loop.
		if !r.fresh {
			tok, ok := r.e.tokens.Current()
			if !ok {
				r.e.logger.Debug("ads.token_expired_while_throttled",
					zap.String("call_id", r.id),
					zap.String("path", c.Path))
				return StateRefreshing
			}
			r.token = tok
		}
	}
	r.fresh = false

	var body io.Reader
	if len(c.Body) > 0 {
		body = bytes.NewReader(c.Body)
	}
	req, err := http.NewRequestWithContext(ctx, c.Method, c.URL, body)
	if err != nil {
		r.err = fmt.Errorf("ads: build request %s %s: %w", c.Method, c.Path, err)
		return StateFailed
	}
	for k, v := range c.Header {
		req.Header[k] = append([]string(nil), v...)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)

	r.attempts++
	start := r.e.now()
	resp, err := r.e.http.Do(req)
	if err != nil {
		metrics.ObserveAttempt(c.Method, 0, start)
		if ctx.Err() != nil {
			return r.failContext(ctx)
		}
		r.e.logger.Warn("ads.http_failed",
			zap.String("call_id", r.id),
			zap.String("method", c.Method),
			zap.String("path", c.Path),
			zap.Int("attempt", r.attempts),
			zap.Error(err))
		return r.retryTransport(err)
	}

	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	metrics.ObserveAttempt(c.Method, resp.StatusCode, start)
	elapsed := r.e.now().Sub(start)

	if readErr != nil {
		if ctx.Err() != nil {
			return r.failContext(ctx)
		}
		return r.retryTransport(fmt.Errorf("read body: %w", readErr))
	}

	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		r.e.logger.Debug("ads.http_success",
			zap.String("call_id", r.id),
			zap.String("method", c.Method),
			zap.String("path", c.Path),
			zap.Int("status", status),
			zap.Int("attempt", r.attempts),
			zap.Duration("elapsed", elapsed))
		r.result = &Result{
			StatusCode: status,
			Header:     resp.Header,
			Body:       respBody,
			Attempts:   r.attempts,
		}
		return StateSucceeded

	case status == http.StatusUnauthorized:
		if !r.refreshed401 {
			r.refreshed401 = true
			r.e.logger.Warn("ads.unauthorized",
				zap.String("call_id", r.id),
				zap.String("path", c.Path),
				zap.String("authorization", utils.MaskBearer(req.Header.Get("Authorization"))),
				zap.Int("attempt", r.attempts))
			return StateRefreshing
		}
		r.err = &apierror.AuthError{StatusCode: status, Body: respBody}
		return StateFailed

	case status == http.StatusTooManyRequests:
		retryAfter, hinted := RetryAfter(resp.Header, r.e.now())
		r.e.logger.Warn("ads.rate_limited",
			zap.String("call_id", r.id),
			zap.String("path", c.Path),
			zap.Int("attempt", r.attempts),
			zap.Duration("retry_after", retryAfter))
		if r.retries < r.e.policy.MaxRetries {
			if hinted && r.e.rateMgr != nil {
				r.e.rateMgr.Block(c.RateLimitKey, r.e.now().Add(retryAfter))
			}
			if hinted {
				return r.backoff("rate_limited", retryAfter)
			}
			return r.backoff("rate_limited", 0)
		}
		r.err = &apierror.RateLimitExceededError{
			Method:     c.Method,
			Path:       c.Path,
			Attempts:   r.attempts,
			RetryAfter: retryAfter,
			Body:       respBody,
		}
		return StateFailed

	case status >= 500:
		r.e.logger.Warn("ads.server_error",
			zap.String("call_id", r.id),
			zap.String("path", c.Path),
			zap.Int("status", status),
			zap.Int("attempt", r.attempts),
			zap.Duration("latency", elapsed))
		if r.retries < r.e.policy.MaxRetries {
			if retryAfter, hinted := RetryAfter(resp.Header, r.e.now()); hinted {
				return r.backoff("server_error", retryAfter)
			}
			return r.backoff("server_error", 0)
		}
		r.err = r.apiError(resp, respBody)
		return StateFailed

	default:
		r.err = r.apiError(resp, respBody)
		return StateFailed
	}
}

func (r *run) awaitBackoff(ctx context.Context) State {
	r.retries++
	metrics.IncRetry(r.retryReason)

	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return StateIdle
	case <-ctx.Done():
		return r.failContext(ctx)
	}
}

// backoff schedules the next retry. A positive hint is a server-supplied
// minimum delay and replaces the computed one.
func (r *run) backoff(reason string, hint time.Duration) State {
	r.retryReason = reason
	if hint > 0 {
		r.delay = hint
	} else {
		r.delay = r.e.policy.Backoff.Delay(r.retries)
	}
	return StateAwaitingBackoff
}

func (r *run) retryTransport(err error) State {
	if r.retries < r.e.policy.MaxRetries {
		return r.backoff("transport", 0)
	}
	r.err = fmt.Errorf("ads: %s %s failed after %d attempts: %w", r.call.Method, r.call.Path, r.attempts, err)
	return StateFailed
}

func (r *run) apiError(resp *http.Response, body []byte) error {
	requestID := resp.Header.Get("x-amzn-RequestId")
	if requestID == "" {
		requestID = resp.Header.Get("x-amz-request-id")
	}
	return &apierror.APIError{
		StatusCode: resp.StatusCode,
		Method:     r.call.Method,
		Path:       r.call.Path,
		Attempts:   r.attempts,
		RequestID:  requestID,
		Body:       body,
	}
}

// failContext ends the call on context expiry. A nil ctx.Err() means the rate
// limiter refused to wait past the deadline, which is reported as a timeout too.
func (r *run) failContext(ctx context.Context) State {
	err := ctx.Err()
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		r.err = &apierror.TimeoutError{
			Method:   r.call.Method,
			Path:     r.call.Path,
			Timeout:  r.e.policy.Timeout,
			Attempts: r.attempts,
			Err:      context.DeadlineExceeded,
		}
	} else {
		r.err = fmt.Errorf("ads: %s %s canceled: %w", r.call.Method, r.call.Path, err)
	}
	return StateFailed
}
