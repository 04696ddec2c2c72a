package client

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

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/stdb-loadgen/internal/metrics"
)

// HTTPCallResult reports one request/response reducer invocation,
// including how many attempts the bounded retry loop used.
type HTTPCallResult struct {
	Success  bool
	Status   int
	Body     []byte
	Duration time.Duration
	Attempts int
	Kind     metrics.ErrorKind
	Err      error
}

// newHTTPBreaker builds the circuit breaker guarding the HTTP reducer
// path. Bounded per-call retries handle transient 5xx storms; the
// breaker only opens under a sustained near-total outage, shedding
// load with fast failures.
func newHTTPBreaker(name string, log *logrus.Entry) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 20 && ratio >= 0.95
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state change")
		},
	})
}

// CallReducerHTTP invokes a reducer over the request/response path:
// POST {baseURL}/v1/database/{module}/call/{reducer} with a JSON array
// of positional arguments. 5xx responses retry up to MaxRetries with a
// fixed RetryDelay between attempts; 4xx responses fail fast on the
// first attempt. Failures come back as a structured result, never an
// escaping error.
func (c *Client) CallReducerHTTP(ctx context.Context, reducer string, args []any) HTTPCallResult {
	res, err := c.breaker.Execute(func() (any, error) {
		out := c.doHTTPCall(ctx, reducer, args)
		// Only server-side trouble counts against the breaker; 4xx is
		// the caller's fault and must not open it.
		if !out.Success && !errors.Is(out.Err, ErrHTTPClient) {
			return out, out.Err
		}
		return out, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return HTTPCallResult{
				Kind: metrics.ErrKindConnection,
				Err:  fmt.Errorf("%w: circuit open", ErrConnection),
			}
		}
		if out, ok := res.(HTTPCallResult); ok {
			return out
		}
		return HTTPCallResult{Kind: errorKind(err), Err: err}
	}
	return res.(HTTPCallResult)
}

func (c *Client) doHTTPCall(ctx context.Context, reducer string, args []any) HTTPCallResult {
	start := time.Now()
	fail := func(attempts, status int, err error) HTTPCallResult {
		return HTTPCallResult{
			Status:   status,
			Duration: time.Since(start),
			Attempts: attempts,
			Kind:     errorKind(err),
			Err:      err,
		}
	}

	url := fmt.Sprintf("%s/v1/database/%s/call/%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Module, reducer)
	payload, err := json.Marshal(args)
	if err != nil {
		return fail(0, 0, fmt.Errorf("%w: marshal args: %v", ErrValidation, err))
	}

	maxAttempts := c.cfg.MaxRetries + 1
	attempts := 0
	for {
		attempts++
		status, body, err := c.httpAttempt(ctx, url, payload)

		switch {
		case err != nil:
			return fail(attempts, 0, err)

		case status >= 200 && status < 300:
			return HTTPCallResult{
				Success:  true,
				Status:   status,
				Body:     body,
				Duration: time.Since(start),
				Attempts: attempts,
			}

		case status >= 400 && status < 500:
			// Non-transient: retrying a rejected request cannot help.
			return fail(attempts, status, fmt.Errorf("%w: %s returned %d", ErrHTTPClient, reducer, status))

		default:
			if attempts >= maxAttempts {
				return fail(attempts, status, fmt.Errorf("%w: %s returned %d after %d attempts",
					ErrHTTPServer, reducer, status, attempts))
			}
			c.log.WithFields(logrus.Fields{
				"reducer": reducer,
				"status":  status,
				"attempt": attempts,
			}).Debug("retrying after server error")

			select {
			case <-time.After(c.cfg.RetryDelay):
			case <-ctx.Done():
				return fail(attempts, status, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err()))
			}
		}
	}
}

func (c *Client) httpAttempt(ctx context.Context, url string, payload []byte) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return 0, nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return 0, nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: read body: %v", ErrValidation, err)
	}
	return resp.StatusCode, body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
