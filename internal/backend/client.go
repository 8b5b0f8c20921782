// Package backend is the gateway's client for the per-region backend
// services. Every call goes through the pool's per-domain HTTP handle and
// returns the decoded {code, msg, data} envelope or a typed *domain.Error.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/phrazzld/match-gateway/internal/domain"
	"github.com/phrazzld/match-gateway/internal/metrics"
	"github.com/phrazzld/match-gateway/internal/platform/logger"
	"github.com/phrazzld/match-gateway/internal/pool"
)

const maxBodyBytes = 4 << 20

// Options tunes transport retries.
type Options struct {
	// MaxRetries bounds retries after the first attempt.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultOptions matches the pool defaults.
func DefaultOptions() Options {
	return Options{MaxRetries: 2, InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}
}

// Call describes one backend request.
type Call struct {
	Method string
	URL    string
	Query  url.Values
	// Body is marshalled as JSON when non-nil.
	Body   any
	Header http.Header
}

// Result is a successful backend envelope.
type Result struct {
	Status int
	Code   string
	Msg    string
	Data   json.RawMessage
}

// Decode unmarshals the envelope data into v.
func (r *Result) Decode(v any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return domain.ServerError("empty backend data", nil)
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return domain.ServerError("invalid backend data", err)
	}
	return nil
}

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Client performs backend calls.
type Client struct {
	pool    *pool.Manager
	metrics *metrics.Metrics
	opts    Options
}

// New creates a Client. m may be nil.
func New(p *pool.Manager, m *metrics.Metrics, opts Options) *Client {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultOptions().InitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultOptions().MaxBackoff
	}
	return &Client{pool: p, metrics: m, opts: opts}
}

// errRetryableStatus marks 502/503/504 responses inside the retry loop.
type errRetryableStatus struct {
	status int
}

func (e *errRetryableStatus) Error() string {
	return "backend unavailable: status " + strconv.Itoa(e.status)
}

// Do sends call, retrying transport failures only.
func (c *Client) Do(ctx context.Context, call Call) (*Result, error) {
	log := logger.FromContext(ctx)
	start := time.Now()
	method := strings.ToUpper(call.Method)

	target, err := buildURL(call.URL, call.Query)
	if err != nil {
		return nil, err
	}
	var payload []byte
	if call.Body != nil {
		if payload, err = json.Marshal(call.Body); err != nil {
			return nil, domain.ServerError("failed to encode backend request", err)
		}
	}

	handle, err := c.pool.HTTP(target)
	if err != nil {
		return nil, domain.ServerError("invalid backend target", err)
	}

	var (
		status int
		body   []byte
	)
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, method, target, bodyReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		for k, vs := range call.Header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := handle.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return err
		}
		status = resp.StatusCode
		if isRetryableStatus(status) {
			return &errRetryableStatus{status: status}
		}
		return nil
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(c.opts.InitialBackoff),
				backoff.WithMaxInterval(c.opts.MaxBackoff),
			),
			uint64(max(c.opts.MaxRetries, 0)),
		),
		ctx,
	)
	err = backoff.RetryNotify(operation, strategy, func(err error, d time.Duration) {
		c.countRetry(method)
		log.Debug("retrying backend call",
			"method", method,
			"domain", handle.Domain(),
			"error", err,
			"next_attempt_in", d)
	})

	var res *Result
	switch {
	case err == nil:
		res, err = decode(status, body)
	case errors.As(err, new(*errRetryableStatus)):
		res, err = decode(status, body)
		if err == nil {
			err = domain.ServerError("backend unavailable", nil)
		}
	default:
		err = domain.ServerError("backend unreachable", err)
	}

	c.observe(method, start, err)
	if err != nil {
		log.Debug("backend call failed",
			"method", method,
			"domain", handle.Domain(),
			"status", status,
			"error", err)
		return nil, err
	}
	return res, nil
}

// Get issues a GET.
func (c *Client) Get(ctx context.Context, target string, query url.Values) (*Result, error) {
	return c.Do(ctx, Call{Method: http.MethodGet, URL: target, Query: query})
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, target string, body any) (*Result, error) {
	return c.Do(ctx, Call{Method: http.MethodPost, URL: target, Body: body})
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, target string, body any) (*Result, error) {
	return c.Do(ctx, Call{Method: http.MethodPut, URL: target, Body: body})
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, target string, query url.Values) (*Result, error) {
	return c.Do(ctx, Call{Method: http.MethodDelete, URL: target, Query: query})
}

func bodyReader(payload []byte) io.Reader {
	if payload == nil {
		return http.NoBody
	}
	return bytes.NewReader(payload)
}

func buildURL(target string, query url.Values) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", domain.ServerError("invalid backend url", err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func isRetryableStatus(status int) bool {
	return status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}

// decode turns a response into a Result or a typed error. The backend's own
// code, msg and data are preserved on errors.
func decode(status int, body []byte) (*Result, error) {
	var env envelope
	jsonErr := json.Unmarshal(body, &env)

	ok2xx := status >= 200 && status < 300
	if ok2xx && jsonErr != nil {
		return nil, domain.ServerError("invalid backend response", jsonErr)
	}
	if ok2xx && (env.Code == "" || env.Code == domain.CodeOK) {
		return &Result{Status: status, Code: domain.CodeOK, Msg: env.Msg, Data: env.Data}, nil
	}

	kind := kindFromStatus(status)
	if ok2xx {
		kind = kindFromCode(env.Code)
	}
	e := &domain.Error{Kind: kind, Code: env.Code, Msg: env.Msg}
	if e.Code == "" {
		e.Code = kind.DefaultCode()
	}
	if e.Msg == "" {
		e.Msg = fmt.Sprintf("backend returned status %d", status)
	}
	if len(env.Data) > 0 {
		var data map[string]any
		if json.Unmarshal(env.Data, &data) == nil {
			e.Data = data
		}
	}
	return nil, e
}

func kindFromStatus(status int) domain.Kind {
	switch status {
	case http.StatusBadRequest:
		return domain.KindClient
	case http.StatusUnauthorized:
		return domain.KindUnauthorized
	case http.StatusForbidden:
		return domain.KindForbidden
	case http.StatusNotFound:
		return domain.KindNotFound
	case http.StatusNotAcceptable:
		return domain.KindDuplicate
	default:
		return domain.KindServer
	}
}

// kindFromCode classifies a non-zero code carried by a 2xx response by its
// three-digit status prefix.
func kindFromCode(code string) domain.Kind {
	if len(code) < 3 {
		return domain.KindServer
	}
	status, err := strconv.Atoi(code[:3])
	if err != nil {
		return domain.KindServer
	}
	return kindFromStatus(status)
}

// WrongRegion reports whether err is the backend's wrong-region signal and
// returns the region it names.
func WrongRegion(err error) (string, bool) {
	var e *domain.Error
	if !errors.As(err, &e) || e.Code != domain.CodeWrongRegion {
		return "", false
	}
	region, _ := e.Data["region"].(string)
	return region, region != ""
}

func (c *Client) observe(method string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = domain.KindOf(err).String()
	}
	c.metrics.BackendRequests.WithLabelValues(method, outcome).Inc()
	c.metrics.BackendLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func (c *Client) countRetry(method string) {
	if c.metrics != nil {
		c.metrics.BackendRetries.WithLabelValues(method).Inc()
	}
}
