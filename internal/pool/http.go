package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// errUpstreamUnavailable marks gateway-level 5xx responses so the breaker
// counts them as failures while the response still reaches the caller.
var errUpstreamUnavailable = errors.New("upstream unavailable")

// HTTPHandle is the pooled HTTP client for one backend domain.
type HTTPHandle struct {
	*Resource[*http.Client]
	domain  string
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

var _ Handle = (*HTTPHandle)(nil)

// Domain returns the scheme://host this handle serves.
func (h *HTTPHandle) Domain() string {
	return h.domain
}

// Do sends req through the domain's circuit breaker.
func (h *HTTPHandle) Do(req *http.Request) (*http.Response, error) {
	client, err := h.Access(req.Context())
	if err != nil {
		return nil, err
	}

	resp, err := h.breaker.Execute(func() (*http.Response, error) {
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if isUnavailableStatus(resp.StatusCode) {
			return resp, errUpstreamUnavailable
		}
		return resp, nil
	})
	if errors.Is(err, errUpstreamUnavailable) {
		return resp, nil
	}
	return resp, err
}

// BreakerState reports the breaker state for diagnostics.
func (h *HTTPHandle) BreakerState() gobreaker.State {
	return h.breaker.State()
}

func isUnavailableStatus(code int) bool {
	return code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

// DomainOf derives the handle key (lower-cased scheme://host) from a URL.
func DomainOf(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q has no scheme or host", ErrInvalidTarget, target)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}

func newHTTPHandle(domain string, cfg Config, logger *slog.Logger, onReinit func(string)) *HTTPHandle {
	res := NewResource(ResourceOptions[*http.Client]{
		Name:        domain,
		IdleTimeout: cfg.HTTPIdleTimeout,
		Open: func(context.Context) (*http.Client, error) {
			return newHTTPClient(cfg), nil
		},
		Probe: func(ctx context.Context, client *http.Client) error {
			return probeDomain(ctx, client, domain)
		},
		Close: func(client *http.Client) error {
			client.CloseIdleConnections()
			return nil
		},
		Logger:   logger,
		OnReinit: onReinit,
	})

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    domain,
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.BreakerMaxFailures > 0 && counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"domain", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return &HTTPHandle{Resource: res, domain: domain, breaker: breaker}
}

func newHTTPClient(cfg Config) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       cfg.HTTPIdleTimeout,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
	}
}

// probeDomain treats any HTTP response as proof of life; only transport
// failures count as dead.
func probeDomain(ctx context.Context, client *http.Client, domain string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, domain+"/", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}
