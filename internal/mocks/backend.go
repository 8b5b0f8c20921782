package mocks

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// RecordedCall is one request received by a FakeBackend.
type RecordedCall struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   json.RawMessage
}

// FakeBackend is an httptest server speaking the backend envelope. Routes
// are keyed by method and exact path; unmatched requests get a 404
// envelope.
type FakeBackend struct {
	*httptest.Server

	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	calls  []RecordedCall
}

// NewFakeBackend starts a server that is closed when t finishes.
func NewFakeBackend(t testing.TB) *FakeBackend {
	t.Helper()
	f := &FakeBackend{routes: make(map[string]http.HandlerFunc)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func routeKey(method, path string) string { return method + " " + path }

func (f *FakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	call := RecordedCall{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
	}
	if len(body) > 0 {
		call.Body = json.RawMessage(body)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	h, ok := f.routes[routeKey(r.Method, r.URL.Path)]
	f.mu.Unlock()

	if r.Method == http.MethodHead && !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	if !ok {
		WriteEnvelope(w, http.StatusNotFound, "40400", "no route", nil)
		return
	}
	h(w, r)
}

// Handle installs a raw handler for method and path.
func (f *FakeBackend) Handle(method, path string, h http.HandlerFunc) {
	f.mu.Lock()
	f.routes[routeKey(method, path)] = h
	f.mu.Unlock()
}

// Reply answers method and path with a fixed envelope.
func (f *FakeBackend) Reply(method, path string, status int, code, msg string, data any) {
	f.Handle(method, path, func(w http.ResponseWriter, _ *http.Request) {
		WriteEnvelope(w, status, code, msg, data)
	})
}

// OK answers method and path with a success envelope carrying data.
func (f *FakeBackend) OK(method, path string, data any) {
	f.Reply(method, path, http.StatusOK, "0", "ok", data)
}

// Calls returns the recorded requests for method and path.
func (f *FakeBackend) Calls(method, path string) []RecordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []RecordedCall
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// CallCount counts every request except liveness probes.
func (f *FakeBackend) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		if c.Method != http.MethodHead {
			n++
		}
	}
	return n
}

// WriteEnvelope writes {code, msg, data} with status.
func WriteEnvelope(w http.ResponseWriter, status int, code, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": msg, "data": data})
}
