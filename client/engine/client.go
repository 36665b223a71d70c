package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Doer is the HTTP primitive the harness depends on.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestSpec describes one request. Specs are values and are never modified after construction.
type RequestSpec struct {
	ID     string
	Method string
	Path   string
	Body   map[string]any
	Header map[string]string
}

// RequestOutcome is the result of exactly one dispatched RequestSpec.
type RequestOutcome struct {
	SpecID  string
	Status  int
	Body    any
	RawBody []byte
	Elapsed time.Duration
	Err     error
}

// ElapsedMillis returns the request duration in fractional milliseconds.
func (o RequestOutcome) ElapsedMillis() float64 {
	return float64(o.Elapsed) / float64(time.Millisecond)
}

// Responded reports whether the target produced an HTTP response at all.
func (o RequestOutcome) Responded() bool {
	return o.Status != 0
}

func (o RequestOutcome) TimedOut() bool {
	return errors.Is(o.Err, ErrTimeout)
}

// OK reports a 2xx status.
func (o RequestOutcome) OK() bool {
	return o.Status >= 200 && o.Status < 300
}

// JSONObject returns the body as a JSON object if it decoded to one.
func (o RequestOutcome) JSONObject() (map[string]any, bool) {
	m, ok := o.Body.(map[string]any)

	return m, ok
}

// StringField returns a top-level string field of a JSON object body.
func (o RequestOutcome) StringField(name string) string {
	m, ok := o.JSONObject()
	if !ok {
		return ""
	}

	s, _ := m[name].(string)

	return s
}

// BodyContains searches the raw body for a marker.
func (o RequestOutcome) BodyContains(marker string) bool {
	if marker == "" {
		return false
	}

	return bytes.Contains(o.RawBody, []byte(marker))
}

type AuthClient struct {
	baseURL *url.URL
	doer    Doer
}

func NewAuthClient(cfg *Config, doer Doer) (*AuthClient, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, cfg.BaseURL)
	}

	return &AuthClient{baseURL: u, doer: doer}, nil
}

// NewHTTPClient builds the transport used for load generation. The connection pool is sized so that it never caps
// concurrency below the dispatcher's own ceiling.
func NewHTTPClient(cfg *Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = 0
	transport.MaxIdleConns = max(cfg.maxConcurrency(), 100)
	transport.MaxIdleConnsPerHost = max(cfg.maxConcurrency(), 2)

	var rt http.RoundTripper = transport
	if cfg.Tracing.Enabled {
		rt = otelhttp.NewTransport(transport)
	}

	// Per-request deadlines come from the dispatcher context, not from http.Client.Timeout.
	return &http.Client{Transport: rt}
}

// URL resolves a path against the base URL.
func (c *AuthClient) URL(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return strings.TrimRight(c.baseURL.String(), "/") + path
	}

	return c.baseURL.ResolveReference(ref).String()
}

// Do performs one request. Failures are captured on the outcome; Do itself never returns an error.
func (c *AuthClient) Do(ctx context.Context, spec RequestSpec, timeout time.Duration) RequestOutcome {
	outcome := RequestOutcome{SpecID: spec.ID}

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc

		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader

	if spec.Body != nil {
		payload, err := jsoniter.Marshal(spec.Body)
		if err != nil {
			outcome.Err = fmt.Errorf("%w: encode body: %v", ErrTransport, err)

			return outcome
		}

		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.URL(spec.Path), body)
	if err != nil {
		outcome.Err = fmt.Errorf("%w: %v", ErrTransport, err)

		return outcome
	}

	if spec.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Accept", "application/json")

	for k, v := range spec.Header {
		req.Header.Set(k, v)
	}

	start := time.Now()

	resp, err := c.doer.Do(req)
	if err != nil {
		outcome.Elapsed = time.Since(start)
		outcome.Err = classifyErr(ctx, reqCtx, err)

		return outcome
	}

	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	outcome.Elapsed = time.Since(start)

	if err != nil {
		outcome.Err = classifyErr(ctx, reqCtx, err)

		return outcome
	}

	outcome.Status = resp.StatusCode
	outcome.RawBody = raw
	outcome.Body = decodeBody(raw)

	return outcome
}

func classifyErr(parent, reqCtx context.Context, err error) error {
	switch {
	case parent.Err() != nil:
		return fmt.Errorf("%w: %v", ErrCanceled, err)
	case errors.Is(reqCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
}

func decodeBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var v any
	if err := jsoniter.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}

	return v
}
