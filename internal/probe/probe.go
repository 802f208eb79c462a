// Package probe issues bounded HTTP requests against upstream services and
// reports the outcome as a value. Probes never fail loudly: transport errors,
// non-2xx statuses and malformed bodies all come back as Result{OK: false}.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds every timed probe attempt.
const DefaultTimeout = 3000 * time.Millisecond

// maxBodySize caps how much of an upstream response is read.
const maxBodySize = 4 * 1024 * 1024

// Result is the outcome of one request.
type Result struct {
	OK         bool
	StatusCode int             // 0 when no response arrived
	Data       json.RawMessage // decoded body, set only for valid JSON
	Body       []byte          // raw body, kept for inline error text
	Err        error
	Latency    time.Duration
}

// Recorder receives one call per probe attempt.
type Recorder interface {
	RecordProbe(url string, ok bool, latencyMs float64)
}

type requestIDKey struct{}

// ContextWithRequestID tags requests made with ctx with an X-Request-Id header.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id set by ContextWithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type Prober struct {
	client   *http.Client
	timeout  time.Duration
	recorder Recorder
	logger   *zap.Logger
}

type Option func(*Prober)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option { return func(p *Prober) { p.client = c } }

// WithTimeout sets the bound used by ProbeTimed.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithRecorder attaches a metrics sink.
func WithRecorder(r Recorder) Option { return func(p *Prober) { p.recorder = r } }

// WithLogger sets the logger; probes log at debug level only.
func WithLogger(l *zap.Logger) Option { return func(p *Prober) { p.logger = l.Named("probe") } }

func New(opts ...Option) *Prober {
	p := &Prober{
		client:  &http.Client{},
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Timeout returns the bound applied by ProbeTimed.
func (p *Prober) Timeout() time.Duration { return p.timeout }

// Probe issues a GET and requires a 2xx JSON response.
func (p *Prober) Probe(ctx context.Context, url string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	return p.do(req, true)
}

// ProbeTimed is Probe with the attempt cancelled after the configured timeout.
func (p *Prober) ProbeTimed(ctx context.Context, url string) Result {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.Probe(ctx, url)
}

// Post sends payload as JSON. A 2xx status is success whatever the body holds.
func (p *Prober) Post(ctx context.Context, url string, payload any) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Err: fmt.Errorf("encoding payload: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return p.do(req, false)
}

func (p *Prober) do(req *http.Request, requireJSON bool) (res Result) {
	if id := RequestIDFromContext(req.Context()); id != "" {
		req.Header.Set("X-Request-Id", id)
	}
	start := time.Now()
	url := req.URL.String()
	defer func() {
		res.Latency = time.Since(start)
		if p.recorder != nil {
			p.recorder.RecordProbe(url, res.OK, float64(res.Latency.Milliseconds()))
		}
		if !res.OK {
			p.logger.Debug("probe failed",
				zap.String("method", req.Method),
				zap.String("url", url),
				zap.Int("status", res.StatusCode),
				zap.Error(res.Err))
		}
	}()

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		res.Err = fmt.Errorf("reading body: %w", err)
		return res
	}
	res.Body = body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		return res
	}

	if json.Valid(body) {
		res.Data = json.RawMessage(body)
	} else if requireJSON {
		res.Err = fmt.Errorf("malformed JSON body")
		return res
	}
	res.OK = true
	return res
}
