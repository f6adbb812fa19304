package httpprobe

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cigrirepo/Floww/internal/domain"
	"github.com/cigrirepo/Floww/internal/ports"
)

const defaultMaxBodyBytes = 256 * 1024 // 256KB

// Prober issues a single GET against the target URL and reports the raw
// outcome. Readiness strategy (delay vs poll) lives in the usecase layer;
// this type only knows how to ask once.
type Prober struct {
	client       *http.Client
	maxBodyBytes int64
}

type Option func(*Prober)

func WithMaxBodyBytes(n int64) Option {
	return func(p *Prober) { p.maxBodyBytes = n }
}

func New(client *http.Client, opts ...Option) *Prober {
	if client == nil {
		client = NewClient(DefaultClientConfig())
	}
	p := &Prober{
		client:       client,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ ports.HealthProber = (*Prober)(nil)

func (p *Prober) Probe(ctx context.Context, url string) domain.ProbeResult {
	result := domain.ProbeResult{
		URL:      url,
		Attempts: 1,
		Headers:  map[string][]string{},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = domain.NewRunError(err)
		return result
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	result.LatencyMS = time.Since(start).Milliseconds()

	if err != nil {
		result.Error = domain.NewRunError(err)
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.Headers = cloneHeaders(resp.Header)

	body, truncated, readErr := readBounded(resp.Body, p.maxBodyBytes)
	if readErr != nil {
		result.Error = domain.NewRunError(readErr)
		return result
	}

	result.Body = body
	result.Truncated = truncated
	return result
}

func readBounded(r io.Reader, maxBytes int64) ([]byte, bool, error) {
	lim := io.LimitReader(r, maxBytes+1)
	b, err := io.ReadAll(lim)
	if err != nil {
		return nil, false, err
	}
	if int64(len(b)) > maxBytes {
		return b[:maxBytes], true, nil
	}
	return b, false, nil
}

func cloneHeaders(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for k, v := range h {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}
