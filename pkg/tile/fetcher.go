package tile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultMaxAttempts is the number of tries a tile gets before it becomes a hole.
	DefaultMaxAttempts = 5
	// DefaultTimeout bounds one HTTP request so the attempt budget bounds wall-clock time.
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "posterize/1.0.0"
)

// Fetcher downloads tile bytes with a bounded number of attempts
type Fetcher struct {
	client      *http.Client
	userAgent   string
	headers     map[string]string
	maxAttempts int
	timeout     time.Duration
	backoff     time.Duration
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithClient sets the HTTP client used for requests.
func WithClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithHeaders adds extra request headers, e.g. a Referer some providers require.
func WithHeaders(h map[string]string) FetcherOption {
	return func(f *Fetcher) { f.headers = h }
}

// WithMaxAttempts overrides the attempt budget. Values below 1 are ignored.
func WithMaxAttempts(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithBackoff sets the initial delay between attempts; it doubles after each
// failure. Zero retries immediately.
func WithBackoff(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.backoff = d }
}

// NewFetcher creates a new tile fetcher
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:      &http.Client{},
		userAgent:   DefaultUserAgent,
		maxAttempts: DefaultMaxAttempts,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// MaxAttempts returns the configured attempt budget.
func (f *Fetcher) MaxAttempts() int {
	return f.maxAttempts
}

// Fetch downloads url, retrying network failures and non-2xx responses until
// the attempt budget is spent. On exhaustion it returns empty data and a
// *FetchError wrapping ErrTileFetchExhausted.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var (
		lastErr    error
		lastStatus int
		delay      = f.backoff
	)

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if attempt > 1 && delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		data, status, err := f.download(ctx, url)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr, lastStatus = err, status
	}

	return []byte{}, &FetchError{
		URL:        url,
		Attempts:   f.maxAttempts,
		StatusCode: lastStatus,
		Err:        lastErr,
	}
}

// download performs one attempt.
func (f *Fetcher) download(ctx context.Context, url string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}

	req.Header.Set("User-Agent", f.userAgent)
	for key, value := range f.headers {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return data, resp.StatusCode, nil
}
