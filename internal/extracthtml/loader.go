package extracthtml

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"webnovel/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "webnovel-extract/1.0"

// maxBodyBytes caps a single page download.
const maxBodyBytes = 32 << 20

// Input describes where HTML should come from.
type Input struct {
	// URL, if provided, is fetched via HTTP GET.
	URL string

	// Stdin is used when URL is empty. If nil, stdin reads as empty.
	Stdin io.Reader
}

// StatusError is returned for non-2xx responses once retries are exhausted.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// Loader fetches or reads HTML with a consistent timeout and retry policy.
// Fetched pages are decoded to UTF-8 (Shift_JIS and EUC-JP are still common
// on older novel sites).
type Loader struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string

	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	// sleep waits between attempts; tests replace it.
	sleep func(ctx context.Context, d time.Duration) bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(l *Loader) {
		if strings.TrimSpace(ua) != "" {
			l.userAgent = ua
		}
	}
}

// WithRetry sets the attempt budget and the exponential backoff bounds used
// for 429, 5xx and transport errors. maxAttempts < 1 is treated as 1.
func WithRetry(maxAttempts int, base, max time.Duration) Option {
	return func(l *Loader) {
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		l.maxAttempts = maxAttempts
		l.baseBackoff = base
		l.maxBackoff = max
	}
}

// NewLoader creates a Loader. If client is nil, http.DefaultClient is used.
// Without WithRetry a request is attempted once.
func NewLoader(client *http.Client, timeout time.Duration, opts ...Option) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	l := &Loader{
		client:      client,
		timeout:     timeout,
		userAgent:   DefaultUserAgent,
		maxAttempts: 1,
		baseBackoff: time.Second,
		maxBackoff:  30 * time.Second,
		sleep:       sleepContext,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load returns the HTML source for either stdin (when input.URL is empty)
// or a fetched URL.
//
// On non-2xx HTTP responses, Load returns a *StatusError that includes the
// status code and up to 4KB of the response body for debugging.
func (l *Loader) Load(ctx context.Context, input Input) (string, error) {
	if strings.TrimSpace(input.URL) == "" {
		if input.Stdin == nil {
			return "", nil
		}
		b, err := io.ReadAll(input.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}

	var lastErr error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		html, retryAfter, err := l.fetch(ctx, input.URL)
		if err == nil {
			return html, nil
		}
		lastErr = err
		if !retryable(err) || attempt == l.maxAttempts {
			break
		}

		wait := nextRetryDelay(retryAfter, attempt, l.baseBackoff, l.maxBackoff)
		zap.L().Warn("fetch failed, retrying",
			zap.String("url", input.URL),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if !l.sleep(ctx, wait) {
			return "", fmt.Errorf("fetch %s: %w", input.URL, ctx.Err())
		}
	}
	return "", lastErr
}

func (l *Loader) fetch(ctx context.Context, rawURL string) (string, time.Duration, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept-Language", "ja,en;q=0.9")

	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		metrics.RecordFetch(0, err, time.Since(start))
		return "", 0, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.RecordFetch(resp.StatusCode, nil, time.Since(start))
		return "", parseRetryAfter(resp.Header), &StatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(body)),
		}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	metrics.RecordFetch(resp.StatusCode, err, time.Since(start))
	if err != nil {
		return "", 0, fmt.Errorf("read body: %w", err)
	}

	html, err := DecodeHTML(b, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", 0, err
	}
	return html, 0, nil
}

// DecodeHTML converts b to UTF-8 using the Content-Type charset, a BOM, or a
// <meta charset> declaration, in that order of precedence as implemented by
// golang.org/x/net/html/charset.
func DecodeHTML(b []byte, contentType string) (string, error) {
	enc, name, _ := charset.DetermineEncoding(b, contentType)
	if name == "utf-8" {
		return string(b), nil
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), b)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	return string(out), nil
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return !errors.Is(err, context.Canceled)
}

// nextRetryDelay honors a server supplied Retry-After, otherwise backs off
// exponentially: base * 2^(attempt-1). Both are clamped to max.
func nextRetryDelay(retryAfter time.Duration, attempt int, base, max time.Duration) time.Duration {
	if retryAfter > 0 {
		if max > 0 && retryAfter > max {
			return max
		}
		return retryAfter
	}
	d := base << uint(attempt-1)
	if d > max || d <= 0 {
		d = max
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func parseRetryAfter(h http.Header) time.Duration {
	ra := strings.TrimSpace(h.Get("Retry-After"))
	if ra == "" {
		return 0
	}

	// delta-seconds
	if secs, err := strconv.Atoi(ra); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	// HTTP-date
	if t, err := http.ParseTime(ra); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}
