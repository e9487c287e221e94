package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	httpSourceName   = "http"
	httpFetchTimeout = 30 * time.Second
	httpUserAgent    = "Mozilla/5.0 (compatible; chatharvest/1.0; +https://github.com/ppiankov/chatharvest)"
	httpMaxRetries   = 3
	httpMaxPageBytes = 16 << 20
)

// HTTPSource fetches the page markup with a plain GET request. It only sees
// server-rendered markup; pages that build the chat list in JavaScript need
// CommandSource instead.
type HTTPSource struct {
	pageURL string
	client  *http.Client
}

// HTTPOptions tunes the HTTP source. Zero values select defaults.
type HTTPOptions struct {
	UserAgent string
	Cookie    string // sent verbatim as the Cookie header when set
	Timeout   time.Duration
}

// NewHTTP creates an HTTP source for pageURL.
func NewHTTP(pageURL string, opts HTTPOptions) (*HTTPSource, error) {
	if err := validatePageURL(pageURL); err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = httpUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = httpFetchTimeout
	}
	return &HTTPSource{
		pageURL: pageURL,
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &headerTransport{
				base:      http.DefaultTransport,
				userAgent: opts.UserAgent,
				cookie:    opts.Cookie,
			},
		},
	}, nil
}

func (hs *HTTPSource) Name() string {
	return httpSourceName
}

func (hs *HTTPSource) Fetch(ctx context.Context) (string, error) {
	return fetchWithRetry(ctx, hs.client, hs.pageURL)
}

// headerTransport injects the User-Agent and optional Cookie headers into every request.
type headerTransport struct {
	base      http.RoundTripper
	userAgent string
	cookie    string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", t.userAgent)
	if t.cookie != "" {
		req.Header.Set("Cookie", t.cookie)
	}
	return t.base.RoundTrip(req)
}

// httpSleepFunc waits out a retry backoff unless ctx ends first.
// Tests replace it.
var httpSleepFunc = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// statusError is returned for non-200 responses.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.code, http.StatusText(e.code))
}

func fetchWithRetry(ctx context.Context, client *http.Client, pageURL string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < httpMaxRetries; attempt++ {
		body, err := fetchPage(ctx, client, pageURL)
		if err == nil {
			return body, nil
		}
		if !isRetryableError(err) || ctx.Err() != nil {
			return "", err
		}
		lastErr = err
		if attempt < httpMaxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second // 1s, 2s, 4s
			if err := httpSleepFunc(ctx, backoff); err != nil {
				return "", err
			}
		}
	}
	return "", lastErr
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "no such host")
}

func fetchPage(ctx context.Context, client *http.Client, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: %w", pageURL, &statusError{code: resp.StatusCode})
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, httpMaxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", pageURL, err)
	}
	return string(data), nil
}

func validatePageURL(pageURL string) error {
	if strings.TrimSpace(pageURL) == "" {
		return errors.New("page URL is required")
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return fmt.Errorf("parse page URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("page URL %q: scheme must be http or https", pageURL)
	}
	if u.Host == "" {
		return fmt.Errorf("page URL %q: host is required", pageURL)
	}
	return nil
}
