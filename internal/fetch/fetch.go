package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/civicsignal/billwatch/internal/metrics"
)

// ErrNotFound means the candidate identifier does not exist on the tracking
// site. That is an expected outcome, not an error condition.
var ErrNotFound = fmt.Errorf("bill not found")

// TransientError is a network or availability failure. The candidate is
// retryable on a future run, not within this one.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient fetch failure: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Page is one fetched bill detail page.
type Page struct {
	HTML []byte
	URL  string
}

// PageFetcher retrieves bill detail pages from the tracking site, pacing
// requests to respect the site's rate tolerance.
type PageFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	session string
}

func NewPageFetcher(baseURL, session string, rps float64) *PageFetcher {
	if rps <= 0 {
		rps = 2
	}
	return &PageFetcher{
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
	}
}

// Fetch retrieves the detail page for one identifier. 404 maps to
// ErrNotFound; network failures and 5xx map to TransientError.
func (f *PageFetcher) Fetch(ctx context.Context, identifier string) (Page, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return Page{}, &TransientError{Err: err}
	}
	url := fmt.Sprintf("%s/Bills/%s/%s", f.baseURL, f.session, identifier)

	started := time.Now()
	body, err := f.get(ctx, url)
	metrics.FetchDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		return Page{}, err
	}
	return Page{HTML: body, URL: url}, nil
}

// FetchFullText retrieves the bill's text document when one is published.
// Absence is normal and returns an empty string.
func (f *PageFetcher) FetchFullText(ctx context.Context, identifier string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", &TransientError{Err: err}
	}
	url := fmt.Sprintf("%s/Bills/%s/%s/Text", f.baseURL, f.session, identifier)
	body, err := f.get(ctx, url)
	if err != nil {
		if err == ErrNotFound {
			return "", nil
		}
		return "", err
	}
	return string(body), nil
}

func (f *PageFetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= 500:
		return nil, &TransientError{Err: fmt.Errorf("status %d from %s", resp.StatusCode, url)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	return body, nil
}
