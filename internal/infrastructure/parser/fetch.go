package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"TariffIntel/internal/domain"
)

const defaultUserAgent = "TariffIntelBot/1.0"

// FetcherOptions tunes the shared HTTP client used by every scanner.
type FetcherOptions struct {
	Timeout    time.Duration
	Retries    int
	RetryWait  time.Duration
	UserAgent  string
	HTTPClient *http.Client
}

// Fetcher performs bounded GET requests with at most Retries retries on
// transient failures (network errors, 5xx, 429).
type Fetcher struct {
	client *resty.Client
}

// NewFetcher builds a fetcher. A zero timeout falls back to 25s; Retries
// is taken as given, so zero disables retrying.
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 25 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 500 * time.Millisecond
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	var client *resty.Client
	if opts.HTTPClient != nil {
		client = resty.NewWithClient(opts.HTTPClient)
	} else {
		client = resty.New()
	}

	client.
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(2*opts.RetryWait).
		SetHeader("User-Agent", opts.UserAgent).
		AddRetryCondition(isTransient)

	return &Fetcher{client: client}
}

// Get downloads rawURL with the optional query and returns the body.
func (f *Fetcher) Get(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	req := f.client.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}

	resp, err := req.Get(rawURL)
	if err != nil {
		return nil, &domain.FetchError{URL: rawURL, Err: err}
	}
	if resp.IsError() {
		return nil, &domain.FetchError{URL: rawURL, Detail: fmt.Sprintf("unexpected status %s", resp.Status())}
	}
	return resp.Body(), nil
}

func isTransient(resp *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return false
	}
	code := resp.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
