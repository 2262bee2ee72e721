package thumbnails

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxBodyBytes caps the thumbnail fragment read from the server.
const DefaultMaxBodyBytes int64 = 2 << 20

// DefaultPageIDParam is the query parameter naming the group.
const DefaultPageIDParam = "pageid"

// Fetcher returns the thumbnail markup for one group.
type Fetcher interface {
	Fetch(ctx context.Context, pageID int) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, pageID int) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, pageID int) (string, error) {
	return f(ctx, pageID)
}

// HTTPError exposes the HTTP status behind a failure.
type HTTPError interface {
	error
	StatusCode() int
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	URL  string
	Err  error
}

func (e *StatusError) Error() string {
	text := http.StatusText(e.StatusCode())
	if e.Err != nil {
		text = e.Err.Error()
	}
	if e.URL == "" {
		return fmt.Sprintf("thumbnails: status %d: %s", e.StatusCode(), text)
	}
	return fmt.Sprintf("thumbnails: GET %s: status %d: %s", e.URL, e.StatusCode(), text)
}

func (e *StatusError) Unwrap() error { return e.Err }

func (e *StatusError) StatusCode() int {
	if e.Code <= 0 {
		return http.StatusInternalServerError
	}
	return e.Code
}

// ErrMissingEndpoint is returned by HTTPFetcher when no base URL is set.
var ErrMissingEndpoint = errors.New("thumbnails: missing endpoint")

// HTTPFetcher issues GET <endpoint>&pageid=<id> requests.
type HTTPFetcher struct {
	Endpoint     string
	Client       *http.Client
	PageIDParam  string
	MaxBodyBytes int64
	Header       http.Header
}

// NewHTTPFetcher returns a fetcher for endpoint using client (a client with
// timeout when nil).
func NewHTTPFetcher(endpoint string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPFetcher{
		Endpoint:     strings.TrimSpace(endpoint),
		Client:       client,
		PageIDParam:  DefaultPageIDParam,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// URL builds the request URL for pageID.
func (f *HTTPFetcher) URL(pageID int) (string, error) {
	if f == nil || strings.TrimSpace(f.Endpoint) == "" {
		return "", ErrMissingEndpoint
	}
	param := f.PageIDParam
	if param == "" {
		param = DefaultPageIDParam
	}
	return GroupURL(f.Endpoint, param, pageID)
}

// GroupURL appends <param>=<pageID> to base, using "&" when base already has a
// query and "?" otherwise. An existing value for param is replaced.
func GroupURL(base, param string, pageID int) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", ErrMissingEndpoint
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("thumbnails: parse endpoint: %w", err)
	}
	q := u.Query()
	if q.Has(param) {
		q.Set(param, strconv.Itoa(pageID))
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	pair := url.QueryEscape(param) + "=" + strconv.Itoa(pageID)
	if u.RawQuery == "" {
		u.RawQuery = pair
	} else {
		u.RawQuery = strings.TrimRight(u.RawQuery, "&") + "&" + pair
	}
	return u.String(), nil
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageID int) (string, error) {
	target, err := f.URL(pageID)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("thumbnails: build request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	for key, values := range f.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("thumbnails: GET %s: %w", target, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return "", &StatusError{Code: res.StatusCode, URL: target}
	}

	limit := f.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return "", fmt.Errorf("thumbnails: read body: %w", err)
	}
	if int64(len(body)) > limit {
		return "", fmt.Errorf("thumbnails: response exceeds %d bytes", limit)
	}
	return string(body), nil
}
