package providerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go"

	"github.com/tabledog/tdog/internal/config"
)

// Recorder observes one completed HTTP call, for internal/statstask's
// periodic request-count/latency log line. status is 0 for a request that
// never got a response (network error, timeout).
type Recorder interface {
	RecordRequest(status int, d time.Duration)
}

// HTTPClient is the default Client, talking to the provider over plain
// net/http with bounded retry for transient (5xx, network) failures. A
// 429 is never retried here: it's surfaced to the caller as ErrRateLimited
// so the scheduler's backoff, not this client's, governs the wait.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	apiVersion string
	recorder   Recorder
}

// WithRecorder attaches a stats recorder that observes every request this
// client makes from then on. Returns c for chaining at construction time.
func (c *HTTPClient) WithRecorder(r Recorder) *HTTPClient {
	c.recorder = r

	return c
}

// New builds an HTTPClient from the resolved provider configuration.
func New(cfg config.Provider) *HTTPClient {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.stripe.com/v1"
	}

	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := http.DefaultTransport

	if cfg.HTTPProxy != "" {
		if proxyURL, err := url.Parse(cfg.HTTPProxy); err == nil {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		baseURL:    base,
		apiKey:     cfg.APIKey,
		apiVersion: cfg.Version,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, query url.Values) ([]byte, int, error) {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("providerclient: build request: %w", err)
	}

	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Stripe-Version", c.apiVersion)

	var (
		body   []byte
		status int
	)

	start := time.Now()

	retryErr := retry.Do(
		func() error {
			resp, doErr := c.httpClient.Do(req)
			if doErr != nil {
				return doErr
			}
			defer resp.Body.Close()

			status = resp.StatusCode

			read, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				return readErr
			}

			body = read

			if status == http.StatusTooManyRequests {
				return retry.Unrecoverable(wrapStatus(endpoint, status, body))
			}

			if status >= 500 {
				return fmt.Errorf("providerclient: %s: status %d", endpoint, status)
			}

			if status >= 400 {
				return retry.Unrecoverable(wrapStatus(endpoint, status, body))
			}

			return nil
		},
		retry.Context(ctx),
		retry.Attempts(4),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
	)

	if c.recorder != nil {
		c.recorder.RecordRequest(status, time.Since(start))
	}

	if retryErr != nil {
		return body, status, retryErr
	}

	return body, status, nil
}

// Account implements Client.
func (c *HTTPClient) Account(ctx context.Context) (Account, error) {
	body, _, err := c.do(ctx, http.MethodGet, "/account", nil)
	if err != nil {
		return Account{}, err
	}

	var obj struct {
		ID string `json:"id"`
	}

	if err := json.Unmarshal(body, &obj); err != nil {
		return Account{}, fmt.Errorf("providerclient: decode account: %w", err)
	}

	return Account{ID: obj.ID, APIVersion: c.apiVersion, Raw: json.RawMessage(body)}, nil
}

// List implements Client.
func (c *HTTPClient) List(ctx context.Context, endpoint, cursor string, limit int) (Page, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("starting_after", cursor)
	}

	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}

	body, _, err := c.do(ctx, http.MethodGet, endpoint, q)
	if err != nil {
		return Page{}, err
	}

	var decoded struct {
		Data    []json.RawMessage `json:"data"`
		HasMore bool              `json:"has_more"`
	}

	if err := json.Unmarshal(body, &decoded); err != nil {
		return Page{}, fmt.Errorf("providerclient: decode page %s: %w", endpoint, err)
	}

	page := Page{Data: decoded.Data, HasMore: decoded.HasMore}

	if len(decoded.Data) > 0 {
		var last struct {
			ID string `json:"id"`
		}

		if err := json.Unmarshal(decoded.Data[len(decoded.Data)-1], &last); err == nil {
			page.NextCursor = last.ID
		}
	}

	return page, nil
}

// Get implements Client.
func (c *HTTPClient) Get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	body, _, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	return json.RawMessage(body), nil
}

// ListEvents implements Client.
func (c *HTTPClient) ListEvents(ctx context.Context, cursor string, limit int, sinceUnix int64) (EventPage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("starting_after", cursor)
	}

	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}

	if sinceUnix > 0 {
		q.Set("created[gte]", fmt.Sprintf("%d", sinceUnix))
	}

	body, _, err := c.do(ctx, http.MethodGet, "/events", q)
	if err != nil {
		return EventPage{}, err
	}

	var decoded struct {
		Data []struct {
			ID      string          `json:"id"`
			Type    string          `json:"type"`
			Created int64           `json:"created"`
			APIVersion string       `json:"api_version"`
			Data    json.RawMessage `json:"data"`
		} `json:"data"`
		HasMore bool `json:"has_more"`
	}

	if err := json.Unmarshal(body, &decoded); err != nil {
		return EventPage{}, fmt.Errorf("providerclient: decode events: %w", err)
	}

	page := EventPage{HasMore: decoded.HasMore}

	for _, e := range decoded.Data {
		var inner struct {
			Object json.RawMessage `json:"object"`
		}

		_ = json.Unmarshal(e.Data, &inner)

		page.Events = append(page.Events, Event{
			ID: e.ID, Type: e.Type, Created: e.Created, APIVersion: e.APIVersion,
			Data: firstNonEmpty(inner.Object, e.Data),
		})
	}

	if len(page.Events) > 0 {
		page.NextCursor = page.Events[len(page.Events)-1].ID
	}

	return page, nil
}

// HasEventsAfter implements Client. A limit-1 page with ending_before set
// to lastEventID returns non-empty only if events exist after it, which is
// far cheaper than paging through the full event list on every poll.
func (c *HTTPClient) HasEventsAfter(ctx context.Context, lastEventID string) (bool, error) {
	q := url.Values{}
	q.Set("ending_before", lastEventID)
	q.Set("limit", "1")

	body, _, err := c.do(ctx, http.MethodGet, "/events", q)
	if err != nil {
		return false, err
	}

	var decoded struct {
		Data []json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(body, &decoded); err != nil {
		return false, fmt.Errorf("providerclient: decode events precheck: %w", err)
	}

	return len(decoded.Data) > 0, nil
}

func firstNonEmpty(a, b json.RawMessage) json.RawMessage {
	if len(a) > 0 {
		return a
	}

	return b
}
