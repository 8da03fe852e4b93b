package picker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// API defines the remote picker operations pikiosk depends on.
// This interface is implemented by *Client and can be replaced in tests.
type API interface {
	CreateSession(ctx context.Context, requestID string, cfg *PickingConfig) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ListMediaItems(ctx context.Context, sessionID string) ([]MediaItem, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Download(ctx context.Context, item MediaItem, w io.Writer) error
}

// Ensure Client implements API at compile time.
var _ API = (*Client)(nil)

// HTTPClientSource hands out an authorized HTTP client per request so that
// refreshed credentials are picked up without rebuilding the Client.
type HTTPClientSource interface {
	HTTPClient(ctx context.Context) (*http.Client, error)
}

// HTTPClientFunc adapts a function to HTTPClientSource.
type HTTPClientFunc func(ctx context.Context) (*http.Client, error)

// HTTPClient implements HTTPClientSource.
func (f HTTPClientFunc) HTTPClient(ctx context.Context) (*http.Client, error) {
	return f(ctx)
}

// Client talks to the picker HTTP API.
type Client struct {
	baseURL   *url.URL
	source    HTTPClientSource
	userAgent string
}

const (
	DefaultBaseURL   = "https://photospicker.googleapis.com/v1"
	defaultUserAgent = "pikiosk/0.1"
	requestTimeout   = 30 * time.Second
	downloadTimeout  = 120 * time.Second
	mediaPageSize    = 100
)

// NewClient builds a Client rooted at baseURL.
func NewClient(baseURL string, source HTTPClientSource) (*Client, error) {
	if source == nil {
		return nil, fmt.Errorf("http client source is nil")
	}
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:   base,
		source:    source,
		userAgent: defaultUserAgent,
	}, nil
}

// CreateSession starts a new picking session on the remote service.
func (c *Client) CreateSession(ctx context.Context, requestID string, cfg *PickingConfig) (*Session, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	values := url.Values{}
	if id := strings.TrimSpace(requestID); id != "" {
		values.Set("requestId", id)
	}
	body := createSessionRequest{PickingConfig: cfg}
	var payload Session
	if err := c.do(ctx, http.MethodPost, "sessions", values, body, &payload); err != nil {
		return nil, err
	}
	if strings.TrimSpace(payload.ID) == "" {
		return nil, fmt.Errorf("session creation response did not include an id")
	}
	return &payload, nil
}

// GetSession fetches the current remote view of a session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id required")
	}
	var payload Session
	if err := c.do(ctx, http.MethodGet, "sessions/"+url.PathEscape(sessionID), nil, nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ListMediaItems returns every item picked in the session, following page tokens.
func (c *Client) ListMediaItems(ctx context.Context, sessionID string) ([]MediaItem, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id required")
	}
	var items []MediaItem
	pageToken := ""
	for {
		values := url.Values{}
		values.Set("sessionId", sessionID)
		values.Set("pageSize", strconv.Itoa(mediaPageSize))
		if pageToken != "" {
			values.Set("pageToken", pageToken)
		}
		var page MediaItemsPage
		if err := c.do(ctx, http.MethodGet, "mediaItems", values, nil, &page); err != nil {
			return nil, err
		}
		items = append(items, page.MediaItems...)
		pageToken = page.NextPageToken
		if pageToken == "" {
			return items, nil
		}
	}
}

// DeleteSession removes the session on the remote service.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id required")
	}
	return c.do(ctx, http.MethodDelete, "sessions/"+url.PathEscape(sessionID), nil, nil, nil)
}

// Download streams the original bytes of item into w.
func (c *Client) Download(ctx context.Context, item MediaItem, w io.Writer) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	baseURL := item.BaseURL()
	if baseURL == "" {
		return fmt.Errorf("media item %s has no base url", item.ID)
	}
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"=d", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read media: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dest any) error {
	reqURL := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		reqURL.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if dest == nil {
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	httpClient, err := c.source.HTTPClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("authorize request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Status = envelope.Error.Status
		apiErr.Details = envelope.Error.Details
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse picker base url %q: %w", raw, err)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
