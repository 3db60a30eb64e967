package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/connectlist/contentgw/internal/metrics"
)

// DefaultTimeout bounds a single upstream call.
const DefaultTimeout = 15 * time.Second

// maxBodyBytes caps how much of an upstream body is read.
const maxBodyBytes = 8 << 20

// Base provides the GET + decode path shared by the REST providers. Embed
// it and supply errorMessage to extract provider-specific error text.
type Base struct {
	name       string
	baseURL    string
	httpClient *http.Client
	// static query parameters sent on every call, e.g. an API key.
	static url.Values
	// errorMessage extracts a human-readable message from an error body.
	errorMessage func(body []byte) string
}

// Name returns the provider name.
func (b *Base) Name() string { return b.name }

// BaseURL returns the provider base URL.
func (b *Base) BaseURL() string { return b.baseURL }

// Request implements Provider.
func (b *Base) Request(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	u := b.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	query := url.Values{}
	for k, vs := range b.static {
		query[k] = append([]string(nil), vs...)
	}
	for k, vs := range params {
		query[k] = append([]string(nil), vs...)
	}
	if encoded := query.Encode(); encoded != "" {
		u += "?" + encoded
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	httpResp, err := b.httpClient.Do(httpReq)
	metrics.ProviderDuration.WithLabelValues(b.name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(b.name, "transport").Inc()
		return nil, fmt.Errorf("%s request failed: %w", b.name, err)
	}
	defer func() { _ = httpResp.Body.Close() }()
	metrics.ProviderRequests.WithLabelValues(b.name, statusClass(httpResp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", b.name, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		msg := ""
		if b.errorMessage != nil {
			msg = b.errorMessage(body)
		}
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		if msg == "" {
			msg = http.StatusText(httpResp.StatusCode)
		}
		return nil, &Error{Provider: b.name, StatusCode: httpResp.StatusCode, Message: msg}
	}

	if !json.Valid(body) {
		return nil, &Error{Provider: b.name, StatusCode: http.StatusBadGateway, Message: "malformed JSON response"}
	}
	return json.RawMessage(body), nil
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// newHTTPClient returns a copy of client with DefaultTimeout applied when it
// has none. The caller's client is left as it was.
func newHTTPClient(client *http.Client) *http.Client {
	var c http.Client
	if client != nil {
		c = *client
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return &c
}

// googleErrorMessage decodes the {"error":{"message":...}} envelope used by
// Google APIs (Books, YouTube Data).
func googleErrorMessage(body []byte) string {
	var resp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &resp) == nil {
		return resp.Error.Message
	}
	return ""
}
