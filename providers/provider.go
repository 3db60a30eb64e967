// Package providers defines the Provider interface implemented by every
// upstream content-metadata API and the clients for the APIs contentgw ships
// with: TMDB (movies, series, people), RAWG (games), Google Books (books) and
// YouTube (videos).
//
// A Provider performs a single GET against an endpoint and returns the raw
// JSON payload. Non-2xx answers and unparseable bodies surface as *Error.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Provider names.
const (
	NameTMDB        = "tmdb"
	NameRAWG        = "rawg"
	NameGoogleBooks = "googlebooks"
	NameYouTube     = "youtube"
)

// Provider defines the interface that all content providers must implement.
type Provider interface {
	Name() string
	// Request issues a GET for endpoint (a path relative to the provider's
	// base URL) with params as the query string.
	Request(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error)
}

// Error is a failed provider call. StatusCode is the upstream HTTP status, or
// http.StatusBadGateway when the upstream answered with a malformed body.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Message)
}

// ClientError reports whether the upstream rejected the request itself
// (4xx other than 429), as opposed to failing to serve it.
func (e *Error) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}
