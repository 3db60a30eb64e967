package providers

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// GoogleBooks is the client for the Google Books v1 API.
type GoogleBooks struct {
	Base
}

// NewGoogleBooks creates a Google Books provider. An empty baseURL selects the
// public API.
func NewGoogleBooks(apiKey, baseURL string, client *http.Client) (*GoogleBooks, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("google books api key is required")
	}
	if baseURL == "" {
		baseURL = "https://www.googleapis.com/books/v1"
	}
	return &GoogleBooks{Base: googleBase(NameGoogleBooks, apiKey, baseURL, client)}, nil
}

// YouTube is the client for the YouTube Data v3 API.
type YouTube struct {
	Base
}

// NewYouTube creates a YouTube provider. An empty baseURL selects the public API.
func NewYouTube(apiKey, baseURL string, client *http.Client) (*YouTube, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("youtube api key is required")
	}
	if baseURL == "" {
		baseURL = "https://www.googleapis.com/youtube/v3"
	}
	return &YouTube{Base: googleBase(NameYouTube, apiKey, baseURL, client)}, nil
}

func googleBase(name, apiKey, baseURL string, client *http.Client) Base {
	return Base{
		name:         name,
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   newHTTPClient(client),
		static:       url.Values{"key": {apiKey}},
		errorMessage: googleErrorMessage,
	}
}
