package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// TMDB is the client for The Movie Database v3 API. It authenticates with a
// v4 read access token sent as a bearer token.
type TMDB struct {
	Base
}

type tmdbErrorResponse struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

// NewTMDB creates a TMDB provider. An empty baseURL selects the public API; a
// nil client uses http.DefaultTransport underneath the bearer transport.
func NewTMDB(accessToken, baseURL string, client *http.Client) (*TMDB, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("tmdb access token is required")
	}
	if baseURL == "" {
		baseURL = "https://api.themoviedb.org/3"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	ctx := context.Background()
	if client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	}
	authed := oauth2.NewClient(ctx, src)
	if client != nil {
		authed.Timeout = client.Timeout
	}

	return &TMDB{
		Base: Base{
			name:       NameTMDB,
			baseURL:    baseURL,
			httpClient: newHTTPClient(authed),
			errorMessage: func(body []byte) string {
				var resp tmdbErrorResponse
				if json.Unmarshal(body, &resp) == nil {
					return resp.StatusMessage
				}
				return ""
			},
		},
	}, nil
}
