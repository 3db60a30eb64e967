package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// RAWG is the client for the RAWG video game database API.
type RAWG struct {
	Base
}

// NewRAWG creates a RAWG provider authenticated with an API key query
// parameter. An empty baseURL selects the public API.
func NewRAWG(apiKey, baseURL string, client *http.Client) (*RAWG, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("rawg api key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.rawg.io/api"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return &RAWG{
		Base: Base{
			name:         NameRAWG,
			baseURL:      baseURL,
			httpClient:   newHTTPClient(client),
			static:       url.Values{"key": {apiKey}},
			errorMessage: rawgErrorMessage,
		},
	}, nil
}

// rawgErrorMessage handles both {"detail": "..."} and {"error": "..."}.
func rawgErrorMessage(body []byte) string {
	var resp struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &resp) != nil {
		return ""
	}
	if resp.Detail != "" {
		return resp.Detail
	}
	return resp.Error
}
