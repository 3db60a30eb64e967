package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	contentgw "github.com/connectlist/contentgw"
	"github.com/connectlist/contentgw/internal/admin"
	"github.com/connectlist/contentgw/internal/circuitbreaker"
	"github.com/connectlist/contentgw/providers"
)

type fakeProvider struct {
	name   string
	bodies map[string]string
	calls  atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Request(_ context.Context, endpoint string, _ url.Values) (json.RawMessage, error) {
	f.calls.Add(1)
	body, ok := f.bodies[endpoint]
	if !ok {
		return nil, &providers.Error{Provider: f.name, StatusCode: http.StatusNotFound, Message: "not found"}
	}
	return json.RawMessage(body), nil
}

func testService(t *testing.T, ps ...providers.Provider) *contentgw.Service {
	t.Helper()
	svc, err := contentgw.New(contentgw.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	for _, p := range ps {
		if err := svc.RegisterProvider(p); err != nil {
			t.Fatalf("RegisterProvider() error: %v", err)
		}
	}
	return svc
}

func tmdbFake() *fakeProvider {
	return &fakeProvider{name: providers.NameTMDB, bodies: map[string]string{
		"/search/movie": `{"results":[{"id":348,"title":"Alien"}]}`,
		"/movie/348":    `{"id":348,"title":"Alien"}`,
	}}
}

func youtubeFake() *fakeProvider {
	return &fakeProvider{name: providers.NameYouTube, bodies: map[string]string{
		"/videos": `{"items":[{"id":"dQw4w9WgXcQ"}]}`,
	}}
}

func do(t *testing.T, h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body["error"]["code"]
}

func TestHealth(t *testing.T) {
	r := newRouter(testService(t, tmdbFake()), contentgw.ServerConfig{})
	w := do(t, r, http.MethodGet, "/health", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Status    string   `json:"status"`
		Providers []string `json:"providers"`
		Version   struct {
			Version string `json:"version"`
		} `json:"version"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if body.Status != "ok" || len(body.Providers) != 1 || body.Providers[0] != "tmdb" {
		t.Errorf("unexpected health body %+v", body)
	}
	if body.Version.Version == "" {
		t.Error("health response missing version")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newRouter(testService(t), contentgw.ServerConfig{})
	w := do(t, r, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "contentgw_") {
		t.Error("expected contentgw metrics in exposition")
	}
}

func TestSearch(t *testing.T) {
	p := tmdbFake()
	r := newRouter(testService(t, p), contentgw.ServerConfig{})

	for i := 0; i < 2; i++ {
		w := do(t, r, http.MethodGet, "/v1/search?q=alien&type=movies", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
		}
		var body struct {
			Type    string          `json:"type"`
			Query   string          `json:"query"`
			Results json.RawMessage `json:"results"`
		}
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Type != "movies" || body.Query != "alien" || string(body.Results) != `{"results":[{"id":348,"title":"Alien"}]}` {
			t.Fatalf("unexpected body %+v", body)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
	}
	if p.calls.Load() != 1 {
		t.Fatalf("expected the second search to be served from cache, provider saw %d calls", p.calls.Load())
	}
}

func TestSearchValidation(t *testing.T) {
	r := newRouter(testService(t, tmdbFake()), contentgw.ServerConfig{})

	long := "/v1/search?type=movies&q=" + strings.Repeat("a", 300)
	cases := map[string]string{
		"/v1/search?type=movies":        "q is required",
		"/v1/search?q=alien":            "type is required",
		"/v1/search?q=alien&type=music": "type must be one of",
		long:                            "at most 256",
	}
	for target, want := range cases {
		w := do(t, r, http.MethodGet, target, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, w.Code)
			continue
		}
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("%s: body %s does not mention %q", target, w.Body.String(), want)
		}
	}

	w := do(t, r, http.MethodGet, "/v1/search?q=%20%20&type=movies", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank query: status = %d, want 400", w.Code)
	}
}

func TestSearchFailureIsEmptyResult(t *testing.T) {
	r := newRouter(testService(t), contentgw.ServerConfig{})
	w := do(t, r, http.MethodGet, "/v1/search?q=halo&type=games", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"results":null`) {
		t.Fatalf("expected null results, got %s", w.Body.String())
	}
}

func TestDetails(t *testing.T) {
	r := newRouter(testService(t, tmdbFake(), youtubeFake()), contentgw.ServerConfig{})

	cases := []struct {
		target string
		status int
	}{
		{"/v1/content/movies/348", http.StatusOK},
		{"/v1/content/movies/999", http.StatusNotFound},
		{"/v1/content/movies/abc", http.StatusBadRequest},
		{"/v1/content/music/1", http.StatusBadRequest},
		{"/v1/content/videos/dQw4w9WgXcQ", http.StatusOK},
		{"/v1/content/videos/" + url.PathEscape("https://youtu.be/dQw4w9WgXcQ"), http.StatusOK},
		{"/v1/content/games/3498", http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		w := do(t, r, http.MethodGet, tc.target, nil)
		if w.Code != tc.status {
			t.Errorf("%s: status = %d, want %d (%s)", tc.target, w.Code, tc.status, w.Body.String())
		}
	}
}

func sessionHeader(t *testing.T, secret, role string) http.Header {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, admin.SessionClaims{
		Role:             role,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return http.Header{"Authorization": {"Bearer " + token}}
}

func TestSessionRequired(t *testing.T) {
	r := newRouter(testService(t, tmdbFake()), contentgw.ServerConfig{SessionSecret: "s3cret"})

	w := do(t, r, http.MethodGet, "/v1/search?q=alien&type=movies", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	w = do(t, r, http.MethodGet, "/v1/search?q=alien&type=movies", sessionHeader(t, "s3cret", admin.RoleUser))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	w = do(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health must not require a session, got %d", w.Code)
	}
}

func TestAdminRoutes(t *testing.T) {
	svc := testService(t, tmdbFake())
	r := newRouter(svc, contentgw.ServerConfig{SessionSecret: "s3cret"})
	user := sessionHeader(t, "s3cret", admin.RoleUser)
	adm := sessionHeader(t, "s3cret", admin.RoleAdmin)

	do(t, r, http.MethodGet, "/v1/search?q=alien&type=movies", user)
	if svc.HotStats().Entries != 1 {
		t.Fatalf("expected a hot entry after search, got %d", svc.HotStats().Entries)
	}

	if w := do(t, r, http.MethodDelete, "/admin/cache/hot", user); w.Code != http.StatusForbidden {
		t.Fatalf("user clear: status = %d, want 403", w.Code)
	}
	w := do(t, r, http.MethodDelete, "/admin/cache/hot", adm)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"cleared":1`) {
		t.Fatalf("admin clear: %d %s", w.Code, w.Body.String())
	}
	if svc.HotStats().Entries != 0 {
		t.Fatal("expected hot tier to be empty after clear")
	}

	w = do(t, r, http.MethodGet, "/admin/providers", adm)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"circuit_breaker":"closed"`) {
		t.Fatalf("admin providers: %d %s", w.Code, w.Body.String())
	}
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	r := newRouter(testService(t), contentgw.ServerConfig{})
	if w := do(t, r, http.MethodGet, "/admin/cache", nil); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	r := newRouter(testService(t, tmdbFake()), contentgw.ServerConfig{RequestsPerMinute: 2})

	for i := 0; i < 2; i++ {
		if w := do(t, r, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}
	w := do(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if code := errorCode(t, w); code != "rate_limited" {
		t.Errorf("code = %q, want rate_limited", code)
	}
}

func TestCORS(t *testing.T) {
	r := newRouter(testService(t), contentgw.ServerConfig{CORSOrigins: []string{"https://app.example.com"}})

	w := do(t, r, http.MethodOptions, "/v1/search", http.Header{
		"Origin":                        {"https://app.example.com"},
		"Access-Control-Request-Method": {http.MethodGet},
	})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	w = do(t, r, http.MethodOptions, "/v1/search", http.Header{
		"Origin":                        {"https://evil.example.com"},
		"Access-Control-Request-Method": {http.MethodGet},
	})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected Access-Control-Allow-Origin %q for disallowed origin", got)
	}
}

func TestLookupStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", contentgw.ErrUnknownContentType), http.StatusBadRequest},
		{fmt.Errorf("x: %w", contentgw.ErrInvalidID), http.StatusBadRequest},
		{contentgw.ErrEmptyQuery, http.StatusBadRequest},
		{fmt.Errorf("x: %w", contentgw.ErrProviderNotConfigured), http.StatusServiceUnavailable},
		{fmt.Errorf("tmdb: %w", circuitbreaker.ErrCircuitOpen), http.StatusServiceUnavailable},
		{fmt.Errorf("tmdb rate limit wait: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{&providers.Error{Provider: "tmdb", StatusCode: 404}, http.StatusNotFound},
		{&providers.Error{Provider: "tmdb", StatusCode: 500}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		if got := lookupStatus(tc.err); got != tc.want {
			t.Errorf("lookupStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
