package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-session-secret")

func signSession(t *testing.T, secret []byte, method jwt.SigningMethod, role string, exp time.Time) string {
	t.Helper()
	claims := SessionClaims{Role: role}
	if !exp.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func sessionHandler(t *testing.T, wantCalled bool) http.Handler {
	return SessionMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !wantCalled {
			t.Error("handler should not be called")
		}
		if _, ok := SessionFromContext(r.Context()); !ok {
			t.Error("expected session in context")
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestSessionMiddleware_ValidToken(t *testing.T) {
	token := signSession(t, testSecret, jwt.SigningMethodHS256, RoleUser, time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	sessionHandler(t, true).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestSessionMiddleware_NoAuthHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	sessionHandler(t, false).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	var body map[string]map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"]["code"] != "missing_session" || body["error"]["type"] != "authentication_error" {
		t.Errorf("unexpected error body %v", body)
	}
}

func TestSessionMiddleware_Rejects(t *testing.T) {
	cases := map[string]string{
		"wrong secret": signSession(t, []byte("other"), jwt.SigningMethodHS256, RoleAdmin, time.Now().Add(time.Hour)),
		"expired":      signSession(t, testSecret, jwt.SigningMethodHS256, RoleAdmin, time.Now().Add(-time.Minute)),
		"no exp":       signSession(t, testSecret, jwt.SigningMethodHS256, RoleAdmin, time.Time{}),
		"wrong alg":    signSession(t, testSecret, jwt.SigningMethodHS512, RoleAdmin, time.Now().Add(time.Hour)),
		"garbage":      "not.a.token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rr := httptest.NewRecorder()
			sessionHandler(t, false).ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("got status %d, want %d", rr.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestSessionMiddleware_ExpiredCode(t *testing.T) {
	token := signSession(t, testSecret, jwt.SigningMethodHS256, RoleUser, time.Now().Add(-time.Minute))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	sessionHandler(t, false).ServeHTTP(rr, req)

	var body map[string]map[string]string
	_ = json.NewDecoder(rr.Body).Decode(&body)
	if body["error"]["code"] != "session_expired" {
		t.Errorf("expected session_expired code, got %v", body)
	}
}

func TestSessionMiddleware_DisabledWithoutSecret(t *testing.T) {
	called := false
	h := SessionMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if !called || rr.Code != http.StatusOK {
		t.Fatalf("expected pass-through without a secret, got %d", rr.Code)
	}
}

func TestRequireRole(t *testing.T) {
	h := SessionMiddleware(testSecret)(RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	for role, want := range map[string]int{RoleAdmin: http.StatusNoContent, RoleUser: http.StatusForbidden, "": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signSession(t, testSecret, jwt.SigningMethodHS256, role, time.Now().Add(time.Hour)))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Errorf("role %q: got status %d, want %d", role, rr.Code, want)
		}
	}
}

func TestRequireRole_NoSession(t *testing.T) {
	h := RequireRole(RoleAdmin)(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("handler should not be called")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestWriteErrorDefaults(t *testing.T) {
	cases := map[int]string{
		http.StatusBadRequest:         "invalid_request_error",
		http.StatusNotFound:           "not_found_error",
		http.StatusTooManyRequests:    "rate_limit_error",
		http.StatusServiceUnavailable: "unavailable_error",
		http.StatusBadGateway:         "server_error",
	}
	for status, want := range cases {
		rr := httptest.NewRecorder()
		WriteError(rr, status, "msg", "", "")
		var body map[string]map[string]string
		_ = json.NewDecoder(rr.Body).Decode(&body)
		if rr.Code != status || body["error"]["type"] != want || body["error"]["code"] != want {
			t.Errorf("status %d: got %d %v", status, rr.Code, body)
		}
	}
}
