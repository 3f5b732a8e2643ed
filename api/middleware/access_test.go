package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/papshop-backend/pkg/logger"
)

func TestRequestIDKeepsCallerValueOrMintsOne(t *testing.T) {
	handler := RequestID(logger.Nop())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if got := resp.Header().Get(RequestIDHeader); got != "req-42" {
		t.Fatalf("expected caller id echoed, got %q", got)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected a minted request id")
	}
}

func TestLoggingRecordsRoutePatternAndStatus(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "api", Output: buf})

	r := chi.NewRouter()
	r.Use(RequestID(logg), Logging(logg))
	r.Get("/orders/{orderId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/orders/o-123", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if entry["route"] != "/orders/{orderId}" || entry["status"] != float64(http.StatusTeapot) {
		t.Fatalf("entry = %v", entry)
	}
	if entry["request_id"] != "req-7" {
		t.Fatalf("request id missing from access line: %v", entry)
	}
}

func TestRecovererAnswersInternalError(t *testing.T) {
	handler := Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map")
	}))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "INTERNAL_ERROR" {
		t.Fatalf("code = %s", code)
	}
}

func TestBearerTokenParsing(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"abc":          "abc",
		"Bearer ":      "",
		"":             "",
	}
	for header, want := range cases {
		if got := bearerToken(header); got != want {
			t.Fatalf("bearerToken(%q) = %q want %q", header, got, want)
		}
	}
}
