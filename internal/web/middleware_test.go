package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTracingMiddleware(t *testing.T) {
	var seen string
	handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("GeneratesRequestID", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		id := rr.Header().Get(RequestIDHeader)
		if id == "" || id != seen {
			t.Errorf("expected generated id in header and context, got %q and %q", id, seen)
		}
		if rr.Header().Get(TraceIDHeader) == "" {
			t.Error("expected trace id header")
		}
	})

	t.Run("KeepsCallerRequestID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if seen != "req-123" || rr.Header().Get(RequestIDHeader) != "req-123" {
			t.Errorf("expected caller id to be kept, got %q", seen)
		}
	})
}

func TestRecoverMiddleware(t *testing.T) {
	handler := RecoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rr.Code)
	}
}

func TestSecureHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecureHeaders(http.NotFoundHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected X-Frame-Options DENY")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff")
	}
}

func TestResponseWriterCountsBytes(t *testing.T) {
	rw := wrapWriter(httptest.NewRecorder())
	rw.WriteHeader(http.StatusTeapot)
	rw.Write([]byte("hello"))

	if rw.status != http.StatusTeapot || rw.written != 5 {
		t.Errorf("unexpected writer state status=%d written=%d", rw.status, rw.written)
	}
}
