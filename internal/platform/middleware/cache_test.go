package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func etagServer(body *string, status *int) *echo.Echo {
	e := echo.New()
	e.Use(ETag(DefaultCacheConfig()))
	e.GET("/api/data", func(c echo.Context) error {
		return c.JSONBlob(*status, []byte(*body))
	})
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusInternalServerError, "boom")
	})
	e.GET("/metrics", func(c echo.Context) error {
		return c.String(http.StatusOK, "go_goroutines 1")
	})
	return e
}

func get(e *echo.Echo, path, ifNoneMatch string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestETag_SetsHeaders(t *testing.T) {
	body, status := `{"data":[]}`, http.StatusOK
	rec := get(etagServer(&body, &status), "/api/data", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != body {
		t.Errorf("expected body to pass through, got %q", rec.Body.String())
	}
	etag := rec.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"`) {
		t.Errorf("expected weak ETag, got %q", etag)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "private, no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if v := rec.Header().Get("Vary"); v != "Accept, Authorization" {
		t.Errorf("Vary = %q", v)
	}
}

func TestETag_NotModified(t *testing.T) {
	body, status := `{"data":[1]}`, http.StatusOK
	e := etagServer(&body, &status)

	etag := get(e, "/api/data", "").Header().Get("ETag")
	rec := get(e, "/api/data", etag)

	if rec.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body on 304, got %q", rec.Body.String())
	}
}

func TestETag_ChangedBodyChangesTag(t *testing.T) {
	body, status := `{"data":[1]}`, http.StatusOK
	e := etagServer(&body, &status)

	etag := get(e, "/api/data", "").Header().Get("ETag")
	body = `{"data":[1,2]}`
	rec := get(e, "/api/data", etag)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after data changed, got %d", rec.Code)
	}
	if rec.Header().Get("ETag") == etag {
		t.Error("expected a new ETag for a different body")
	}
}

func TestETag_SkipsErrorsAndExcludedPaths(t *testing.T) {
	body, status := `{"error":"Failed to load patients data"}`, http.StatusInternalServerError
	e := etagServer(&body, &status)

	rec := get(e, "/api/data", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if rec.Header().Get("ETag") != "" {
		t.Error("expected no ETag on error responses")
	}
	if rec.Body.String() != body {
		t.Errorf("expected error body to pass through, got %q", rec.Body.String())
	}

	rec = get(e, "/boom", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected HTTPError to reach the error handler, got %d", rec.Code)
	}

	rec = get(e, "/metrics", "")
	if rec.Header().Get("ETag") != "" {
		t.Error("expected /metrics to be excluded")
	}
}

func TestETagMatch(t *testing.T) {
	tests := []struct {
		header string
		etag   string
		want   bool
	}{
		{`W/"abc"`, `W/"abc"`, true},
		{`"abc"`, `W/"abc"`, true},
		{`"x", W/"abc"`, `W/"abc"`, true},
		{`*`, `W/"abc"`, true},
		{`W/"abd"`, `W/"abc"`, false},
	}
	for _, tt := range tests {
		if got := etagMatch(tt.header, tt.etag); got != tt.want {
			t.Errorf("etagMatch(%q, %q) = %v, want %v", tt.header, tt.etag, got, tt.want)
		}
	}
}
