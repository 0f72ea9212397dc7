package cache

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCacheMiddleware(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"GETCachedOnSecondCall", testGETCachedOnSecondCall},
		{"POSTNotCached", testPOSTNotCached},
		{"Non200NotCached", testNon200NotCached},
		{"ContentTypePreserved", testContentTypePreserved},
		{"DifferentQueriesCachedSeparately", testDifferentQueriesCachedSeparately},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func countingHandler(calls *int, status int, contentType, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func testGETCachedOnSecondCall(t *testing.T) {
	calls := 0
	wrapped := CacheMiddleware(NewLRUCache(10, 5*time.Second))(
		countingHandler(&calls, http.StatusOK, "application/json", `{"servers":[]}`))

	rec1 := serve(wrapped, http.MethodGet, "/api/v0/servers")
	if rec1.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("expected X-Cache: MISS, got %q", rec1.Header().Get("X-Cache"))
	}

	rec2 := serve(wrapped, http.MethodGet, "/api/v0/servers")
	if calls != 1 {
		t.Fatalf("expected handler called once, got %d", calls)
	}
	if rec2.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("expected X-Cache: HIT, got %q", rec2.Header().Get("X-Cache"))
	}
	if rec2.Body.String() != `{"servers":[]}` {
		t.Fatalf("unexpected cached body %q", rec2.Body.String())
	}
}

func testPOSTNotCached(t *testing.T) {
	calls := 0
	wrapped := CacheMiddleware(NewLRUCache(10, 5*time.Second))(
		countingHandler(&calls, http.StatusOK, "application/json", `{}`))

	serve(wrapped, http.MethodPost, "/api/sync/official")
	rec := serve(wrapped, http.MethodPost, "/api/sync/official")

	if calls != 2 {
		t.Fatalf("expected handler called twice, got %d", calls)
	}
	if rec.Header().Get("X-Cache") != "" {
		t.Fatalf("expected no X-Cache header on POST, got %q", rec.Header().Get("X-Cache"))
	}
}

func testNon200NotCached(t *testing.T) {
	calls := 0
	wrapped := CacheMiddleware(NewLRUCache(10, 5*time.Second))(
		countingHandler(&calls, http.StatusBadRequest, "application/json", `{"error":"bad"}`))

	serve(wrapped, http.MethodGet, "/api/v0/servers?limit=0")
	serve(wrapped, http.MethodGet, "/api/v0/servers?limit=0")

	if calls != 2 {
		t.Fatalf("expected handler called twice, got %d", calls)
	}
}

func testContentTypePreserved(t *testing.T) {
	calls := 0
	wrapped := CacheMiddleware(NewLRUCache(10, 5*time.Second))(
		countingHandler(&calls, http.StatusOK, "text/markdown; charset=utf-8", "# Servers\n"))

	serve(wrapped, http.MethodGet, "/servers.md")
	rec := serve(wrapped, http.MethodGet, "/servers.md")

	if got := rec.Header().Get("Content-Type"); got != "text/markdown; charset=utf-8" {
		t.Fatalf("expected markdown content type on hit, got %q", got)
	}
}

func testDifferentQueriesCachedSeparately(t *testing.T) {
	calls := 0
	wrapped := CacheMiddleware(NewLRUCache(10, 5*time.Second))(
		countingHandler(&calls, http.StatusOK, "application/json", `{}`))

	serve(wrapped, http.MethodGet, "/api/v0/servers?limit=1")
	serve(wrapped, http.MethodGet, "/api/v0/servers?limit=2")
	serve(wrapped, http.MethodGet, "/api/v0/servers?limit=1")

	if calls != 2 {
		t.Fatalf("expected handler called twice, got %d", calls)
	}
}
