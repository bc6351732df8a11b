package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsRequest(t *testing.T, origins []string, method, origin string, preflight bool) (*httptest.ResponseRecorder, *bool) {
	t.Helper()
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(method, "/health", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", "POST")
	}
	rec := httptest.NewRecorder()
	CORS(origins)(handler).ServeHTTP(rec, req)
	return rec, &called
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	rec, called := corsRequest(t, []string{"https://portal.brightsmile.example"}, http.MethodGet, "https://portal.brightsmile.example", false)

	if !*called {
		t.Fatal("expected handler to be called")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://portal.brightsmile.example" {
		t.Fatalf("expected allow origin header, got %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatal("expected allow methods header")
	}
	if rec.Header().Get("Access-Control-Allow-Headers") == "" {
		t.Fatal("expected allow headers header")
	}
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	rec, _ := corsRequest(t, []string{"https://portal.brightsmile.example"}, http.MethodGet, "https://evil.example", false)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow origin header, got %q", got)
	}
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	rec, _ := corsRequest(t, []string{"*"}, http.MethodGet, "https://random.example", false)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://random.example" {
		t.Fatalf("expected allow origin header, got %q", got)
	}
}

func TestCORSWildcardSubdomain(t *testing.T) {
	origins := []string{"https://*.brightsmile.example"}

	cases := []struct {
		origin string
		want   bool
	}{
		{"https://portal.brightsmile.example", true},
		{"https://staff.brightsmile.example", true},
		{"https://deep.portal.brightsmile.example", false},
		{"http://portal.brightsmile.example", false},
		{"https://brightsmile.example", false},
		{"https://notbrightsmile.example", false},
	}
	for _, tc := range cases {
		rec, _ := corsRequest(t, origins, http.MethodGet, tc.origin, false)
		got := rec.Header().Get("Access-Control-Allow-Origin") != ""
		if got != tc.want {
			t.Errorf("origin %q allowed=%v, want %v", tc.origin, got, tc.want)
		}
	}
}

func TestCORSHandlesPreflight(t *testing.T) {
	rec, called := corsRequest(t, []string{"https://portal.brightsmile.example"}, http.MethodOptions, "https://portal.brightsmile.example", true)

	if *called {
		t.Fatal("expected handler to not be called on preflight")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
}
