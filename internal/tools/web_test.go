package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebSearchTool(t *testing.T) {
	var gotToken, gotQuery, gotCount string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Subscription-Token")
		gotQuery = r.URL.Query().Get("q")
		gotCount = r.URL.Query().Get("count")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"web":{"results":[
			{"title":"Go","url":"https://go.dev","description":"The Go programming language"},
			{"title":"Docs","url":"https://go.dev/doc","description":""}
		]}}`))
	}))
	defer server.Close()

	tool := NewWebSearchTool("secret-key", 5)
	tool.endpoint = server.URL

	got, err := tool.Execute(context.Background(), map[string]interface{}{"query": "golang docs", "count": float64(3)})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if gotToken != "secret-key" {
		t.Errorf("token header = %q", gotToken)
	}
	if gotQuery != "golang docs" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotCount != "3" {
		t.Errorf("count = %q", gotCount)
	}
	for _, want := range []string{"1. Go", "https://go.dev", "2. Docs"} {
		if !strings.Contains(got, want) {
			t.Errorf("result = %q, missing %q", got, want)
		}
	}
}

func TestWebSearchToolNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"web":{"results":[]}}`))
	}))
	defer server.Close()

	tool := NewWebSearchTool("k", 5)
	tool.endpoint = server.URL

	got, err := tool.Execute(context.Background(), map[string]interface{}{"query": "xyzzy"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(got, "No results") {
		t.Errorf("result = %q", got)
	}
}

func TestWebSearchToolAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	tool := NewWebSearchTool("k", 5)
	tool.endpoint = server.URL

	_, err := tool.Execute(context.Background(), map[string]interface{}{"query": "q"})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("Execute() error = %v, want status in message", err)
	}
}

func TestWebSearchToolMissingKey(t *testing.T) {
	tool := NewWebSearchTool("", 5)
	if _, err := tool.Execute(context.Background(), map[string]interface{}{"query": "q"}); err == nil {
		t.Error("Execute() error = nil, want missing-key error")
	}
}
