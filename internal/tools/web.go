package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const braveSearchEndpoint = "https://api.search.brave.com/res/v1/web/search"

// WebSearchTool searches the web through the Brave Search API. It runs on
// the host: the API key is injected at construction and never reaches the
// sandbox or any shared config object.
type WebSearchTool struct {
	BaseTool
	apiKey     string
	maxResults int
	endpoint   string
	client     *http.Client
}

type braveSearchResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// NewWebSearchTool creates a WebSearchTool with the given API key.
func NewWebSearchTool(apiKey string, maxResults int) *WebSearchTool {
	if maxResults <= 0 || maxResults > 10 {
		maxResults = 5
	}

	return &WebSearchTool{
		BaseTool: NewBaseTool(
			"web_search",
			"Search the web. Returns a numbered list of results with title, URL and description.",
			LocationHost,
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "The search query.",
					},
					"count": map[string]interface{}{
						"type":        "integer",
						"description": "Number of results to return (1-10).",
					},
				},
				"required": []string{"query"},
			},
		),
		apiKey:     apiKey,
		maxResults: maxResults,
		endpoint:   braveSearchEndpoint,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Execute performs the search and formats the results.
func (t *WebSearchTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	if t.apiKey == "" {
		return "", errors.New("web_search: API key not configured (set BRAVE_API_KEY)")
	}

	query, err := GetStringParam(params, "query")
	if err != nil {
		return "", fmt.Errorf("web_search: %w", err)
	}
	if strings.TrimSpace(query) == "" {
		return "", errors.New("web_search: query cannot be empty")
	}

	count := GetIntParamOr(params, "count", t.maxResults)
	if count < 1 {
		count = 1
	}
	if count > 10 {
		count = 10
	}

	searchURL := fmt.Sprintf("%s?q=%s&count=%d", t.endpoint, url.QueryEscape(query), count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return "", fmt.Errorf("web_search: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("web_search: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("web_search: API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed braveSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("web_search: parsing response: %w", err)
	}

	if len(parsed.Web.Results) == 0 {
		return "No results found for the query.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n\n", query)
	for i, r := range parsed.Web.Results {
		fmt.Fprintf(&b, "%d. %s\n   URL: %s\n", i+1, r.Title, r.URL)
		if r.Description != "" {
			fmt.Fprintf(&b, "   %s\n", r.Description)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
