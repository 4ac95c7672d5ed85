package github

import (
	"context"
	"encoding/json"
	"fmt"
	"hotrepos/logger"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the public GitHub REST endpoint
	DefaultBaseURL = "https://api.github.com"
	apiVersion     = "2022-11-28"
	searchPath     = "/search/repositories"
)

// RateLimit represents GitHub's rate limit information
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
	// Known is false when the response carried no rate limit headers
	Known bool
}

// Exhausted reports whether the headers say no requests are left
func (r RateLimit) Exhausted() bool {
	return r.Known && r.Remaining == 0
}

// Client represents a GitHub API client
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    *url.URL
}

// SearchItem is one repository in a search response. Language and
// Description are nullable upstream.
type SearchItem struct {
	FullName        string    `json:"full_name"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	CreatedAt       time.Time `json:"created_at"`
	Language        *string   `json:"language"`
	Description     *string   `json:"description"`
	HTMLURL         string    `json:"html_url"`
	Topics          []string  `json:"topics"`
}

// SearchResponse is the body of GET /search/repositories
type SearchResponse struct {
	TotalCount        int          `json:"total_count"`
	IncompleteResults bool         `json:"incomplete_results"`
	Items             []SearchItem `json:"items"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// NewClient returns a client for baseURL. An empty token sends
// unauthenticated requests, which GitHub limits much more aggressively.
func NewClient(token, baseURL string) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	logger.Info("Initializing GitHub client",
		zap.String("base_url", u.String()),
		zap.Bool("authenticated", token != ""))
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: u,
	}, nil
}

// SearchRepositories fetches one page of repositories matching query, sorted
// by stars in descending order.
func (c *Client) SearchRepositories(ctx context.Context, query string, page, perPage int) (*SearchResponse, error) {
	reqURL := c.baseURL.ResolveReference(&url.URL{Path: searchPath})

	q := reqURL.Query()
	q.Set("q", query)
	q.Set("sort", "stars")
	q.Set("order", "desc")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	reqURL.RawQuery = q.Encode()

	logger.Debug("Searching repositories",
		zap.String("query", query),
		zap.Int("page", page),
		zap.Int("per_page", perPage),
		zap.String("url", reqURL.String()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("Search request failed",
			zap.Error(err),
			zap.Int("page", page))
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respErr := newResponseError(resp)
		logger.Error("Search request rejected",
			zap.Int("status_code", respErr.StatusCode),
			zap.String("message", respErr.Message),
			zap.Bool("rate_limited", respErr.IsRateLimited()),
			zap.Int("page", page))
		return nil, respErr
	}

	var result SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		logger.Error("Failed to decode search response",
			zap.Error(err),
			zap.Int("page", page))
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	logger.Debug("Search page received",
		zap.Int("page", page),
		zap.Int("items", len(result.Items)),
		zap.Int("total_count", result.TotalCount),
		zap.Bool("incomplete_results", result.IncompleteResults))

	return &result, nil
}

func newResponseError(resp *http.Response) *ResponseError {
	respErr := &ResponseError{
		StatusCode: resp.StatusCode,
		RateLimit:  parseRateLimit(resp),
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var msg errorResponse
	if err := json.Unmarshal(body, &msg); err == nil && msg.Message != "" {
		respErr.Message = msg.Message
	} else {
		respErr.Message = http.StatusText(resp.StatusCode)
	}

	if respErr.IsRateLimited() {
		respErr.RetryAfter = retryAfter(resp, respErr.RateLimit)
	}
	return respErr
}

// parseRateLimit parses rate limit information from response headers
func parseRateLimit(resp *http.Response) RateLimit {
	remainingHeader := resp.Header.Get("X-RateLimit-Remaining")
	if remainingHeader == "" {
		return RateLimit{}
	}

	limit, _ := strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))
	remaining, _ := strconv.Atoi(remainingHeader)
	reset, _ := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)

	return RateLimit{
		Limit:     limit,
		Remaining: remaining,
		Reset:     time.Unix(reset, 0),
		Known:     true,
	}
}

// retryAfter prefers the Retry-After header (secondary limits) and falls
// back to the primary limit's reset time.
func retryAfter(resp *http.Response, rl RateLimit) time.Duration {
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if rl.Exhausted() {
		if wait := time.Until(rl.Reset); wait > 0 {
			return wait
		}
	}
	return time.Minute
}
