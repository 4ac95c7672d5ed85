package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"hotrepos/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Initialize logger for tests
	_ = logger.Initialize("debug")
}

func newTestClient(t *testing.T, token string, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(token, server.URL)
	require.NoError(t, err)
	return client
}

func strPtr(s string) *string { return &s }

func TestNewClient(t *testing.T) {
	client, err := NewClient("test-token", "")

	require.NoError(t, err)
	assert.Equal(t, "test-token", client.token)
	assert.Equal(t, DefaultBaseURL, client.baseURL.String())
	assert.NotNil(t, client.httpClient)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
}

func TestNewClientInvalidURL(t *testing.T) {
	_, err := NewClient("", "://bad")
	assert.Error(t, err)
}

func TestSearchRepositories(t *testing.T) {
	created := time.Date(2026, 10, 12, 8, 0, 0, 0, time.UTC)

	testCases := []struct {
		name           string
		mockResponse   any
		mockStatusCode int
		expectedError  bool
	}{
		{
			name: "successful search",
			mockResponse: SearchResponse{
				TotalCount: 2,
				Items: []SearchItem{
					{
						FullName:        "acme/rocket",
						StargazersCount: 900,
						ForksCount:      40,
						CreatedAt:       created,
						Language:        strPtr("Go"),
						Description:     strPtr("Fast rockets"),
						HTMLURL:         "https://github.com/acme/rocket",
						Topics:          []string{"ai"},
					},
					{
						FullName:        "acme/nolang",
						StargazersCount: 500,
						CreatedAt:       created,
						HTMLURL:         "https://github.com/acme/nolang",
					},
				},
			},
			mockStatusCode: http.StatusOK,
		},
		{
			name:           "validation failed",
			mockResponse:   errorResponse{Message: "Validation Failed"},
			mockStatusCode: http.StatusUnprocessableEntity,
			expectedError:  true,
		},
		{
			name:           "server error",
			mockStatusCode: http.StatusInternalServerError,
			expectedError:  true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, "test-token", func(w http.ResponseWriter, r *http.Request) {
				// Verify request headers
				assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
				assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
				assert.Equal(t, apiVersion, r.Header.Get("X-GitHub-Api-Version"))

				// Verify request URL and query parameters
				assert.Equal(t, searchPath, r.URL.Path)
				q := r.URL.Query()
				assert.Equal(t, "created:>=2026-10-10 stars:>=300", q.Get("q"))
				assert.Equal(t, "stars", q.Get("sort"))
				assert.Equal(t, "desc", q.Get("order"))
				assert.Equal(t, "100", q.Get("per_page"))
				assert.Equal(t, "2", q.Get("page"))

				w.WriteHeader(tc.mockStatusCode)
				if tc.mockResponse != nil {
					json.NewEncoder(w).Encode(tc.mockResponse)
				}
			})

			resp, err := client.SearchRepositories(context.Background(), "created:>=2026-10-10 stars:>=300", 2, 100)

			if tc.expectedError {
				assert.Nil(t, resp)
				respErr, ok := AsResponseError(err)
				require.True(t, ok)
				assert.Equal(t, tc.mockStatusCode, respErr.StatusCode)
				assert.False(t, respErr.IsRateLimited())
				assert.NotErrorIs(t, err, ErrRateLimited)
				return
			}

			require.NoError(t, err)
			require.Len(t, resp.Items, 2)
			assert.Equal(t, 2, resp.TotalCount)
			assert.Equal(t, "acme/rocket", resp.Items[0].FullName)
			assert.Equal(t, 900, resp.Items[0].StargazersCount)
			assert.Equal(t, "Go", *resp.Items[0].Language)
			assert.True(t, created.Equal(resp.Items[0].CreatedAt))
			assert.Nil(t, resp.Items[1].Language)
			assert.Nil(t, resp.Items[1].Description)
		})
	}
}

func TestSearchRepositoriesWithoutToken(t *testing.T) {
	client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header["Authorization"]
		assert.False(t, present)
		w.Write([]byte(`{"total_count":0,"items":[]}`))
	})

	resp, err := client.SearchRepositories(context.Background(), "stars:>=1", 1, 100)

	require.NoError(t, err)
	assert.Empty(t, resp.Items)
}

func TestSearchRepositoriesRateLimited(t *testing.T) {
	reset := time.Now().Add(10 * time.Minute).Unix()

	testCases := []struct {
		name          string
		status        int
		headers       map[string]string
		message       string
		expectRetryAt time.Duration
	}{
		{
			name:   "primary limit exhausted",
			status: http.StatusForbidden,
			headers: map[string]string{
				"X-RateLimit-Limit":     "10",
				"X-RateLimit-Remaining": "0",
				"X-RateLimit-Reset":     strconv.FormatInt(reset, 10),
			},
			message: "API rate limit exceeded for 127.0.0.1.",
		},
		{
			name:          "secondary limit",
			status:        http.StatusForbidden,
			headers:       map[string]string{"Retry-After": "30"},
			message:       "You have exceeded a secondary rate limit.",
			expectRetryAt: 30 * time.Second,
		},
		{
			name:          "too many requests",
			status:        http.StatusTooManyRequests,
			expectRetryAt: time.Minute,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, "test-token", func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tc.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tc.status)
				if tc.message != "" {
					json.NewEncoder(w).Encode(errorResponse{Message: tc.message})
				}
			})

			resp, err := client.SearchRepositories(context.Background(), "stars:>=1", 1, 100)

			assert.Nil(t, resp)
			assert.ErrorIs(t, err, ErrRateLimited)
			respErr, ok := AsResponseError(err)
			require.True(t, ok)
			assert.True(t, respErr.IsRateLimited())
			if tc.expectRetryAt > 0 {
				assert.Equal(t, tc.expectRetryAt, respErr.RetryAfter)
			} else {
				assert.Greater(t, respErr.RetryAfter, 9*time.Minute)
			}
		})
	}
}

func TestSearchRepositoriesForbiddenIsNotRateLimit(t *testing.T) {
	client := newTestClient(t, "test-token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "4999")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(errorResponse{Message: "Resource not accessible by integration"})
	})

	_, err := client.SearchRepositories(context.Background(), "stars:>=1", 1, 100)

	respErr, ok := AsResponseError(err)
	require.True(t, ok)
	assert.False(t, respErr.IsRateLimited())
	assert.Equal(t, "Resource not accessible by integration", respErr.Message)
	assert.Zero(t, respErr.RetryAfter)
}

func TestSearchRepositoriesRequestFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL, _ := url.Parse(server.URL)
	server.Close()

	client := &Client{httpClient: &http.Client{Timeout: time.Second}, baseURL: baseURL}

	resp, err := client.SearchRepositories(context.Background(), "stars:>=1", 1, 100)

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrRequestFailed)
	_, isResponseErr := AsResponseError(err)
	assert.False(t, isResponseErr)
}

func TestSearchRepositoriesDecodeFailure(t *testing.T) {
	client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items": [`))
	})

	_, err := client.SearchRepositories(context.Background(), "stars:>=1", 1, 100)

	assert.ErrorIs(t, err, ErrDecodeFailed)
	assert.False(t, errors.Is(err, ErrRequestFailed))
}
