// Package fetcher aggregates paginated repository search results into a
// ranked, bounded list.
package fetcher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"hotrepos/github"
	"hotrepos/logger"
	"hotrepos/models"
)

const (
	// DefaultPageSize is the largest page GitHub search serves
	DefaultPageSize = 100
	// DefaultMaxPages caps pagination; GitHub search stops at 1000 results
	DefaultMaxPages = 10
)

// ErrInvalidCriteria is returned before any request is made
var ErrInvalidCriteria = fmt.Errorf("invalid search criteria")

// GitHubClientInterface defines the GitHub client operations needed by the fetcher
type GitHubClientInterface interface {
	SearchRepositories(ctx context.Context, query string, page, perPage int) (*github.SearchResponse, error)
}

// Aggregator runs a search page by page until it has enough results
type Aggregator struct {
	client   GitHubClientInterface
	pageSize int
	maxPages int
}

// NewAggregator returns an Aggregator with the default page size and page cap
func NewAggregator(client GitHubClientInterface) *Aggregator {
	return &Aggregator{
		client:   client,
		pageSize: DefaultPageSize,
		maxPages: DefaultMaxPages,
	}
}

// BuildQuery renders criteria in GitHub search syntax
func BuildQuery(c models.SearchCriteria) string {
	var parts []string
	if len(c.Topics) > 0 {
		topics := make([]string, 0, len(c.Topics))
		for _, t := range c.Topics {
			topics = append(topics, "topic:"+t)
		}
		if len(topics) == 1 {
			parts = append(parts, topics[0])
		} else {
			parts = append(parts, "("+strings.Join(topics, " OR ")+")")
		}
	}
	parts = append(parts,
		"created:>="+c.CreatedAfter.UTC().Format("2006-01-02"),
		fmt.Sprintf("stars:>=%d", c.MinStars),
	)
	if c.Language != "" {
		parts = append(parts, "language:"+c.Language)
	}
	return strings.Join(parts, " ")
}

func validate(c models.SearchCriteria) error {
	switch {
	case c.Limit <= 0:
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidCriteria, c.Limit)
	case c.MinStars < 0:
		return fmt.Errorf("%w: minimum stars cannot be negative, got %d", ErrInvalidCriteria, c.MinStars)
	case c.CreatedAfter.IsZero():
		return fmt.Errorf("%w: creation date lower bound is required", ErrInvalidCriteria)
	}
	return nil
}

// Search returns at most criteria.Limit repositories sorted by stars,
// descending. When a page request fails, the repositories collected so far
// are returned together with the error. No matches is not an error.
func (a *Aggregator) Search(ctx context.Context, criteria models.SearchCriteria) ([]models.Repository, error) {
	if err := validate(criteria); err != nil {
		return nil, err
	}

	query := BuildQuery(criteria)
	logger.Info("Searching repositories",
		zap.String("query", query),
		zap.Int("limit", criteria.Limit))

	var repos []models.Repository
	var searchErr error
	// results shift between page requests when star counts change
	seen := make(map[string]bool)

	for page := 1; page <= a.maxPages; page++ {
		if err := ctx.Err(); err != nil {
			searchErr = fmt.Errorf("search cancelled before page %d: %w", page, err)
			break
		}

		resp, err := a.client.SearchRepositories(ctx, query, page, a.pageSize)
		if err != nil {
			searchErr = fmt.Errorf("failed to fetch page %d: %w", page, err)
			break
		}

		for _, item := range resp.Items {
			if seen[item.FullName] {
				logger.Debug("Skipping repeated repository",
					zap.String("full_name", item.FullName),
					zap.Int("page", page))
				continue
			}
			seen[item.FullName] = true
			repos = append(repos, toRepository(item))
		}

		logger.Info("Fetched search page",
			zap.Int("page", page),
			zap.Int("items", len(resp.Items)),
			zap.Int("accumulated", len(repos)))

		if len(repos) >= criteria.Limit || len(resp.Items) < a.pageSize {
			break
		}
		if page == a.maxPages {
			logger.Info("Reached page limit", zap.Int("max_pages", a.maxPages))
		}
	}

	sort.SliceStable(repos, func(i, j int) bool {
		return repos[i].Stars > repos[j].Stars
	})
	if len(repos) > criteria.Limit {
		repos = repos[:criteria.Limit]
	}

	if searchErr != nil {
		logger.Warn("Search ended early",
			zap.Error(searchErr),
			zap.Int("collected", len(repos)))
		return repos, searchErr
	}

	logger.Info("Search complete",
		zap.String("query", query),
		zap.Int("count", len(repos)))
	return repos, nil
}

func toRepository(item github.SearchItem) models.Repository {
	language := models.UnknownLanguage
	if item.Language != nil && *item.Language != "" {
		language = *item.Language
	}
	description := models.NoDescription
	if item.Description != nil && strings.TrimSpace(*item.Description) != "" {
		description = *item.Description
	}

	return models.Repository{
		FullName:    item.FullName,
		Stars:       item.StargazersCount,
		Forks:       item.ForksCount,
		CreatedAt:   item.CreatedAt,
		Language:    language,
		Description: description,
		URL:         item.HTMLURL,
		Topics:      item.Topics,
	}
}
