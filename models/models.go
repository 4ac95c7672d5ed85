// Package models defines the core data structures used throughout the application.
package models

import (
	"time"

	"github.com/lib/pq"
)

// Placeholders for optional fields the search API may return as null.
const (
	UnknownLanguage = "unknown"
	NoDescription   = "no description"
)

// SearchCriteria parameterizes one repository search
type SearchCriteria struct {
	CreatedAfter time.Time
	MinStars     int
	Language     string
	Topics       []string
	Limit        int
}

// NewSearchCriteria builds criteria for repositories created within the last
// days calendar days (UTC) before now.
func NewSearchCriteria(now time.Time, days, minStars int, language string, topics []string, limit int) SearchCriteria {
	today := now.UTC().Truncate(24 * time.Hour)
	return SearchCriteria{
		CreatedAfter: today.AddDate(0, 0, -days),
		MinStars:     minStars,
		Language:     language,
		Topics:       topics,
		Limit:        limit,
	}
}

// Repository is a normalized search result
type Repository struct {
	FullName    string         `db:"full_name" json:"full_name"`
	Stars       int            `db:"stars" json:"stars"`
	Forks       int            `db:"forks" json:"forks"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	Language    string         `db:"language" json:"language"`
	Description string         `db:"description" json:"description"`
	URL         string         `db:"url" json:"url"`
	Topics      pq.StringArray `db:"topics" json:"topics"`
}

// SearchRun records one execution of a search, stored alongside its results.
type SearchRun struct {
	ID          int       `db:"id" json:"id"`
	Query       string    `db:"query" json:"query"`
	RanAt       time.Time `db:"ran_at" json:"ran_at"`
	ResultCount int       `db:"result_count" json:"result_count"`
	Partial     bool      `db:"partial" json:"partial"`
}
