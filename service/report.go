package service

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"hotrepos/fetcher"
	"hotrepos/models"
)

const (
	maxDescription = 120
	maxTopics      = 5
)

// history is what the snapshot store knew before the current run
type history struct {
	// seen holds the names in the previous complete run; nil when there is none
	seen map[string]bool
	// lastStars holds the stored star count per repository
	lastStars map[string]int
}

func (h *history) isNew(fullName string) bool {
	return h != nil && h.seen != nil && !h.seen[fullName]
}

func (h *history) starDelta(fullName string, stars int) (int, bool) {
	if h == nil {
		return 0, false
	}
	last, ok := h.lastStars[fullName]
	return stars - last, ok
}

// writeReport prints a plain text listing of repos. With a history,
// repositories missing from the previous run are marked as new and star
// changes since the last stored value are shown.
func writeReport(w io.Writer, criteria models.SearchCriteria, repos []models.Repository, hist *history, searchErr error) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Query: %s\n", fetcher.BuildQuery(criteria))
	if searchErr != nil {
		fmt.Fprintf(&b, "Search stopped early: %v\n", searchErr)
	}

	if len(repos) == 0 {
		if searchErr == nil {
			b.WriteString("No repositories matched. Try lowering MIN_STARS or removing LANGUAGE.\n")
		}
		_, err := io.WriteString(w, b.String())
		return err
	}

	fmt.Fprintf(&b, "Top %d repositories created since %s:\n\n",
		len(repos), criteria.CreatedAfter.Format("2006-01-02"))

	for i, r := range repos {
		marker := ""
		if hist.isNew(r.FullName) {
			marker = " [new]"
		}
		stars := fmt.Sprintf("%d", r.Stars)
		if delta, ok := hist.starDelta(r.FullName, r.Stars); ok {
			stars += fmt.Sprintf(" (%+d)", delta)
		}
		fmt.Fprintf(&b, "%2d. %s%s\n", i+1, r.FullName, marker)
		fmt.Fprintf(&b, "    stars: %s   forks: %d\n", stars, r.Forks)
		fmt.Fprintf(&b, "    %s | created: %s\n", r.Language, r.CreatedAt.UTC().Format("2006-01-02"))
		fmt.Fprintf(&b, "    %s\n", truncate(r.Description, maxDescription))
		if len(r.Topics) > 0 {
			topics := r.Topics
			if len(topics) > maxTopics {
				topics = topics[:maxTopics]
			}
			fmt.Fprintf(&b, "    topics: %s\n", strings.Join(topics, ", "))
		}
		fmt.Fprintf(&b, "    %s\n\n", r.URL)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
