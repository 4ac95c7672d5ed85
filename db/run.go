package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"hotrepos/logger"
	"hotrepos/models"
)

// StoreRun saves run and its ranked results in one transaction and sets
// run.ID. Repositories are upserted by full name so their latest star
// count is kept alongside the per-run snapshot.
func (db *DB) StoreRun(ctx context.Context, run *models.SearchRun, repos []models.Repository) error {
	if run == nil || run.Query == "" {
		return fmt.Errorf("%w: run query cannot be empty", ErrInvalidInput)
	}
	// run_repositories is keyed by (run_id, full_name); later repeats are dropped
	unique := make([]models.Repository, 0, len(repos))
	seen := make(map[string]bool, len(repos))
	for _, repo := range repos {
		if repo.FullName == "" {
			return fmt.Errorf("%w: repository name cannot be empty", ErrInvalidInput)
		}
		if seen[repo.FullName] {
			continue
		}
		seen[repo.FullName] = true
		unique = append(unique, repo)
	}
	repos = unique

	logger.Info("Storing search run",
		zap.String("query", run.Query),
		zap.Int("count", len(repos)),
		zap.Bool("partial", run.Partial))

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	defer tx.Rollback()

	run.ResultCount = len(repos)
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO search_runs (query, ran_at, result_count, partial)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, run.Query, run.RanAt, run.ResultCount, run.Partial).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("failed to insert search run: %w", err)
	}

	upsert, err := tx.PreparexContext(ctx, `
		INSERT INTO repositories (
			full_name, stars, forks, created_at,
			language, description, url, topics, last_seen_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, '{}'::TEXT[]), $9)
		ON CONFLICT (full_name) DO UPDATE SET
			stars = EXCLUDED.stars,
			forks = EXCLUDED.forks,
			language = EXCLUDED.language,
			description = EXCLUDED.description,
			url = EXCLUDED.url,
			topics = EXCLUDED.topics,
			last_seen_at = EXCLUDED.last_seen_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare repository upsert: %w", err)
	}
	defer upsert.Close()

	rank, err := tx.PreparexContext(ctx, `
		INSERT INTO run_repositories (run_id, full_name, rank, stars)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare rank insert: %w", err)
	}
	defer rank.Close()

	for i, repo := range repos {
		if _, err := upsert.ExecContext(ctx,
			repo.FullName, repo.Stars, repo.Forks, repo.CreatedAt,
			repo.Language, repo.Description, repo.URL, repo.Topics, run.RanAt,
		); err != nil {
			return fmt.Errorf("failed to upsert repository %s: %w", repo.FullName, err)
		}
		if _, err := rank.ExecContext(ctx, run.ID, repo.FullName, i+1, repo.Stars); err != nil {
			return fmt.Errorf("failed to insert rank for %s: %w", repo.FullName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", ErrTransactionFailed, err)
	}

	logger.Info("Search run stored", zap.Int("run_id", run.ID))
	return nil
}

// GetLatestRun returns the most recent complete run. Partial runs are
// skipped so an interrupted search never serves as the comparison baseline.
func (db *DB) GetLatestRun(ctx context.Context) (*models.SearchRun, error) {
	var run models.SearchRun
	query := `
		SELECT id, query, ran_at, result_count, partial
		FROM search_runs
		WHERE NOT partial
		ORDER BY ran_at DESC, id DESC
		LIMIT 1
	`
	if err := db.conn.GetContext(ctx, &run, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get latest search run: %w", err)
	}
	return &run, nil
}

// GetRunRepositories returns a run's results in rank order, with the star
// counts observed during that run.
func (db *DB) GetRunRepositories(ctx context.Context, runID int) ([]models.Repository, error) {
	if runID <= 0 {
		return nil, fmt.Errorf("%w: run id must be positive", ErrInvalidInput)
	}

	var repos []models.Repository
	query := `
		SELECT r.full_name, rr.stars, r.forks, r.created_at,
			r.language, r.description, r.url, r.topics
		FROM run_repositories rr
		JOIN repositories r ON r.full_name = rr.full_name
		WHERE rr.run_id = $1
		ORDER BY rr.rank
	`
	if err := db.conn.SelectContext(ctx, &repos, query, runID); err != nil {
		return nil, fmt.Errorf("failed to get repositories for run %d: %w", runID, err)
	}
	return repos, nil
}
