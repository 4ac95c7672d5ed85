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

const selectRepositoryByName = `
	SELECT full_name, stars, forks, created_at, language, description, url, topics
	FROM repositories
	WHERE full_name = $1
`

// GetByFullName retrieves the latest stored state of a repository
func (db *DB) GetByFullName(ctx context.Context, fullName string) (*models.Repository, error) {
	if fullName == "" {
		return nil, fmt.Errorf("%w: repository name cannot be empty", ErrInvalidInput)
	}

	stmt, err := db.getStmt(ctx, selectRepositoryByName)
	if err != nil {
		return nil, err
	}

	var repo models.Repository
	if err := stmt.GetContext(ctx, &repo, fullName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, fullName)
		}
		return nil, fmt.Errorf("failed to get repository %s: %w", fullName, err)
	}

	logger.Debug("Repository retrieved", zap.String("full_name", fullName))
	return &repo, nil
}
