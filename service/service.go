package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"hotrepos/config"
	"hotrepos/db"
	"hotrepos/fetcher"
	"hotrepos/github"
	"hotrepos/logger"
	"hotrepos/models"
)

// Store abstracts the snapshot store operations needed by the service
// (for testability)
type Store interface {
	StoreRun(ctx context.Context, run *models.SearchRun, repos []models.Repository) error
	GetLatestRun(ctx context.Context) (*models.SearchRun, error)
	GetRunRepositories(ctx context.Context, runID int) ([]models.Repository, error)
	GetByFullName(ctx context.Context, fullName string) (*models.Repository, error)
}

// Searcher abstracts the repository aggregator (for testability)
type Searcher interface {
	Search(ctx context.Context, criteria models.SearchCriteria) ([]models.Repository, error)
}

// Service errors
var (
	ErrServiceInit     = fmt.Errorf("service initialization error")
	ErrServiceShutdown = fmt.Errorf("service shutdown error")
)

// Service represents the main application service
type Service struct {
	config   *config.Config
	database *db.DB
	searcher Searcher
	out      io.Writer
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewService creates a new service instance
func NewService() (*Service, error) {
	cfg := config.NewConfig()
	if err := cfg.Load(); err != nil {
		return nil, fmt.Errorf("%w: failed to load configuration: %v", ErrServiceInit, err)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize logger: %v", ErrServiceInit, err)
	}

	client, err := github.NewClient(cfg.GitHubToken, cfg.GitHubAPIURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceInit, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		config:   cfg,
		searcher: fetcher.NewAggregator(client),
		out:      os.Stdout,
		ctx:      ctx,
		cancel:   cancel,
	}

	if cfg.Database.Enabled() {
		database, err := db.New(cfg.Database)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("%w: failed to initialize database: %v", ErrServiceInit, err)
		}
		if err := database.Migrate(ctx); err != nil {
			cancel()
			database.Close()
			return nil, fmt.Errorf("%w: %v", ErrServiceInit, err)
		}
		s.database = database
	}

	logger.Info("Service initialized successfully",
		zap.Int("search_days", cfg.SearchDays),
		zap.Int("min_stars", cfg.MinStars),
		zap.String("language", cfg.Language),
		zap.Strings("topics", cfg.Topics),
		zap.Int("top_n", cfg.TopN),
		zap.String("schedule", cfg.Schedule),
		zap.Bool("store_enabled", s.database != nil))

	return s, nil
}

// store returns the snapshot store, or nil when none is configured. The
// typed nil *db.DB must not leak into the interface.
func (s *Service) store() Store {
	if s.database == nil {
		return nil
	}
	return s.database
}

// Start runs a search immediately. With a schedule configured it then keeps
// searching on that schedule until interrupted.
func (s *Service) Start() error {
	_, err := runSearch(s.ctx, s.store(), s.searcher, s.config, time.Now(), s.out)
	if s.config.Schedule == "" {
		return err
	}
	if err != nil {
		logger.Warn("Initial search failed", zap.Error(err))
		// Continue despite initial search error
	}

	scheduler, err := s.startScheduler()
	if err != nil {
		return err
	}

	s.waitForShutdown()

	<-scheduler.Stop().Done()
	return nil
}

// startScheduler registers the search on the configured cron schedule
func (s *Service) startScheduler() (*cron.Cron, error) {
	scheduler := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	_, err := scheduler.AddFunc(s.config.Schedule, func() {
		if s.ctx.Err() != nil {
			return
		}
		if _, err := runSearch(s.ctx, s.store(), s.searcher, s.config, time.Now(), s.out); err != nil {
			logger.Warn("Scheduled search failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", s.config.Schedule, err)
	}

	scheduler.Start()
	logger.Info("Search scheduled", zap.String("schedule", s.config.Schedule))
	return scheduler, nil
}

// waitForShutdown waits for the shutdown signal
func (s *Service) waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
	case <-s.ctx.Done():
	}
	s.cancel()
}

// Close performs cleanup operations
func (s *Service) Close() error {
	logger.Info("Closing service")
	s.cancel()
	defer logger.Sync()
	if s.database != nil {
		if err := s.database.Close(); err != nil {
			return fmt.Errorf("%w: failed to close database: %v", ErrServiceShutdown, err)
		}
	}
	return nil
}

// runSearch performs one search, stores it when a store is configured and
// writes the listing to out. Repositories absent from the previous complete
// run are flagged as new, and star counts are compared with the last stored
// value.
func runSearch(ctx context.Context, store Store, searcher Searcher, cfg *config.Config, now time.Time, out io.Writer) ([]models.Repository, error) {
	if ctx.Err() != nil {
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	}

	criteria := models.NewSearchCriteria(now, cfg.SearchDays, cfg.MinStars, cfg.Language, cfg.Topics, cfg.TopN)
	query := fetcher.BuildQuery(criteria)
	log := logger.With(zap.String("query", query))

	repos, searchErr := searcher.Search(ctx, criteria)
	if searchErr != nil {
		if respErr, ok := github.AsResponseError(searchErr); ok && respErr.IsRateLimited() {
			log.Warn("Search rate limited",
				zap.Int("status_code", respErr.StatusCode),
				zap.Time("reset", respErr.RateLimit.Reset),
				zap.Duration("retry_after", respErr.RetryAfter),
				zap.Int("collected", len(repos)))
		} else {
			log.Error("Search failed",
				zap.Error(searchErr),
				zap.Int("collected", len(repos)))
		}
		if errors.Is(searchErr, fetcher.ErrInvalidCriteria) {
			return nil, searchErr
		}
	}

	var hist *history
	if store != nil {
		hist = &history{
			seen:      previousRun(ctx, store),
			lastStars: lastStars(ctx, store, repos),
		}

		run := &models.SearchRun{Query: query, RanAt: now.UTC(), Partial: searchErr != nil}
		if err := store.StoreRun(ctx, run, repos); err != nil {
			log.Error("Failed to store search run", zap.Error(err))
		}
	}

	if err := writeReport(out, criteria, repos, hist, searchErr); err != nil {
		log.Error("Failed to write report", zap.Error(err))
	}

	return repos, searchErr
}

// previousRun returns the names in the latest complete run, or nil when
// there is none.
func previousRun(ctx context.Context, store Store) map[string]bool {
	run, err := store.GetLatestRun(ctx)
	if err != nil {
		if !errors.Is(err, db.ErrRunNotFound) {
			logger.Warn("Failed to load previous run", zap.Error(err))
		}
		return nil
	}

	repos, err := store.GetRunRepositories(ctx, run.ID)
	if err != nil {
		logger.Warn("Failed to load previous run results", zap.Error(err), zap.Int("run_id", run.ID))
		return nil
	}

	seen := make(map[string]bool, len(repos))
	for _, r := range repos {
		seen[r.FullName] = true
	}
	return seen
}

// lastStars looks up the star count stored for each repository before this
// run overwrites it. Repositories never stored before are left out.
func lastStars(ctx context.Context, store Store, repos []models.Repository) map[string]int {
	stars := make(map[string]int, len(repos))
	for _, r := range repos {
		stored, err := store.GetByFullName(ctx, r.FullName)
		if err != nil {
			if !errors.Is(err, db.ErrRepositoryNotFound) {
				logger.Warn("Failed to load stored repository",
					zap.Error(err),
					zap.String("full_name", r.FullName))
			}
			continue
		}
		stars[r.FullName] = stored.Stars
	}
	return stars
}
