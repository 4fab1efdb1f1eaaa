// Package infrastructure provides core service initialization for application
// startup. It assembles the shared dependencies (logging, database, storage,
// job queue) that domain systems require.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/auditstack/attest/internal/config"
	"github.com/auditstack/attest/internal/queue"
	"github.com/auditstack/attest/pkg/database"
	"github.com/auditstack/attest/pkg/lifecycle"
	"github.com/auditstack/attest/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules. It
// provides a single point of initialization for lifecycle coordination,
// logging, database access, blob storage, and the background job queue.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Queue     queue.System
}

// New creates an Infrastructure from the application configuration. It
// initializes all systems but does not start them; call Start separately
// after job handlers are registered.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	q := queue.New(
		db.Connection(),
		logger,
		cfg.Queue.Workers,
		cfg.Queue.PollIntervalDuration(),
	)

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		Storage:   store,
		Queue:     q,
	}, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
// The queue starts last so any job handlers registered during module assembly
// are in place before workers poll.
func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	if err := i.Queue.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("queue start failed: %w", err)
	}
	return nil
}
