package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/auditstack/attest/internal/controls"
	"github.com/auditstack/attest/internal/evidence"
)

// JobProcessTask is the queue job name for downstream task processing.
const JobProcessTask = "process_task"

// Enqueuer enqueues a named background job. Enqueue failures during task
// auto-creation are logged and swallowed.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, args any) error
}

// AutoCreator creates evidence-collection tasks for classified controls.
type AutoCreator struct {
	store    System
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewAutoCreator creates an AutoCreator over the given task store and
// enqueuer. The enqueuer may be nil to skip downstream processing.
func NewAutoCreator(store System, enqueuer Enqueuer, logger *slog.Logger) *AutoCreator {
	return &AutoCreator{
		store:    store,
		enqueuer: enqueuer,
		logger:   logger.With("system", "task-autocreate"),
	}
}

// CreateForControls creates one open task per matched control, skipping
// controls that already have a task with the same organization and title.
// Only newly created tasks are returned and enqueued for processing.
func (a *AutoCreator) CreateForControls(
	ctx context.Context,
	ev *evidence.Evidence,
	matched []controls.Control,
) ([]Task, error) {
	created := []Task{}

	for _, control := range matched {
		title := fmt.Sprintf("Collect evidence for %s: %s", control.Reference, control.Title)

		exists, err := a.store.Exists(ctx, ev.OrganizationID, control.ID, title)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		task := Task{
			OrganizationID: ev.OrganizationID,
			FrameworkID:    control.FrameworkID,
			ControlID:      control.ID,
			EvidenceID:     &ev.ID,
			Title:          title,
			Description:    taskDescription(ev),
			Status:         StatusOpen,
		}
		if err := a.store.Create(ctx, &task); err != nil {
			return nil, err
		}

		a.enqueue(ctx, task)
		created = append(created, task)
	}

	return created, nil
}

func (a *AutoCreator) enqueue(ctx context.Context, task Task) {
	if a.enqueuer == nil {
		return
	}

	args := map[string]any{"task_id": task.ID.String()}
	if err := a.enqueuer.Enqueue(ctx, JobProcessTask, args); err != nil {
		a.logger.Warn("task enqueue failed", "task", task.ID, "error", err)
	}
}

func taskDescription(ev *evidence.Evidence) string {
	storageKey := ""
	if ev.StorageKey != nil {
		storageKey = *ev.StorageKey
	}

	return fmt.Sprintf(
		"Auto-created from evidence classification.\n\nEvidence: %s\nStorage: %s",
		ev.Title, storageKey,
	)
}
