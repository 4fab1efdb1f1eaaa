package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/auditstack/attest/internal/queue"
)

// ProcessJobHandler returns the queue handler for downstream task
// processing. It currently verifies the task and reports its status; real
// notification or assignment logic plugs in here.
func ProcessJobHandler(sys System, logger *slog.Logger) queue.HandlerFunc {
	log := logger.With("system", "task-processor")

	return func(ctx context.Context, job *queue.Job) (any, error) {
		var args struct {
			TaskID string `json:"task_id"`
		}
		if err := json.Unmarshal(job.Args, &args); err != nil {
			return nil, fmt.Errorf("decode task job args: %w", err)
		}

		id, err := uuid.Parse(args.TaskID)
		if err != nil {
			return nil, fmt.Errorf("invalid task_id %q", args.TaskID)
		}

		task, err := sys.Find(ctx, id)
		if err != nil {
			return nil, err
		}

		log.Info("task processed", "task", task.ID, "title", task.Title)
		return map[string]any{"task_id": task.ID.String(), "status": task.Status}, nil
	}
}
