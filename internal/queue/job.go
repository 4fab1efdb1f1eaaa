// Package queue provides a Postgres-backed job queue with polling workers.
// Claims use FOR UPDATE SKIP LOCKED so concurrent workers never process the
// same job.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job statuses.
const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// Job is a queued unit of background work.
type Job struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Args       json.RawMessage `json:"args"`
	Status     string          `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *string         `json:"error,omitempty"`
	StartedAt  *time.Time      `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// HandlerFunc executes a claimed job. The returned value is stored as the
// job result; a returned error marks the job failed.
type HandlerFunc func(ctx context.Context, job *Job) (any, error)
