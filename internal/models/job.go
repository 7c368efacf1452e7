package models

import "time"

// JobState is the state of a backend job.
type JobState string

const (
	JobWaiting   JobState = "waiting"
	JobActive    JobState = "active"
	JobDelayed   JobState = "delayed"
	JobPaused    JobState = "paused"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// IsFinished reports whether the job can no longer be stopped.
func (s JobState) IsFinished() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is a backend job (strategy run, auto-login, square-off batch).
type Job struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	State        JobState               `json:"state"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Progress     Num                    `json:"progress"`
	FailedReason string                 `json:"failedReason,omitempty"`
	CreatedAt    *time.Time             `json:"createdAt,omitempty"`
	ProcessedAt  *time.Time             `json:"processedAt,omitempty"`
	FinishedAt   *time.Time             `json:"finishedAt,omitempty"`
}

// JobFilter selects a page of jobs.
type JobFilter struct {
	Date    time.Time
	PerPage int
	Page    int
	State   JobState
}

// JobPage is one page of jobs.
type JobPage struct {
	Jobs    []Job `json:"jobs"`
	Total   int   `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"perPage"`
}
