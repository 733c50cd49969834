package models

import (
	"encoding/json"
	"time"
)

type ArticleStatus string

const (
	ArticleQueued     ArticleStatus = "queued"
	ArticleProcessing ArticleStatus = "processing"
	ArticleCompleted  ArticleStatus = "completed"
	ArticleError      ArticleStatus = "error"
)

func (s ArticleStatus) Terminal() bool {
	return s == ArticleCompleted || s == ArticleError
}

// ArticleRequest tracks one submission of an article form to the generation
// backend.
type ArticleRequest struct {
	ID                int64           `json:"id" db:"id"`
	UserID            int64           `json:"user_id" db:"user_id"`
	WorkflowType      int             `json:"workflow_type" db:"workflow_type"`
	Status            ArticleStatus   `json:"status" db:"status"`
	Input             json.RawMessage `json:"input" db:"input_params"`
	BackendWorkflowID *string         `json:"backend_workflow_id,omitempty" db:"backend_workflow_id"`
	Result            json.RawMessage `json:"result,omitempty" db:"result_data"`
	Error             *string         `json:"error,omitempty" db:"error_message"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// StepState is the state of a single pipeline step as reported by the
// backend ("pending", "in_progress", "completed", "error").
type StepState struct {
	Step   int    `json:"step"`
	Status string `json:"status"`
}

// ArticleProgress is what the polling UI consumes.
type ArticleProgress struct {
	RequestID       int64           `json:"request_id"`
	Status          ArticleStatus   `json:"status"`
	ProgressPercent int             `json:"progress_percent"`
	CurrentStep     int             `json:"current_step"`
	TotalSteps      int             `json:"total_steps"`
	Steps           []StepState     `json:"steps"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           string          `json:"error,omitempty"`
}
