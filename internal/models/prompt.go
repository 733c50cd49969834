package models

import (
	"time"
)

// PromptTemplate is one immutable snapshot of a workflow's prompt. Only
// IsActive changes after insert.
type PromptTemplate struct {
	ID         int64     `json:"id" db:"id"`
	WorkflowID int       `json:"workflow_id" db:"workflow_id"`
	Version    int       `json:"version" db:"version"`
	Content    string    `json:"content,omitempty" db:"content"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedBy  int64     `json:"created_by" db:"created_by"`
	AuthorName string    `json:"author,omitempty" db:"author_name"`
	Notes      string    `json:"notes" db:"notes"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// PromptVersionSummary is a history row as shown in the version list.
type PromptVersionSummary struct {
	ID            int64     `json:"id"`
	Version       int       `json:"version"`
	AuthorName    string    `json:"author"`
	Notes         string    `json:"notes"`
	ContentLength int       `json:"content_length"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}
