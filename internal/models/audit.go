package models

import (
	"encoding/json"
	"time"
)

type AuditAction string

const (
	AuditCreate   AuditAction = "create"
	AuditActivate AuditAction = "activate"
	AuditView     AuditAction = "view"
)

// PromptAuditEntry is an append-only record of an action taken on a prompt
// template version.
type PromptAuditEntry struct {
	ID         int64           `json:"id" db:"id"`
	TemplateID int64           `json:"template_id" db:"template_id"`
	Action     AuditAction     `json:"action" db:"action"`
	UserID     int64           `json:"user_id" db:"user_id"`
	IPAddress  string          `json:"ip_address" db:"ip_address"`
	UserAgent  string          `json:"user_agent" db:"user_agent"`
	Details    json.RawMessage `json:"details,omitempty" db:"details"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`

	// Joined on read.
	WorkflowID int    `json:"workflow_id,omitempty" db:"workflow_id"`
	Version    int    `json:"version,omitempty" db:"version"`
	Username   string `json:"username,omitempty" db:"username"`
}
