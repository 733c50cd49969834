package prompt

import (
	"context"

	"github.com/nikhilbhutani/articlegen/internal/audit"
	"github.com/nikhilbhutani/articlegen/internal/models"
)

// Store is the persistence boundary for templates and their audit trail.
// Implementations must give InTx atomic commit/rollback semantics.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	Active(ctx context.Context, workflowID int) (*models.PromptTemplate, error)
	List(ctx context.Context, workflowID int) ([]models.PromptVersionSummary, error)
	CountActive(ctx context.Context, workflowID int) (int, error)
	Audit(ctx context.Context, q audit.Query) ([]models.PromptAuditEntry, error)
}

// Tx is the set of writes the manager performs inside one transaction.
type Tx interface {
	// LockWorkflow serializes concurrent writers on the same workflow until
	// the transaction ends.
	LockWorkflow(ctx context.Context, workflowID int) error
	DeactivateAll(ctx context.Context, workflowID int) error
	NextVersion(ctx context.Context, workflowID int) (int, error)
	// Insert stores t and fills in ID and CreatedAt.
	Insert(ctx context.Context, t *models.PromptTemplate) error
	// Get returns ErrNotFound when no row has the id.
	Get(ctx context.Context, id int64) (*models.PromptTemplate, error)
	Activate(ctx context.Context, id int64) error
	AppendAudit(ctx context.Context, e *models.PromptAuditEntry) error
}
