package prompt

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nikhilbhutani/articlegen/internal/audit"
	"github.com/nikhilbhutani/articlegen/internal/models"
)

// memStore is an in-memory Store. Transactions work on a copy of the state
// that replaces the committed state only when fn returns nil; a mutex stands
// in for the database's serialization of writers.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	templates []models.PromptTemplate
	audits    []models.PromptAuditEntry
	nextID    int64
	nextAudit int64
	clock     time.Time

	// failOn makes the named Tx operation return the error.
	failOn map[string]error
	// activeOverride, when set, replaces CountActive's result.
	activeOverride *int
}

func newMemStore() *memStore {
	return &memStore{
		clock:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		failOn: map[string]error{},
	}
}

type memTx struct {
	s         *memStore
	templates []models.PromptTemplate
	audits    []models.PromptAuditEntry
	nextID    int64
	nextAudit int64
}

func (s *memStore) InTx(ctx context.Context, fn func(Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	tx := &memTx{
		s:         s,
		templates: append([]models.PromptTemplate(nil), s.templates...),
		audits:    append([]models.PromptAuditEntry(nil), s.audits...),
		nextID:    s.nextID,
		nextAudit: s.nextAudit,
	}
	s.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.templates = tx.templates
	s.audits = tx.audits
	s.nextID = tx.nextID
	s.nextAudit = tx.nextAudit
	s.mu.Unlock()
	return nil
}

func (s *memStore) Active(ctx context.Context, workflowID int) (*models.PromptTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.PromptTemplate
	for i := range s.templates {
		t := s.templates[i]
		if t.WorkflowID == workflowID && t.IsActive && (best == nil || t.Version > best.Version) {
			best = &t
		}
	}
	if best == nil {
		return nil, ErrNoActiveTemplate
	}
	return best, nil
}

func (s *memStore) List(ctx context.Context, workflowID int) ([]models.PromptVersionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.PromptVersionSummary{}
	for _, t := range s.templates {
		if t.WorkflowID != workflowID {
			continue
		}
		out = append(out, models.PromptVersionSummary{
			ID:            t.ID,
			Version:       t.Version,
			AuthorName:    t.AuthorName,
			Notes:         t.Notes,
			ContentLength: len(t.Content),
			IsActive:      t.IsActive,
			CreatedAt:     t.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (s *memStore) CountActive(ctx context.Context, workflowID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeOverride != nil {
		return *s.activeOverride, nil
	}
	n := 0
	for _, t := range s.templates {
		if t.WorkflowID == workflowID && t.IsActive {
			n++
		}
	}
	return n, nil
}

func (s *memStore) Audit(ctx context.Context, q audit.Query) ([]models.PromptAuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := map[int64]models.PromptTemplate{}
	for _, t := range s.templates {
		versions[t.ID] = t
	}
	out := []models.PromptAuditEntry{}
	for i := len(s.audits) - 1; i >= 0 && len(out) < q.Limit; i-- {
		e := s.audits[i]
		t := versions[e.TemplateID]
		if t.WorkflowID != q.WorkflowID {
			continue
		}
		if q.Action != "" && e.Action != q.Action {
			continue
		}
		e.WorkflowID = t.WorkflowID
		e.Version = t.Version
		out = append(out, e)
	}
	return out, nil
}

// committed returns copies of the committed templates for workflowID keyed
// by version.
func (s *memStore) committed(workflowID int) map[int]models.PromptTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[int]models.PromptTemplate{}
	for _, t := range s.templates {
		if t.WorkflowID == workflowID {
			out[t.Version] = t
		}
	}
	return out
}

func (s *memStore) auditEntries() []models.PromptAuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PromptAuditEntry(nil), s.audits...)
}

func (tx *memTx) fail(op string) error {
	return tx.s.failOn[op]
}

func (tx *memTx) LockWorkflow(ctx context.Context, workflowID int) error {
	return tx.fail("lock")
}

func (tx *memTx) DeactivateAll(ctx context.Context, workflowID int) error {
	if err := tx.fail("deactivate"); err != nil {
		return err
	}
	for i := range tx.templates {
		if tx.templates[i].WorkflowID == workflowID {
			tx.templates[i].IsActive = false
		}
	}
	return nil
}

func (tx *memTx) NextVersion(ctx context.Context, workflowID int) (int, error) {
	if err := tx.fail("next_version"); err != nil {
		return 0, err
	}
	max := 0
	for _, t := range tx.templates {
		if t.WorkflowID == workflowID && t.Version > max {
			max = t.Version
		}
	}
	return max + 1, nil
}

func (tx *memTx) Insert(ctx context.Context, t *models.PromptTemplate) error {
	if err := tx.fail("insert"); err != nil {
		return err
	}
	tx.nextID++
	t.ID = tx.nextID
	t.CreatedAt = tx.s.clock.Add(time.Duration(tx.nextID) * time.Minute)
	t.AuthorName = "admin"
	tx.templates = append(tx.templates, *t)
	return nil
}

func (tx *memTx) Get(ctx context.Context, id int64) (*models.PromptTemplate, error) {
	for _, t := range tx.templates {
		if t.ID == id {
			c := t
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (tx *memTx) Activate(ctx context.Context, id int64) error {
	if err := tx.fail("activate"); err != nil {
		return err
	}
	for i := range tx.templates {
		if tx.templates[i].ID == id {
			tx.templates[i].IsActive = true
			return nil
		}
	}
	return ErrNotFound
}

func (tx *memTx) AppendAudit(ctx context.Context, e *models.PromptAuditEntry) error {
	if err := tx.fail("audit"); err != nil {
		return err
	}
	tx.nextAudit++
	e.ID = tx.nextAudit
	e.CreatedAt = tx.s.clock.Add(time.Duration(tx.nextAudit) * time.Second)
	tx.audits = append(tx.audits, *e)
	return nil
}

// memCache is an ActiveCache backed by maps.
type memCache struct {
	mu          sync.Mutex
	entries     map[int]models.PromptTemplate
	generations map[int]int64
	gets        int
	hits        int
}

func newMemCache() *memCache {
	return &memCache{entries: map[int]models.PromptTemplate{}, generations: map[int]int64{}}
}

func (c *memCache) Get(ctx context.Context, workflowID int) (*models.PromptTemplate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	t, ok := c.entries[workflowID]
	if !ok {
		return nil, nil
	}
	c.hits++
	return &t, nil
}

func (c *memCache) Generation(ctx context.Context, workflowID int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[workflowID], nil
}

func (c *memCache) Set(ctx context.Context, t *models.PromptTemplate, generation int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[t.WorkflowID] == generation {
		c.entries[t.WorkflowID] = *t
	}
	return nil
}

func (c *memCache) Invalidate(ctx context.Context, workflowID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[workflowID]++
	delete(c.entries, workflowID)
	return nil
}
