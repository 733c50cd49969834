package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/articlegen/internal/audit"
	"github.com/nikhilbhutani/articlegen/internal/config"
	"github.com/nikhilbhutani/articlegen/internal/models"
)

var admin = audit.Meta{UserID: 7, IPAddress: "10.0.0.5", UserAgent: "test"}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *memStore) {
	t.Helper()
	wf, err := config.LoadWorkflows("")
	require.NoError(t, err)
	store := newMemStore()
	return NewManager(store, wf, opts...), store
}

// validContent builds a workflow template that contains every required
// placeholder, with extra text to tell versions apart.
func validContent(t *testing.T, workflowID int, extra string) string {
	t.Helper()
	wf, err := config.LoadWorkflows("")
	require.NoError(t, err)
	required, ok := wf.Required(workflowID)
	require.True(t, ok)
	return "Write about " + strings.Join(required, " and ") + ".\n" + extra
}

func activeVersions(store *memStore, workflowID int) []int {
	var out []int
	for v, t := range store.committed(workflowID) {
		if t.IsActive {
			out = append(out, v)
		}
	}
	return out
}

func countAudit(store *memStore, action models.AuditAction) int {
	n := 0
	for _, e := range store.auditEntries() {
		if e.Action == action {
			n++
		}
	}
	return n
}

func TestManager_SaveSaveActivateScenario(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	first, err := m.Save(ctx, SaveRequest{WorkflowID: 1, Content: validContent(t, 1, "v1"), Notes: "initial"}, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, []int{1}, activeVersions(store, 1))
	assert.Equal(t, 1, countAudit(store, models.AuditCreate))
	assert.Equal(t, "initial", store.committed(1)[1].Notes)

	second, err := m.Save(ctx, SaveRequest{WorkflowID: 1, Content: validContent(t, 1, "v2")}, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, []int{2}, activeVersions(store, 1))
	assert.Equal(t, 2, countAudit(store, models.AuditCreate))

	restored, err := m.ActivateVersion(ctx, 1, first.TemplateID, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)
	assert.Equal(t, []int{1}, activeVersions(store, 1))

	entries := store.auditEntries()
	require.Len(t, entries, 3)
	last := entries[2]
	assert.Equal(t, models.AuditActivate, last.Action)
	assert.Equal(t, first.TemplateID, last.TemplateID)
	assert.Equal(t, int64(7), last.UserID)
	assert.JSONEq(t, `{"workflow":1,"version":1,"action":"rollback"}`, string(last.Details))
}

func TestManager_SaveDefaultsNotesAndAuditsDetails(t *testing.T) {
	m, store := newTestManager(t)
	content := validContent(t, 1, "é: unicode counts in bytes")

	res, err := m.Save(context.Background(), SaveRequest{WorkflowID: 1, Content: content, Notes: "   "}, admin)
	require.NoError(t, err)

	saved := store.committed(1)[1]
	assert.Equal(t, "Version 1", saved.Notes)
	assert.Equal(t, int64(7), saved.CreatedBy)
	assert.Equal(t, saved.CreatedAt, res.CreatedAt)

	entries := store.auditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "10.0.0.5", entries[0].IPAddress)

	var details map[string]any
	require.NoError(t, json.Unmarshal(entries[0].Details, &details))
	assert.EqualValues(t, 1, details["workflow"])
	assert.EqualValues(t, 1, details["version"])
	assert.EqualValues(t, len(content), details["content_length"])
	assert.NotContains(t, details, "source")
}

func TestManager_SaveRecordsImportSource(t *testing.T) {
	m, store := newTestManager(t)

	_, err := m.Save(context.Background(), SaveRequest{
		WorkflowID: 2,
		Content:    validContent(t, 2, ""),
		Source:     "import",
		SourceFile: "prompts/workflow2.txt",
	}, audit.Meta{UserID: 1})
	require.NoError(t, err)

	var details map[string]any
	require.NoError(t, json.Unmarshal(store.auditEntries()[0].Details, &details))
	assert.Equal(t, "import", details["source"])
	assert.Equal(t, "prompts/workflow2.txt", details["file"])
	assert.Equal(t, "unknown", store.auditEntries()[0].UserAgent)
}

func TestManager_SaveReportsEveryMissingPlaceholder(t *testing.T) {
	m, store := newTestManager(t)
	content := validContent(t, 1, "")
	for _, drop := range []string{"{KEYWORD}", "{CONTENT_GAPS}", "{CURRENT_DATE}"} {
		content = strings.ReplaceAll(content, drop, "")
	}

	_, err := m.Save(context.Background(), SaveRequest{WorkflowID: 1, Content: content}, admin)
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"{KEYWORD}", "{CONTENT_GAPS}", "{CURRENT_DATE}"}, ve.Missing)
	assert.Equal(t, "missing variables: {KEYWORD}, {CONTENT_GAPS}, {CURRENT_DATE}", ve.Error())
	assert.True(t, IsValidation(err))

	assert.Empty(t, store.committed(1))
	assert.Empty(t, store.auditEntries())
}

func TestManager_SaveRejectsEmptyContentAndUnknownWorkflow(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	_, err := m.Save(ctx, SaveRequest{WorkflowID: 1, Content: " \n\t"}, admin)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "content is empty", ve.Error())

	_, err = m.Save(ctx, SaveRequest{WorkflowID: 9, Content: "x"}, admin)
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Error(), "unknown workflow 9")

	assert.Empty(t, store.auditEntries())
}

func TestManager_RequiredSetIsPerWorkflow(t *testing.T) {
	m, _ := newTestManager(t)

	// Workflow 2's set does not include {DOMAIN}, workflow 1's does.
	wf2 := validContent(t, 2, "")
	require.NoError(t, m.Validate(2, wf2))

	err := m.Validate(1, wf2)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Missing, "{DOMAIN}")
}

func TestManager_ViewRoundTrip(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()
	content := validContent(t, 1, "  trailing spaces and {NOT_REQUIRED} token\r\n\x00end")

	res, err := m.Save(ctx, SaveRequest{WorkflowID: 1, Content: content}, admin)
	require.NoError(t, err)

	got, err := m.ViewVersion(ctx, 1, res.TemplateID, admin)
	require.NoError(t, err)
	assert.Equal(t, content, got.Content)
	assert.Equal(t, 1, got.Version)
	assert.True(t, got.IsActive)
	assert.Equal(t, "admin", got.AuthorName)

	assert.Equal(t, 1, countAudit(store, models.AuditView))
}

func TestManager_CrossWorkflowIsolation(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	wf1, err := m.Save(ctx, SaveRequest{WorkflowID: 1, Content: validContent(t, 1, "")}, admin)
	require.NoError(t, err)
	wf2, err := m.Save(ctx, SaveRequest{WorkflowID: 2, Content: validContent(t, 2, "")}, admin)
	require.NoError(t, err)
	before := len(store.auditEntries())

	_, err = m.ViewVersion(ctx, 1, wf2.TemplateID, admin)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.ActivateVersion(ctx, 1, wf2.TemplateID, admin)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.ActivateVersion(ctx, 1, 9999, admin)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Len(t, store.auditEntries(), before, "rejected calls must not write audit entries")
	assert.Equal(t, []int{1}, activeVersions(store, 1))
	assert.Equal(t, []int{1}, activeVersions(store, 2))
	assert.Equal(t, wf1.TemplateID, store.committed(1)[1].ID)
}

func TestManager_RollbackAcrossThreeVersions(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	var ids []int64
	for i := 1; i <= 3; i++ {
		res, err := m.Save(ctx, SaveRequest{WorkflowID: 1, Content: validContent(t, 1, fmt.Sprint(i))}, admin)
		require.NoError(t, err)
		ids = append(ids, res.TemplateID)
	}
	assert.Equal(t, []int{3}, activeVersions(store, 1))

	restored, err := m.ActivateVersion(ctx, 1, ids[0], admin)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	committed := store.committed(1)
	assert.True(t, committed[1].IsActive)
	assert.False(t, committed[2].IsActive)
	assert.False(t, committed[3].IsActive)

	// Rollback reactivates, it never renumbers: the next save is version 4.
	res, err := m.Save(ctx, SaveRequest{WorkflowID: 1, Content: validContent(t, 1, "4")}, admin)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Version)
}

func TestManager_LoadActive(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.LoadActive(ctx, 1)
	assert.ErrorIs(t, err, ErrNoActiveTemplate)
	assert.ErrorIs(t, err, ErrNotFound)

	content := validContent(t, 1, "active")
	_, err = m.Save(ctx, SaveRequest{WorkflowID: 1, Content: content, Notes: "n"}, admin)
	require.NoError(t, err)

	got, err := m.LoadActive(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, content, got.Content)
	assert.Equal(t, "n", got.Notes)

	_, err = m.LoadActive(ctx, 42)
	assert.True(t, IsValidation(err))
}

func TestManager_ListVersions(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	versions, err := m.ListVersions(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, versions)
	assert.NotNil(t, versions)

	for i := 0; i < 3; i++ {
		_, err := m.Save(ctx, SaveRequest{WorkflowID: 3, Content: validContent(t, 3, strings.Repeat("x", i))}, admin)
		require.NoError(t, err)
	}

	versions, err = m.ListVersions(ctx, 3)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, 3, versions[0].Version)
	assert.True(t, versions[0].IsActive)
	assert.False(t, versions[2].IsActive)
	assert.Equal(t, versions[2].ContentLength+2, versions[0].ContentLength)
}

func TestManager_TransactionFailureLeavesNoPartialState(t *testing.T) {
	for _, op := range []string{"lock", "deactivate", "next_version", "insert", "audit"} {
		t.Run(op, func(t *testing.T) {
			m, store := newTestManager(t)
			ctx := context.Background()

			first, err := m.Save(ctx, SaveRequest{WorkflowID: 1, Content: validContent(t, 1, "v1")}, admin)
			require.NoError(t, err)

			store.failOn[op] = errors.New("connection reset")
			_, err = m.Save(ctx, SaveRequest{WorkflowID: 1, Content: validContent(t, 1, "v2")}, admin)
			require.Error(t, err)

			var pe *PersistenceError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, pe.Error(), "connection reset")

			assert.Len(t, store.committed(1), 1)
			assert.Equal(t, []int{1}, activeVersions(store, 1))
			assert.Len(t, store.auditEntries(), 1)
			assert.Equal(t, first.TemplateID, store.committed(1)[1].ID)
		})
	}
}

func TestManager_ActivateFailureRollsBack(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	first, err := m.Save(ctx, SaveRequest{WorkflowID: 1, Content: validContent(t, 1, "v1")}, admin)
	require.NoError(t, err)
	_, err = m.Save(ctx, SaveRequest{WorkflowID: 1, Content: validContent(t, 1, "v2")}, admin)
	require.NoError(t, err)

	store.failOn["audit"] = errors.New("disk full")
	_, err = m.ActivateVersion(ctx, 1, first.TemplateID, admin)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)

	assert.Equal(t, []int{2}, activeVersions(store, 1))
	assert.Equal(t, 0, countAudit(store, models.AuditActivate))
}

func TestManager_DetectsInvariantViolationAfterCommit(t *testing.T) {
	m, store := newTestManager(t)
	two := 2
	store.activeOverride = &two

	_, err := m.Save(context.Background(), SaveRequest{WorkflowID: 1, Content: validContent(t, 1, "")}, admin)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvariantViolated)

	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Error(), "2 active versions")

	// The write itself was committed; the failure asks for manual repair.
	assert.Len(t, store.committed(1), 1)
}

func TestManager_ConcurrentSavesGetDistinctVersions(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	const n = 20
	contents := make([]string, n)
	for i := range contents {
		contents[i] = validContent(t, 1, fmt.Sprint(i))
	}

	var wg sync.WaitGroup
	versions := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := m.Save(ctx, SaveRequest{WorkflowID: 1, Content: contents[i]}, admin)
			if assert.NoError(t, err) {
				versions <- res.Version
			}
		}(i)
	}
	wg.Wait()
	close(versions)

	seen := map[int]bool{}
	for v := range versions {
		assert.False(t, seen[v], "version %d issued twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, n)
	for v := 1; v <= n; v++ {
		assert.True(t, seen[v], "version %d missing", v)
	}
	assert.Equal(t, []int{n}, activeVersions(store, 1))
}

func TestManager_CacheServesAndInvalidates(t *testing.T) {
	c := newMemCache()
	m, _ := newTestManager(t, WithCache(c))
	ctx := context.Background()

	_, err := m.Save(ctx, SaveRequest{WorkflowID: 1, Content: validContent(t, 1, "v1")}, admin)
	require.NoError(t, err)

	got, err := m.LoadActive(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, 0, c.hits)

	got, err = m.LoadActive(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, 1, c.hits)

	_, err = m.Save(ctx, SaveRequest{WorkflowID: 1, Content: validContent(t, 1, "v2")}, admin)
	require.NoError(t, err)

	got, err = m.LoadActive(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version, "save must invalidate the cached active template")
}

func TestManager_ListAudit(t *testing.T) {
	m, _ := newTestManager(t, WithAuditLimit(2))
	ctx := context.Background()

	res, err := m.Save(ctx, SaveRequest{WorkflowID: 1, Content: validContent(t, 1, "")}, admin)
	require.NoError(t, err)
	_, err = m.ViewVersion(ctx, 1, res.TemplateID, admin)
	require.NoError(t, err)
	_, err = m.ActivateVersion(ctx, 1, res.TemplateID, admin)
	require.NoError(t, err)

	entries, err := m.ListAudit(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2, "default limit applies")
	assert.Equal(t, models.AuditActivate, entries[0].Action)
	assert.Equal(t, models.AuditView, entries[1].Action)

	entries, err = m.ListAudit(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = m.ListAudit(ctx, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
