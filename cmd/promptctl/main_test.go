package main

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTemplate(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "template.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCheckCommand(t *testing.T) {
	t.Setenv("WORKFLOWS_FILE", "")

	path := writeTemplate(t, "Cluster on {KEYWORD}, written {CURRENT_DATE}.")
	out, _, err := run(t, "check", "--workflow", "3", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "all required placeholders present for workflow 3")

	path = writeTemplate(t, "Cluster on {KEYWORD}.")
	_, _, err = run(t, "check", "--workflow", "3", "--file", path)
	require.Error(t, err)
	assert.Equal(t, "missing variables: {CURRENT_DATE}", err.Error())

	_, _, err = run(t, "check", "--workflow", "9", "--file", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown workflow 9")
}

func TestCheckRequiresFlags(t *testing.T) {
	_, _, err := run(t, "check", "--workflow", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"file" not set`)
}

func TestRenderCommand(t *testing.T) {
	path := writeTemplate(t, "Write about {KEYWORD} for {DOMAIN} on {CURRENT_DATE}.")

	out, errOut, err := run(t, "render", "--file", path,
		"--var", "KEYWORD=running shoes", "--var", "DOMAIN=sport")
	require.NoError(t, err)
	assert.Equal(t, "Write about running shoes for sport on {CURRENT_DATE}.", out)
	assert.Equal(t, "unresolved: {CURRENT_DATE}", strings.TrimSpace(errOut))
}

// closedAddr returns a local address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestWritesRequireReachableRedis(t *testing.T) {
	t.Setenv("WORKFLOWS_FILE", "")
	t.Setenv("REDIS_ADDR", closedAddr(t))
	t.Setenv("DATABASE_URL", "postgres://articlegen@"+closedAddr(t)+"/articlegen?connect_timeout=2")
	path := writeTemplate(t, "Cluster on {KEYWORD}, written {CURRENT_DATE}.")

	_, _, err := run(t, "import", "--workflow", "3", "--file", path, "--user", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--skip-cache-invalidation")

	_, _, err = run(t, "activate", "--workflow", "3", "--id", "4", "--user", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--skip-cache-invalidation")

	// With the flag the command gets past Redis and fails on the database.
	_, _, err = run(t, "import", "--workflow", "3", "--file", path, "--user", "1", "--skip-cache-invalidation")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "redis")
	assert.Contains(t, err.Error(), "ping database")
}
