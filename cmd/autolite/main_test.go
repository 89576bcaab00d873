package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCLI struct {
	t  *testing.T
	db string
}

func newTestCLI(t *testing.T) *testCLI {
	pterm.DisableStyling()
	dir := t.TempDir()
	t.Setenv("AUTOLITE_CONFIG_DIR", dir)
	return &testCLI{t: t, db: filepath.Join(dir, "test.db")}
}

// run runs autolite with args on the test db. It returns the exit code and outputs.
func (c *testCLI) run(args ...string) (int, string, string) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	code := run(append([]string{"--db", c.db}, args...), stdout, stderr)
	return code, stdout.String(), stderr.String()
}

func (c *testCLI) mustRun(args ...string) string {
	code, out, errout := c.run(args...)
	require.Equal(c.t, 0, code, "%v: %s", args, errout)
	return out
}

func TestCLITask(t *testing.T) {
	c := newTestCLI(t)
	c.mustRun("task", "create", "a", "--daily", "--command", "echo hi")
	c.mustRun("task", "create", "a.b", "--inherit", "a")

	out := c.mustRun("task", "read", "a.b", "--json")
	got := map[string]string{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "a", got["parent"])
	assert.Equal(t, "<inherit>", got["schedule"])
	assert.Equal(t, "<inherit>", got["command"])
	assert.Equal(t, "pending", got["state"])

	out = c.mustRun("task", "list", "--json")
	list := map[string]map[string]string{}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Len(t, list, 2)
	assert.Equal(t, "echo hi", list["a"]["command"])

	code, _, errout := c.run("task", "create", "a")
	assert.Equal(t, 1, code)
	assert.NotEmpty(t, errout)

	code, _, _ = c.run("task", "read", "nope")
	assert.Equal(t, 1, code)
}

func TestCLITaskRun(t *testing.T) {
	c := newTestCLI(t)
	c.mustRun("task", "create", "ok", "--never", "--command", "true")
	c.mustRun("task", "create", "bad", "--never", "--command", "exit 1")
	c.mustRun("task", "create", "wait", "--never", "--command", "true", "--condition", "false")

	out := c.mustRun("task", "run", "ok")
	assert.Contains(t, out, "ok: pending")

	code, out, _ := c.run("task", "run", "bad")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "bad: failed")

	out = c.mustRun("task", "run", "wait")
	assert.Contains(t, out, "condition is not met")

	// a failed task runs again only after reset.
	c.mustRun("task", "reset", "bad")
	out = c.mustRun("task", "read", "bad")
	assert.Contains(t, out, "state: pending")
}

func TestCLISystem(t *testing.T) {
	c := newTestCLI(t)
	c.mustRun("config", "set", "caller", "alice")
	c.mustRun("system", "create", "lab1", "10.0.0.1", "--monitor", "exit 3")

	c.mustRun("system", "acquire", "lab1")
	// acquiring twice is only a warning.
	code, _, errout := c.run("system", "acquire", "lab1")
	assert.Equal(t, 0, code)
	assert.NotEmpty(t, errout)

	c.mustRun("config", "set", "caller", "bob")
	code, _, _ = c.run("system", "acquire", "lab1")
	assert.Equal(t, 1, code)
	code, _, _ = c.run("system", "release", "lab1")
	assert.Equal(t, 1, code)
	c.mustRun("system", "release", "lab1", "--force")

	code, _, _ = c.run("system", "monitor", "lab1")
	assert.Equal(t, 1, code)
}

func TestCLIConfig(t *testing.T) {
	c := newTestCLI(t)
	c.mustRun("config", "set", "interval", "5")
	out := c.mustRun("config", "get", "interval")
	assert.Equal(t, "5", strings.TrimSpace(out))

	out = c.mustRun("config", "get")
	assert.Contains(t, out, "interval = 5")
	assert.Contains(t, out, "smtp.server = smtp.gmail.com")

	code, _, _ := c.run("config", "set", "interval", "soon")
	assert.Equal(t, 1, code)
	code, _, _ = c.run("config", "get", "nope")
	assert.Equal(t, 1, code)
}

func TestCLIDBInit(t *testing.T) {
	c := newTestCLI(t)
	c.mustRun("task", "create", "a", "--never")
	c.mustRun("db", "init", "--drop", "--yes")
	code, _, _ := c.run("task", "read", "a")
	assert.Equal(t, 1, code)
}
