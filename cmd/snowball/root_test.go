package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "none"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "--workdir", dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, `"gen1_crawl"`)
	assert.Contains(t, out, `"batch_active": false`)
}

func TestCrawlCommand_RequiresAPIKey(t *testing.T) {
	t.Setenv("SCOPUS_API_KEY", "")
	_, err := run(t, "--workdir", t.TempDir(), "crawl")
	assert.ErrorContains(t, err, "API key")
}

func TestCrawlCommand_RejectsInvalidFlags(t *testing.T) {
	t.Setenv("SCOPUS_API_KEY", "key")
	_, err := run(t, "--workdir", t.TempDir(), "crawl", "--run-limit", "-3")
	assert.ErrorContains(t, err, "run_limit")
}

func TestDupesCollapse_NoGraph(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dupes.csv"), []byte("surname,given,sid 1,sid 2\nA,B,1,2\n"), 0o644))
	_, err := run(t, "--workdir", dir, "dupes", "collapse")
	assert.ErrorContains(t, err, "final graph not produced yet")
}
