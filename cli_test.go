package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupCLI points the command line at env's mock API.
func setupCLI(t *testing.T, env *testEnv) {
	t.Helper()
	oldToken, oldURL := papertrailAPIToken, papertrailBaseURL
	papertrailAPIToken = testToken
	papertrailBaseURL = env.server.URL + "/api/v1"
	t.Cleanup(func() {
		papertrailAPIToken, papertrailBaseURL = oldToken, oldURL
	})
}

func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "check", "snapshot", "archives", "download"}, names)
}

func TestRootCommand_MissingToken(t *testing.T) {
	resetGlobals(t)
	old := papertrailAPIToken
	papertrailAPIToken = ""
	t.Cleanup(func() { papertrailAPIToken = old })

	_, _, err := runCommand(t, "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAPERTRAIL_API_TOKEN")
}

func TestCheckCommand(t *testing.T) {
	resetGlobals(t)
	env := newTestEnv(t)
	env.loadAll()
	setupCLI(t, env)

	out, _, err := runCommand(t, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "archives: 2")
	assert.Contains(t, out, "systems: 2")
	assert.Contains(t, out, "usage: 1.0 GiB of 5.0 GiB (21.5%)")
}

func TestSnapshotCommand(t *testing.T) {
	resetGlobals(t)
	env := newTestEnv(t)
	env.loadAll()
	setupCLI(t, env)

	out, _, err := runCommand(t, "snapshot")
	require.NoError(t, err)

	var snapshot map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &snapshot))
	for _, key := range []string{"archives", "destinations", "groups", "systems", "usage"} {
		assert.Contains(t, snapshot, key)
	}

	path := filepath.Join(t.TempDir(), "snapshot.json")
	_, _, err = runCommand(t, "snapshot", "--output", path)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestArchivesCommand(t *testing.T) {
	resetGlobals(t)
	env := newTestEnv(t)
	env.loadAll()
	setupCLI(t, env)

	out, _, err := runCommand(t, "archives")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2024-01-01.tsv.gz  2024-01-01T00:00:00Z  2.0 KiB", lines[0])

	out, _, err = runCommand(t, "archives", "--format", `{{ .FileName | upper }} {{ .FormattedDuration }}`)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01.TSV.GZ 1 day\n2024-01-02-00.TSV.GZ 1 hour\n", out)
}

func TestArchivesCommand_BadFormat(t *testing.T) {
	resetGlobals(t)
	env := newTestEnv(t)
	setupCLI(t, env)

	_, _, err := runCommand(t, "archives", "--format", "{{ .FileName")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format template")
	assert.Zero(t, env.requests("GET /api/v1/archives.json"))
}

func TestDownloadCommand(t *testing.T) {
	resetGlobals(t)
	env := newTestEnv(t)
	env.loadAll()
	env.serveArchive("/api/v1/archives/2024-01-02-00/download", gzipBytes(t, "hourly events"))
	setupCLI(t, env)

	dir := t.TempDir()
	out, stderr, err := runCommand(t, "download", "2024-01-02-00.tsv.gz", "--dir", dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "2024-01-02-00.tsv.gz")
	assert.FileExists(t, path)
	assert.Contains(t, out, path)
	assert.Contains(t, stderr, "/ 512 B")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, gzipBytes(t, "hourly events"), data)

	_, _, err = runCommand(t, "download", "2024-01-02-00.tsv.gz", "--dir", dir)
	assert.Error(t, err)

	_, _, err = runCommand(t, "download", "2024-01-02-00.tsv.gz", "--dir", dir, "--overwrite")
	assert.NoError(t, err)

	_, _, err = runCommand(t, "download", "unknown.tsv.gz", "--dir", dir)
	assert.Error(t, err)
}
