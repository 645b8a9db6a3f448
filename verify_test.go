package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyArchiveFile(t *testing.T) {
	dir := t.TempDir()

	gz := filepath.Join(dir, "ok.tsv.gz")
	require.NoError(t, os.WriteFile(gz, gzipBytes(t, "2024-01-01T00:00:00Z\tweb-1\tapp\tstarted\n"), 0644))
	result, err := verifyArchiveFile(gz)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, "application/gzip", result.ContentType)

	plain := filepath.Join(dir, "plain.tsv.gz")
	require.NoError(t, os.WriteFile(plain, []byte("not gzip at all\n"), 0644))
	result, err = verifyArchiveFile(plain)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Contains(t, result.ContentType, "text/plain")

	_, err = verifyArchiveFile(filepath.Join(dir, "missing.tsv.gz"))
	assert.Error(t, err)
}
