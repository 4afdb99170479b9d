package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.Equal(t, "简历...", truncate("简历内容", 2))
	assert.Equal(t, "abcdef", truncate("abcdef", -1))
}

func TestReadUploads(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cv.pdf")
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4"), 0o644))

	uploads, err := readUploads([]string{p})
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, []byte("%PDF-1.4"), uploads[0].data)

	_, err = readUploads([]string{filepath.Join(dir, "missing.pdf")})
	assert.Error(t, err)
}
