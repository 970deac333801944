// Package testutil holds fixtures shared by the package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// SourceData returns size bytes of deterministic content.
func SourceData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte((i*31 + i/251) % 256)
	}
	return data
}

// WriteSourceFile writes size bytes of SourceData into a file named name under a temp dir.
func WriteSourceFile(t *testing.T, name string, size int) (string, []byte) {
	t.Helper()

	data := SourceData(size)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path, data
}
