package useragent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRoster(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadRosterParsesWhitespaceAndCommaSeparated(t *testing.T) {
	path := writeRoster(t, "1 2 3 0\n2,4,5,3\n\n3\t6\t7\t1\n")
	requests, err := LoadRoster(path)
	require.NoError(t, err)
	require.Len(t, requests, 3)
	assert.Equal(t, Request{UserID: 1, X: 2, Y: 3, WaitTime: 0}, requests[0])
	assert.Equal(t, Request{UserID: 2, X: 4, Y: 5, WaitTime: 3}, requests[1])
	assert.Equal(t, Request{UserID: 3, X: 6, Y: 7, WaitTime: 1}, requests[2])
}

func TestLoadRosterRejectsWrongFieldCount(t *testing.T) {
	path := writeRoster(t, "1 2 3\n")
	_, err := LoadRoster(path)
	assert.Error(t, err)
}

func TestLoadRosterRejectsNonInteger(t *testing.T) {
	path := writeRoster(t, "1 2 x 0\n")
	_, err := LoadRoster(path)
	assert.Error(t, err)
}

func TestLoadRosterMissingFile(t *testing.T) {
	_, err := LoadRoster(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
