package main

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadUpdateCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update-check.json")
	now := time.Now()

	_, fresh := readUpdateCache(path, now)
	assert.False(t, fresh, "missing cache is never fresh")

	require.NoError(t, AtomicWriteJSON(path, updateCheckCache{LastCheck: now.Add(-time.Hour), LatestVersion: "1.4.0"}))
	latest, fresh := readUpdateCache(path, now)
	assert.True(t, fresh)
	assert.Equal(t, "1.4.0", latest)

	_, fresh = readUpdateCache(path, now.Add(updateCheckInterval))
	assert.False(t, fresh, "cache older than the interval is stale")
}

func TestCheckForUpdate_FreshCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update-check.json")
	old := version
	version = "1.0.0"
	defer func() { version = old }()

	require.NoError(t, AtomicWriteJSON(path, updateCheckCache{LastCheck: time.Now(), LatestVersion: "1.1.0"}))
	latest, ok := checkForUpdate(path)
	assert.True(t, ok)
	assert.Equal(t, "1.1.0", latest)

	require.NoError(t, AtomicWriteJSON(path, updateCheckCache{LastCheck: time.Now(), LatestVersion: "1.0.0"}))
	_, ok = checkForUpdate(path)
	assert.False(t, ok)
}

func TestUpdateCheckCachePath(t *testing.T) {
	path := updateCheckCachePath()
	assert.True(t,
		strings.HasSuffix(path, filepath.Join("parkpay", "update-check.json")) ||
			strings.HasSuffix(path, "parkpay-update-check.json"),
		"unexpected cache path %s", path)
}
