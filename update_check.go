package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	selfupdate "github.com/creativeprojects/go-selfupdate"
)

const (
	updateCheckInterval = 24 * time.Hour
	releaseSlug         = "scripness/parkpay"
)

type updateCheckCache struct {
	LastCheck     time.Time `json:"lastCheck"`
	LatestVersion string    `json:"latestVersion"`
}

// updateNotice holds the result of a background update check.
var updateNotice chan string

// startUpdateCheck checks for a newer release in the background. Call
// printUpdateNotice before exiting to show the result.
func startUpdateCheck() {
	if version == "dev" {
		return
	}

	updateNotice = make(chan string, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				// never crash the main process
			}
		}()

		latest, ok := checkForUpdate(updateCheckCachePath())
		if ok {
			updateNotice <- latest
		}
		close(updateNotice)
	}()
}

// printUpdateNotice prints to w if a newer version was found. It does not
// wait for a check still in flight.
func printUpdateNotice(w io.Writer) {
	if updateNotice == nil {
		return
	}
	select {
	case v, ok := <-updateNotice:
		if ok && v != "" {
			io.WriteString(w, "\nA new version of parkpay is available: v"+v+" (current: v"+version+")\nRun 'parkpay upgrade' to update.\n")
		}
	default:
	}
}

func checkForUpdate(cachePath string) (string, bool) {
	if latest, fresh := readUpdateCache(cachePath, time.Now()); fresh {
		if latest != "" && latest != version {
			return latest, true
		}
		return "", false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(releaseSlug))
	if err != nil || !found {
		return "", false
	}

	latestVersion := latest.Version()
	_ = AtomicWriteJSON(cachePath, updateCheckCache{
		LastCheck:     time.Now(),
		LatestVersion: latestVersion,
	})

	if latest.LessOrEqual(version) {
		return "", false
	}
	return latestVersion, true
}

// readUpdateCache returns the cached latest version and whether the cache
// is younger than updateCheckInterval.
func readUpdateCache(path string, now time.Time) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var cache updateCheckCache
	if json.Unmarshal(data, &cache) != nil {
		return "", false
	}
	if now.Sub(cache.LastCheck) >= updateCheckInterval {
		return "", false
	}
	return cache.LatestVersion, true
}

func updateCheckCachePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "parkpay", "update-check.json")
	}
	return filepath.Join(os.TempDir(), "parkpay-update-check.json")
}
