package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderLog_NoEvents(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 30, 0, 123456000, time.UTC)
	out := RenderLog(LogReport{
		TestID:  "TestPaymentE2E/login_success",
		RunID:   "run-1",
		Outcome: OutcomePassed,
		Start:   start,
		End:     start.Add(2 * time.Second),
	})

	expected := logRule + "\n" +
		"Test: TestPaymentE2E/login_success\n" +
		"Run: run-1\n" +
		"Outcome: passed\n" +
		"Start Time: 2026-03-01T09:30:00.123456\n" +
		"End Time: 2026-03-01T09:30:02.123456\n" +
		logRule + "\n\n" +
		noEventsLine + "\n" +
		"\n" + logRule + "\n" +
		"Total events: 0\n"
	assert.Equal(t, expected, out)
}

func TestRenderLog_Entries(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 30, 1, 0, time.UTC)
	entries := []EventEntry{
		{Time: ts, Kind: EventConsole, Console: &ConsoleEvent{Level: "error", Text: "boom",
			Location: &SourceLocation{URL: "https://x/main.js", Line: 12, Column: 3}}},
		{Time: ts, Kind: EventConsole, Console: &ConsoleEvent{Level: "", Text: "plain"}},
		{Time: ts, Kind: EventPageError, Error: &PageErrorEvent{Message: "TypeError: x is undefined"}},
		{Time: ts, Kind: EventRequestFailed, Request: &RequestFailedEvent{URL: "https://x/api", Failure: "net::ERR_ABORTED"}},
	}
	out := RenderLog(LogReport{TestID: "t", Outcome: OutcomeFailed, Start: ts, End: ts, Entries: entries})

	assert.NotContains(t, out, "Run:")
	assert.NotContains(t, out, noEventsLine)
	assert.Contains(t, out, "[2026-03-01T09:30:01.000000] CONSOLE.ERROR: boom @ https://x/main.js:12:3\n")
	assert.Contains(t, out, "[2026-03-01T09:30:01.000000] CONSOLE.LOG: plain\n")
	assert.Contains(t, out, "[2026-03-01T09:30:01.000000] PAGE_ERROR: TypeError: x is undefined\n")
	assert.Contains(t, out, "[2026-03-01T09:30:01.000000] REQUEST_FAILED: https://x/api - net::ERR_ABORTED\n")
	assert.True(t, strings.HasSuffix(out, "Total events: 4\n"))

	// Entries render in capture order.
	assert.Less(t, strings.Index(out, "CONSOLE.ERROR"), strings.Index(out, "PAGE_ERROR"))
	assert.Less(t, strings.Index(out, "PAGE_ERROR"), strings.Index(out, "REQUEST_FAILED"))
}

func TestRenderLog_Deterministic(t *testing.T) {
	rep := LogReport{TestID: "t", Outcome: OutcomeSkipped, Entries: []EventEntry{
		{Kind: EventPageError, Error: &PageErrorEvent{Message: "x"}},
	}}
	assert.Equal(t, RenderLog(rep), RenderLog(rep))
}

func TestFormatEntry_Fallback(t *testing.T) {
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "[2026-03-01T00:00:00.000000] PAGEERROR", formatEntry(EventEntry{Time: ts, Kind: EventPageError}))
	assert.Equal(t, "[2026-03-01T00:00:00.000000] UNKNOWN", formatEntry(EventEntry{Time: ts}))
	assert.Equal(t, "[2026-03-01T00:00:00.000000] UNKNOWN: boom",
		formatEntry(EventEntry{Time: ts, Error: &PageErrorEvent{Message: "boom"}}))
	assert.Equal(t, "[2026-03-01T00:00:00.000000] DIALOG: Are you sure?",
		formatEntry(EventEntry{Time: ts, Kind: "dialog", Console: &ConsoleEvent{Text: "Are you sure?"}}))
	assert.Equal(t, "[2026-03-01T00:00:00.000000] PAGEERROR: https://x/api - net::ERR_FAILED",
		formatEntry(EventEntry{Time: ts, Kind: EventPageError, Request: &RequestFailedEvent{URL: "https://x/api", Failure: "net::ERR_FAILED"}}))
}

func TestFormatLocation(t *testing.T) {
	assert.Equal(t, "", formatLocation(nil))
	assert.Equal(t, "", formatLocation(&SourceLocation{Line: 3}))
	assert.Equal(t, " @ https://x/a.js", formatLocation(&SourceLocation{URL: "https://x/a.js"}))
	assert.Equal(t, " @ https://x/a.js:3", formatLocation(&SourceLocation{URL: "https://x/a.js", Line: 3}))
	assert.Equal(t, " @ https://x/a.js:3:9", formatLocation(&SourceLocation{URL: "https://x/a.js", Line: 3, Column: 9}))
}

func TestWriteLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "001_PASS_t.log")

	ok := WriteLog(discardLogger(), path, LogReport{TestID: "t", Outcome: OutcomePassed})
	require.True(t, ok)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Test: t\n")
}

func TestWriteLog_FailureIsSwallowed(t *testing.T) {
	dir := t.TempDir()
	// A regular file where the logs directory should be.
	blocker := filepath.Join(dir, "logs")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.WarnLevel})

	ok := WriteLog(logger, filepath.Join(blocker, "001_FAIL_t.log"), LogReport{TestID: "t"})
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "failed to save log")
}
