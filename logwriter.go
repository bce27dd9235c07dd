package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	logRule       = "============================================================"
	logTimeFormat = "2006-01-02T15:04:05.000000"
	noEventsLine  = "(No console/error events captured)"
)

// LogReport is everything rendered into a per-test log file.
type LogReport struct {
	TestID  string
	RunID   string
	Outcome Outcome
	Start   time.Time
	End     time.Time
	Entries []EventEntry
}

// RenderLog formats a report as plain text. Output depends only on the report.
func RenderLog(rep LogReport) string {
	var sb strings.Builder

	sb.WriteString(logRule + "\n")
	fmt.Fprintf(&sb, "Test: %s\n", rep.TestID)
	if rep.RunID != "" {
		fmt.Fprintf(&sb, "Run: %s\n", rep.RunID)
	}
	fmt.Fprintf(&sb, "Outcome: %s\n", rep.Outcome)
	fmt.Fprintf(&sb, "Start Time: %s\n", rep.Start.Format(logTimeFormat))
	fmt.Fprintf(&sb, "End Time: %s\n", rep.End.Format(logTimeFormat))
	sb.WriteString(logRule + "\n\n")

	if len(rep.Entries) == 0 {
		sb.WriteString(noEventsLine + "\n")
	}
	for _, e := range rep.Entries {
		sb.WriteString(formatEntry(e))
		sb.WriteByte('\n')
	}

	sb.WriteString("\n" + logRule + "\n")
	fmt.Fprintf(&sb, "Total events: %d\n", len(rep.Entries))
	return sb.String()
}

func formatEntry(e EventEntry) string {
	ts := e.Time.Format(logTimeFormat)
	switch {
	case e.Kind == EventConsole && e.Console != nil:
		level := e.Console.Level
		if level == "" {
			level = "log"
		}
		return fmt.Sprintf("[%s] CONSOLE.%s: %s%s", ts, strings.ToUpper(level), e.Console.Text, formatLocation(e.Console.Location))
	case e.Kind == EventPageError && e.Error != nil:
		return fmt.Sprintf("[%s] PAGE_ERROR: %s", ts, e.Error.Message)
	case e.Kind == EventRequestFailed && e.Request != nil:
		return fmt.Sprintf("[%s] REQUEST_FAILED: %s - %s", ts, e.Request.URL, e.Request.Failure)
	default:
		kind := string(e.Kind)
		if kind == "" {
			kind = "unknown"
		}
		if payload := entryPayload(e); payload != "" {
			return fmt.Sprintf("[%s] %s: %s", ts, strings.ToUpper(kind), payload)
		}
		return fmt.Sprintf("[%s] %s", ts, strings.ToUpper(kind))
	}
}

// entryPayload renders whichever payload an entry carries when its kind
// does not match it.
func entryPayload(e EventEntry) string {
	switch {
	case e.Console != nil:
		return e.Console.Text + formatLocation(e.Console.Location)
	case e.Error != nil:
		return e.Error.Message
	case e.Request != nil:
		return e.Request.URL + " - " + e.Request.Failure
	}
	return ""
}

// formatLocation renders " @ url:line:col", dropping trailing parts that
// are unknown.
func formatLocation(loc *SourceLocation) string {
	if loc == nil || loc.URL == "" {
		return ""
	}
	s := " @ " + loc.URL
	if loc.Line > 0 {
		s += fmt.Sprintf(":%d", loc.Line)
		if loc.Column > 0 {
			s += fmt.Sprintf(":%d", loc.Column)
		}
	}
	return s
}

// WriteLog persists the report at path. Failures are logged and swallowed:
// the log is auxiliary output and never decides a test result.
func WriteLog(logger *log.Logger, path string, rep LogReport) bool {
	if err := AtomicWriteFile(path, []byte(RenderLog(rep))); err != nil {
		logger.Warn("failed to save log", "path", path, "err", err)
		return false
	}
	return true
}
