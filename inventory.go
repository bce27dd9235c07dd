package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// finalNamePattern splits a numbered artifact filename into sequence, tag,
// sanitized test name and extension. The optional _trace marker belongs to
// the kind, not the name.
var finalNamePattern = regexp.MustCompile(`^(\d{3})_([A-Z]+)_(.+?)(_trace)?(\.[^.]+)$`)

// ArtifactFile is one file of a test's artifacts.
type ArtifactFile struct {
	Kind    ArtifactKind `json:"kind" yaml:"kind"`
	Path    string       `json:"path" yaml:"path"`
	Size    int64        `json:"size" yaml:"size"`
	ModTime time.Time    `json:"modTime" yaml:"modTime"`
}

// ArtifactGroup is everything stored under one sequence number.
type ArtifactGroup struct {
	Seq  int    `json:"seq" yaml:"seq"`
	Tag  string `json:"tag" yaml:"tag"`
	Name string `json:"name" yaml:"name"`
	// Header is parsed from the log, when there is one.
	Header *LogHeader     `json:"header,omitempty" yaml:"header,omitempty"`
	Files  []ArtifactFile `json:"files" yaml:"files"`
}

// LogHeader is the metadata block at the top of a per-test log.
type LogHeader struct {
	TestID  string    `json:"testId" yaml:"testId"`
	RunID   string    `json:"runId,omitempty" yaml:"runId,omitempty"`
	Outcome Outcome   `json:"outcome" yaml:"outcome"`
	Start   time.Time `json:"start" yaml:"start"`
	End     time.Time `json:"end" yaml:"end"`
	Events  int       `json:"events" yaml:"events"`
}

// Duration returns End - Start, or 0 if either is missing.
func (h *LogHeader) Duration() time.Duration {
	if h == nil || h.Start.IsZero() || h.End.IsZero() {
		return 0
	}
	return h.End.Sub(h.Start)
}

// ListArtifacts groups the numbered artifacts below dirs by sequence,
// newest first.
func ListArtifacts(dirs ArtifactDirs) ([]ArtifactGroup, error) {
	kindDirs := []struct {
		kind ArtifactKind
		dir  string
	}{
		{ArtifactTrace, dirs.Traces},
		{ArtifactScreenshot, dirs.Screenshots},
		{ArtifactVideo, dirs.Videos},
		{ArtifactLog, dirs.Logs},
	}

	groups := make(map[int]*ArtifactGroup)
	for _, kd := range kindDirs {
		entries, err := os.ReadDir(kd.dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			m := finalNamePattern.FindStringSubmatch(entry.Name())
			if m == nil {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			seq, _ := strconv.Atoi(m[1])
			g := groups[seq]
			if g == nil {
				g = &ArtifactGroup{Seq: seq, Tag: m[2], Name: m[3]}
				groups[seq] = g
			}
			// A FAIL or PASS tag outranks a PENDING trace left by a crash.
			if g.Tag == "PENDING" {
				g.Tag = m[2]
			}
			path := filepath.Join(kd.dir, entry.Name())
			g.Files = append(g.Files, ArtifactFile{
				Kind:    kd.kind,
				Path:    path,
				Size:    info.Size(),
				ModTime: info.ModTime(),
			})
			if kd.kind == ArtifactLog {
				if h, err := ReadLogHeader(path); err == nil {
					g.Header = h
				}
			}
		}
	}

	out := make([]ArtifactGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Seq > out[j].Seq
	})
	return out, nil
}

// ReadLogHeader parses the header and footer of a per-test log.
func ReadLogHeader(path string) (*LogHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := &LogHeader{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	sawHeader := false
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, ": ")
		if !ok || strings.HasPrefix(line, "[") {
			continue
		}
		switch key {
		case "Test":
			h.TestID = value
			sawHeader = true
		case "Run":
			h.RunID = value
		case "Outcome":
			h.Outcome = Outcome(value)
		case "Start Time":
			h.Start, _ = time.ParseInLocation(logTimeFormat, value, time.Local)
		case "End Time":
			h.End, _ = time.ParseInLocation(logTimeFormat, value, time.Local)
		case "Total events":
			h.Events, _ = strconv.Atoi(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !sawHeader {
		return nil, fmt.Errorf("%s: not a test log", path)
	}
	return h, nil
}

// RotateArtifacts deletes every numbered artifact except those of the keep
// newest sequences, plus stale scratch files (temp screenshots, raw
// videos). It returns the removed paths.
func RotateArtifacts(dirs ArtifactDirs, keep int) ([]string, error) {
	groups, err := ListArtifacts(dirs)
	if err != nil {
		return nil, err
	}
	if keep < 0 {
		keep = 0
	}

	var removed []string
	for i, g := range groups {
		if i < keep {
			continue
		}
		for _, f := range g.Files {
			if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
				return removed, fmt.Errorf("failed to remove %s: %w", f.Path, err)
			}
			removed = append(removed, f.Path)
		}
	}

	scratch, err := scratchFiles(dirs)
	if err != nil {
		return removed, err
	}
	for _, path := range scratch {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}

// scratchFiles lists files no finished test should have left behind.
func scratchFiles(dirs ArtifactDirs) ([]string, error) {
	var out []string
	if entries, err := os.ReadDir(dirs.Screenshots); err == nil {
		for _, e := range entries {
			if e.Type().IsRegular() && strings.HasPrefix(e.Name(), "temp_") {
				out = append(out, filepath.Join(dirs.Screenshots, e.Name()))
			}
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	if entries, err := os.ReadDir(dirs.VideosRaw); err == nil {
		for _, e := range entries {
			if e.Type().IsRegular() {
				out = append(out, filepath.Join(dirs.VideosRaw, e.Name()))
			}
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

// FormatDuration renders d compactly: 850ms, 4.2s, 3m, 2m15s.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", float64(d.Milliseconds()))
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	if seconds == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}

// FormatSize renders a byte count with a binary unit.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMGT"[exp])
}
