package main

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// sequencePattern matches artifact names like 001_PASS_xxx or 042_PENDING_xxx.
var sequencePattern = regexp.MustCompile(`^(\d{3})_`)

// ArtifactDirs is the on-disk layout below the artifacts root.
type ArtifactDirs struct {
	Root        string
	Screenshots string
	Traces      string
	Logs        string
	Videos      string
	VideosRaw   string
}

// NewArtifactDirs returns the layout rooted at root.
func NewArtifactDirs(root string) ArtifactDirs {
	videos := filepath.Join(root, "videos")
	return ArtifactDirs{
		Root:        root,
		Screenshots: filepath.Join(root, "screenshots"),
		Traces:      filepath.Join(root, "traces"),
		Logs:        filepath.Join(root, "logs"),
		Videos:      videos,
		VideosRaw:   filepath.Join(videos, "raw"),
	}
}

// Ensure creates every artifact directory.
func (d ArtifactDirs) Ensure() error {
	for _, dir := range []string{d.Root, d.Screenshots, d.Traces, d.Logs, d.Videos, d.VideosRaw} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// Numbered returns the directories whose files carry a sequence prefix.
// The raw video scratch area is excluded.
func (d ArtifactDirs) Numbered() []string {
	return []string{d.Traces, d.Logs, d.Screenshots, d.Videos}
}

// RecoverMaxSequence returns the highest sequence prefix found among the
// regular files directly inside dirs, or 0 if there is none. Missing
// directories are skipped.
func RecoverMaxSequence(dirs ...string) int {
	maxSeq := 0
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			if seq := extractSequence(entry.Name()); seq > maxSeq {
				maxSeq = seq
			}
		}
	}
	return maxSeq
}

// extractSequence returns the sequence prefix of an artifact filename, or 0.
func extractSequence(filename string) int {
	m := sequencePattern.FindStringSubmatch(filename)
	if m == nil {
		return 0
	}
	num, _ := strconv.Atoi(m[1])
	return num
}

// RunContext owns the per-run sequence counter. The directory scan runs
// once, before the first number is handed out, no matter how many
// goroutines call Next concurrently.
type RunContext struct {
	ID   string
	Dirs ArtifactDirs

	once sync.Once
	seed int
	seq  atomic.Int64
}

// NewRunContext creates a run rooted at artifactsRoot.
func NewRunContext(artifactsRoot string) *RunContext {
	return &RunContext{
		ID:   uuid.NewString(),
		Dirs: NewArtifactDirs(artifactsRoot),
	}
}

// Init performs the seed scan. Calling it more than once is harmless.
// It returns the recovered maximum so callers can report where numbering
// resumes.
func (rc *RunContext) Init() int {
	rc.once.Do(func() {
		rc.seed = RecoverMaxSequence(rc.Dirs.Numbered()...)
		rc.seq.Store(int64(rc.seed))
	})
	return rc.seed
}

// Next reserves the next sequence number for a test case.
func (rc *RunContext) Next() int {
	rc.Init()
	return int(rc.seq.Add(1))
}

// Current returns the last number handed out (the seed if none yet).
func (rc *RunContext) Current() int {
	rc.Init()
	return int(rc.seq.Load())
}
