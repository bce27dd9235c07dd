package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// errLogNotWritten marks a log write failure WriteLog has already reported.
var errLogNotWritten = errors.New("log not written")

// RecordState tracks where a test's artifacts are in their lifecycle.
type RecordState string

const (
	StateCreated  RecordState = "created"
	StateTracing  RecordState = "tracing"
	StateTornDown RecordState = "torn-down"
	StateResolved RecordState = "outcome-known"
	StateDisposed RecordState = "disposed"
)

// ArtifactRecord holds one test's artifacts until its outcome is known.
// mu guards the capture fields and State: teardown and an interrupt flush
// can reach the same record from different goroutines.
type ArtifactRecord struct {
	mu sync.Mutex

	TestID         string
	Seq            int
	Name           string
	State          RecordState
	TracePath      string
	ScreenshotPath string
	VideoPath      string
	Events         *EventCollector
	Start          time.Time
}

// RecorderOptions tunes the recorder.
type RecorderOptions struct {
	// VideoPollAttempts bounds how many times disposition checks for the
	// recorded video file before giving up.
	VideoPollAttempts int
	VideoPollInterval time.Duration
}

// DefaultRecorderOptions returns 10 polls at 100ms.
func DefaultRecorderOptions() RecorderOptions {
	return RecorderOptions{
		VideoPollAttempts: 10,
		VideoPollInterval: 100 * time.Millisecond,
	}
}

// Disposition reports what happened to each artifact of a finalized test.
type Disposition struct {
	TestID  string
	Seq     int
	Outcome Outcome
	// Kept maps each retained kind to its final path.
	Kept map[ArtifactKind]string
	// Errors maps each kind whose filesystem action failed to the error.
	Errors map[ArtifactKind]error
}

// Recorder drives the per-test artifact lifecycle: start tracing when the
// browsing context is created, collect events from the page, capture at
// teardown, and decide what to keep once the outcome is known.
type Recorder struct {
	run     *RunContext
	formats ArtifactFormats
	opts    RecorderOptions
	logger  *log.Logger

	mu      sync.Mutex
	records map[string]*ArtifactRecord

	now   func() time.Time
	sleep func(time.Duration)
}

// NewRecorder creates a recorder writing below run's artifact dirs.
func NewRecorder(run *RunContext, formats ArtifactFormats, opts RecorderOptions, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = discardLogger()
	}
	if opts.VideoPollAttempts <= 0 {
		opts.VideoPollAttempts = 1
	}
	return &Recorder{
		run:     run,
		formats: formats,
		opts:    opts,
		logger:  logger,
		records: make(map[string]*ArtifactRecord),
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// OnContextCreated reserves a sequence number for testID, starts the trace
// and registers the record. A trace that fails to start is logged; the
// test still runs.
func (r *Recorder) OnContextCreated(testID string, ctx BrowserContext) *ArtifactRecord {
	rec := &ArtifactRecord{
		TestID: testID,
		Seq:    r.run.Next(),
		Name:   Sanitize(testID),
		State:  StateCreated,
		Events: NewEventCollector(),
		Start:  r.now(),
	}

	if ctx != nil {
		err := ctx.StartTrace(TraceOptions{Screenshots: true, Snapshots: true, Sources: true})
		if err != nil {
			r.logger.Warn("failed to start trace", "test", testID, "err", err)
		} else {
			rec.State = StateTracing
		}
	}

	r.mu.Lock()
	r.records[testID] = rec
	r.mu.Unlock()

	r.logger.Debug("context created", "test", testID, "seq", fmt.Sprintf("%03d", rec.Seq))
	return rec
}

// OnPageCreated attaches the test's event collector to page.
func (r *Recorder) OnPageCreated(testID string, page Page) {
	rec := r.lookup(testID)
	if rec == nil || page == nil {
		return
	}
	rec.Events.Attach(page)
	rec.mu.Lock()
	rec.Start = r.now()
	rec.mu.Unlock()
}

// OnTeardown captures the screenshot and video path, stops the trace to a
// PENDING file and closes the page and context. Nothing here can fail the
// test: every capture is best effort.
func (r *Recorder) OnTeardown(testID string, page Page, ctx BrowserContext) {
	rec := r.lookup(testID)
	if rec == nil {
		closeQuietly(page, ctx)
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.State == StateResolved || rec.State == StateDisposed {
		// Already flushed; only release the browser.
		closeQuietly(page, ctx)
		return
	}

	if page != nil && !page.IsClosed() {
		path := filepath.Join(r.run.Dirs.Screenshots,
			fmt.Sprintf("temp_%03d_%s%s", rec.Seq, rec.Name, r.formats.Screenshot))
		if err := page.Screenshot(path, true); err != nil {
			r.logger.Debug("screenshot skipped", "test", testID, "err", err)
		} else {
			rec.ScreenshotPath = path
		}
	}

	if page != nil {
		if video := page.Video(); video != nil {
			if path, err := video.Path(); err == nil && path != "" {
				rec.VideoPath = path
			}
		}
	}

	if ctx != nil && rec.State == StateTracing {
		path := filepath.Join(r.run.Dirs.Traces,
			artifactFilename(rec.Seq, "PENDING", rec.Name, "_trace"+r.formats.Trace))
		if err := ctx.StopTrace(path); err != nil {
			r.logger.Warn("failed to stop trace", "test", testID, "err", err)
		} else {
			rec.TracePath = path
		}
	}

	closeQuietly(page, ctx)
	rec.State = StateTornDown
}

// Finalize resolves the outcome from the phase reports and applies the
// retention policy to each artifact. Each kind is handled independently;
// a failure is logged and the remaining kinds still run. The record is
// evicted afterwards.
func (r *Recorder) Finalize(testID string, setup, call *PhaseReport) *Disposition {
	rec := r.lookup(testID)
	if rec == nil {
		return nil
	}

	// Waits for an in-progress teardown so its capture paths are visible.
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.State == StateResolved || rec.State == StateDisposed {
		// Another caller already disposed it.
		return nil
	}
	rec.State = StateResolved

	outcome := ResolveOutcome(setup, call)

	d := &Disposition{
		TestID:  testID,
		Seq:     rec.Seq,
		Outcome: outcome,
		Kept:    make(map[ArtifactKind]string),
		Errors:  make(map[ArtifactKind]error),
	}

	for _, kind := range ArtifactKinds {
		path, err := r.dispose(rec, kind, outcome)
		if err != nil {
			d.Errors[kind] = err
			if !errors.Is(err, errLogNotWritten) {
				r.logger.Warn("artifact disposition failed", "test", testID, "kind", kind, "err", err)
			}
			continue
		}
		if path != "" {
			d.Kept[kind] = path
		}
	}

	if outcome.IsFailure() {
		for _, kind := range ArtifactKinds {
			if path, ok := d.Kept[kind]; ok {
				r.logger.Info("saved "+string(kind), "path", path)
			}
		}
	}

	rec.State = StateDisposed
	r.mu.Lock()
	delete(r.records, testID)
	r.mu.Unlock()
	return d
}

// FlushPending finalizes every record still in flight with an unknown
// outcome. Used when the run is interrupted before the hooks complete.
func (r *Recorder) FlushPending() []*Disposition {
	r.mu.Lock()
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)

	var out []*Disposition
	for _, id := range ids {
		if d := r.Finalize(id, nil, nil); d != nil {
			out = append(out, d)
		}
	}
	return out
}

// Pending returns the number of records not yet finalized.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Record returns the in-flight record for testID, or nil.
func (r *Recorder) Record(testID string) *ArtifactRecord {
	return r.lookup(testID)
}

func (r *Recorder) lookup(testID string) *ArtifactRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[testID]
}

// dispose applies the retention decision for one kind and returns the
// final path of a kept artifact.
func (r *Recorder) dispose(rec *ArtifactRecord, kind ArtifactKind, outcome Outcome) (string, error) {
	switch kind {
	case ArtifactTrace:
		decision := Decide(kind, outcome, ArtifactName{Seq: rec.Seq, Name: rec.Name, Ext: r.formats.Trace})
		return r.keepOrDiscard(rec.TracePath, r.run.Dirs.Traces, decision)

	case ArtifactScreenshot:
		decision := Decide(kind, outcome, ArtifactName{Seq: rec.Seq, Name: rec.Name, Ext: r.formats.Screenshot})
		return r.keepOrDiscard(rec.ScreenshotPath, r.run.Dirs.Screenshots, decision)

	case ArtifactVideo:
		if rec.VideoPath == "" {
			return "", nil
		}
		if !r.waitForFile(rec.VideoPath) {
			r.logger.Debug("video never appeared", "test", rec.TestID, "path", rec.VideoPath)
			return "", nil
		}
		ext := filepath.Ext(rec.VideoPath)
		if ext == "" {
			ext = r.formats.Video
		}
		decision := Decide(kind, outcome, ArtifactName{Seq: rec.Seq, Name: rec.Name, Ext: ext})
		return r.keepOrDiscard(rec.VideoPath, r.run.Dirs.Videos, decision)

	case ArtifactLog:
		decision := Decide(kind, outcome, ArtifactName{Seq: rec.Seq, Name: rec.Name, Ext: ".log"})
		path := filepath.Join(r.run.Dirs.Logs, decision.Name)
		rep := LogReport{
			TestID:  rec.TestID,
			RunID:   r.run.ID,
			Outcome: outcome,
			Start:   rec.Start,
			End:     r.now(),
			Entries: rec.Events.Entries(),
		}
		if !WriteLog(r.logger, path, rep) {
			return "", errLogNotWritten
		}
		return path, nil
	}
	return "", fmt.Errorf("unknown artifact kind: %s", kind)
}

// keepOrDiscard moves src into dir under the decided name, or deletes it.
// A missing source is not an error: the capture may legitimately have
// produced nothing.
func (r *Recorder) keepOrDiscard(src, dir string, decision Decision) (string, error) {
	if src == "" || !fileExists(src) {
		return "", nil
	}
	if !decision.Keep {
		if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to delete %s: %w", src, err)
		}
		return "", nil
	}
	dst := filepath.Join(dir, decision.Name)
	if err := moveFile(src, dst); err != nil {
		return "", fmt.Errorf("failed to move %s: %w", src, err)
	}
	return dst, nil
}

// waitForFile polls for path with the configured bound. Video files are
// flushed asynchronously after the context closes.
func (r *Recorder) waitForFile(path string) bool {
	for i := 0; i < r.opts.VideoPollAttempts; i++ {
		if fileExists(path) {
			return true
		}
		if i < r.opts.VideoPollAttempts-1 {
			r.sleep(r.opts.VideoPollInterval)
		}
	}
	return false
}

func closeQuietly(page Page, ctx BrowserContext) {
	if page != nil && !page.IsClosed() {
		guard(func() { _ = page.Close() })
	}
	if ctx != nil {
		guard(func() { _ = ctx.Close() })
	}
}
