package main

import (
	"testing"

	"github.com/charmbracelet/log"
)

// Suite binds the artifact recorder to Go's test lifecycle. Each Run gets
// its own browsing context and page; artifacts are decided after every
// other cleanup of the test has run.
type Suite struct {
	Driver   Driver
	Recorder *Recorder
	Context  ContextOptions
	// IDPrefix is prepended to t.Name() to form the test identifier.
	IDPrefix string
	Logger   *log.Logger
}

// NewSuite creates a suite whose recorder writes below run's artifact dirs.
func NewSuite(driver Driver, run *RunContext, settings *Settings, logger *log.Logger) *Suite {
	if logger == nil {
		logger = discardLogger()
	}
	opts := RecorderOptions{
		VideoPollAttempts: settings.VideoPollAttempts,
		VideoPollInterval: settings.VideoPollInterval,
	}
	ctxOpts := settings.ContextOptions()
	ctxOpts.VideoDir = run.Dirs.VideosRaw
	return &Suite{
		Driver:   driver,
		Recorder: NewRecorder(run, driver.Formats(), opts, logger),
		Context:  ctxOpts,
		Logger:   logger,
	}
}

// TestID returns the identifier artifacts of t are filed under.
func (s *Suite) TestID(t testing.TB) string {
	return s.IDPrefix + t.Name()
}

// Run executes body against a fresh page.
//
// Setup covers context and page creation; a failure there is reported as
// a setup failure and body never runs. The call phase is read from t once
// body has returned, failed or skipped.
func (s *Suite) Run(t *testing.T, body func(t *testing.T, page Page)) {
	t.Helper()

	testID := s.TestID(t)
	var setup, call *PhaseReport
	var started bool

	// Registered first so it runs after every later cleanup.
	t.Cleanup(func() {
		if started {
			call = callReport(t)
		}
		d := s.Recorder.Finalize(testID, setup, call)
		if d != nil && d.Outcome.IsFailure() {
			t.Logf("artifacts for %s kept with sequence %03d", testID, d.Seq)
		}
	})

	ctx, err := s.Driver.NewContext(s.Context)
	if err != nil {
		// No context means no record; reserve a number anyway so the
		// setup failure still gets a log.
		s.Recorder.OnContextCreated(testID, nil)
		setup = &PhaseReport{Status: PhaseFailed, Err: err}
		t.Fatalf("failed to create browser context: %v", err)
	}
	s.Recorder.OnContextCreated(testID, ctx)

	page, err := ctx.NewPage()
	if err != nil {
		s.Recorder.OnTeardown(testID, nil, ctx)
		setup = &PhaseReport{Status: PhaseFailed, Err: err}
		t.Fatalf("failed to create page: %v", err)
	}
	s.Recorder.OnPageCreated(testID, page)

	t.Cleanup(func() {
		s.Recorder.OnTeardown(testID, page, ctx)
	})

	setup = &PhaseReport{Status: PhasePassed}
	started = true
	body(t, page)
}

// callReport reads the call phase result off t.
func callReport(t testing.TB) *PhaseReport {
	switch {
	case t.Failed():
		return &PhaseReport{Status: PhaseFailed}
	case t.Skipped():
		return &PhaseReport{Status: PhaseSkipped}
	default:
		return &PhaseReport{Status: PhasePassed}
	}
}
