package main

// Outcome is the classified result of a test case.
type Outcome string

const (
	OutcomePassed       Outcome = "passed"
	OutcomeFailed       Outcome = "failed"
	OutcomeSetupFailure Outcome = "setup_failure"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeUnknown      Outcome = "unknown"
)

// IsFailure reports whether the outcome counts as a failure for retention.
func (o Outcome) IsFailure() bool {
	return o == OutcomeFailed || o == OutcomeSetupFailure
}

// Label returns the filename tag for the outcome.
func (o Outcome) Label() string {
	if o.IsFailure() {
		return "FAIL"
	}
	return "PASS"
}

// PhaseStatus is the result of one phase of a test.
type PhaseStatus string

const (
	PhasePassed  PhaseStatus = "passed"
	PhaseFailed  PhaseStatus = "failed"
	PhaseSkipped PhaseStatus = "skipped"
)

// PhaseReport describes how the setup or call phase of a test ended.
type PhaseReport struct {
	Status PhaseStatus
	// Err is the setup error, if that is what ended the phase.
	Err error
}

// Failed reports a failed phase. A nil report has not failed.
func (r *PhaseReport) Failed() bool { return r != nil && r.Status == PhaseFailed }

// Skipped reports a skipped phase.
func (r *PhaseReport) Skipped() bool { return r != nil && r.Status == PhaseSkipped }

// Passed reports a passed phase.
func (r *PhaseReport) Passed() bool { return r != nil && r.Status == PhasePassed }

// ResolveOutcome classifies a test from its phase reports. A setup failure
// wins over anything the call phase says because the call never ran.
func ResolveOutcome(setup, call *PhaseReport) Outcome {
	switch {
	case setup.Failed():
		return OutcomeSetupFailure
	case call == nil:
		return OutcomeUnknown
	case call.Failed():
		return OutcomeFailed
	case call.Skipped():
		return OutcomeSkipped
	case call.Passed():
		return OutcomePassed
	default:
		return OutcomeUnknown
	}
}
