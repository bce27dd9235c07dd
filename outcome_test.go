package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveOutcome(t *testing.T) {
	passed := &PhaseReport{Status: PhasePassed}
	failed := &PhaseReport{Status: PhaseFailed}
	skipped := &PhaseReport{Status: PhaseSkipped}

	tests := []struct {
		name        string
		setup, call *PhaseReport
		want        Outcome
	}{
		{"passed", passed, passed, OutcomePassed},
		{"failed", passed, failed, OutcomeFailed},
		{"skipped", passed, skipped, OutcomeSkipped},
		{"setup failure wins over call", failed, passed, OutcomeSetupFailure},
		{"setup failure without call", failed, nil, OutcomeSetupFailure},
		{"no reports", nil, nil, OutcomeUnknown},
		{"setup only", passed, nil, OutcomeUnknown},
		{"call without setup", nil, failed, OutcomeFailed},
		{"unrecognized status", passed, &PhaseReport{Status: "xfail"}, OutcomeUnknown},
		{"skipped setup", skipped, passed, OutcomePassed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveOutcome(tt.setup, tt.call))
		})
	}
}

func TestOutcomeLabel(t *testing.T) {
	assert.Equal(t, "FAIL", OutcomeFailed.Label())
	assert.Equal(t, "FAIL", OutcomeSetupFailure.Label())
	assert.Equal(t, "PASS", OutcomePassed.Label())
	assert.Equal(t, "PASS", OutcomeSkipped.Label())
	assert.Equal(t, "PASS", OutcomeUnknown.Label())

	assert.True(t, OutcomeSetupFailure.IsFailure())
	assert.False(t, OutcomeUnknown.IsFailure())
}

func TestPhaseReport_NilSafe(t *testing.T) {
	var r *PhaseReport
	assert.False(t, r.Failed())
	assert.False(t, r.Skipped())
	assert.False(t, r.Passed())
}
