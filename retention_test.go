package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	name := func(ext string) ArtifactName {
		return ArtifactName{Seq: 7, Name: "TestPaymentE2E_login_success", Ext: ext}
	}

	tests := []struct {
		kind    ArtifactKind
		outcome Outcome
		ext     string
		want    Decision
	}{
		{ArtifactTrace, OutcomeFailed, ".zip", Decision{true, "007_FAIL_TestPaymentE2E_login_success_trace.zip"}},
		{ArtifactTrace, OutcomePassed, ".json", Decision{true, "007_PASS_TestPaymentE2E_login_success_trace.json"}},
		{ArtifactLog, OutcomeSetupFailure, ".log", Decision{true, "007_FAIL_TestPaymentE2E_login_success.log"}},
		{ArtifactLog, OutcomeSkipped, ".log", Decision{true, "007_PASS_TestPaymentE2E_login_success.log"}},
		{ArtifactScreenshot, OutcomeFailed, ".png", Decision{true, "007_FAIL_TestPaymentE2E_login_success.png"}},
		{ArtifactScreenshot, OutcomePassed, ".png", Decision{}},
		{ArtifactScreenshot, OutcomeUnknown, ".png", Decision{}},
		{ArtifactVideo, OutcomeSetupFailure, ".mjpeg", Decision{true, "007_FAIL_TestPaymentE2E_login_success.mjpeg"}},
		{ArtifactVideo, OutcomeSkipped, ".webm", Decision{}},
		{ArtifactKind("har"), OutcomeFailed, ".har", Decision{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+string(tt.outcome), func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.kind, tt.outcome, name(tt.ext)))
		})
	}
}

func TestDecide_TraceAndLogAlwaysKept(t *testing.T) {
	outcomes := []Outcome{OutcomePassed, OutcomeFailed, OutcomeSetupFailure, OutcomeSkipped, OutcomeUnknown}
	for _, o := range outcomes {
		assert.True(t, Decide(ArtifactTrace, o, ArtifactName{Seq: 1, Name: "x", Ext: ".zip"}).Keep, o)
		assert.True(t, Decide(ArtifactLog, o, ArtifactName{Seq: 1, Name: "x", Ext: ".log"}).Keep, o)
	}
}

func TestArtifactFilename_PadsSequence(t *testing.T) {
	assert.Equal(t, "001_PENDING_a_trace.zip", artifactFilename(1, "PENDING", "a", "_trace.zip"))
	assert.Equal(t, "1234_FAIL_a.log", artifactFilename(1234, "FAIL", "a", ".log"))
}
