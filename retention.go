package main

import "fmt"

// ArtifactKind identifies one of the four per-test artifacts.
type ArtifactKind string

const (
	ArtifactTrace      ArtifactKind = "trace"
	ArtifactScreenshot ArtifactKind = "screenshot"
	ArtifactVideo      ArtifactKind = "video"
	ArtifactLog        ArtifactKind = "log"
)

// ArtifactKinds lists the kinds in disposition order.
var ArtifactKinds = []ArtifactKind{ArtifactTrace, ArtifactScreenshot, ArtifactVideo, ArtifactLog}

// ArtifactName carries the parts of a final artifact filename.
type ArtifactName struct {
	Seq  int
	Name string
	// Ext includes the leading dot.
	Ext string
}

// Decision is the retention verdict for one artifact.
type Decision struct {
	Keep bool
	// Name is the final filename (no directory) when Keep is set.
	Name string
}

// Decide maps an artifact kind and outcome to keep-with-name or discard.
// Traces and logs always survive; screenshots and videos only on failure.
func Decide(kind ArtifactKind, outcome Outcome, n ArtifactName) Decision {
	label := outcome.Label()
	switch kind {
	case ArtifactTrace:
		return keep(n, label, "_trace")
	case ArtifactLog:
		return keep(n, label, "")
	case ArtifactScreenshot, ArtifactVideo:
		if outcome.IsFailure() {
			return keep(n, label, "")
		}
		return Decision{}
	default:
		return Decision{}
	}
}

func keep(n ArtifactName, label, suffix string) Decision {
	return Decision{Keep: true, Name: artifactFilename(n.Seq, label, n.Name, suffix+n.Ext)}
}

// artifactFilename renders {seq:03d}_{TAG}_{name}{suffix}.
func artifactFilename(seq int, tag, name, suffix string) string {
	return fmt.Sprintf("%03d_%s_%s%s", seq, tag, name, suffix)
}
