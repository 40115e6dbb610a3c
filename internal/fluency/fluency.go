// Package fluency derives the hesitation signal and the correctness verdict of
// a single reading attempt from its canonical transcript.
package fluency

import (
	"strings"

	"reading-fluency-go/internal/types"
)

// DefaultHesitationSeconds is the delay before the first recognized speech at
// which an attempt counts as hesitant.
const DefaultHesitationSeconds = 5.0

// Assessment is the per-attempt outcome handed to the persistence layer.
type Assessment struct {
	Hesitation bool            `json:"hesitation"`
	IsCorrect  bool            `json:"is_correct"`
	ErrorKind  types.ErrorKind `json:"error_type"`
}

// HasHesitation reports whether speech started at or after thresholdSeconds.
// An empty timeline carries no signal and counts as hesitation.
func HasHesitation(timeline []types.TimelineEntry, thresholdSeconds float64) bool {
	if len(timeline) == 0 {
		return true
	}
	return timeline[0].Start >= thresholdSeconds
}

// Assess judges an attempt. Only the first space-separated word of the target
// has to appear, as a substring, in the transcribed text.
func Assess(t types.CanonicalTranscript, targetText string, thresholdSeconds float64) Assessment {
	hesitation := HasHesitation(t.Timeline, thresholdSeconds)
	firstWord := strings.Split(strings.ToLower(targetText), " ")[0]
	correct := !hesitation && strings.Contains(strings.ToLower(t.Text), firstWord)

	a := Assessment{Hesitation: hesitation, IsCorrect: correct}
	switch {
	case hesitation:
		a.ErrorKind = types.ErrorHesitation
	case !correct:
		a.ErrorKind = types.ErrorOther
	}
	return a
}
