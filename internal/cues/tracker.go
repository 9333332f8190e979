package cues

import (
	"math"

	"github.com/mvanhorn/capscribe/internal/texttool"
)

// durationHeadroom assumes the video runs ~20% past the furthest cue
// seen so far, so the completion fraction stays conservative while the
// list is still loading.
const durationHeadroom = 1.2

// Tracker estimates how far through the video the scan has reached.
// Both the furthest timestamp and the estimated duration only ever
// increase within one attempt.
type Tracker struct {
	latest    int
	estimated int
}

// Observe folds one cue's text into the estimate.
func (t *Tracker) Observe(text string) {
	ts, ok := texttool.LeadingTimestamp(text)
	if !ok {
		return
	}

	secs := texttool.ParseTimestamp(ts)
	if secs > t.latest {
		t.latest = secs
	}
	if est := int(math.Ceil(float64(secs) * durationHeadroom)); est > t.estimated {
		t.estimated = est
	}
}

// Latest returns the furthest timestamp observed, in seconds.
func (t *Tracker) Latest() int {
	return t.latest
}

// EstimatedDuration returns the running duration estimate, in seconds.
func (t *Tracker) EstimatedDuration() int {
	return t.estimated
}

// Fraction returns the completion estimate, preferring timestamps over
// scroll position and never reaching 1.0; completion is signalled
// explicitly by the driver, not inferred here.
func (t *Tracker) Fraction(scrollTop, scrollHeight, clientHeight float64) float64 {
	if t.estimated > 0 && t.latest > 0 {
		return math.Min(float64(t.latest)/float64(t.estimated), 0.99)
	}

	denom := scrollHeight - clientHeight
	if denom <= 0 {
		denom = 1
	}
	return math.Min(scrollTop/denom, 0.99)
}
