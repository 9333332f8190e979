// Package orchestrator runs the end-to-end capture sequence for one
// video at a time: resolve the player frame, open the transcript
// panel, drive the scroll capture, and render smooth progress while it
// happens. Observed progress jumps around as cues load, so the
// displayed value is animated: it creeps toward a target that only
// ever moves forward.
package orchestrator

import (
	"math"
	"sync"
	"time"

	"github.com/mvanhorn/capscribe/internal/capture"
)

// Animation tuning. The displayed bar advances a little every tick,
// slower as it fills, and never moves backwards.
const (
	baseSpeed         = 0.0005
	setupMultiplier   = 0.01
	captureMultiplier = 0.015

	// Setup milestones: frame resolved, panel open, rewound, capturing.
	milestoneFrame   = 0.05
	milestonePanel   = 0.10
	milestoneRewind  = 0.15
	milestoneCapture = 0.20

	// Capture progress projections cap below the finishing states.
	projectionCap  = 0.95
	projectionBase = 0.20

	fractionProcessing = 0.97
	fractionFormatting = 0.98
	fractionSaving     = 0.99
)

// progressState animates the displayed fraction. Safe for concurrent
// use: the capture driver reports from its goroutine while the
// animation ticks from another.
type progressState struct {
	mu        sync.Mutex
	displayed float64
	target    float64
	capturing bool
	captureAt time.Time
	complete  bool
	segments  int
	state     capture.State
}

func (p *progressState) begin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.displayed = 0
	p.target = 0
	p.capturing = false
	p.complete = false
	p.segments = 0
	p.state = capture.StateCapturing
}

// milestone moves the target forward to f, never backward.
func (p *progressState) milestone(f float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f > p.target {
		p.target = f
	}
}

func (p *progressState) startCapture(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.capturing = true
	p.captureAt = now
	if milestoneCapture > p.target {
		p.target = milestoneCapture
	}
}

// observe folds one driver report into the target. Timestamp-based
// fractions scale into the capture band; the finishing states pin the
// target to their fixed values.
func (p *progressState) observe(rep capture.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.segments = rep.Segments
	p.state = rep.State

	var target float64
	switch rep.State {
	case capture.StateCapturing:
		if rep.HasStarted && rep.Fraction > 0 {
			target = math.Min(projectionBase+rep.Fraction*0.75, projectionCap)
		}
	case capture.StateProcessing:
		target = fractionProcessing
	case capture.StateFormatting:
		target = fractionFormatting
	case capture.StateSaving:
		target = fractionSaving
	case capture.StateComplete:
		target = 1
		p.complete = true
	}
	if target > p.target {
		p.target = target
	}
}

// tick advances the displayed value one animation step and returns the
// new snapshot. During capture with no timestamp signal yet, elapsed
// time alone pushes the target so the bar never looks frozen.
func (p *progressState) tick(now time.Time) (float64, capture.State, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.complete {
		p.displayed = 1
		return 1, p.state, p.segments
	}

	multiplier := setupMultiplier
	if p.capturing {
		multiplier = captureMultiplier
		projected := math.Min(projectionBase+now.Sub(p.captureAt).Seconds()/60, projectionCap)
		if projected > p.target {
			p.target = projected
		}
	}

	step := baseSpeed * multiplier * (100 - p.displayed*50)
	p.displayed = math.Min(p.displayed+step, p.target)
	return p.displayed, p.state, p.segments
}
