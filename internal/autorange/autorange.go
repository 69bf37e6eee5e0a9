// Package autorange implements the closed-loop controller that watches
// the raw frame's central region and decides when to ask the sensor for a
// different depth step.
package autorange

import "fmt"

const (
	// Width is the raw frame's pixel width, needed to index the ROI.
	Width = 100

	minStep = 1
	maxStep = 9
)

// Params holds the controller's tuning constants. Per the driver's
// non-goals these are fixed at construction and never altered while
// running, though they may be loaded from the ambient config file.
type Params struct {
	// Sat is the saturation percentage above which the controller prefers
	// a coarser step even if the percentile goal disagrees. Default 80.
	Sat int

	// Pct is the percentile (of non-saturated pixels) used to pick the
	// representative raw depth. Default 50.
	Pct int

	// IHi is the target raw-count fraction of full scale the controller
	// aims the central scene at. Default 150.
	IHi int

	// CX0, CY0, CW, CH describe the central region of interest. Defaults
	// are 25,25,50,50 (pixels 25..75 x 25..75).
	CX0, CY0, CW, CH int
}

// DefaultParams returns the vendor's documented defaults.
func DefaultParams() Params {
	return Params{Sat: 80, Pct: 50, IHi: 150, CX0: 25, CY0: 25, CW: 50, CH: 50}
}

// Decision is the outcome of one Evaluate call.
type Decision struct {
	// Goal is the step the controller believes the sensor should be set
	// to, clamped to [1,9].
	Goal int

	// ShouldRequest is true when the driver should issue an AT+UNIT
	// command: the goal disagrees with the active step and no request is
	// already in flight.
	ShouldRequest bool

	// MissPercent and Bulk are exposed for telemetry and tests.
	MissPercent int
	Bulk        int
}

// Evaluate histograms raw's central ROI and decides whether the sensor's
// depth step should change. unit is the currently active step; pend is
// the step most recently requested (equal to unit when no request is in
// flight).
func Evaluate(raw []byte, unit, pend int, p Params) Decision {
	var hist [256]int
	area := p.CW * p.CH

	for y := p.CY0; y < p.CY0+p.CH; y++ {
		for x := p.CX0; x < p.CX0+p.CW; x++ {
			hist[raw[y*Width+x]]++
		}
	}

	miss := round(100 * float64(hist[255]) / float64(area))
	stop := round(float64(p.Pct) / 100 * float64(area-hist[255]))

	bulk := 0
	cum := 0
	for ; bulk < 256; bulk++ {
		cum += hist[bulk]
		if cum >= stop {
			break
		}
	}

	goal := clamp(round(float64(unit)*float64(bulk)/float64(p.IHi)), minStep, maxStep)

	if miss > p.Sat && goal <= unit && unit < maxStep {
		goal = unit + 1
	}

	return Decision{
		Goal:          goal,
		ShouldRequest: goal != unit && pend == unit,
		MissPercent:   miss,
		Bulk:          bulk,
	}
}

// UnitCommand renders the ten-byte ASCII command that requests depth step
// n (0..9; 0 is only used at shutdown).
func UnitCommand(n int) []byte {
	return []byte(fmt.Sprintf("AT+UNIT=%d\r", n))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round(x float64) int {
	if x >= 0 {
		return int(x + 0.5)
	}
	return -int(-x + 0.5)
}
