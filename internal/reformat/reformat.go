// Package reformat masks unreliable pixels and scales the temporal
// filter's running average into the 16-bit depth image handed to
// consumers.
package reformat

import (
	"encoding/binary"
	"fmt"
)

const (
	// Width and Height are the frame dimensions in pixels.
	Width  = 100
	Height = 100

	// PixelCount is the number of pixels per frame.
	PixelCount = Width * Height

	// OutSize is the byte length of a reformatted output frame: one
	// little-endian uint16 per pixel.
	OutSize = PixelCount * 2

	// Invalid is the sentinel output value for a pixel that should not be
	// used downstream.
	Invalid = 0xFFFF

	// DefaultVarLimit is the vendor default variance mask threshold.
	// Setting it to 255 disables the mask entirely.
	DefaultVarLimit = 32

	minStep = 1
	maxStep = 9
)

// ScaleLUT is the [1..9][0..255] lookup table mapping (step, avg) to a
// quarter-millimetre depth count: 4 * step * avg.
type ScaleLUT [maxStep][256]uint16

// BuildScaleLUT computes the lookup table once; it never changes for the
// lifetime of a driver.
func BuildScaleLUT() ScaleLUT {
	var lut ScaleLUT
	for step := minStep; step <= maxStep; step++ {
		for v := 0; v < 256; v++ {
			lut[step-1][v] = uint16(4 * step * v)
		}
	}
	return lut
}

// Reformat produces the consumer-facing depth image for one frame. raw,
// avg, and var must each be PixelCount bytes; out must be OutSize bytes.
// unit is the currently active depth step, 1..=9.
func Reformat(out []byte, raw, avg, vr []byte, lut *ScaleLUT, unit int, varLimit int) error {
	if len(out) != OutSize {
		return fmt.Errorf("reformat: out buffer must be %d bytes, got %d", OutSize, len(out))
	}
	if len(raw) != PixelCount || len(avg) != PixelCount || len(vr) != PixelCount {
		return fmt.Errorf("reformat: raw/avg/var buffers must be %d bytes", PixelCount)
	}
	if unit < minStep || unit > maxStep {
		return fmt.Errorf("reformat: unit %d out of range [%d,%d]", unit, minStep, maxStep)
	}

	row := lut[unit-1]
	for i := 0; i < PixelCount; i++ {
		var v uint16
		if raw[i] == 255 || avg[i] == 255 || int(vr[i]) > varLimit {
			v = Invalid
		} else {
			v = row[avg[i]]
		}
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], v)
	}

	return nil
}
