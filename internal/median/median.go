// Package median implements the 5x5 spatial median filter applied to each
// raw depth frame before temporal smoothing.
package median

import "fmt"

const (
	// Width and Height are the frame dimensions in pixels.
	Width  = 100
	Height = 100

	// Size is the number of bytes in a raw or filtered frame.
	Size = Width * Height

	// windowTarget is the cumulative histogram count at which the 25-pixel
	// window's median bin has been reached.
	windowTarget = 13
)

// Filter5x5 replaces each pixel of src with the median of its 5x5
// neighbourhood (rows/columns outside the frame clamp to the nearest edge)
// and writes the result to dst. src and dst must not alias one another;
// each is exactly Size bytes.
func Filter5x5(src, dst []byte) error {
	if len(src) != Size || len(dst) != Size {
		return fmt.Errorf("median: buffers must be %d bytes, got src=%d dst=%d", Size, len(src), len(dst))
	}

	var hist [256]int

	for y := 0; y < Height; y++ {
		for i := range hist {
			hist[i] = 0
		}

		rows := [5]int{
			clamp(y-2, Height-1),
			clamp(y-1, Height-1),
			y,
			clamp(y+1, Height-1),
			clamp(y+2, Height-1),
		}

		bot := 255

		add := func(x int) {
			for _, yy := range rows {
				v := src[yy*Width+x]
				hist[v]++
				if int(v) < bot {
					bot = int(v)
				}
			}
		}
		remove := func(x int) {
			for _, yy := range rows {
				v := src[yy*Width+x]
				hist[v]--
			}
		}

		// Column -2 and -1 both clamp to column 0, so the window for x=0
		// inserts column 0 three times, then columns 1 and 2 once each.
		for _, dx := range [5]int{-2, -1, 0, 1, 2} {
			add(clamp(dx, Width-1))
		}

		for x := 0; x < Width; x++ {
			if x > 0 {
				remove(clamp(x-3, Width-1))
				add(clamp(x+2, Width-1))
				for hist[bot] == 0 {
					bot++
				}
			}

			cum := 0
			m := bot
			for {
				cum += hist[m]
				if cum >= windowTarget {
					break
				}
				m++
			}
			dst[y*Width+x] = byte(m)
		}
	}

	return nil
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
