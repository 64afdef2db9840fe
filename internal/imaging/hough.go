package imaging

import (
	"math"
)

// maxEdgeSamples caps the number of edge pixels fed into the vote
// accumulator so estimation cost stays bounded on very large scans.
const maxEdgeSamples = 20000

// SkewEstimate is the result of dominant-angle voting.
type SkewEstimate struct {
	// Angle is the estimated skew in degrees. Positive means the text
	// lines rise left to right.
	Angle float64

	// Votes is the accumulated count of the winning angle/offset bin.
	Votes int

	// Confident reports whether Votes cleared the minimum threshold.
	// When false, Angle is zero and the page is treated as upright.
	Confident bool
}

// edgePoint is a bottom-edge ink pixel used for line voting.
type edgePoint struct {
	x, y int
}

// EstimateSkew detects the dominant skew angle of a binarized page by
// accumulating votes in an angle/offset parameter space over bottom-edge
// ink pixels. The search is restricted to ±maxAngle degrees at step
// resolution; the bin with the highest vote count wins. Ties prefer the
// smaller absolute angle so an upright page stays upright.
func EstimateSkew(bin *Bitmap, maxAngle, step float64, minVotes int) SkewEstimate {
	if maxAngle <= 0 || step <= 0 || bin.W == 0 || bin.H == 0 {
		return SkewEstimate{}
	}

	edges := collectBottomEdges(bin)
	if len(edges) == 0 {
		return SkewEstimate{}
	}

	// Offset axis: intercept of the line y = tan(a)*x + b, quantized to
	// whole pixels. Intercepts can leave [0, H) by up to W*tan(maxAngle).
	margin := int(math.Ceil(float64(bin.W)*math.Tan(maxAngle*math.Pi/180))) + 1
	offsets := bin.H + 2*margin

	bins := int(math.Round(2*maxAngle/step)) + 1
	acc := make([]int, offsets)

	best := SkewEstimate{}
	for i := 0; i < bins; i++ {
		angle := -maxAngle + float64(i)*step
		tan := math.Tan(angle * math.Pi / 180)

		for j := range acc {
			acc[j] = 0
		}
		peak := 0
		for _, p := range edges {
			b := int(math.Round(float64(p.y)-tan*float64(p.x))) + margin
			if b < 0 || b >= offsets {
				continue
			}
			acc[b]++
			if acc[b] > peak {
				peak = acc[b]
			}
		}

		if peak > best.Votes ||
			(peak == best.Votes && math.Abs(angle) < math.Abs(best.Angle)) {
			best.Votes = peak
			best.Angle = angle
		}
	}

	if best.Votes < minVotes {
		return SkewEstimate{Votes: best.Votes}
	}
	best.Confident = true
	return best
}

// collectBottomEdges gathers ink pixels whose neighbor below is
// background. Text baselines dominate this set, which is what makes the
// angle vote track line orientation rather than glyph shapes.
func collectBottomEdges(bin *Bitmap) []edgePoint {
	total := 0
	for y := 0; y < bin.H-1; y++ {
		for x := 0; x < bin.W; x++ {
			if bin.Get(x, y) && !bin.Get(x, y+1) {
				total++
			}
		}
	}
	if total == 0 {
		return nil
	}

	stride := 1
	if total > maxEdgeSamples {
		stride = total/maxEdgeSamples + 1
	}

	edges := make([]edgePoint, 0, total/stride+1)
	n := 0
	for y := 0; y < bin.H-1; y++ {
		for x := 0; x < bin.W; x++ {
			if bin.Get(x, y) && !bin.Get(x, y+1) {
				if n%stride == 0 {
					edges = append(edges, edgePoint{x: x, y: y})
				}
				n++
			}
		}
	}
	return edges
}

// UpsideDown applies an ink-density orientation heuristic: body text
// gravitates toward the top of a correctly oriented page (headers, chapter
// openings), so a page whose bottom band is markedly heavier than its top
// band is flagged as inverted. The check is intentionally coarse; it only
// needs to catch whole-page 180° scans.
func UpsideDown(bin *Bitmap) bool {
	band := bin.H / 3
	if band == 0 {
		return false
	}
	top := bin.InkRatio(0, band)
	bottom := bin.InkRatio(bin.H-band, bin.H)

	// Demand a clear imbalance before flipping.
	return bottom > 0.01 && bottom > top*1.8
}
