package imaging

import "image"

// OtsuThreshold picks the global binarization threshold maximizing
// inter-class variance between foreground and background pixel sets.
// Every candidate threshold 0-255 is evaluated; the computation is
// deterministic with no iteration limit.
func OtsuThreshold(hist [256]int) uint8 {
	total := 0
	for _, c := range hist {
		total += c
	}
	if total == 0 {
		return 128
	}

	var sum float64
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}

	var (
		sumB   float64
		wB     int
		best   float64
		thresh uint8
	)
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])

		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			thresh = uint8(t)
		}
	}
	return thresh
}

// Bitmap is a packed binary raster. True marks ink (foreground).
type Bitmap struct {
	W, H int
	bits []bool
}

// NewBitmap allocates a W×H bitmap with all pixels background.
func NewBitmap(w, h int) *Bitmap {
	return &Bitmap{W: w, H: h, bits: make([]bool, w*h)}
}

// Get reports whether (x, y) is ink. Out-of-range coordinates are background.
func (b *Bitmap) Get(x, y int) bool {
	if x < 0 || y < 0 || x >= b.W || y >= b.H {
		return false
	}
	return b.bits[y*b.W+x]
}

// Set marks (x, y) as ink.
func (b *Bitmap) Set(x, y int, v bool) {
	b.bits[y*b.W+x] = v
}

// Binarize thresholds a grayscale image. Pixels darker than t become ink.
func Binarize(g *image.Gray, t uint8) *Bitmap {
	bounds := g.Bounds()
	bm := NewBitmap(bounds.Dx(), bounds.Dy())
	for y := 0; y < bm.H; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+bm.W]
		for x, v := range row {
			if v < t {
				bm.bits[y*bm.W+x] = true
			}
		}
	}
	return bm
}

// InkRatio returns the ink fraction within the given row band [y0, y1).
func (b *Bitmap) InkRatio(y0, y1 int) float64 {
	if y0 < 0 {
		y0 = 0
	}
	if y1 > b.H {
		y1 = b.H
	}
	if y1 <= y0 || b.W == 0 {
		return 0
	}
	ink := 0
	for y := y0; y < y1; y++ {
		for x := 0; x < b.W; x++ {
			if b.bits[y*b.W+x] {
				ink++
			}
		}
	}
	return float64(ink) / float64((y1-y0)*b.W)
}
