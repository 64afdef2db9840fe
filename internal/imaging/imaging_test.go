package imaging

import (
	"image"
	"image/color"
	"math"
	"testing"
)

// syntheticLines draws n horizontal 1px lines skewed by degrees into a
// fresh bitmap.
func syntheticLines(w, h, n int, degrees float64) *Bitmap {
	bm := NewBitmap(w, h)
	tan := math.Tan(degrees * math.Pi / 180)
	gap := h / (n + 1)
	for i := 1; i <= n; i++ {
		base := i * gap
		for x := 0; x < w; x++ {
			y := base + int(math.Round(tan*float64(x)))
			if y >= 0 && y < h {
				bm.Set(x, y, true)
			}
		}
	}
	return bm
}

func TestOtsuThreshold(t *testing.T) {
	t.Run("bimodal histogram splits the modes", func(t *testing.T) {
		var hist [256]int
		for i := 20; i < 40; i++ {
			hist[i] = 100 // ink mode
		}
		for i := 200; i < 240; i++ {
			hist[i] = 300 // paper mode
		}
		th := OtsuThreshold(hist)
		if th < 40 || th > 200 {
			t.Errorf("threshold %d should fall between the modes [40, 200]", th)
		}
	})

	t.Run("empty histogram falls back to midpoint", func(t *testing.T) {
		var hist [256]int
		if th := OtsuThreshold(hist); th != 128 {
			t.Errorf("expected 128 for empty histogram, got %d", th)
		}
	})
}

func TestBinarize(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 4, 1))
	g.Pix = []uint8{0, 100, 150, 255}

	bm := Binarize(g, 128)
	expected := []bool{true, true, false, false}
	for x, want := range expected {
		if bm.Get(x, 0) != want {
			t.Errorf("pixel %d: expected ink=%v", x, want)
		}
	}
}

func TestInkCoverage(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range g.Pix {
		g.Pix[i] = 255
	}
	// 5 ink pixels out of 100
	for i := 0; i < 5; i++ {
		g.Pix[i] = 0
	}

	cov := InkCoverage(g, 128)
	if math.Abs(cov-0.05) > 1e-9 {
		t.Errorf("expected coverage 0.05, got %f", cov)
	}
}

func TestContentBox(t *testing.T) {
	bm := NewBitmap(100, 100)
	bm.Set(10, 20, true)
	bm.Set(80, 70, true)

	box := ContentBox(bm)
	if box != image.Rect(10, 20, 81, 71) {
		t.Errorf("unexpected content box: %v", box)
	}

	t.Run("blank bitmap yields zero box", func(t *testing.T) {
		if box := ContentBox(NewBitmap(10, 10)); !box.Empty() {
			t.Errorf("expected empty box, got %v", box)
		}
	})
}

func TestEstimateSkew(t *testing.T) {
	t.Run("detects synthetic 3.2 degree skew within tolerance", func(t *testing.T) {
		bm := syntheticLines(800, 600, 12, 3.2)
		est := EstimateSkew(bm, 15.0, 0.1, 20)

		if !est.Confident {
			t.Fatalf("expected confident estimate, got %+v", est)
		}
		if math.Abs(est.Angle-3.2) > 0.3 {
			t.Errorf("expected angle within 0.3 of 3.2, got %f", est.Angle)
		}
	})

	t.Run("level lines estimate zero", func(t *testing.T) {
		bm := syntheticLines(800, 600, 12, 0)
		est := EstimateSkew(bm, 15.0, 0.1, 20)

		if !est.Confident {
			t.Fatalf("expected confident estimate, got %+v", est)
		}
		if math.Abs(est.Angle) > 0.15 {
			t.Errorf("expected angle near 0, got %f", est.Angle)
		}
	})

	t.Run("sparse page falls below vote threshold", func(t *testing.T) {
		bm := NewBitmap(800, 600)
		bm.Set(100, 100, true)
		bm.Set(400, 300, true)

		est := EstimateSkew(bm, 15.0, 0.1, 20)
		if est.Confident {
			t.Errorf("expected unconfident estimate, got %+v", est)
		}
		if est.Angle != 0 {
			t.Errorf("unconfident estimate must report angle 0, got %f", est.Angle)
		}
	})
}

func TestRotateRoundTrip(t *testing.T) {
	// A skewed page rotated by the negative estimate should read as level.
	src := image.NewGray(image.Rect(0, 0, 800, 600))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	tan := math.Tan(3.0 * math.Pi / 180)
	for line := 1; line <= 10; line++ {
		base := line * 55
		for x := 50; x < 750; x++ {
			y := base + int(math.Round(tan*float64(x)))
			if y >= 0 && y < 600 {
				src.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}

	est := EstimateSkew(Binarize(src, 128), 15.0, 0.1, 20)
	if !est.Confident {
		t.Fatalf("expected confident estimate, got %+v", est)
	}

	corrected := Rotate(src, -est.Angle)
	gray := ToGray(corrected)
	after := EstimateSkew(Binarize(gray, 128), 15.0, 0.1, 20)
	if after.Confident && math.Abs(after.Angle) > 0.4 {
		t.Errorf("corrected page still skewed by %f degrees", after.Angle)
	}
}

func TestRotate180(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	src.Set(0, 0, White)

	dst := Rotate180(src)
	r, _, _, a := dst.At(2, 1).RGBA()
	if r == 0 || a == 0 {
		t.Error("corner pixel should have moved to the opposite corner")
	}
}

func TestShift(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	src.Set(0, 0, White)

	dst := Shift(src, 3, 4)
	r, g, b, _ := dst.At(3, 4).RGBA()
	if r == 0 && g == 0 && b == 0 {
		t.Error("shifted pixel not found at expected location")
	}

	t.Run("shift past bounds yields blank page", func(t *testing.T) {
		out := Shift(src, 50, 50)
		if out.Bounds().Dx() != 10 || out.Bounds().Dy() != 10 {
			t.Error("bounds must be preserved")
		}
	})
}

func TestUpsideDown(t *testing.T) {
	t.Run("bottom-heavy page flagged", func(t *testing.T) {
		bm := NewBitmap(100, 90)
		for y := 65; y < 88; y++ {
			for x := 10; x < 90; x++ {
				bm.Set(x, y, true)
			}
		}
		if !UpsideDown(bm) {
			t.Error("bottom-heavy page should be flagged as inverted")
		}
	})

	t.Run("balanced page not flagged", func(t *testing.T) {
		bm := NewBitmap(100, 90)
		for y := 10; y < 80; y++ {
			for x := 10; x < 90; x++ {
				bm.Set(x, y, true)
			}
		}
		if UpsideDown(bm) {
			t.Error("balanced page should not be flagged")
		}
	})
}
