package imaging

import (
	"image"
	stddraw "image/draw"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Rotate rotates src by degrees around its center using Catmull-Rom
// resampling, keeping the original bounds. Regions exposed by the
// rotation are filled white; content rotated past the original bounds is
// discarded, which is the crop-to-original-aspect behavior the pipeline
// wants for sub-degree deskew corrections.
func Rotate(src image.Image, degrees float64) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	stddraw.Draw(dst, dst.Bounds(), image.NewUniform(White), image.Point{}, stddraw.Src)

	rad := degrees * math.Pi / 180
	sin, cos := math.Sincos(rad)

	scx := float64(b.Min.X) + float64(w)/2
	scy := float64(b.Min.Y) + float64(h)/2
	dcx := float64(w) / 2
	dcy := float64(h) / 2

	// Maps src pixel (x, y) to dst: translate to src center, rotate,
	// translate to dst center.
	m := f64.Aff3{
		cos, -sin, dcx - cos*scx + sin*scy,
		sin, cos, dcy - sin*scx - cos*scy,
	}
	draw.CatmullRom.Transform(dst, m, src, b, draw.Over, nil)
	return dst
}

// Rotate180 flips the image by half a turn without resampling.
func Rotate180(src image.Image) *image.RGBA {
	in := ToRGBA(src)
	w, h := in.Bounds().Dx(), in.Bounds().Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			si := y*in.Stride + x*4
			di := (h-1-y)*dst.Stride + (w-1-x)*4
			copy(dst.Pix[di:di+4], in.Pix[si:si+4])
		}
	}
	return dst
}

// Shift translates the image by (dx, dy) pixels within its own bounds,
// filling exposed regions white. Content shifted out of bounds is lost.
func Shift(src image.Image, dx, dy int) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	stddraw.Draw(dst, dst.Bounds(), image.NewUniform(White), image.Point{}, stddraw.Src)

	target := image.Rect(dx, dy, dx+w, dy+h).Intersect(dst.Bounds())
	if target.Empty() {
		return dst
	}
	stddraw.Draw(dst, target, src, image.Point{X: b.Min.X + target.Min.X - dx, Y: b.Min.Y + target.Min.Y - dy}, stddraw.Src)
	return dst
}

// Crop copies the given region (in src coordinates relative to its
// bounds' origin) into a fresh image.
func Crop(src image.Image, r image.Rectangle) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	stddraw.Draw(dst, dst.Bounds(), src, b.Min.Add(r.Min), stddraw.Src)
	return dst
}

// Scale resamples src to w×h with Catmull-Rom interpolation.
func Scale(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
