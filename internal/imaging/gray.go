// Package imaging provides the raster primitives shared by pipeline
// stages: grayscale conversion, global binarization, skew estimation and
// interpolated resampling.
package imaging

import (
	"image"
	"image/color"
	"image/draw"
)

// ToGray converts any image to 8-bit grayscale.
func ToGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// ToRGBA converts any image to RGBA with bounds at the origin.
func ToRGBA(src image.Image) *image.RGBA {
	if r, ok := src.(*image.RGBA); ok && r.Bounds().Min == (image.Point{}) {
		return r
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// Histogram computes the 256-bin intensity histogram of a grayscale image.
func Histogram(g *image.Gray) [256]int {
	var hist [256]int
	b := g.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[(y-b.Min.Y)*g.Stride : (y-b.Min.Y)*g.Stride+b.Dx()]
		for _, v := range row {
			hist[v]++
		}
	}
	return hist
}

// InkCoverage returns the fraction of pixels darker than threshold,
// measured against the full image area.
func InkCoverage(g *image.Gray, threshold uint8) float64 {
	b := g.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	ink := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[(y-b.Min.Y)*g.Stride : (y-b.Min.Y)*g.Stride+b.Dx()]
		for _, v := range row {
			if v < threshold {
				ink++
			}
		}
	}
	return float64(ink) / float64(total)
}

// ContentBox returns the bounding box of ink pixels in a binarized image
// (true = ink). Returns the zero rectangle when the page has no ink.
func ContentBox(bin *Bitmap) image.Rectangle {
	minX, minY := bin.W, bin.H
	maxX, maxY := -1, -1
	for y := 0; y < bin.H; y++ {
		for x := 0; x < bin.W; x++ {
			if bin.Get(x, y) {
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}
	if maxX < 0 {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// White is the background color substituted into exposed regions after
// rotation or shifting.
var White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
