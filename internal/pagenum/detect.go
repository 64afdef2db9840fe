package pagenum

import (
	"context"
	"image"
	"log/slog"
)

// Detector OCRs the page-number band of rendered pages and produces the
// readings the resolver consumes. Detection failures are soft: a page
// that cannot be read yields an empty reading and the resolver's group
// consensus covers for it.
type Detector struct {
	engine        Engine
	bandPercent   float64
	minConfidence float64
	logger        *slog.Logger
}

// NewDetector creates a detector scanning the bottom bandPercent of each
// page (default 10%). Detections below minConfidence are discarded;
// engines that report no confidence bypass the check.
func NewDetector(engine Engine, bandPercent, minConfidence float64, logger *slog.Logger) *Detector {
	if bandPercent <= 0 || bandPercent > 100 {
		bandPercent = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		engine:        engine,
		bandPercent:   bandPercent,
		minConfidence: minConfidence,
		logger:        logger.With("component", "pagenum"),
	}
}

// Band returns the bottom slice of the page the detector scans.
func (d *Detector) Band(img image.Image) image.Image {
	b := img.Bounds()
	top := b.Max.Y - int(float64(b.Dy())*d.bandPercent/100.0)
	if top <= b.Min.Y {
		return img
	}
	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(image.Rect(b.Min.X, top, b.Max.X, b.Max.Y))
	}
	return img
}

// Detect reads one page's number band. Index is the physical page index.
func (d *Detector) Detect(ctx context.Context, img image.Image, index int) Reading {
	text, conf, err := d.engine.ReadText(ctx, d.Band(img))
	if err != nil {
		d.logger.Warn("page number detection failed", "page", index, "error", err)
		return Reading{Index: index}
	}
	if conf >= 0 && conf < d.minConfidence {
		d.logger.Debug("discarding low-confidence detection",
			"page", index, "text", text, "confidence", conf)
		return Reading{Index: index}
	}
	return Reading{Index: index, Raw: text}
}
