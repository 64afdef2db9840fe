package stage

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/jackzampolin/bindery/internal/cache"
	"github.com/jackzampolin/bindery/internal/config"
	"github.com/jackzampolin/bindery/internal/imaging"
	"github.com/jackzampolin/bindery/internal/page"
)

// MarginTrim crops each page to its content box plus a uniform retained
// margin.
type MarginTrim struct {
	cfg    config.MarginTrimConfig
	logger *slog.Logger
}

func NewMarginTrim(cfg config.MarginTrimConfig, logger *slog.Logger) *MarginTrim {
	return &MarginTrim{cfg: cfg, logger: logger.With("stage", "margin-trim")}
}

func (s *MarginTrim) Name() string { return "margin-trim" }

func (s *MarginTrim) Fingerprint() cache.StageParams {
	return cache.StageParams{Name: s.Name(), Enabled: s.cfg.Enabled, Params: s.cfg}
}

func (s *MarginTrim) Apply(ctx context.Context, p *page.Page) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gray := imaging.ToGray(p.Buffer)
	threshold := imaging.OtsuThreshold(imaging.Histogram(gray))
	box := imaging.ContentBox(imaging.Binarize(gray, threshold))
	if box.Empty() {
		return fmt.Errorf("no content found on page %d", p.Index)
	}

	bounds := p.Buffer.Bounds()
	mx := int(float64(bounds.Dx()) * s.cfg.MarginPercent / 100.0)
	my := int(float64(bounds.Dy()) * s.cfg.MarginPercent / 100.0)

	// Content box coordinates are bitmap-relative (origin 0,0).
	crop := image.Rect(
		box.Min.X-mx+bounds.Min.X,
		box.Min.Y-my+bounds.Min.Y,
		box.Max.X+mx+bounds.Min.X,
		box.Max.Y+my+bounds.Min.Y,
	).Intersect(bounds)
	if crop.Empty() {
		return fmt.Errorf("margin trim produced empty crop on page %d", p.Index)
	}

	p.Buffer = imaging.Crop(p.Buffer, crop)
	s.logger.Debug("trimmed margins", "page", p.Index, "box", crop)
	return nil
}
