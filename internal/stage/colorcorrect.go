package stage

import (
	"context"
	"image"
	"log/slog"

	"github.com/jackzampolin/bindery/internal/cache"
	"github.com/jackzampolin/bindery/internal/config"
	"github.com/jackzampolin/bindery/internal/imaging"
	"github.com/jackzampolin/bindery/internal/page"
)

// ColorCorrect stretches levels so the page uses the full tonal range:
// yellowed paper goes back toward white, faded ink toward black. The
// cut points clip a configured fraction of pixels at each end of the
// luminance histogram so isolated specks don't pin the range.
type ColorCorrect struct {
	cfg    config.ColorCorrectConfig
	logger *slog.Logger
}

func NewColorCorrect(cfg config.ColorCorrectConfig, logger *slog.Logger) *ColorCorrect {
	return &ColorCorrect{cfg: cfg, logger: logger.With("stage", "color-correct")}
}

func (s *ColorCorrect) Name() string { return "color-correct" }

func (s *ColorCorrect) Fingerprint() cache.StageParams {
	return cache.StageParams{Name: s.Name(), Enabled: s.cfg.Enabled, Params: s.cfg}
}

func (s *ColorCorrect) Apply(ctx context.Context, p *page.Page) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gray := imaging.ToGray(p.Buffer)
	hist := imaging.Histogram(gray)
	lo, hi := clipRange(hist, s.cfg.ClipPercent)
	if hi <= lo {
		return nil
	}

	// Precomputed per-level map; the same stretch applies to each
	// channel to keep hue stable.
	var lut [256]uint8
	span := int(hi) - int(lo)
	for v := 0; v < 256; v++ {
		switch {
		case v <= int(lo):
			lut[v] = 0
		case v >= int(hi):
			lut[v] = 255
		default:
			lut[v] = uint8((v - int(lo)) * 255 / span)
		}
	}

	src := imaging.ToRGBA(p.Buffer)
	b := src.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.RGBAAt(x, y)
			c.R, c.G, c.B = lut[c.R], lut[c.G], lut[c.B]
			out.SetRGBA(x, y, c)
		}
	}

	p.Buffer = out
	s.logger.Debug("stretched levels", "page", p.Index, "low", lo, "high", hi)
	return nil
}

// clipRange finds the luminance cut points that exclude clipPercent of
// pixels at each end of the histogram.
func clipRange(hist [256]int, clipPercent float64) (uint8, uint8) {
	total := 0
	for _, n := range hist {
		total += n
	}
	if total == 0 {
		return 0, 255
	}
	clip := int(float64(total) * clipPercent / 100.0)

	lo, acc := 0, 0
	for ; lo < 255; lo++ {
		acc += hist[lo]
		if acc > clip {
			break
		}
	}
	hi, acc := 255, 0
	for ; hi > 0; hi-- {
		acc += hist[hi]
		if acc > clip {
			break
		}
	}
	return uint8(lo), uint8(hi)
}
