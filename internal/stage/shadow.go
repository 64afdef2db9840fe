package stage

import (
	"context"
	"image"
	"log/slog"
	"sort"

	"github.com/jackzampolin/bindery/internal/cache"
	"github.com/jackzampolin/bindery/internal/config"
	"github.com/jackzampolin/bindery/internal/imaging"
	"github.com/jackzampolin/bindery/internal/page"
)

// ShadowRemoval flattens uneven scan illumination (spine shadows, lamp
// falloff). Background brightness is estimated per tile as a high
// percentile of the tile's gray levels, then each pixel is rescaled so
// its local background maps to white. Text pixels survive because they
// sit far below the local background.
type ShadowRemoval struct {
	cfg    config.ShadowConfig
	logger *slog.Logger
}

func NewShadowRemoval(cfg config.ShadowConfig, logger *slog.Logger) *ShadowRemoval {
	return &ShadowRemoval{cfg: cfg, logger: logger.With("stage", "shadow-removal")}
}

func (s *ShadowRemoval) Name() string { return "shadow-removal" }

func (s *ShadowRemoval) Fingerprint() cache.StageParams {
	return cache.StageParams{Name: s.Name(), Enabled: s.cfg.Enabled, Params: s.cfg}
}

func (s *ShadowRemoval) Apply(ctx context.Context, p *page.Page) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	block := s.cfg.BlockSize
	if block < 8 {
		block = 64
	}

	src := imaging.ToRGBA(p.Buffer)
	gray := imaging.ToGray(p.Buffer)
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	cols := (w + block - 1) / block
	rows := (h + block - 1) / block
	bg := make([]uint8, cols*rows)

	var levels []uint8
	for by := 0; by < rows; by++ {
		for bx := 0; bx < cols; bx++ {
			levels = levels[:0]
			for y := by * block; y < min((by+1)*block, h); y++ {
				for x := bx * block; x < min((bx+1)*block, w); x++ {
					levels = append(levels, gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
				}
			}
			bg[by*cols+bx] = percentile(levels, 90)
		}
	}

	out := image.NewRGBA(b)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			back := bg[(y/block)*cols+(x/block)]
			if back == 0 {
				back = 1
			}
			c := src.RGBAAt(b.Min.X+x, b.Min.Y+y)
			c.R = rescale(c.R, back)
			c.G = rescale(c.G, back)
			c.B = rescale(c.B, back)
			out.SetRGBA(b.Min.X+x, b.Min.Y+y, c)
		}
	}

	p.Buffer = out
	s.logger.Debug("flattened background", "page", p.Index, "tiles", cols*rows)
	return nil
}

// rescale maps v so the local background level hits full white.
func rescale(v, back uint8) uint8 {
	scaled := int(v) * 255 / int(back)
	if scaled > 255 {
		return 255
	}
	return uint8(scaled)
}

func percentile(levels []uint8, pct int) uint8 {
	if len(levels) == 0 {
		return 255
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })
	idx := len(levels) * pct / 100
	if idx >= len(levels) {
		idx = len(levels) - 1
	}
	return levels[idx]
}
