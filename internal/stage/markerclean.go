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

// MarkerClean erases scan artifacts that touch the page border: black
// scanner-bed strips, punch-hole shadows, finger edges. Ink connected
// to the border within the configured edge band is painted white;
// interior content is never reachable from the border and survives.
type MarkerClean struct {
	cfg    config.MarkerCleanConfig
	logger *slog.Logger
}

func NewMarkerClean(cfg config.MarkerCleanConfig, logger *slog.Logger) *MarkerClean {
	return &MarkerClean{cfg: cfg, logger: logger.With("stage", "marker-clean")}
}

func (s *MarkerClean) Name() string { return "marker-clean" }

func (s *MarkerClean) Fingerprint() cache.StageParams {
	return cache.StageParams{Name: s.Name(), Enabled: s.cfg.Enabled, Params: s.cfg}
}

func (s *MarkerClean) Apply(ctx context.Context, p *page.Page) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gray := imaging.ToGray(p.Buffer)
	threshold := imaging.OtsuThreshold(imaging.Histogram(gray))
	bin := imaging.Binarize(gray, threshold)

	bandX := int(float64(bin.W) * s.cfg.EdgePercent / 100.0)
	bandY := int(float64(bin.H) * s.cfg.EdgePercent / 100.0)
	if bandX < 1 || bandY < 1 {
		return nil
	}

	cleared := floodFromBorder(bin, bandX, bandY)
	if len(cleared) == 0 {
		return nil
	}

	out := imaging.ToRGBA(p.Buffer)
	min := out.Bounds().Min
	for _, pt := range cleared {
		out.SetRGBA(min.X+pt.X, min.Y+pt.Y, imaging.White)
	}
	p.Buffer = out

	s.logger.Debug("cleared edge artifacts", "page", p.Index, "pixels", len(cleared))
	return nil
}

// floodFromBorder collects ink pixels reachable from the page border
// without leaving the edge band.
func floodFromBorder(bin *imaging.Bitmap, bandX, bandY int) []image.Point {
	inBand := func(x, y int) bool {
		return x < bandX || x >= bin.W-bandX || y < bandY || y >= bin.H-bandY
	}

	visited := make(map[image.Point]bool)
	var queue []image.Point
	push := func(x, y int) {
		pt := image.Pt(x, y)
		if !visited[pt] && bin.Get(x, y) && inBand(x, y) {
			visited[pt] = true
			queue = append(queue, pt)
		}
	}

	for x := 0; x < bin.W; x++ {
		push(x, 0)
		push(x, bin.H-1)
	}
	for y := 0; y < bin.H; y++ {
		push(0, y)
		push(bin.W-1, y)
	}

	var cleared []image.Point
	for len(queue) > 0 {
		pt := queue[0]
		queue = queue[1:]
		cleared = append(cleared, pt)
		push(pt.X+1, pt.Y)
		push(pt.X-1, pt.Y)
		push(pt.X, pt.Y+1)
		push(pt.X, pt.Y-1)
	}
	return cleared
}
