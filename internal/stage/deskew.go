package stage

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/bindery/internal/cache"
	"github.com/jackzampolin/bindery/internal/config"
	"github.com/jackzampolin/bindery/internal/imaging"
	"github.com/jackzampolin/bindery/internal/page"
)

// Deskew estimates and corrects sub-degree page rotation. Gross 180°
// inversion is checked first since an upside-down page would dominate
// the angle vote.
type Deskew struct {
	cfg    config.DeskewConfig
	logger *slog.Logger
}

func NewDeskew(cfg config.DeskewConfig, logger *slog.Logger) *Deskew {
	return &Deskew{cfg: cfg, logger: logger.With("stage", "deskew")}
}

func (s *Deskew) Name() string { return "deskew" }

func (s *Deskew) Fingerprint() cache.StageParams {
	return cache.StageParams{Name: s.Name(), Enabled: s.cfg.Enabled, Params: s.cfg}
}

func (s *Deskew) Apply(ctx context.Context, p *page.Page) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gray := imaging.ToGray(p.Buffer)
	threshold := imaging.OtsuThreshold(imaging.Histogram(gray))
	bin := imaging.Binarize(gray, threshold)

	if s.cfg.FlipCheck && imaging.UpsideDown(bin) {
		s.logger.Info("page appears inverted, rotating 180°", "page", p.Index)
		p.Buffer = imaging.Rotate180(p.Buffer)
		gray = imaging.ToGray(p.Buffer)
		bin = imaging.Binarize(gray, threshold)
	}

	est := imaging.EstimateSkew(bin, s.cfg.MaxAngle, s.cfg.AngleStep, s.cfg.MinVotes)
	if !est.Confident || est.Angle == 0 {
		// Not enough line evidence: treat the page as upright.
		s.logger.Debug("no confident skew estimate", "page", p.Index, "votes", est.Votes)
		return nil
	}

	bounds := p.Buffer.Bounds()
	rotated := imaging.Rotate(p.Buffer, -est.Angle)
	p.Buffer = imaging.Crop(rotated, bounds)

	s.logger.Debug("deskewed page", "page", p.Index, "angle", est.Angle, "votes", est.Votes)
	return nil
}
