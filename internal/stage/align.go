package stage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackzampolin/bindery/internal/cache"
	"github.com/jackzampolin/bindery/internal/config"
	"github.com/jackzampolin/bindery/internal/imaging"
	"github.com/jackzampolin/bindery/internal/page"
	"github.com/jackzampolin/bindery/internal/pagenum"
)

// Align centers each page's content box so text blocks sit consistently
// across the book. It is page-number aware: before per-page work starts,
// a planning pass OCRs every page's number band and resolves the
// printed-number offset per numbering group, so the run can report which
// physical page carries which printed number and flag pages whose
// numbering could not be established.
type Align struct {
	cfg      config.AlignConfig
	detector *pagenum.Detector
	logger   *slog.Logger

	mu   sync.RWMutex
	plan map[int]pagenum.Resolved
}

func NewAlign(cfg config.AlignConfig, detector *pagenum.Detector, logger *slog.Logger) *Align {
	return &Align{cfg: cfg, detector: detector, logger: logger.With("stage", "align")}
}

func (s *Align) Name() string { return "align" }

func (s *Align) Fingerprint() cache.StageParams {
	return cache.StageParams{Name: s.Name(), Enabled: s.cfg.Enabled, Params: s.cfg}
}

// Plan OCRs page-number bands across the whole document and resolves
// numbering offsets. Runs once before workers start.
func (s *Align) Plan(ctx context.Context, pages []*page.Page) error {
	if s.detector == nil {
		return fmt.Errorf("align enabled but no page-number detector configured")
	}

	readings := make([]pagenum.Reading, 0, len(pages))
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf := p.Buffer
		if buf == nil {
			// Planning runs before chunked loading; read from disk and
			// let the buffer go once the band is scanned.
			img, err := imaging.LoadPNG(p.SourcePath)
			if err != nil {
				s.logger.Warn("failed to load page for numbering scan", "page", p.Index, "error", err)
				readings = append(readings, pagenum.Reading{Index: p.Index})
				continue
			}
			buf = img
		}
		readings = append(readings, s.detector.Detect(ctx, buf, p.Index))
	}

	resolver := pagenum.NewResolver(s.cfg.GroupTolerance, s.logger)
	plan := make(map[int]pagenum.Resolved, len(readings))
	flagged := 0
	for _, r := range resolver.Resolve(readings) {
		plan[r.Index] = r
		if r.Flagged {
			flagged++
		}
	}

	s.mu.Lock()
	s.plan = plan
	s.mu.Unlock()

	s.logger.Info("resolved page numbering", "pages", len(plan), "flagged", flagged)
	return nil
}

// Numbering returns the resolved numbering for a page, if planned.
func (s *Align) Numbering(index int) (pagenum.Resolved, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.plan[index]
	return r, ok
}

func (s *Align) Apply(ctx context.Context, p *page.Page) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gray := imaging.ToGray(p.Buffer)
	threshold := imaging.OtsuThreshold(imaging.Histogram(gray))
	box := imaging.ContentBox(imaging.Binarize(gray, threshold))
	if box.Empty() {
		// Nothing to align; leave the buffer alone.
		return nil
	}

	bounds := p.Buffer.Bounds()
	pageCenter := bounds.Dx() / 2
	boxCenter := (box.Min.X + box.Max.X) / 2
	dx := pageCenter - boxCenter
	if dx == 0 {
		return nil
	}

	p.Buffer = imaging.Shift(p.Buffer, dx, 0)

	if r, ok := s.Numbering(p.Index); ok && r.Strategy != pagenum.StrategyUnknown {
		s.logger.Debug("aligned page", "page", p.Index, "printed", r.Number, "shift", dx)
	} else {
		s.logger.Debug("aligned page", "page", p.Index, "shift", dx)
	}
	return nil
}
