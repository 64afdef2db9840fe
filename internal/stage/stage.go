// Package stage implements the page transforms of the enhancement
// pipeline. Stage order is fixed; configuration only enables stages and
// tunes their parameters. Each stage owns the page buffer for the
// duration of its Apply call and replaces it on success.
package stage

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/bindery/internal/bridge"
	"github.com/jackzampolin/bindery/internal/cache"
	"github.com/jackzampolin/bindery/internal/config"
	"github.com/jackzampolin/bindery/internal/page"
	"github.com/jackzampolin/bindery/internal/pagenum"
)

// Stage is one transform in the fixed pipeline order. A failed Apply
// leaves the page buffer untouched; the orchestrator continues the page
// with the last good buffer.
type Stage interface {
	Name() string

	// Fingerprint is this stage's contribution to the page cache key.
	Fingerprint() cache.StageParams

	// Apply transforms p.Buffer in place (by replacement).
	Apply(ctx context.Context, p *page.Page) error
}

// Planner is implemented by stages that need a run-level pass over all
// pages before per-page Apply calls begin. Plan runs once, single
// threaded, before the scheduler starts workers.
type Planner interface {
	Plan(ctx context.Context, pages []*page.Page) error
}

// Deps carries the external collaborators stages may need.
type Deps struct {
	// Invoker reaches the AI bridge; required when upscale is enabled.
	Invoker bridge.Invoker

	// Detector reads printed page numbers; required when align is enabled.
	Detector *pagenum.Detector

	// WorkDir is scratch space for stages that cross a subprocess
	// boundary by file path.
	WorkDir string
}

// Sequence builds the enabled stages in fixed pipeline order, plus the
// full fingerprint parameter list. The parameter list covers every
// stage, enabled or not, so flipping an enable bit changes every
// dependent page's cache key.
func Sequence(cfg *config.Config, deps Deps, logger *slog.Logger) ([]Stage, []cache.StageParams) {
	if logger == nil {
		logger = slog.Default()
	}

	all := []Stage{
		NewDeskew(cfg.Stages.Deskew, logger),
		NewMarginTrim(cfg.Stages.MarginTrim, logger),
		NewShadowRemoval(cfg.Stages.Shadow, logger),
		NewMarkerClean(cfg.Stages.MarkerClean, logger),
		NewUpscale(cfg.Stages.Upscale, deps.Invoker, deps.WorkDir, logger),
		NewColorCorrect(cfg.Stages.ColorCorrect, logger),
		NewAlign(cfg.Stages.Align, deps.Detector, logger),
	}
	enabledFlags := []bool{
		cfg.Stages.Deskew.Enabled,
		cfg.Stages.MarginTrim.Enabled,
		cfg.Stages.Shadow.Enabled,
		cfg.Stages.MarkerClean.Enabled,
		cfg.Stages.Upscale.Enabled,
		cfg.Stages.ColorCorrect.Enabled,
		cfg.Stages.Align.Enabled,
	}

	var enabled []Stage
	params := make([]cache.StageParams, 0, len(all))
	for i, s := range all {
		params = append(params, s.Fingerprint())
		if enabledFlags[i] {
			enabled = append(enabled, s)
		}
	}
	return enabled, params
}
