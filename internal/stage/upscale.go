package stage

import (
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jackzampolin/bindery/internal/bridge"
	"github.com/jackzampolin/bindery/internal/cache"
	"github.com/jackzampolin/bindery/internal/config"
	"github.com/jackzampolin/bindery/internal/page"
)

// Upscale runs AI super-resolution through the bridge. The boundary is
// file-based: the current buffer is written to scratch, the bridge is
// invoked synchronously with a timeout, and the upscaled file is read
// back. A timeout is a stage failure like any other; the page keeps its
// pre-upscale buffer.
type Upscale struct {
	cfg     config.UpscaleConfig
	invoker bridge.Invoker
	workDir string
	logger  *slog.Logger
}

func NewUpscale(cfg config.UpscaleConfig, invoker bridge.Invoker, workDir string, logger *slog.Logger) *Upscale {
	return &Upscale{cfg: cfg, invoker: invoker, workDir: workDir, logger: logger.With("stage", "upscale")}
}

func (s *Upscale) Name() string { return "upscale" }

func (s *Upscale) Fingerprint() cache.StageParams {
	// TimeoutSeconds shapes scheduling, not pixels; keep it out of the
	// cache key.
	view := struct {
		Scale int    `json:"scale"`
		Tile  int    `json:"tile"`
		Model string `json:"model,omitempty"`
	}{s.cfg.Scale, s.cfg.Tile, s.cfg.Model}
	return cache.StageParams{Name: s.Name(), Enabled: s.cfg.Enabled, Params: view}
}

func (s *Upscale) Apply(ctx context.Context, p *page.Page) error {
	if s.invoker == nil {
		return fmt.Errorf("upscale enabled but no bridge configured")
	}

	if s.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	dir := filepath.Join(s.workDir, "upscale")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create upscale scratch dir: %w", err)
	}
	inPath := filepath.Join(dir, fmt.Sprintf("page_%04d_in.png", p.Index))
	outPath := filepath.Join(dir, fmt.Sprintf("page_%04d_out.png", p.Index))
	defer os.Remove(inPath)
	defer os.Remove(outPath)

	in, err := os.Create(inPath)
	if err != nil {
		return fmt.Errorf("failed to create bridge input: %w", err)
	}
	if err := png.Encode(in, p.Buffer); err != nil {
		in.Close()
		return fmt.Errorf("failed to encode bridge input: %w", err)
	}
	if err := in.Close(); err != nil {
		return err
	}

	resp, err := s.invoker.Invoke(ctx, bridge.Request{
		Input:  inPath,
		Output: outPath,
		Scale:  s.cfg.Scale,
		Tile:   s.cfg.Tile,
		Model:  s.cfg.Model,
	})
	if err != nil {
		return fmt.Errorf("bridge upscale failed: %w", err)
	}

	out, err := os.Open(resp.Output)
	if err != nil {
		return fmt.Errorf("failed to open upscaled output: %w", err)
	}
	defer out.Close()
	img, err := png.Decode(out)
	if err != nil {
		return fmt.Errorf("failed to decode upscaled output: %w", err)
	}

	p.Buffer = img
	s.logger.Debug("upscaled page", "page", p.Index, "scale", s.cfg.Scale, "elapsed_ms", resp.ElapsedMS)
	return nil
}
