package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved pipeline configuration. It is built once
// before any page processing starts and treated as immutable for the
// duration of a run.
type Config struct {
	// Resolution is the render DPI for source page rasterization.
	Resolution int `mapstructure:"resolution" yaml:"resolution"`

	// Quality is the PNG/JPEG encode quality for processed pages (1-100).
	Quality int `mapstructure:"quality" yaml:"quality"`

	// ChunkSize is the number of pages processed before a checkpoint.
	// 0 means one chunk containing all pages.
	ChunkSize int `mapstructure:"chunk_size" yaml:"chunk_size"`

	// Workers is the worker pool size. 0 derives from available parallelism.
	Workers int `mapstructure:"workers" yaml:"workers"`

	// MaxRetries bounds reprocess attempts per page.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`

	// BlankInkThreshold is the ink-coverage ratio below which a page is
	// classified blank and skipped (default 0.02).
	BlankInkThreshold float64 `mapstructure:"blank_ink_threshold" yaml:"blank_ink_threshold"`

	Stages StagesConfig `mapstructure:"stages" yaml:"stages"`
	Bridge BridgeConfig `mapstructure:"bridge" yaml:"bridge"`
	OCR    OCRConfig    `mapstructure:"ocr" yaml:"ocr"`
}

// StagesConfig groups per-stage tunables. Stage order is fixed; these
// settings only enable/disable stages and tune their parameters.
type StagesConfig struct {
	Deskew       DeskewConfig       `mapstructure:"deskew" yaml:"deskew"`
	MarginTrim   MarginTrimConfig   `mapstructure:"margin_trim" yaml:"margin_trim"`
	Shadow       ShadowConfig       `mapstructure:"shadow_removal" yaml:"shadow_removal"`
	MarkerClean  MarkerCleanConfig  `mapstructure:"marker_clean" yaml:"marker_clean"`
	Upscale      UpscaleConfig      `mapstructure:"upscale" yaml:"upscale"`
	ColorCorrect ColorCorrectConfig `mapstructure:"color_correct" yaml:"color_correct"`
	Align        AlignConfig        `mapstructure:"align" yaml:"align"`
}

// DeskewConfig tunes the skew estimator.
type DeskewConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// MaxAngle bounds the angle search range in degrees (±).
	MaxAngle float64 `mapstructure:"max_angle" yaml:"max_angle"`

	// AngleStep is the voting resolution in degrees.
	AngleStep float64 `mapstructure:"angle_step" yaml:"angle_step"`

	// MinVotes is the minimum winning-bin vote count below which the
	// page is treated as already upright.
	MinVotes int `mapstructure:"min_votes" yaml:"min_votes"`

	// FlipCheck enables the whole-page 180° inversion pre-check.
	FlipCheck bool `mapstructure:"flip_check" yaml:"flip_check"`
}

// MarginTrimConfig tunes content-box margin trimming.
type MarginTrimConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// MarginPercent is the margin retained around the content box,
	// as a percentage of the page dimension.
	MarginPercent float64 `mapstructure:"margin_percent" yaml:"margin_percent"`
}

// ShadowConfig tunes scan-shadow removal.
type ShadowConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// BlockSize is the background-estimation tile size in pixels.
	BlockSize int `mapstructure:"block_size" yaml:"block_size"`
}

// MarkerCleanConfig tunes edge scan-artifact clearing.
type MarkerCleanConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// EdgePercent is the border band inspected for artifacts.
	EdgePercent float64 `mapstructure:"edge_percent" yaml:"edge_percent"`
}

// UpscaleConfig tunes the AI super-resolution stage.
type UpscaleConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Scale is the upscale factor (2 or 4).
	Scale int `mapstructure:"scale" yaml:"scale"`

	// Tile is the bridge tile size for bounded GPU memory.
	Tile int `mapstructure:"tile" yaml:"tile"`

	// Model is the bridge model name.
	Model string `mapstructure:"model" yaml:"model"`

	// TimeoutSeconds bounds a single bridge invocation. A timeout is
	// treated identically to any other stage failure.
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// ColorCorrectConfig tunes auto-contrast levels.
type ColorCorrectConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ClipPercent is the histogram fraction clipped at each end when
	// stretching levels.
	ClipPercent float64 `mapstructure:"clip_percent" yaml:"clip_percent"`
}

// AlignConfig tunes page-number-aware offset alignment.
type AlignConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// BandPercent is the page-height percentage of the bottom band
	// scanned for printed page numbers.
	BandPercent float64 `mapstructure:"band_percent" yaml:"band_percent"`

	// GroupTolerance is the offset jump that splits numbering groups.
	GroupTolerance int `mapstructure:"group_tolerance" yaml:"group_tolerance"`
}

// BridgeConfig configures the AI subprocess boundary.
type BridgeConfig struct {
	// Mode selects the transport: "subprocess" (one exec per call) or
	// "service" (managed container reached over HTTP).
	Mode string `mapstructure:"mode" yaml:"mode"`

	// Command is the subprocess command (e.g. "python3").
	Command string `mapstructure:"command" yaml:"command"`

	// Script is the bridge script path for subprocess mode.
	Script string `mapstructure:"script" yaml:"script"`

	// MaxAttempts bounds retries of a failed bridge call.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`

	// Service mode settings.
	Image         string `mapstructure:"image" yaml:"image"`
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	Port          string `mapstructure:"port" yaml:"port"`
	ModelCacheDir string `mapstructure:"model_cache_dir" yaml:"model_cache_dir"`
}

// OCRConfig configures page-number detection OCR.
type OCRConfig struct {
	// Engine selects "tesseract" (subprocess) or "gosseract" (in-process).
	Engine string `mapstructure:"engine" yaml:"engine"`

	// TesseractCmd is the tesseract binary for subprocess mode.
	TesseractCmd string `mapstructure:"tesseract_cmd" yaml:"tesseract_cmd"`

	// MinConfidence discards detections below this confidence (0-100).
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence"`
}

// fingerprintView is the subset of configuration that affects page output.
// Workers, chunking and retry policy deliberately excluded: they change
// scheduling, never pixels.
type fingerprintView struct {
	Resolution int          `yaml:"resolution"`
	Quality    int          `yaml:"quality"`
	BlankInk   float64      `yaml:"blank_ink_threshold"`
	Stages     StagesConfig `yaml:"stages"`
}

// Hash returns a stable hex digest of the output-affecting configuration.
// Any parameter drift in an enabled stage produces a different hash.
func (c *Config) Hash() (string, error) {
	data, err := yaml.Marshal(fingerprintView{
		Resolution: c.Resolution,
		Quality:    c.Quality,
		BlankInk:   c.BlankInkThreshold,
		Stages:     c.Stages,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal config for hashing: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// EffectiveWorkers resolves the worker pool size.
func (c *Config) EffectiveWorkers(available int) int {
	if c.Workers > 0 {
		return c.Workers
	}
	if available < 1 {
		return 1
	}
	return available
}
