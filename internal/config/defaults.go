package config

import "github.com/spf13/viper"

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() *Config {
	return &Config{
		Resolution:        300,
		Quality:           95,
		ChunkSize:         0,
		Workers:           0,
		MaxRetries:        3,
		BlankInkThreshold: 0.02,
		Stages: StagesConfig{
			Deskew: DeskewConfig{
				Enabled:   true,
				MaxAngle:  15.0,
				AngleStep: 0.1,
				MinVotes:  20,
				FlipCheck: true,
			},
			MarginTrim: MarginTrimConfig{
				Enabled:       true,
				MarginPercent: 2.0,
			},
			Shadow: ShadowConfig{
				Enabled:   true,
				BlockSize: 64,
			},
			MarkerClean: MarkerCleanConfig{
				Enabled:     false,
				EdgePercent: 3.0,
			},
			Upscale: UpscaleConfig{
				Enabled:        false,
				Scale:          2,
				Tile:           400,
				Model:          "realesrgan-x4plus",
				TimeoutSeconds: 300,
			},
			ColorCorrect: ColorCorrectConfig{
				Enabled:     true,
				ClipPercent: 0.01,
			},
			Align: AlignConfig{
				Enabled:        true,
				BandPercent:    12.0,
				GroupTolerance: 2,
			},
		},
		Bridge: BridgeConfig{
			Mode:          "subprocess",
			Command:       "python3",
			Script:        "",
			MaxAttempts:   2,
			Image:         "ghcr.io/jackzampolin/bindery-bridge:latest",
			ContainerName: "bindery-bridge",
			Port:          "9482",
			ModelCacheDir: "",
		},
		OCR: OCRConfig{
			Engine:        "tesseract",
			TesseractCmd:  "tesseract",
			MinConfidence: 40.0,
		},
	}
}

// setDefaults seeds viper with the default configuration tree.
func setDefaults() {
	d := DefaultConfig()

	viper.SetDefault("resolution", d.Resolution)
	viper.SetDefault("quality", d.Quality)
	viper.SetDefault("chunk_size", d.ChunkSize)
	viper.SetDefault("workers", d.Workers)
	viper.SetDefault("max_retries", d.MaxRetries)
	viper.SetDefault("blank_ink_threshold", d.BlankInkThreshold)
	viper.SetDefault("stages", d.Stages)
	viper.SetDefault("bridge", d.Bridge)
	viper.SetDefault("ocr", d.OCR)
}
