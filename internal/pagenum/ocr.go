package pagenum

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// charWhitelist restricts OCR to digits, roman numerals and the
// characters tesseract commonly confuses for them; the confusion table
// can only correct what the engine is allowed to emit.
const charWhitelist = "0123456789ivxlcdmIVXLCDMoOSBZgq"

// Engine reads the text of a page-number band. Confidence is on the
// tesseract 0-100 scale; engines that cannot report one return -1.
type Engine interface {
	ReadText(ctx context.Context, img image.Image) (text string, confidence float64, err error)
}

// TesseractEngine shells out to the tesseract binary per call, asking
// for TSV output so word confidences come back with the text.
type TesseractEngine struct {
	cmd string
}

// NewTesseractEngine returns a subprocess OCR engine. An empty cmd
// falls back to "tesseract" on PATH.
func NewTesseractEngine(cmd string) *TesseractEngine {
	if cmd == "" {
		cmd = "tesseract"
	}
	return &TesseractEngine{cmd: cmd}
}

func (e *TesseractEngine) ReadText(ctx context.Context, img image.Image) (string, float64, error) {
	dir, err := os.MkdirTemp("", "bindery-ocr-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create ocr temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "band.png")
	f, err := os.Create(inPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create ocr input: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", 0, fmt.Errorf("failed to encode ocr input: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", 0, err
	}

	// PSM 7: treat the band as a single text line.
	cmd := exec.CommandContext(ctx, e.cmd, inPath, "stdout",
		"--psm", "7",
		"-c", "tessedit_char_whitelist="+charWhitelist,
		"tsv",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		return "", 0, fmt.Errorf("tesseract failed: %w: %s", err, firstLine(stderr.String()))
	}

	text, conf := parseTSV(stdout.String())
	return text, conf, nil
}

// parseTSV extracts recognized words and their mean confidence from
// tesseract TSV output. Rows with conf -1 are layout entries, not words.
func parseTSV(tsv string) (string, float64) {
	var words []string
	var confSum float64
	lines := strings.Split(tsv, "\n")
	for i, line := range lines {
		if i == 0 { // header row
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		word := strings.TrimSpace(fields[11])
		if word == "" {
			continue
		}
		words = append(words, word)
		confSum += conf
	}
	if len(words) == 0 {
		return "", 0
	}
	return strings.Join(words, " "), confSum / float64(len(words))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// GosseractEngine runs tesseract in-process through libtesseract. The
// client is not safe for concurrent use, so calls are serialized; page
// parallelism comes from the scheduler, not the OCR engine.
type GosseractEngine struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewGosseractEngine creates an in-process OCR engine.
func NewGosseractEngine() (*GosseractEngine, error) {
	client := gosseract.NewClient()
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetWhitelist(charWhitelist); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set character whitelist: %w", err)
	}
	return &GosseractEngine{client: client}, nil
}

// Close releases the underlying tesseract client.
func (e *GosseractEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}

func (e *GosseractEngine) ReadText(ctx context.Context, img image.Image) (string, float64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", 0, fmt.Errorf("failed to encode ocr input: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", 0, fmt.Errorf("failed to set ocr image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", 0, fmt.Errorf("ocr failed: %w", err)
	}
	// libtesseract exposes no usable aggregate confidence here.
	return strings.TrimSpace(text), -1, nil
}
