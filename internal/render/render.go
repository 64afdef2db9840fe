// Package render is the PDF boundary: rasterizing source pages to
// images and assembling processed images back into a PDF. Rendering
// shells out to pdftoppm (poppler-utils), which rasterizes the page as
// displayed; extracting embedded image objects instead would not honor
// page rotation or composition.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Renderer converts between PDFs and per-page images.
type Renderer interface {
	// PageCount returns the number of pages in the document.
	PageCount(path string) (int, error)

	// RenderPage rasterizes one page (0-based index) to a PNG at
	// outPath.
	RenderPage(ctx context.Context, pdfPath string, pageIndex int, outPath string) error

	// Assemble builds a PDF at outPath from ordered page images.
	Assemble(ctx context.Context, imageFiles []string, outPath string) error
}

// PDFRenderer renders via pdftoppm and assembles via pdfcpu.
type PDFRenderer struct {
	// Resolution is the render DPI.
	Resolution int

	logger *slog.Logger
}

// NewPDFRenderer creates a renderer at the given DPI (default 300).
func NewPDFRenderer(resolution int, logger *slog.Logger) *PDFRenderer {
	if resolution <= 0 {
		resolution = 300
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFRenderer{Resolution: resolution, logger: logger.With("component", "render")}
}

// PageCount reads the document's page count.
func (r *PDFRenderer) PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	count, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return count, nil
}

// RenderPage rasterizes one page with pdftoppm.
func (r *PDFRenderer) RenderPage(ctx context.Context, pdfPath string, pageIndex int, outPath string) error {
	tmpDir, err := os.MkdirTemp("", "bindery-page-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")

	// pdftoppm pages are 1-based.
	pageStr := strconv.Itoa(pageIndex + 1)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(r.Resolution),
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	// pdftoppm with -singlefile creates: <prefix>.png
	srcPath := outputPrefix + ".png"
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}

	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write page image: %w", err)
	}

	r.logger.Debug("rendered page", "page", pageIndex, "path", outPath)
	return nil
}

// Assemble imports the ordered page images into a single PDF. Each
// image becomes one page at its own size.
func (r *PDFRenderer) Assemble(ctx context.Context, imageFiles []string, outPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(imageFiles) == 0 {
		return fmt.Errorf("no page images to assemble")
	}
	for _, f := range imageFiles {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("page image missing: %w", err)
		}
	}

	// Fresh output: pdfcpu appends when the target exists.
	if err := os.Remove(outPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to replace output: %w", err)
	}

	if err := api.ImportImagesFile(imageFiles, outPath, nil, nil); err != nil {
		return fmt.Errorf("failed to assemble PDF: %w", err)
	}

	r.logger.Info("assembled output", "pages", len(imageFiles), "path", outPath)
	return nil
}
