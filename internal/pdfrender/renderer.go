// Package pdfrender rasterizes PDF pages to JPEG bytes on demand,
// adapted from pdf-extractor's eager whole-document converter into a
// single-page-by-index operation:
// render(pdf_handle, page_index, dpi, jpeg_quality) → bytes.
package pdfrender

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"

	"github.com/spherical/vppe/internal/domain"
)

// Renderer opens PDFs with go-fitz and rasterizes individual pages. It
// implements domain.Renderer. One Renderer instance is shared across
// jobs; each job's opened document is tracked independently, since
// rendering one job's pages must not block another job's, since each
// job's pipeline forms its own task group.
type Renderer struct {
	mu    sync.Mutex
	docs  map[string]*fitz.Document

	// MaxDimension caps the longest side of a rendered page before
	// JPEG encoding (SPEC_FULL.md's supplemented max_image_dimension).
	// Zero disables the cap.
	MaxDimension int
}

// New creates a Renderer with the given downscale cap.
func New(maxDimension int) *Renderer {
	return &Renderer{
		docs:         make(map[string]*fitz.Document),
		MaxDimension: maxDimension,
	}
}

// Open validates and opens pdfPath, returning its page count.
// Calling Open twice for the same path is a no-op that returns the
// already-known page count.
func (r *Renderer) Open(ctx context.Context, pdfPath string) (int, error) {
	if err := validatePath(pdfPath); err != nil {
		return 0, domain.NewPageRenderError("invalid PDF path", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if doc, ok := r.docs[pdfPath]; ok {
		return doc.NumPage(), nil
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return 0, domain.NewPageRenderError("failed to open PDF", err)
	}
	r.docs[pdfPath] = doc

	count := doc.NumPage()
	if count == 0 {
		delete(r.docs, pdfPath)
		doc.Close()
		return 0, domain.NewPageRenderError("PDF has no pages", nil)
	}
	return count, nil
}

// Render rasterizes one 0-based page index to JPEG bytes at the given DPI
// and quality. It is deterministic given (pdf, page_index, dpi,
// quality) and has no other side effects. Rendering is CPU-bound; callers
// run it on a worker goroutine, never on the coordinating task.
func (r *Renderer) Render(ctx context.Context, pdfPath string, pageIndex int, dpi, jpegQuality int) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	r.mu.Lock()
	doc, ok := r.docs[pdfPath]
	r.mu.Unlock()
	if !ok {
		return nil, domain.NewPageRenderError(fmt.Sprintf("PDF %s is not open", pdfPath), nil)
	}

	if pageIndex < 0 || pageIndex >= doc.NumPage() {
		// Invalid index is a programmer error, surfaced as such.
		panic(fmt.Sprintf("pdfrender: page index %d out of range [0,%d)", pageIndex, doc.NumPage()))
	}

	img, err := renderImage(doc, pageIndex, dpi)
	if err != nil {
		return nil, domain.NewPageRenderError(fmt.Sprintf("failed to rasterize page %d", pageIndex), err)
	}

	img = capDimension(img, r.MaxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, domain.NewPageRenderError(fmt.Sprintf("failed to encode page %d as JPEG", pageIndex), err)
	}
	return buf.Bytes(), nil
}

// Close releases the opened PDF handle for pdfPath, if any.
func (r *Renderer) Close(pdfPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[pdfPath]
	if !ok {
		return nil
	}
	delete(r.docs, pdfPath)
	return doc.Close()
}

// renderImage rasterizes at dpi/72 zoom, matching
// original_source/app/pipeline/renderer.py's _render_page formula exactly.
func renderImage(doc *fitz.Document, pageIndex, dpi int) (image.Image, error) {
	if dpi <= 0 {
		return doc.Image(pageIndex)
	}
	return doc.ImageDPI(pageIndex, float64(dpi))
}

// capDimension downscales img proportionally if its longest side exceeds
// max, using Lanczos resampling (SPEC_FULL.md's supplemented
// max_image_dimension cap). max <= 0 disables the cap.
func capDimension(img image.Image, max int) image.Image {
	if max <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= max && h <= max {
		return img
	}
	if w >= h {
		return imaging.Resize(img, max, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, max, imaging.Lanczos)
}

func validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if !strings.EqualFold(strings.TrimPrefix(extOf(path), "."), "pdf") {
		return fmt.Errorf("file is not a PDF: %s", path)
	}
	return nil
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}
