package domain

import "context"

// Renderer rasterizes one PDF page to a JPEG byte buffer at a configured
// DPI/quality. Implementations hold no state beyond the opened PDF handle
// and must be safe to call from the render goroutine only.
type Renderer interface {
	// Open prepares a PDF for rendering and returns its page count.
	Open(ctx context.Context, pdfPath string) (pageCount int, err error)

	// Render produces the JPEG bytes for one 0-based page index. pdfPath
	// identifies which opened handle to use (implementations may cache).
	Render(ctx context.Context, pdfPath string, pageIndex int, dpi, jpegQuality int) ([]byte, error)

	// Close releases any opened PDF handle for pdfPath.
	Close(pdfPath string) error
}

// OCRClient posts a page image plus prompt to the vision model and
// returns the recognized text.
type OCRClient interface {
	OCR(ctx context.Context, imageBytes []byte, prompt string) (string, error)
}

// Assembler builds an EPUB3 file from ordered per-page text.
type Assembler interface {
	Assemble(ctx context.Context, req AssembleRequest) error
}

// AssembleRequest carries everything the Assembler needs to produce one
// EPUB file, independent of the Job type so it can be unit tested with
// plain data.
type AssembleRequest struct {
	JobID         string
	Title         string
	Language      string
	TotalPages    int
	PagesPerChapter int
	PageText      map[int]string // page index -> text; absent/empty means failed page
	OutputPath    string
}
