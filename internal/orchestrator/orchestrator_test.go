package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/spherical/vppe/internal/domain"
	"github.com/spherical/vppe/internal/events"
	"github.com/spherical/vppe/internal/observability"
	"github.com/spherical/vppe/internal/registry"
)

// fakeRenderer returns deterministic "page N" bytes, optionally failing
// a configured set of pages.
type fakeRenderer struct {
	pageCount int
	failPages map[int]bool
}

func (f *fakeRenderer) Open(ctx context.Context, pdfPath string) (int, error) {
	return f.pageCount, nil
}

func (f *fakeRenderer) Render(ctx context.Context, pdfPath string, pageIndex int, dpi, jpegQuality int) ([]byte, error) {
	if f.failPages != nil && f.failPages[pageIndex] {
		return nil, domain.NewPageRenderError("render failed", nil)
	}
	return []byte(fmt.Sprintf("page-%d-bytes", pageIndex)), nil
}

func (f *fakeRenderer) Close(pdfPath string) error { return nil }

// fakeOCR fails a configured set of pages and otherwise echoes input.
type fakeOCR struct {
	mu        sync.Mutex
	failPages map[int]bool
}

func (f *fakeOCR) OCR(ctx context.Context, imageBytes []byte, prompt string) (string, error) {
	text := string(imageBytes)
	f.mu.Lock()
	defer f.mu.Unlock()
	for p := range f.failPages {
		if text == fmt.Sprintf("page-%d-bytes", p) {
			return "", domain.NewPageOCRError("ocr failed", nil)
		}
	}
	return "text:" + text, nil
}

// fakeAssembler records the request it was asked to assemble.
type fakeAssembler struct {
	mu      sync.Mutex
	lastReq domain.AssembleRequest
	failErr error
}

func (f *fakeAssembler) Assemble(ctx context.Context, req domain.AssembleRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	return f.failErr
}

func newTestOrchestrator(t *testing.T, renderer domain.Renderer, ocr domain.OCRClient, asm domain.Assembler) (*Orchestrator, *registry.Registry, *events.Registry) {
	dir := t.TempDir()
	reg := registry.New(dir, observability.DefaultLogger())
	bus := events.NewRegistry(50)
	o := New(Config{
		Renderer:        renderer,
		OCR:             ocr,
		Assembler:       asm,
		Registry:        reg,
		Bus:             bus,
		DataDir:         dir,
		RenderDPI:       300,
		JPEGQuality:     85,
		OCRWorkers:      2,
		RenderQueueSize: 4,
		PagesPerChapter: 20,
		DefaultPrompt:   "extract",
	})
	return o, reg, bus
}

func TestRunSuccessfulJobCompletes(t *testing.T) {
	renderer := &fakeRenderer{pageCount: 3}
	ocr := &fakeOCR{}
	asm := &fakeAssembler{}
	o, reg, busReg := newTestOrchestrator(t, renderer, ocr, asm)

	job := domain.NewJob("job-1", "book.pdf", "en", "extract", 3)
	if err := reg.Create(job); err != nil {
		t.Fatal(err)
	}

	o.Run(context.Background(), "job-1", nil)

	got, err := reg.Get("job-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.JobCompleted {
		t.Fatalf("expected completed job, got %q (error=%q)", got.Status, got.Error)
	}
	if got.PagesSucceeded() != 3 {
		t.Errorf("expected 3 succeeded pages, got %d", got.PagesSucceeded())
	}

	if asm.lastReq.TotalPages != 3 {
		t.Errorf("expected assembler called with 3 total pages, got %d", asm.lastReq.TotalPages)
	}

	// Run blocks until the job is terminal, so by the time it returns the
	// bus it used (now closed) holds the whole run's event history.
	collected := busReg.GetOrCreate("job-1").Snapshot()
	var sawStarted, sawAssembling, sawCompleted bool
	for _, evt := range collected {
		switch evt.Name {
		case "job.started":
			sawStarted = true
		case "job.assembling":
			sawAssembling = true
		case "job.completed":
			sawCompleted = true
		}
	}
	if !sawStarted || !sawAssembling || !sawCompleted {
		t.Errorf("missing lifecycle events: %+v", collected)
	}
}

func TestRunContinuesPastFailedPage(t *testing.T) {
	renderer := &fakeRenderer{pageCount: 3}
	ocr := &fakeOCR{failPages: map[int]bool{1: true}}
	asm := &fakeAssembler{}
	o, reg, _ := newTestOrchestrator(t, renderer, ocr, asm)

	job := domain.NewJob("job-1", "book.pdf", "en", "extract", 3)
	reg.Create(job)

	o.Run(context.Background(), "job-1", nil)

	got, _ := reg.Get("job-1")
	if got.Status != domain.JobCompleted {
		t.Fatalf("one failed page must not abort the job, got status %q", got.Status)
	}
	if got.PagesFailed() != 1 || got.PagesSucceeded() != 2 {
		t.Errorf("expected 1 failed, 2 succeeded, got failed=%d succeeded=%d", got.PagesFailed(), got.PagesSucceeded())
	}
	if len(got.FailedPageNumbers()) != 1 || got.FailedPageNumbers()[0] != 1 {
		t.Errorf("expected failed page [1], got %v", got.FailedPageNumbers())
	}
}

func TestRunRetryOnlyReprocessesGivenPages(t *testing.T) {
	renderer := &fakeRenderer{pageCount: 3}
	ocr := &fakeOCR{}
	asm := &fakeAssembler{}
	o, reg, _ := newTestOrchestrator(t, renderer, ocr, asm)

	job := domain.NewJob("job-1", "book.pdf", "en", "extract", 3)
	job.Pages[0].Status = domain.PageSuccess
	job.Pages[0].Text = "already done"
	job.Pages[2].Status = domain.PageSuccess
	job.Pages[2].Text = "also done"
	reg.Create(job)

	o.Run(context.Background(), "job-1", []int{1})

	got, _ := reg.Get("job-1")
	if got.Pages[0].Text != "already done" || got.Pages[2].Text != "also done" {
		t.Error("retry must not touch pages outside the retry set")
	}
	if got.Pages[1].Status != domain.PageSuccess {
		t.Errorf("expected retried page to succeed, got %q", got.Pages[1].Status)
	}
}

func TestRunEmitsEventsOnRetryAfterFirstRunClosedBus(t *testing.T) {
	renderer := &fakeRenderer{pageCount: 3}
	ocr := &fakeOCR{failPages: map[int]bool{1: true}}
	asm := &fakeAssembler{}
	o, reg, busReg := newTestOrchestrator(t, renderer, ocr, asm)

	job := domain.NewJob("job-1", "book.pdf", "en", "extract", 3)
	reg.Create(job)

	o.Run(context.Background(), "job-1", nil)
	firstRunBus := busReg.GetOrCreate("job-1")
	if len(firstRunBus.Snapshot()) == 0 {
		t.Fatal("expected the first run to leave events on its bus")
	}

	// The first run's bus is now closed. StartRun (called internally by
	// Run) must install a fresh one for the retry rather than reusing the
	// closed bus, or the retry's events would be silently dropped.
	ocr.failPages = nil
	o.Run(context.Background(), "job-1", []int{1})

	retryBus := busReg.GetOrCreate("job-1")
	if retryBus == firstRunBus {
		t.Fatal("expected the retry run to use a fresh bus, not the first run's closed one")
	}
	retryEvents := retryBus.Snapshot()
	if len(retryEvents) == 0 {
		t.Fatal("expected the retry run to emit events on the fresh bus, got none")
	}
	var sawCompleted bool
	for _, evt := range retryEvents {
		if evt.Name == "job.completed" {
			sawCompleted = true
		}
	}
	if !sawCompleted {
		t.Errorf("expected job.completed among retry events, got %+v", retryEvents)
	}
}

func TestRunRenderFailureFailsJob(t *testing.T) {
	renderer := &fakeRenderer{pageCount: 2, failPages: map[int]bool{0: true}}
	ocr := &fakeOCR{}
	asm := &fakeAssembler{}
	o, reg, _ := newTestOrchestrator(t, renderer, ocr, asm)

	job := domain.NewJob("job-1", "book.pdf", "en", "extract", 2)
	reg.Create(job)

	o.Run(context.Background(), "job-1", nil)

	got, _ := reg.Get("job-1")
	if got.Status != domain.JobFailed {
		t.Errorf("expected job to fail when rendering fails, got %q", got.Status)
	}
}
