// Package orchestrator coordinates the bounded async pipeline:
// one render producer, N OCR worker goroutines pulling from a bounded
// channel, and an assembly phase, with per-page events on the job's
// event bus and continue-on-error semantics so one page whose OCR fails
// never aborts the job. A page that fails to render is not isolated the
// same way: the first render error stops the producer and marks the
// whole job failed. Generalized from internal/extract/service.go's
// per-page emit/continue-on-error loop, restructured around
// original_source/app/pipeline/orchestrator.py's producer/worker-pool
// shape (Go channels and a WaitGroup standing in for asyncio.Queue and
// the semaphore-guarded worker tasks).
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spherical/vppe/internal/domain"
	"github.com/spherical/vppe/internal/events"
	"github.com/spherical/vppe/internal/observability"
	"github.com/spherical/vppe/internal/registry"
)

// Orchestrator runs the render -> OCR -> assemble pipeline for jobs,
// coded against explicit capability interfaces rather than concrete
// clients, so tests can swap in fakes.
type Orchestrator struct {
	renderer domain.Renderer
	ocr      domain.OCRClient
	asm      domain.Assembler
	reg      *registry.Registry
	bus      *events.Registry
	log      *observability.Logger

	dataDir         string
	renderDPI       int
	jpegQuality     int
	ocrWorkers      int
	renderQueueSize int
	pagesPerChapter int
	defaultPrompt   string
}

// Config configures an Orchestrator.
type Config struct {
	Renderer domain.Renderer
	OCR      domain.OCRClient
	Assembler domain.Assembler
	Registry *registry.Registry
	Bus      *events.Registry
	Logger   *observability.Logger

	DataDir         string
	RenderDPI       int
	JPEGQuality     int
	OCRWorkers      int
	RenderQueueSize int
	PagesPerChapter int
	DefaultPrompt   string
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &Orchestrator{
		renderer:        cfg.Renderer,
		ocr:             cfg.OCR,
		asm:             cfg.Assembler,
		reg:             cfg.Registry,
		bus:             cfg.Bus,
		log:             logger.WithComponent("orchestrator"),
		dataDir:         cfg.DataDir,
		renderDPI:       cfg.RenderDPI,
		jpegQuality:     cfg.JPEGQuality,
		ocrWorkers:      cfg.OCRWorkers,
		renderQueueSize: cfg.RenderQueueSize,
		pagesPerChapter: cfg.PagesPerChapter,
		defaultPrompt:   cfg.DefaultPrompt,
	}
}

// renderedPage is one item moving through the bounded render-to-OCR
// channel, the Go analogue of orchestrator.py's image_queue items.
type renderedPage struct {
	page  int
	bytes []byte
}

// Run executes the full pipeline for job. If pages is non-nil,
// only those 0-based page indices are (re-)rendered and OCR'd; every
// other page keeps its existing PageResult, matching the retry protocol
// for re-processing a subset of pages. Run blocks until the job reaches
// a terminal status; callers run it on its own goroutine.
func (o *Orchestrator) Run(ctx context.Context, jobID string, pages []int) {
	bus := o.bus.StartRun(jobID)
	defer bus.Close()

	job, err := o.reg.Get(jobID)
	if err != nil {
		o.log.Error().Str("job_id", jobID).Err(err).Msg("job vanished before pipeline start")
		return
	}

	now := time.Now()
	o.reg.Update(jobID, func(j *domain.Job) {
		j.Status = domain.JobProcessing
		j.StartedAt = &now
	})
	bus.Emit("job.started", map[string]interface{}{
		"job_id":      jobID,
		"total_pages": job.TotalPages,
		"status":      "processing",
	})

	pdfPath := job.PDFPath(o.dataDir)
	pageCount, err := o.renderer.Open(ctx, pdfPath)
	if err != nil {
		o.failJob(jobID, bus, err)
		return
	}
	defer o.renderer.Close(pdfPath)

	pageSet := toPageSet(pages)
	prompt := job.OCRPrompt
	if prompt == "" {
		prompt = o.defaultPrompt
	}

	renderCh := make(chan renderedPage, o.renderQueueSize)
	var producerErr error

	go o.produce(ctx, pdfPath, pageCount, job.RenderDPI, job.JPEGQuality, pageSet, renderCh, &producerErr)

	var wg sync.WaitGroup
	workers := o.ocrWorkers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.consume(ctx, jobID, bus, prompt, renderCh)
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		o.failJob(jobID, bus, ctx.Err())
		return
	}
	if producerErr != nil {
		o.failJob(jobID, bus, producerErr)
		return
	}

	o.assemble(ctx, jobID, bus)
}

// produce renders every page in pageSet (or every page if pageSet is
// nil) and pushes it onto renderCh, closing the channel when done so
// consumers' range loops terminate, the Go equivalent of orchestrator.py
// pushing a SENTINEL.
func (o *Orchestrator) produce(ctx context.Context, pdfPath string, pageCount, dpi, jpegQuality int, pageSet map[int]bool, out chan<- renderedPage, producerErr *error) {
	defer close(out)

	for page := 0; page < pageCount; page++ {
		if pageSet != nil && !pageSet[page] {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		bytes, err := o.renderer.Render(ctx, pdfPath, page, dpi, jpegQuality)
		if err != nil {
			o.log.Error().Int("page", page).Err(err).Msg("render failed")
			*producerErr = err
			return
		}

		select {
		case out <- renderedPage{page: page, bytes: bytes}:
		case <-ctx.Done():
			return
		}
	}
}

// consume pulls rendered pages off renderCh and OCRs them, continuing
// past any single page's failure so one bad page never aborts the job
// (generalized from internal/extract/service.go's continue-on-error
// loop). Page state is persisted to the registry after every page,
// checkpointing progress in case of a crash mid-job.
func (o *Orchestrator) consume(ctx context.Context, jobID string, bus *events.Bus, prompt string, in <-chan renderedPage) {
	for item := range in {
		o.reg.Update(jobID, func(j *domain.Job) {
			j.Pages[item.page].Status = domain.PageProcessing
		})

		text, ocrErr := o.ocr.OCR(ctx, item.bytes, prompt)

		var job *domain.Job
		if ocrErr != nil {
			o.log.Error().Int("page", item.page).Err(ocrErr).Msg("OCR failed")
			o.reg.Update(jobID, func(j *domain.Job) {
				j.Pages[item.page].Status = domain.PageFailed
				j.Pages[item.page].Error = ocrErr.Error()
			})
			job, _ = o.reg.Get(jobID)
			bus.Emit("page.completed", map[string]interface{}{
				"page":        item.page,
				"total_pages": job.TotalPages,
				"status":      "failed",
				"error":       ocrErr.Error(),
			})
			continue
		}

		if err := writePageText(jobID, item.page, text, o.dataDir, o.reg); err != nil {
			o.log.Error().Int("page", item.page).Err(err).Msg("failed to checkpoint page text")
		}

		o.reg.Update(jobID, func(j *domain.Job) {
			j.Pages[item.page].Status = domain.PageSuccess
			j.Pages[item.page].Text = text
		})
		job, _ = o.reg.Get(jobID)

		preview := text
		if runes := []rune(preview); len(runes) > 200 {
			preview = string(runes[:200])
		}
		bus.Emit("page.completed", map[string]interface{}{
			"page":         item.page,
			"total_pages":  job.TotalPages,
			"status":       "success",
			"text_preview": preview,
		})
	}
}

// writePageText persists page text to disk before the registry update
// that flips the page's status, so a crash between the two leaves the
// page's on-disk text recoverable even though the in-memory/registry
// status write did not complete.
func writePageText(jobID string, page int, text, dataDir string, reg *registry.Registry) error {
	j, err := reg.Get(jobID)
	if err != nil {
		return err
	}
	path := j.PageTextPath(dataDir, page)
	if err := os.MkdirAll(dirOf(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// assemble runs the assembly phase: build the EPUB from
// every successfully OCR'd page, then mark the job completed or failed.
func (o *Orchestrator) assemble(ctx context.Context, jobID string, bus *events.Bus) {
	o.reg.Update(jobID, func(j *domain.Job) {
		j.Status = domain.JobAssembling
	})
	job, _ := o.reg.Get(jobID)

	bus.Emit("job.assembling", map[string]interface{}{
		"pages_succeeded": job.PagesSucceeded(),
		"pages_failed":    job.PagesFailed(),
	})

	pageText := make(map[int]string, job.TotalPages)
	for idx, p := range job.Pages {
		if p.Status == domain.PageSuccess {
			pageText[idx] = p.Text
		}
	}

	title := job.PDFFilename
	if title == "" {
		title = "Converted Book"
	}

	err := o.asm.Assemble(ctx, domain.AssembleRequest{
		JobID:           job.ID,
		Title:           title,
		Language:        job.Language,
		TotalPages:      job.TotalPages,
		PagesPerChapter: o.pagesPerChapter,
		PageText:        pageText,
		OutputPath:      job.EPUBPath(o.dataDir),
	})
	if err != nil {
		o.failJob(jobID, bus, err)
		return
	}

	completedAt := time.Now()
	o.reg.Update(jobID, func(j *domain.Job) {
		j.Status = domain.JobCompleted
		j.CompletedAt = &completedAt
	})
	job, _ = o.reg.Get(jobID)

	started := job.CreatedAt
	if job.StartedAt != nil {
		started = *job.StartedAt
	}
	duration := completedAt.Sub(started)

	bus.Emit("job.completed", map[string]interface{}{
		"download_url":     fmt.Sprintf("/api/jobs/%s/result", job.ID),
		"duration_seconds": duration.Seconds(),
		"pages_succeeded":  job.PagesSucceeded(),
		"failed_pages":     job.FailedPageNumbers(),
	})
}

// failJob marks the job failed and emits job.failed.
func (o *Orchestrator) failJob(jobID string, bus *events.Bus, err error) {
	completedAt := time.Now()
	o.reg.Update(jobID, func(j *domain.Job) {
		j.Status = domain.JobFailed
		j.Error = err.Error()
		j.CompletedAt = &completedAt
	})
	bus.Emit("job.failed", map[string]interface{}{"error": err.Error()})
}

// toPageSet converts a nil-or-list of page numbers into a membership set.
// A nil input (the normal, non-retry path) means "every page".
func toPageSet(pages []int) map[int]bool {
	if pages == nil {
		return nil
	}
	set := make(map[int]bool, len(pages))
	for _, p := range pages {
		set[p] = true
	}
	return set
}
