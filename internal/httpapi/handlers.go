package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spherical/vppe/internal/cleanup"
	"github.com/spherical/vppe/internal/config"
	"github.com/spherical/vppe/internal/domain"
	"github.com/spherical/vppe/internal/events"
	"github.com/spherical/vppe/internal/observability"
	"github.com/spherical/vppe/internal/orchestrator"
	"github.com/spherical/vppe/internal/registry"
)

// maxUploadMemory bounds how much of a multipart upload FormFile buffers
// in memory before spilling to a temp file, matching
// jupark12-go-job-queue/server/server.go's ParseMultipartForm(10<<20).
const maxUploadMemory = 10 << 20

// Handler holds the dependencies every route needs.
type Handler struct {
	cfg      *config.Config
	reg      *registry.Registry
	bus      *events.Registry
	orch     *orchestrator.Orchestrator
	renderer domain.Renderer
	sweeper  *cleanup.Sweeper
	log      *observability.Logger
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps a domain.Error's Kind to its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	dErr, ok := domain.AsDomainError(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	switch dErr.Kind {
	case domain.KindNotFound:
		writeError(w, http.StatusNotFound, dErr.Message)
	case domain.KindConflictState:
		writeError(w, http.StatusConflict, dErr.Message)
	case domain.KindGone:
		writeError(w, http.StatusGone, dErr.Message)
	case domain.KindBadRequest:
		writeError(w, http.StatusBadRequest, dErr.Message)
	default:
		writeError(w, http.StatusInternalServerError, dErr.Message)
	}
}

// CreateJob handles POST /api/jobs: uploads a PDF, counts its pages, and
// starts the pipeline in the background.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if header.Filename == "" || !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, "file must be a PDF")
		return
	}

	language := r.FormValue("language")
	if language == "" {
		language = "fa"
	}
	ocrPrompt := r.FormValue("ocr_prompt")

	jobID := uuid.New().String()[:12]
	job := domain.NewJob(jobID, header.Filename, language, ocrPrompt, 0)
	job.RenderDPI = h.cfg.RenderDPI
	job.JPEGQuality = h.cfg.JPEGQuality

	if err := h.reg.Create(job); err != nil {
		writeDomainError(w, err)
		return
	}

	pdfPath := job.PDFPath(h.cfg.DataDir)
	if err := os.MkdirAll(dirOf(pdfPath), 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create job directory")
		return
	}
	out, err := os.Create(pdfPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save upload")
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		writeError(w, http.StatusInternalServerError, "failed to save upload")
		return
	}
	out.Close()

	totalPages, err := h.renderer.Open(r.Context(), pdfPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("could not read PDF: %v", err))
		return
	}

	if err := h.reg.Update(jobID, func(j *domain.Job) {
		j.TotalPages = totalPages
		for i := 0; i < totalPages; i++ {
			j.Pages[i] = &domain.PageResult{Page: i, Status: domain.PagePending}
		}
	}); err != nil {
		writeDomainError(w, err)
		return
	}

	go h.orch.Run(context.Background(), jobID, nil)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":      jobID,
		"total_pages": totalPages,
	})
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// ListJobs handles GET /api/jobs: returns a status summary for every
// known job, oldest first. This supplements the per-job routes below
// with the listing surface the admin CLI needs (DESIGN.md).
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.reg.All()
	summaries := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, jobSummaryJSON(job))
	}
	writeJSON(w, http.StatusOK, summaries)
}

// ForceCleanup handles POST /api/admin/cleanup: runs one TTL sweep
// immediately instead of waiting for the next scheduled pass,
// for the admin CLI's force-cleanup command.
func (h *Handler) ForceCleanup(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		writeError(w, http.StatusNotImplemented, "cleanup sweeper not configured")
		return
	}
	h.sweeper.Sweep()
	writeJSON(w, http.StatusOK, map[string]string{"status": "swept"})
}

// GetJob handles GET /api/jobs/{jobID}: returns the job's current status
// summary.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := h.reg.Get(jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jobSummaryJSON(job))
}

// jobSummaryJSON builds the status summary shape GET /api/jobs/{id}
// returns, reused by the list endpoint.
func jobSummaryJSON(job *domain.Job) map[string]interface{} {
	return map[string]interface{}{
		"id":              job.ID,
		"status":          job.Status,
		"total_pages":     job.TotalPages,
		"pages_succeeded": job.PagesSucceeded(),
		"pages_failed":    job.PagesFailed(),
		"pages_completed": job.PagesCompleted(),
		"failed_pages":    job.FailedPageNumbers(),
		"pdf_filename":    job.PDFFilename,
		"language":        job.Language,
		"created_at":      job.CreatedAt,
		"started_at":      job.StartedAt,
		"completed_at":    job.CompletedAt,
		"error":           job.Error,
	}
}

// DownloadResult handles GET /api/jobs/{jobID}/result: streams the
// finished EPUB.
func (h *Handler) DownloadResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := h.reg.Get(jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if job.Status != domain.JobCompleted {
		writeError(w, http.StatusBadRequest, "job not completed yet")
		return
	}

	epubPath := job.EPUBPath(h.cfg.DataDir)
	if _, err := os.Stat(epubPath); err != nil {
		writeError(w, http.StatusNotFound, "EPUB file not found")
		return
	}

	filename := strings.TrimSuffix(job.PDFFilename, ".pdf")
	if filename == "" {
		filename = "book"
	}
	filename += ".epub"

	w.Header().Set("Content-Type", "application/epub+zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	http.ServeFile(w, r, epubPath)
}

// RetryFailedPages handles POST /api/jobs/{jobID}/retry: resets every
// failed page and restarts the pipeline scoped to just those pages.
func (h *Handler) RetryFailedPages(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := h.reg.Get(jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !job.Status.IsTerminal() {
		writeDomainError(w, domain.NewConflictStateError("job is still processing"))
		return
	}

	failed := job.FailedPageNumbers()
	if len(failed) == 0 {
		writeError(w, http.StatusBadRequest, "no failed pages to retry")
		return
	}

	pdfPath := job.PDFPath(h.cfg.DataDir)
	if _, err := os.Stat(pdfPath); err != nil {
		writeDomainError(w, domain.NewGoneError("source PDF has been cleaned up"))
		return
	}

	if err := h.reg.Update(jobID, func(j *domain.Job) {
		for _, page := range failed {
			j.Pages[page] = &domain.PageResult{Page: page, Status: domain.PagePending}
		}
	}); err != nil {
		writeDomainError(w, err)
		return
	}

	go h.orch.Run(context.Background(), jobID, failed)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":         jobID,
		"retrying_pages": failed,
	})
}

// JobEvents handles GET /api/jobs/{jobID}/events: an SSE stream of job
// progress, resuming from Last-Event-ID if present.
func (h *Handler) JobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, err := h.reg.Get(jobID); err != nil {
		writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var afterID *int
	if lastIDHeader := r.Header.Get("Last-Event-ID"); lastIDHeader != "" {
		if n, err := strconv.Atoi(lastIDHeader); err == nil {
			afterID = &n
		}
	}

	bus := h.bus.GetOrCreate(jobID)
	ch, unsubscribe := bus.Subscribe(afterID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeSSEEvent(w, evt)
			flusher.Flush()
			ping.Reset(30 * time.Second)
		case <-ping.C:
			// No event for 30s: send a keepalive ping event so
			// intermediaries and the client's reconnect timer don't treat
			// the connection as dead. Pings are transport-level and never
			// recorded in the event bus.
			fmt.Fprint(w, "event: ping\ndata:\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt events.Event) {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		data = []byte("{}")
	}
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.ID, evt.Name, data)
}
