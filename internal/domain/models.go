package domain

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"
)

// JobStatus is the Job's lifecycle state. The total order of
// terminal states is not implied by this enum's declaration order.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobAssembling JobStatus = "assembling"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// IsTerminal reports whether a Job in this status is done (no further
// pipeline activity will occur without an explicit retry).
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// PageStatus is one page's OCR progress.
type PageStatus string

const (
	PagePending    PageStatus = "pending"
	PageProcessing PageStatus = "processing"
	PageSuccess    PageStatus = "success"
	PageFailed     PageStatus = "failed"
)

// PageResult is the per-page record. Exactly one exists per page index
// from job creation onward.
type PageResult struct {
	Page   int        `json:"page"`
	Status PageStatus `json:"status"`
	Text   string     `json:"text,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Job is the conversion unit of work. It is plain data: the
// orchestrator is the sole mutator while its pipeline runs; everything
// else observes through registry snapshots.
type Job struct {
	ID             string             `json:"id"`
	Status         JobStatus          `json:"status"`
	PDFFilename    string             `json:"pdf_filename"`
	Language       string             `json:"language"`
	OCRPrompt      string             `json:"ocr_prompt,omitempty"`
	RenderDPI      int                `json:"render_dpi,omitempty"`
	JPEGQuality    int                `json:"jpeg_quality,omitempty"`
	TotalPages     int                `json:"total_pages"`
	Pages          map[int]*PageResult `json:"pages"`
	CreatedAt      time.Time          `json:"created_at"`
	StartedAt      *time.Time         `json:"started_at,omitempty"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// NewJob creates a pending Job with one PageResult per page, matching
// "exactly one PageResult per page exists from job creation onward".
func NewJob(id, pdfFilename, language, ocrPrompt string, totalPages int) *Job {
	pages := make(map[int]*PageResult, totalPages)
	for i := 0; i < totalPages; i++ {
		pages[i] = &PageResult{Page: i, Status: PagePending}
	}
	return &Job{
		ID:          id,
		Status:      JobPending,
		PDFFilename: pdfFilename,
		Language:    language,
		OCRPrompt:   ocrPrompt,
		TotalPages:  totalPages,
		Pages:       pages,
		CreatedAt:   time.Now(),
	}
}

// PagesSucceeded is derived, never stored primary.
func (j *Job) PagesSucceeded() int {
	n := 0
	for _, p := range j.Pages {
		if p.Status == PageSuccess {
			n++
		}
	}
	return n
}

// PagesFailed is derived, never stored primary.
func (j *Job) PagesFailed() int {
	n := 0
	for _, p := range j.Pages {
		if p.Status == PageFailed {
			n++
		}
	}
	return n
}

// PagesCompleted is succeeded + failed.
func (j *Job) PagesCompleted() int {
	return j.PagesSucceeded() + j.PagesFailed()
}

// FailedPageNumbers returns failed page indices in ascending order.
func (j *Job) FailedPageNumbers() []int {
	out := make([]int, 0, len(j.Pages))
	for idx, p := range j.Pages {
		if p.Status == PageFailed {
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out
}

// JobDir is the on-disk directory for this job under dataDir.
func (j *Job) JobDir(dataDir string) string {
	return filepath.Join(dataDir, "jobs", j.ID)
}

// PDFPath is the stored source PDF path.
func (j *Job) PDFPath(dataDir string) string {
	return filepath.Join(j.JobDir(dataDir), "input.pdf")
}

// EPUBPath is the final artifact path, present iff status is completed.
func (j *Job) EPUBPath(dataDir string) string {
	return filepath.Join(j.JobDir(dataDir), "output.epub")
}

// JobMetaPath is the persisted job.json path.
func (j *Job) JobMetaPath(dataDir string) string {
	return filepath.Join(j.JobDir(dataDir), "job.json")
}

// PageTextPath is the per-page extracted text file, zero-padded.
func (j *Job) PageTextPath(dataDir string, page int) string {
	return filepath.Join(j.JobDir(dataDir), "pages", fmt.Sprintf("%05d.txt", page))
}

// Clone returns a deep copy suitable for snapshot reads.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Pages = make(map[int]*PageResult, len(j.Pages))
	for idx, p := range j.Pages {
		pc := *p
		cp.Pages[idx] = &pc
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
