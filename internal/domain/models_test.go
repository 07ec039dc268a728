package domain

import "testing"

func TestNewJobCreatesOnePageResultPerPage(t *testing.T) {
	job := NewJob("abc123", "book.pdf", "fa", "", 3)

	if len(job.Pages) != 3 {
		t.Fatalf("got %d pages, want 3", len(job.Pages))
	}
	for i := 0; i < 3; i++ {
		p, ok := job.Pages[i]
		if !ok {
			t.Fatalf("missing PageResult for page %d", i)
		}
		if p.Status != PagePending {
			t.Errorf("page %d status = %s, want pending", i, p.Status)
		}
	}
}

func TestDerivedCounters(t *testing.T) {
	job := NewJob("abc123", "book.pdf", "en", "", 4)
	job.Pages[0].Status = PageSuccess
	job.Pages[1].Status = PageSuccess
	job.Pages[2].Status = PageFailed
	job.Pages[3].Status = PagePending

	if got := job.PagesSucceeded(); got != 2 {
		t.Errorf("PagesSucceeded() = %d, want 2", got)
	}
	if got := job.PagesFailed(); got != 1 {
		t.Errorf("PagesFailed() = %d, want 1", got)
	}
	if got := job.PagesCompleted(); got != 3 {
		t.Errorf("PagesCompleted() = %d, want 3", got)
	}
	if got := job.PagesCompleted(); got > job.TotalPages {
		t.Errorf("PagesCompleted() = %d exceeds TotalPages = %d", got, job.TotalPages)
	}
}

func TestFailedPageNumbersAscending(t *testing.T) {
	job := NewJob("abc123", "book.pdf", "en", "", 5)
	job.Pages[3].Status = PageFailed
	job.Pages[1].Status = PageFailed
	job.Pages[4].Status = PageFailed

	got := job.FailedPageNumbers()
	want := []int{1, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("FailedPageNumbers()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestOnDiskPaths(t *testing.T) {
	job := NewJob("deadbeef1234", "book.pdf", "en", "", 1)
	dataDir := "/tmp/vppe-data"

	cases := map[string]string{
		"JobDir":   job.JobDir(dataDir),
		"PDFPath":  job.PDFPath(dataDir),
		"EPUBPath": job.EPUBPath(dataDir),
	}
	for name, got := range cases {
		if got == "" {
			t.Errorf("%s returned empty path", name)
		}
	}
	if job.PageTextPath(dataDir, 7) == job.PageTextPath(dataDir, 8) {
		t.Error("PageTextPath should differ by page index")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	job := NewJob("abc123", "book.pdf", "en", "", 2)
	clone := job.Clone()
	clone.Pages[0].Status = PageSuccess

	if job.Pages[0].Status == PageSuccess {
		t.Error("mutating clone mutated original")
	}
}

func TestErrorKindPropagation(t *testing.T) {
	err := NewPageOCRError("ocr failed", nil)
	de, ok := AsDomainError(err)
	if !ok {
		t.Fatal("expected *Error")
	}
	if de.Kind != KindPageOCRError {
		t.Errorf("Kind = %s, want %s", de.Kind, KindPageOCRError)
	}
}
