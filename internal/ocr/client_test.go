package ocr

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spherical/vppe/internal/domain"
)

func newTestClient(url string, maxRetries int) *Client {
	return New(Config{
		BaseURL:    url,
		Model:      "qwen2.5-vl:7b",
		Timeout:    5 * time.Second,
		MaxRetries: maxRetries,
	})
}

func TestOCRSucceedsOnFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{Message: chatResponseMessage{Content: "hello page"}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	text, err := c.OCR(t.Context(), []byte("fake-jpeg"), "extract text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello page" {
		t.Errorf("got %q, want %q", text, "hello page")
	}
}

func TestOCRRetriesOn500ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(chatResponse{Message: chatResponseMessage{Content: "recovered"}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	start := time.Now()
	text, err := c.OCR(t.Context(), []byte("x"), "p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "recovered" {
		t.Errorf("got %q", text)
	}
	if elapsed := time.Since(start); elapsed < 1*time.Second {
		t.Errorf("expected backoff delay, took only %v", elapsed)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestOCRNonRetryable4xxFailsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	_, err := c.OCR(t.Context(), []byte("x"), "p")
	if err == nil {
		t.Fatal("expected error")
	}
	dErr, ok := domain.AsDomainError(err)
	if !ok || dErr.Kind != domain.KindPageOCRError {
		t.Errorf("expected KindPageOCRError, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected exactly 1 call for non-retryable status, got %d", calls)
	}
}

func TestOCREmptyTextIsRetriedThenFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{Message: chatResponseMessage{Content: "   "}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	_, err := c.OCR(t.Context(), []byte("x"), "p")
	if err == nil {
		t.Fatal("expected error for persistently empty OCR text")
	}
}

func TestOCRMalformedJSONIsNonRetryable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	_, err := c.OCR(t.Context(), []byte("x"), "p")
	if err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected exactly 1 call for malformed JSON, got %d", calls)
	}
}

func TestBackoffForDoublesAndCaps(t *testing.T) {
	base := 1 * time.Second
	max := 30 * time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tc := range cases {
		got := backoffFor(tc.attempt, base, max)
		if got != tc.want {
			t.Errorf("backoffFor(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestShouldRetryStatus(t *testing.T) {
	retryable := []int{408, 429, 500, 502, 503}
	for _, s := range retryable {
		if !shouldRetryStatus(s) {
			t.Errorf("status %d should be retryable", s)
		}
	}
	nonRetryable := []int{400, 401, 403, 404, 422}
	for _, s := range nonRetryable {
		if shouldRetryStatus(s) {
			t.Errorf("status %d should not be retryable", s)
		}
	}
}
