package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// jobSummary mirrors the JSON shape returned by GET /api/jobs/{id}
// (internal/httpapi's GetJob handler).
type jobSummary struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	TotalPages     int        `json:"total_pages"`
	PagesSucceeded int        `json:"pages_succeeded"`
	PagesFailed    int        `json:"pages_failed"`
	PagesCompleted int        `json:"pages_completed"`
	FailedPages    []int      `json:"failed_pages"`
	PDFFilename    string     `json:"pdf_filename"`
	Language       string     `json:"language"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	Error          string     `json:"error"`
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func fetchJob(jobID string) (*jobSummary, error) {
	resp, err := httpClient.Get(serverAddr + "/api/jobs/" + jobID)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr map[string]string
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr["error"])
	}

	var job jobSummary
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &job, nil
}

func listJobs() ([]jobSummary, error) {
	resp, err := httpClient.Get(serverAddr + "/api/jobs/")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr map[string]string
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr["error"])
	}

	var jobs []jobSummary
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return jobs, nil
}

func forceCleanup() error {
	resp, err := httpClient.Post(serverAddr+"/api/admin/cleanup", "application/json", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr map[string]string
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr["error"])
	}
	return nil
}

func postRetry(jobID string) ([]int, error) {
	resp, err := httpClient.Post(serverAddr+"/api/jobs/"+jobID+"/retry", "application/json", nil)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr map[string]string
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr["error"])
	}

	var body struct {
		RetryingPages []int `json:"retrying_pages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return body.RetryingPages, nil
}
