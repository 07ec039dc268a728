// Package registry implements the durable Job Registry: an
// in-memory map of jobs backed by one job.json file per job directory,
// written atomically via tempfile-plus-rename, with a crash-recovery
// pass that reconciles non-terminal jobs left behind by an unclean
// shutdown. Structurally grounded on jupark12-go-job-queue's
// PDFJobQueue (RWMutex-guarded maps, persist-on-every-mutation,
// load-from-disk on startup); the on-disk layout follows
// original_source/app/jobs/registry.py, but the crash-recovery rule
// below is this implementation's own addition — the Python original
// reloads interrupted jobs as-is without rewriting their status.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spherical/vppe/internal/domain"
	"github.com/spherical/vppe/internal/observability"
)

// Registry is a thread-safe, disk-backed store of Jobs. Each job's
// on-disk metadata lives at its own job.json (domain.Job.JobMetaPath),
// matching the per-job directory layout under dataDir/jobs/<id>.
type Registry struct {
	mu      sync.RWMutex
	jobs    map[string]*domain.Job
	dataDir string
	log     *observability.Logger
}

// New creates an empty Registry rooted at dataDir.
func New(dataDir string, log *observability.Logger) *Registry {
	if log == nil {
		log = observability.DefaultLogger()
	}
	return &Registry{
		jobs:    make(map[string]*domain.Job),
		dataDir: dataDir,
		log:     log.WithComponent("registry"),
	}
}

// Create registers a new job, creates its directory, and persists it.
func (r *Registry) Create(job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(job.JobDir(r.dataDir), 0o755); err != nil {
		return domain.NewPersistenceError("failed to create job directory", err)
	}
	r.jobs[job.ID] = job
	return r.save(job)
}

// Get returns a deep-copied snapshot of the job, so callers can inspect
// it without racing the orchestrator's in-place mutations.
func (r *Registry) Get(jobID string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.NewNotFoundError(fmt.Sprintf("job %s not found", jobID))
	}
	return job.Clone(), nil
}

// withJob runs fn with exclusive access to the live (non-cloned) job and
// persists it afterward: the mutation and the corresponding disk write
// happen under the same critical section so a reader never observes an
// in-memory state newer than what is on disk.
func (r *Registry) withJob(jobID string, fn func(job *domain.Job) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return domain.NewNotFoundError(fmt.Sprintf("job %s not found", jobID))
	}
	if err := fn(job); err != nil {
		return err
	}
	return r.save(job)
}

// Update applies fn to the job identified by jobID and persists the
// result atomically with respect to other Registry calls.
func (r *Registry) Update(jobID string, fn func(job *domain.Job)) error {
	return r.withJob(jobID, func(job *domain.Job) error {
		fn(job)
		return nil
	})
}

// Delete removes jobID from the in-memory registry without touching its
// files on disk (cleanup is the job of the internal/cleanup package).
func (r *Registry) Delete(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, jobID)
}

// All returns a deep-copied snapshot of every known job.
func (r *Registry) All() []*domain.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// save writes job.json atomically: marshal, write to a sibling temp
// file, then rename over the destination. Rename is atomic on the same
// filesystem, so a crash mid-write never leaves a half-written
// job.json.
func (r *Registry) save(job *domain.Job) error {
	metaPath := job.JobMetaPath(r.dataDir)
	if err := os.MkdirAll(filepath.Dir(metaPath), 0o755); err != nil {
		return domain.NewPersistenceError("failed to create job directory", err)
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return domain.NewPersistenceError("failed to marshal job", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(metaPath), ".job-*.json.tmp")
	if err != nil {
		return domain.NewPersistenceError("failed to create temp file for job metadata", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return domain.NewPersistenceError("failed to write job metadata", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return domain.NewPersistenceError("failed to close job metadata temp file", err)
	}
	if err := os.Rename(tmpPath, metaPath); err != nil {
		os.Remove(tmpPath)
		return domain.NewPersistenceError("failed to rename job metadata into place", err)
	}
	return nil
}

// LoadFromDisk walks dataDir/jobs, loading every job.json it finds, then
// runs crash recovery: any job left in a non-terminal status
// (pending, processing or assembling) when the process last exited is marked failed
// with an "interrupted by restart" error, since no worker is still
// running to finish it. Pages already marked successful are left alone;
// pages that were pending or processing are rewritten to failed with the
// same interrupted reason.
func (r *Registry) LoadFromDisk() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobsDir := filepath.Join(r.dataDir, "jobs")
	entries, err := os.ReadDir(jobsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return domain.NewPersistenceError("failed to read jobs directory", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		metaPath := filepath.Join(jobsDir, entry.Name(), "job.json")
		data, err := os.ReadFile(metaPath)
		if err != nil {
			if !os.IsNotExist(err) {
				r.log.Warn().Str("job_dir", entry.Name()).Err(err).Msg("failed to read job metadata")
			}
			continue
		}

		var job domain.Job
		if err := json.Unmarshal(data, &job); err != nil {
			r.log.Warn().Str("job_dir", entry.Name()).Err(err).Msg("failed to parse job metadata, skipping")
			continue
		}

		recovered := recoverFromCrash(&job)
		r.jobs[job.ID] = &job

		if recovered {
			if err := r.save(&job); err != nil {
				r.log.Warn().Str("job_id", job.ID).Err(err).Msg("failed to persist crash-recovered job")
			}
			r.log.Info().Str("job_id", job.ID).Msg("marked interrupted job as failed on startup")
		}
	}

	r.log.Info().Int("count", len(r.jobs)).Msg("loaded jobs from disk")
	return nil
}

const (
	interruptedReason     = "interrupted by restart"
	pageInterruptedReason = "interrupted"
)

// recoverFromCrash applies the crash-recovery rule to one job loaded
// from disk. It reports whether the job was modified.
func recoverFromCrash(job *domain.Job) bool {
	if job.Status.IsTerminal() {
		return false
	}

	job.Status = domain.JobFailed
	job.Error = interruptedReason
	if job.CompletedAt == nil {
		now := job.CreatedAt
		job.CompletedAt = &now
	}

	for _, page := range job.Pages {
		if page.Status == domain.PagePending || page.Status == domain.PageProcessing {
			page.Status = domain.PageFailed
			page.Error = pageInterruptedReason
		}
	}
	return true
}
