// Package cleanup runs the TTL-based background sweep:
// terminal jobs older than job_ttl_hours are deleted entirely (files,
// registry entry, event bus); a terminal job's source PDF older than the
// shorter pdf_ttl_hours is deleted early to save disk even while the
// job itself is kept around. Ages are measured from completed_at, and
// non-terminal jobs are never touched. Ported from
// original_source/app/jobs/cleanup.py's cleanup_loop/_cleanup, with the
// swallow-and-continue error policy preserved: one job's cleanup
// failure must not stop the sweep over the rest.
package cleanup

import (
	"context"
	"os"
	"time"

	"github.com/spherical/vppe/internal/domain"
	"github.com/spherical/vppe/internal/events"
	"github.com/spherical/vppe/internal/observability"
	"github.com/spherical/vppe/internal/registry"
)

// Sweeper periodically removes expired jobs and source PDFs.
type Sweeper struct {
	reg      *registry.Registry
	bus      *events.Registry
	log      *observability.Logger
	dataDir  string
	jobTTL   time.Duration
	pdfTTL   time.Duration
	interval time.Duration
}

// Config configures a Sweeper.
type Config struct {
	Registry    *registry.Registry
	Bus         *events.Registry
	Logger      *observability.Logger
	DataDir     string
	JobTTLHours int
	PDFTTLHours int
	Interval    time.Duration
}

// New creates a Sweeper.
func New(cfg Config) *Sweeper {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		reg:      cfg.Registry,
		bus:      cfg.Bus,
		log:      logger.WithComponent("cleanup"),
		dataDir:  cfg.DataDir,
		jobTTL:   time.Duration(cfg.JobTTLHours) * time.Hour,
		pdfTTL:   time.Duration(cfg.PDFTTLHours) * time.Hour,
		interval: interval,
	}
}

// Run loops until ctx is canceled, running one sweep every interval.
// Callers start this on its own goroutine; it blocks until canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one cleanup pass immediately. It is exported so the admin
// CLI's force-cleanup command can trigger it out of band.
func (s *Sweeper) Sweep() {
	now := time.Now()
	for _, job := range s.reg.All() {
		if !job.Status.IsTerminal() || job.CompletedAt == nil {
			continue
		}
		age := now.Sub(*job.CompletedAt)

		if age > s.jobTTL {
			s.removeJob(job)
			continue
		}

		if age > s.pdfTTL {
			s.removePDF(job)
		}
	}
}

func (s *Sweeper) removeJob(job *domain.Job) {
	if err := os.RemoveAll(job.JobDir(s.dataDir)); err != nil && !os.IsNotExist(err) {
		s.log.Warn().Str("job_id", job.ID).Err(err).Msg("failed to remove job directory")
		return
	}
	s.reg.Delete(job.ID)
	s.bus.Remove(job.ID)
	age := time.Duration(0)
	if job.CompletedAt != nil {
		age = time.Since(*job.CompletedAt)
	}
	s.log.Info().Str("job_id", job.ID).Dur("age", age).Msg("cleaned up expired job")
}

func (s *Sweeper) removePDF(job *domain.Job) {
	path := job.PDFPath(s.dataDir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return
	}
	if err := os.Remove(path); err != nil {
		s.log.Warn().Str("job_id", job.ID).Err(err).Msg("failed to delete source PDF")
		return
	}
	s.log.Info().Str("job_id", job.ID).Msg("deleted source PDF past pdf_ttl")
}
