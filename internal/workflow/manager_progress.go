package workflow

import (
	"time"

	"retriever/internal/backend"
	"retriever/internal/jobs"
	"retriever/internal/logging"
)

// progress stores p on the job. Writes are throttled to one per progress
// interval; the final 100% update always lands.
func (r *jobRun) progress(p jobs.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.job.State.IsTerminal() {
		r.job.Progress = p
	}
	if p.Percent < 100 && time.Since(r.lastSave) < r.m.progressInterval {
		return
	}
	if err := r.saveLocked(); err != nil {
		r.logger.Debug("progress write failed", logging.Error(err))
	}
}

// progressFor scales adapter progress for ref index out of total into job
// progress.
func (r *jobRun) progressFor(index, total int) backend.ProgressFunc {
	return func(p jobs.Progress) {
		if total > 1 {
			p.Percent = (float64(index) + p.Percent/100) / float64(total) * 100
			p.ItemsDone = index
			p.ItemsTotal = total
		}
		if p.Percent >= 100 && index < total-1 {
			p.Percent = 99
		}
		r.progress(p)
	}
}
