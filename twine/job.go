package twine

import (
	"time"

	"github.com/google/uuid"

	"twine.work/common"
)

// Job is the per-message handle described in the GLOSSARY: structured
// logging and progress reporting scoped to one dispatch-loop iteration
// (one consumed message, one bulk-import record, or one CLI update).
type Job struct {
	ID        string
	Queue     string
	StartedAt time.Time
	logger    *common.ContextLogger
}

// NewJob creates a job with a fresh id, logging under the shared logger
// with job_id/queue fields already attached.
func NewJob(queue string) *Job {
	id := uuid.NewString()
	return &Job{
		ID:        id,
		Queue:     queue,
		StartedAt: time.Now(),
		logger:    common.NewContextLogger(nil, map[string]interface{}{"job_id": id, "queue": queue}),
	}
}

// Logger returns the job-scoped logger, pre-populated with job_id/queue.
func (j *Job) Logger() *common.ContextLogger { return j.logger }

// Elapsed reports how long the job has been running.
func (j *Job) Elapsed() time.Duration { return time.Since(j.StartedAt) }

// WithGraph returns a logger further scoped to a graph URI, for the
// pipeline stages running within this job.
func (j *Job) WithGraph(uri string) *common.ContextLogger {
	return j.logger.WithField("graph", uri)
}
