package cron

import "context"

// Job is one housekeeping task the cron loop runs against the outbox.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type scheduled struct {
	job   Job
	every int
}

// Registry holds jobs and how often each one runs, counted in service ticks.
type Registry struct {
	entries []scheduled
}

// NewRegistry registers jobs that run on every tick.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.RegisterEvery(job, 1)
	}
	return r
}

// RegisterEvery adds job to run once every n ticks, starting with the first.
func (r *Registry) RegisterEvery(job Job, n int) {
	if job == nil {
		return
	}
	if n < 1 {
		n = 1
	}
	r.entries = append(r.entries, scheduled{job: job, every: n})
}

// Due lists the jobs to run on tick, in registration order. Ticks start at 0.
func (r *Registry) Due(tick int) []Job {
	due := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		if tick%e.every == 0 {
			due = append(due, e.job)
		}
	}
	return due
}

// Len is the number of registered jobs.
func (r *Registry) Len() int {
	return len(r.entries)
}
