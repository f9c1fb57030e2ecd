package cron

import (
	"context"
	"fmt"
	"strings"
)

// Job is one unit of scheduled maintenance.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs keyed by name, in registration order.
type Registry struct {
	order  []string
	byName map[string]Job
}

// NewRegistry registers jobs in order. Nil jobs are skipped.
func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{byName: map[string]Job{}}
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds job. Names must be non-empty and unique since they label
// metrics and logs.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return fmt.Errorf("cron job %T has no name", job)
	}
	if r.byName == nil {
		r.byName = map[string]Job{}
	}
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("cron job %q registered twice", name)
	}
	r.byName[name] = job
	r.order = append(r.order, name)
	return nil
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	if r == nil {
		return nil
	}
	out := make([]Job, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Select narrows the registry to names. An empty list keeps every job.
func (r *Registry) Select(names ...string) (*Registry, error) {
	if len(names) == 0 {
		return r, nil
	}
	picked := &Registry{byName: map[string]Job{}}
	for _, name := range names {
		job, ok := r.byName[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("unknown cron job %q", name)
		}
		if err := picked.Register(job); err != nil {
			return nil, err
		}
	}
	return picked, nil
}
