package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is one transcription request moving through the pipeline.
type Job struct {
	ID        string
	Name      string
	Source    string // local file path or http(s) URL
	CreatedAt time.Time

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// NewJob creates a queued job with a fresh short id.
func NewJob(name, source string) *Job {
	if strings.TrimSpace(name) == "" {
		name = "Meeting"
	}
	return &Job{
		ID:        uuid.NewString()[:8],
		Name:      name,
		Source:    source,
		CreatedAt: time.Now(),
		state:     StateQueued,
	}
}

// State returns the job's current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// transition moves the job to next, rejecting illegal moves. A transition
// attempted after cancellation loses the race and errors, which is how the
// pipeline notices a cancel that landed between stages.
func (j *Job) transition(next State) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.state.CanTransitionTo(next) {
		return fmt.Errorf("invalid state transition %s -> %s", j.state, next)
	}
	j.state = next
	return nil
}

// bindCancel attaches the context cancel function for this run.
func (j *Job) bindCancel(cancel context.CancelFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancel = cancel
}

// Cancel requests cooperative cancellation. It returns false when the job
// is already in a terminal state.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return false
	}
	j.state = StateCancelled
	if j.cancel != nil {
		j.cancel()
	}
	return true
}

// Remote reports whether the source needs downloading first.
func (j *Job) Remote() bool {
	return strings.HasPrefix(j.Source, "http://") || strings.HasPrefix(j.Source, "https://")
}

// Registry tracks live jobs by id so external callers (CLI signal handler,
// websocket clients) can cancel them.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Add registers a job.
func (r *Registry) Add(j *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = j
}

// Remove forgets a job, usually once it reaches a terminal state.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
}

// Get returns the live job with the given id.
func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

// Cancel cancels the job with the given id. Unknown ids and finished jobs
// return false.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	j, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return j.Cancel()
}
