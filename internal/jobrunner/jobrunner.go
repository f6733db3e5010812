// Package jobrunner implements the Job Runner (spec.md §4.C): a bounded
// parallel executor for per-FOV side jobs (image save, QC computation),
// modeled after the teacher's pipeline worker-goroutine-per-stage shutdown
// discipline (internal/pipeline/pipeline.go's cancel-then-wait sequence),
// generalized from one goroutine per pipeline to N workers draining one
// shared FIFO queue.
package jobrunner

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
)

// JobKind tags the recognized job variants. New kinds are added here rather
// than via an open subtype hierarchy (spec.md §9 "Dynamic dispatch over job
// kinds").
type JobKind int

const (
	KindSaveImage JobKind = iota
	KindQCMetrics
)

func (k JobKind) String() string {
	switch k {
	case KindSaveImage:
		return "save_image"
	case KindQCMetrics:
		return "qc_metrics"
	default:
		return "unknown"
	}
}

// Job is the capability every dispatched unit of work exposes.
type Job interface {
	Kind() JobKind
	Run() (any, error)
}

// JobResult is the outcome of one completed job, tagged with its kind and
// correlation ID and carrying either a success payload or a structured
// error — never both.
type JobResult struct {
	ID      string
	Kind    JobKind
	Payload any
	Err     error
}

// Runner is a bounded worker pool draining a single FIFO dispatch queue.
type Runner struct {
	queue   chan queuedJob
	results chan JobResult

	wg          sync.WaitGroup
	shutdownMu  sync.Mutex
	shutdown    bool
	outstanding sync.WaitGroup // tracks jobs from dispatch to completion, for drain()
}

type queuedJob struct {
	id  string
	job Job
}

// Options configures a Runner's concurrency.
type Options struct {
	// Workers is the number of pool goroutines. 0 selects
	// runtime.NumCPU(), bounded by Max.
	Workers int
	// Max bounds Workers when Workers is 0. 0 selects a default of 8.
	Max int
	// QueueSize bounds how many dispatched-but-unstarted jobs may queue.
	// 0 selects a default of 256.
	QueueSize int
}

// New creates and starts a Runner's worker pool.
func New(opts Options) *Runner {
	max := opts.Max
	if max <= 0 {
		max = 8
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > max {
		workers = max
	}
	if workers < 1 {
		workers = 1
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	r := &Runner{
		queue:   make(chan queuedJob, queueSize),
		results: make(chan JobResult, queueSize),
	}

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.workerLoop()
	}
	return r
}

func (r *Runner) workerLoop() {
	defer r.wg.Done()
	for qj := range r.queue {
		payload, err := qj.job.Run()
		r.results <- JobResult{ID: qj.id, Kind: qj.job.Kind(), Payload: payload, Err: err}
		r.outstanding.Done()
	}
}

// Dispatch enqueues job for background execution and returns immediately.
// Ordering between dispatches is not preserved. Returns an error if the
// Runner has been shut down.
func (r *Runner) Dispatch(job Job) (string, error) {
	r.shutdownMu.Lock()
	if r.shutdown {
		r.shutdownMu.Unlock()
		return "", fmt.Errorf("jobrunner: dispatch after shutdown")
	}
	id := uuid.NewString()
	r.outstanding.Add(1)
	r.shutdownMu.Unlock()

	r.queue <- queuedJob{id: id, job: job}
	return id, nil
}

// PollResults returns a (possibly empty) batch of completed results without
// blocking.
func (r *Runner) PollResults() []JobResult {
	var batch []JobResult
	for {
		select {
		case res := <-r.results:
			batch = append(batch, res)
		default:
			return batch
		}
	}
}

// Drain blocks until all outstanding (dispatched but not yet completed)
// jobs finish.
func (r *Runner) Drain() {
	r.outstanding.Wait()
}

// Shutdown refuses new dispatches, drains outstanding work, and releases
// the worker pool. Idempotent: calls after the first return immediately.
func (r *Runner) Shutdown() {
	r.shutdownMu.Lock()
	if r.shutdown {
		r.shutdownMu.Unlock()
		return
	}
	r.shutdown = true
	r.shutdownMu.Unlock()

	r.Drain()
	close(r.queue)
	r.wg.Wait()
	close(r.results)
}
