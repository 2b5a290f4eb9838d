package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"datanerd/internal/logging"
	"datanerd/internal/types"
)

// RunPriority defines scheduling priority for queued analysis runs.
type RunPriority int

const (
	// PriorityLow is for background refreshes and scheduled re-analysis.
	PriorityLow RunPriority = 0

	// PriorityNormal is for service-submitted runs.
	PriorityNormal RunPriority = 1

	// PriorityHigh is for interactive sessions where a user is waiting.
	PriorityHigh RunPriority = 2
)

const numPriorities = 3

// String returns the priority name.
func (p RunPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return fmt.Sprintf("unknown(%d)", p)
	}
}

// RunResult is the outcome of a queued analysis run.
type RunResult struct {
	State  *types.RunState // final blackboard, partial when Err is an abort
	Err    error
	Queued time.Duration // how long the request waited before starting
}

// queuedRun is one submission waiting for a worker.
type queuedRun struct {
	id          string
	req         Request
	priority    RunPriority
	submittedAt time.Time
	deadline    time.Time
	resultCh    chan RunResult
	ctx         context.Context
}

var (
	// ErrQueueFull is returned when the queue cannot accept more requests.
	ErrQueueFull = errors.New("run queue is full")

	// ErrQueueTimeout is returned when a request times out waiting in queue.
	ErrQueueTimeout = errors.New("run request timed out in queue")

	// ErrQueueStopped is returned when the queue is shutting down.
	ErrQueueStopped = errors.New("run queue is stopped")
)

// RunQueueConfig configures queue capacity and concurrency.
type RunQueueConfig struct {
	MaxQueueSize        int           // max total requests across all priorities
	MaxQueuePerPriority int           // max requests per priority level
	MaxConcurrent       int           // analysis runs in flight at once
	WorkerCount         int           // dispatch goroutines
	DefaultTimeout      time.Duration // queue-wait bound when the caller's context has no deadline
	HighWaterMark       float64       // utilization where low-priority requests start being deferred
	DrainTimeout        time.Duration // how long Stop waits for in-flight runs
}

// DefaultRunQueueConfig returns sensible defaults.
func DefaultRunQueueConfig() RunQueueConfig {
	return RunQueueConfig{
		MaxQueueSize:        50,
		MaxQueuePerPriority: 20,
		MaxConcurrent:       2,
		WorkerCount:         4,
		DefaultTimeout:      10 * time.Minute,
		HighWaterMark:       0.7,
		DrainTimeout:        30 * time.Second,
	}
}

const queuePollInterval = 50 * time.Millisecond

// RunQueue schedules analysis runs with priorities and backpressure.
// Instead of failing when the system is busy, requests queue and wait for
// one of the bounded run slots.
type RunQueue struct {
	mu sync.RWMutex

	queues [numPriorities]chan *queuedRun
	config RunQueueConfig
	engine *Engine

	// slots bounds concurrent engine runs independently of worker count.
	slots    *semaphore.Weighted
	inFlight atomic.Int64

	running  bool
	stopCh   chan struct{}
	workerWg sync.WaitGroup

	totalQueued    atomic.Int64
	totalCompleted atomic.Int64
	totalTimedOut  atomic.Int64
	totalRejected  atomic.Int64
}

// NewRunQueue builds a queue over the given engine. Zero config values fall
// back to defaults.
func NewRunQueue(engine *Engine, cfg RunQueueConfig) *RunQueue {
	def := DefaultRunQueueConfig()
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = def.MaxQueueSize
	}
	if cfg.MaxQueuePerPriority <= 0 {
		cfg.MaxQueuePerPriority = def.MaxQueuePerPriority
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.HighWaterMark <= 0 || cfg.HighWaterMark > 1 {
		cfg.HighWaterMark = def.HighWaterMark
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}

	q := &RunQueue{
		config: cfg,
		engine: engine,
		slots:  semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < numPriorities; i++ {
		q.queues[i] = make(chan *queuedRun, cfg.MaxQueuePerPriority)
	}
	return q
}

// Start begins processing submissions.
func (q *RunQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return nil
	}
	q.running = true
	q.stopCh = make(chan struct{})

	for i := 0; i < q.config.WorkerCount; i++ {
		q.workerWg.Add(1)
		go q.worker(i)
	}

	logging.Queue("run queue started: %d workers, %d concurrent runs, capacity %d",
		q.config.WorkerCount, q.config.MaxConcurrent, q.config.MaxQueueSize)
	return nil
}

// Stop shuts the queue down, waiting up to DrainTimeout for in-flight runs,
// then fails every request still waiting.
func (q *RunQueue) Stop() error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	close(q.stopCh)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Queue("run queue stopped")
	case <-time.After(q.config.DrainTimeout):
		logging.QueueWarn("run queue drain timeout exceeded, abandoning in-flight runs")
	}

	for i := 0; i < numPriorities; i++ {
		for {
			select {
			case qr := <-q.queues[i]:
				q.send(qr, RunResult{Err: ErrQueueStopped, Queued: time.Since(qr.submittedAt)})
			default:
				goto nextQueue
			}
		}
	nextQueue:
	}
	return nil
}

// IsRunning reports whether the queue is accepting submissions.
func (q *RunQueue) IsRunning() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.running
}

// Submit enqueues a run request and returns a channel that will receive its
// result. Submission fails fast under backpressure rather than blocking.
func (q *RunQueue) Submit(ctx context.Context, req Request, priority RunPriority) (<-chan RunResult, error) {
	if !q.IsRunning() {
		return nil, ErrQueueStopped
	}
	if priority < PriorityLow || priority > PriorityHigh {
		priority = PriorityNormal
	}

	if ok, reason := q.CanAccept(priority); !ok {
		q.totalRejected.Add(1)
		return nil, fmt.Errorf("%w: %s", ErrQueueFull, reason)
	}

	qr := &queuedRun{
		id:          uuid.NewString(),
		req:         req,
		priority:    priority,
		submittedAt: time.Now(),
		resultCh:    make(chan RunResult, 1),
		ctx:         ctx,
	}
	if deadline, ok := ctx.Deadline(); ok {
		qr.deadline = deadline
	} else {
		qr.deadline = time.Now().Add(q.config.DefaultTimeout)
	}

	select {
	case q.queues[priority] <- qr:
		q.totalQueued.Add(1)
		logging.QueueDebug("queued request %s (dataset=%s priority=%s)", qr.id, req.DatasetID, priority)
		return qr.resultCh, nil
	default:
		q.totalRejected.Add(1)
		return nil, fmt.Errorf("%w: %s priority queue full", ErrQueueFull, priority)
	}
}

// SubmitAndWait enqueues a run and blocks until its result or context end.
func (q *RunQueue) SubmitAndWait(ctx context.Context, req Request, priority RunPriority) (*types.RunState, error) {
	resultCh, err := q.Submit(ctx, req, priority)
	if err != nil {
		return nil, err
	}
	select {
	case res := <-resultCh:
		return res.State, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *RunQueue) worker(id int) {
	defer q.workerWg.Done()
	logging.QueueDebug("worker %d started", id)

	for {
		select {
		case <-q.stopCh:
			logging.QueueDebug("worker %d stopping", id)
			return
		default:
			qr := q.nextQueued()
			if qr == nil {
				time.Sleep(queuePollInterval)
				continue
			}
			q.process(id, qr)
		}
	}
}

// nextQueued takes the highest-priority pending request, or nil.
func (q *RunQueue) nextQueued() *queuedRun {
	for pri := PriorityHigh; pri >= PriorityLow; pri-- {
		select {
		case qr := <-q.queues[pri]:
			return qr
		default:
		}
	}
	return nil
}

// process drives one request through slot acquisition and the engine.
func (q *RunQueue) process(workerID int, qr *queuedRun) {
	waited := time.Since(qr.submittedAt)

	if err := qr.ctx.Err(); err != nil {
		q.totalTimedOut.Add(1)
		q.send(qr, RunResult{Err: fmt.Errorf("request cancelled while queued: %w", err), Queued: waited})
		return
	}
	if !qr.deadline.IsZero() && time.Now().After(qr.deadline) {
		q.totalTimedOut.Add(1)
		q.send(qr, RunResult{Err: ErrQueueTimeout, Queued: waited})
		logging.QueueWarn("request %s timed out after %v in queue", qr.id, waited.Round(time.Millisecond))
		return
	}

	acquireCtx := qr.ctx
	if !qr.deadline.IsZero() {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithDeadline(qr.ctx, qr.deadline)
		defer cancel()
	}
	if err := q.slots.Acquire(acquireCtx, 1); err != nil {
		q.totalTimedOut.Add(1)
		q.send(qr, RunResult{Err: fmt.Errorf("waiting for a run slot: %w", err), Queued: time.Since(qr.submittedAt)})
		return
	}
	q.inFlight.Add(1)
	defer func() {
		q.inFlight.Add(-1)
		q.slots.Release(1)
	}()

	waited = time.Since(qr.submittedAt)
	logging.QueueDebug("worker %d starting request %s (priority=%s queued=%v)",
		workerID, qr.id, qr.priority, waited.Round(time.Millisecond))

	st, err := q.engine.Run(qr.ctx, qr.req)
	q.totalCompleted.Add(1)
	q.send(qr, RunResult{State: st, Err: err, Queued: waited})
}

// send delivers a result without blocking; the result channel is buffered
// for one entry, so a second send would mean a bookkeeping bug upstream.
func (q *RunQueue) send(qr *queuedRun, res RunResult) {
	select {
	case qr.resultCh <- res:
	default:
		logging.QueueWarn("could not deliver result for request %s", qr.id)
	}
}

// CanAccept checks whether a request at the given priority would be
// admitted right now.
func (q *RunQueue) CanAccept(priority RunPriority) (bool, string) {
	depth := q.Depth()
	if depth >= q.config.MaxQueueSize {
		return false, "queue capacity reached"
	}
	if len(q.queues[priority]) >= q.config.MaxQueuePerPriority {
		return false, fmt.Sprintf("%s priority queue full", priority)
	}

	utilization := float64(depth) / float64(q.config.MaxQueueSize)
	switch {
	case utilization > 0.9:
		if priority < PriorityHigh {
			return false, "queue over 90% full, only high priority accepted"
		}
	case utilization > q.config.HighWaterMark:
		if priority == PriorityLow {
			return false, fmt.Sprintf("queue over %.0f%% full, low priority deferred",
				q.config.HighWaterMark*100)
		}
	}
	return true, ""
}

// Depth returns the total number of requests waiting across all priorities.
func (q *RunQueue) Depth() int {
	total := 0
	for i := 0; i < numPriorities; i++ {
		total += len(q.queues[i])
	}
	return total
}

// QueueMetrics is a point-in-time snapshot of queue activity.
type QueueMetrics struct {
	DepthByPriority [numPriorities]int
	InFlight        int
	TotalQueued     int64
	TotalCompleted  int64
	TotalTimedOut   int64
	TotalRejected   int64
	Utilization     float64
	Running         bool
}

// Metrics returns current queue metrics.
func (q *RunQueue) Metrics() QueueMetrics {
	m := QueueMetrics{
		InFlight:       int(q.inFlight.Load()),
		TotalQueued:    q.totalQueued.Load(),
		TotalCompleted: q.totalCompleted.Load(),
		TotalTimedOut:  q.totalTimedOut.Load(),
		TotalRejected:  q.totalRejected.Load(),
		Running:        q.IsRunning(),
	}
	for i := 0; i < numPriorities; i++ {
		m.DepthByPriority[i] = len(q.queues[i])
	}
	m.Utilization = float64(q.Depth()) / float64(q.config.MaxQueueSize)
	return m
}
