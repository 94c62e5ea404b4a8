package commandqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harun/tagrelay/internal/tracing"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned for tasks submitted after Close
var ErrClosed = errors.New("command queue closed")

// Task represents an asynchronous operation to be executed
type Task func(ctx context.Context) (interface{}, error)

// Result is the outcome of a task
type Result struct {
	Value interface{}
	Err   error
}

// TaskOptions provides configuration for task execution
type TaskOptions struct {
	// WarnAfterMs logs a warning when the task is still queued after this long
	WarnAfterMs int
}

// Recorder receives queue measurements
type Recorder interface {
	QueueEnqueued(lane string, queueSize int)
	QueueCompleted(lane string, duration time.Duration, success bool, queueSize int)
}

// Options configures a CommandQueue
type Options struct {
	Recorder Recorder
	// DedupTTL bounds how long SubmitOnce remembers keys. Zero means 5 minutes.
	DedupTTL time.Duration
}

// taskRecord tracks a task's execution state
type taskRecord struct {
	id         string
	task       Task
	ctx        context.Context
	enqueuedAt time.Time
	options    TaskOptions
	result     chan Result
}

// laneState manages execution state for a single lane. A lane runs one task
// at a time.
type laneState struct {
	name       string
	queue      []*taskRecord
	running    int
	activeIDs  map[string]bool
	lastActive time.Time
	mu         sync.Mutex
}

// CommandQueue serializes tasks per lane while separate lanes run concurrently
type CommandQueue struct {
	lanes     map[string]*laneState
	taskIDSeq int
	closed    bool
	mu        sync.RWMutex
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	recorder  Recorder
	dedup     *dedupCache
}

// New creates a new CommandQueue
func New() *CommandQueue {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a new CommandQueue with a recorder and dedup window
func NewWithOptions(opts Options) *CommandQueue {
	ctx, cancel := context.WithCancel(context.Background())

	return &CommandQueue{
		lanes:    make(map[string]*laneState),
		ctx:      ctx,
		cancel:   cancel,
		recorder: opts.Recorder,
		dedup:    newDedupCache(ctx, opts.DedupTTL),
	}
}

// UserLane returns the lane serializing all work of one user
func UserLane(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// LaneClass returns the lane prefix before ':' for low-cardinality labels
func LaneClass(lane string) string {
	if i := strings.IndexByte(lane, ':'); i > 0 {
		return lane[:i]
	}
	return lane
}

// laneLocked returns the lane, creating it if missing. cq.mu must be held for
// writing.
func (cq *CommandQueue) laneLocked(lane string) *laneState {
	ls, exists := cq.lanes[lane]
	if !exists {
		ls = &laneState{
			name:       lane,
			queue:      make([]*taskRecord, 0),
			activeIDs:  make(map[string]bool),
			lastActive: time.Now(),
		}
		cq.lanes[lane] = ls
		log.Debug().Str("lane", lane).Msg("Lane initialized")
	}
	return ls
}

// Submit adds a task to the specified lane and returns without waiting. Tasks
// submitted to one lane from a single goroutine run in submission order. The
// returned channel receives exactly one Result.
func (cq *CommandQueue) Submit(ctx context.Context, lane string, task Task, options *TaskOptions) <-chan Result {
	if ctx == nil {
		ctx = context.Background()
	}
	if tracing.GetSessionKey(ctx) == "" {
		ctx = tracing.WithSessionKey(ctx, lane)
	}

	opts := TaskOptions{}
	if options != nil {
		opts = *options
	}

	record := &taskRecord{
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		options:    opts,
		result:     make(chan Result, 1),
	}

	cq.mu.Lock()
	if cq.closed {
		cq.mu.Unlock()
		record.result <- Result{Err: ErrClosed}
		close(record.result)
		return record.result
	}
	cq.taskIDSeq++
	record.id = fmt.Sprintf("%s-%d", lane, cq.taskIDSeq)
	ls := cq.laneLocked(lane)

	// Append while holding cq.mu so Prune cannot drop the lane in between
	ls.mu.Lock()
	ls.queue = append(ls.queue, record)
	ls.lastActive = record.enqueuedAt
	queueSize := len(ls.queue)
	ls.mu.Unlock()
	cq.mu.Unlock()

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().
		Str("lane", lane).
		Str("taskId", record.id).
		Int("queueSize", queueSize).
		Msg("Task enqueued")

	if cq.recorder != nil {
		cq.recorder.QueueEnqueued(lane, queueSize)
	}

	if opts.WarnAfterMs > 0 {
		go cq.startWarnTimer(ls, record)
	}

	cq.processLane(ls)

	return record.result
}

// SubmitOnce behaves like Submit but drops the task when key was already
// submitted within the dedup window. It reports whether the task was queued.
func (cq *CommandQueue) SubmitOnce(ctx context.Context, lane, key string, task Task, options *TaskOptions) (<-chan Result, bool) {
	if key != "" && !cq.dedup.Add(key) {
		log.Debug().Str("lane", lane).Str("key", key).Msg("Duplicate task dropped")
		return nil, false
	}
	return cq.Submit(ctx, lane, task, options), true
}

// processLane starts the next queued task when the lane is idle
func (cq *CommandQueue) processLane(ls *laneState) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if cq.ctx.Err() != nil {
		for _, record := range ls.queue {
			record.result <- Result{Err: ErrClosed}
			close(record.result)
		}
		ls.queue = ls.queue[:0]
		return
	}

	if ls.running == 0 && len(ls.queue) > 0 {
		record := ls.queue[0]
		ls.queue = ls.queue[1:]

		ls.running++
		ls.activeIDs[record.id] = true

		cq.wg.Add(1)
		go cq.executeTask(ls, record)
	}
}

// executeTask executes a single task
func (cq *CommandQueue) executeTask(ls *laneState, record *taskRecord) {
	defer cq.wg.Done()

	logger := tracing.LoggerFromContext(record.ctx, log.Logger)

	runCtx, cancel := context.WithCancel(record.ctx)
	stopCancel := context.AfterFunc(cq.ctx, cancel)
	defer func() {
		stopCancel()
		cancel()
	}()

	startTime := time.Now()
	value, err := cq.run(runCtx, record.task)
	duration := time.Since(startTime)

	ls.mu.Lock()
	ls.running--
	delete(ls.activeIDs, record.id)
	ls.lastActive = time.Now()
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	record.result <- Result{Value: value, Err: err}
	close(record.result)

	if err != nil {
		logger.Error().
			Str("lane", ls.name).
			Str("taskId", record.id).
			Dur("duration", duration).
			Err(err).
			Msg("Task failed")
	} else {
		logger.Debug().
			Str("lane", ls.name).
			Str("taskId", record.id).
			Dur("duration", duration).
			Msg("Task completed")
	}

	if cq.recorder != nil {
		cq.recorder.QueueCompleted(ls.name, duration, err == nil, queueSize)
	}

	// Start the next task before releasing this one's WaitGroup slot
	cq.processLane(ls)
}

// run executes task, turning a panic into an error so the lane keeps draining
func (cq *CommandQueue) run(ctx context.Context, task Task) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// startWarnTimer starts a timer to warn about long wait times
func (cq *CommandQueue) startWarnTimer(ls *laneState, record *taskRecord) {
	timer := time.NewTimer(time.Duration(record.options.WarnAfterMs) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
		ls.mu.Lock()
		queuePos := -1
		for i, r := range ls.queue {
			if r.id == record.id {
				queuePos = i
				break
			}
		}
		ls.mu.Unlock()

		if queuePos >= 0 {
			logger := tracing.LoggerFromContext(record.ctx, log.Logger)
			logger.Warn().
				Str("lane", ls.name).
				Str("taskId", record.id).
				Int64("waitMs", time.Since(record.enqueuedAt).Milliseconds()).
				Int("queuePos", queuePos).
				Msg("Task waiting longer than expected")
		}
	case <-cq.ctx.Done():
		return
	}
}

// LaneCount returns the number of lanes currently tracked
func (cq *CommandQueue) LaneCount() int {
	cq.mu.RLock()
	defer cq.mu.RUnlock()
	return len(cq.lanes)
}

// GetStats returns statistics for all lanes
func (cq *CommandQueue) GetStats() map[string]map[string]int {
	cq.mu.RLock()
	defer cq.mu.RUnlock()

	stats := make(map[string]map[string]int)
	for lane, ls := range cq.lanes {
		ls.mu.Lock()
		stats[lane] = map[string]int{
			"queued":  len(ls.queue),
			"running": ls.running,
		}
		ls.mu.Unlock()
	}

	return stats
}

// Prune drops lanes that have been empty and idle for at least idleFor.
// Per-user lanes are created on demand, so this keeps the lane map bounded.
func (cq *CommandQueue) Prune(idleFor time.Duration) int {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	now := time.Now()
	pruned := 0
	for name, ls := range cq.lanes {
		ls.mu.Lock()
		idle := len(ls.queue) == 0 && ls.running == 0 && now.Sub(ls.lastActive) >= idleFor
		ls.mu.Unlock()
		if idle {
			delete(cq.lanes, name)
			pruned++
		}
	}

	if pruned > 0 {
		log.Debug().Int("pruned", pruned).Int("remaining", len(cq.lanes)).Msg("Idle lanes pruned")
	}
	return pruned
}

// WaitForActive waits for all active tasks to complete with timeout
func (cq *CommandQueue) WaitForActive(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		allDrained := true

		cq.mu.RLock()
		for _, ls := range cq.lanes {
			ls.mu.Lock()
			if len(ls.activeIDs) > 0 || len(ls.queue) > 0 {
				allDrained = false
			}
			ls.mu.Unlock()
		}
		cq.mu.RUnlock()

		if allDrained {
			log.Info().Msg("All active tasks completed")
			return true
		}

		if time.Now().After(deadline) {
			log.Warn().Dur("timeout", timeout).Msg("Timeout waiting for active tasks")
			return false
		}

		<-ticker.C
	}
}

// Close rejects new tasks, cancels running ones and waits for them to return
func (cq *CommandQueue) Close() error {
	cq.mu.Lock()
	cq.closed = true
	cq.mu.Unlock()

	cq.cancel()
	cq.wg.Wait()
	cq.dedup.Stop()
	return nil
}
