package fanout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// DefaultTaskTimeout bounds a task when Options.TaskTimeout is unset
const DefaultTaskTimeout = 30 * time.Second

// ErrTaskPanic wraps a panic raised by a task
var ErrTaskPanic = errors.New("task panicked")

// Task is one unit of independent work
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Outcome is the resolved result of a task
type Outcome struct {
	Name     string
	Err      error
	Duration time.Duration
}

// OK reports whether the task succeeded
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Options tunes a Join call
type Options struct {
	// TaskTimeout is the per-task deadline. Zero means DefaultTaskTimeout.
	TaskTimeout time.Duration

	// MaxConcurrency caps parallel tasks. Zero or less runs all at once.
	MaxConcurrency int
}

// Join runs all tasks concurrently and returns once every task has resolved.
// Cancelling ctx propagates to tasks that honour it but does not stop Join
// from collecting their outcomes.
func Join(ctx context.Context, tasks []Task, opts Options) []Outcome {
	outcomes := make([]Outcome, len(tasks))
	if len(tasks) == 0 {
		return outcomes
	}

	timeout := opts.TaskTimeout
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}

	p := pool.New()
	if opts.MaxConcurrency > 0 {
		p = p.WithMaxGoroutines(opts.MaxConcurrency)
	}

	for i, task := range tasks {
		p.Go(func() {
			outcomes[i] = run(ctx, task, timeout)
		})
	}
	p.Wait()

	return outcomes
}

// run executes one task under its own deadline. A task that ignores its
// context is abandoned at the deadline so the join still completes.
func run(ctx context.Context, task Task, timeout time.Duration) Outcome {
	out := Outcome{Name: task.Name}
	start := time.Now()

	if task.Run == nil {
		out.Err = fmt.Errorf("task %q has no run function", task.Name)
		return out
	}

	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %v", ErrTaskPanic, r)
			}
		}()
		done <- task.Run(taskCtx)
	}()

	select {
	case err := <-done:
		out.Err = err
	case <-taskCtx.Done():
		out.Err = fmt.Errorf("task %q: %w", task.Name, taskCtx.Err())
	}
	out.Duration = time.Since(start)
	return out
}

// Failed returns the outcomes that carry an error
func Failed(outcomes []Outcome) []Outcome {
	var failed []Outcome
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Succeeded counts outcomes without an error
func Succeeded(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}
