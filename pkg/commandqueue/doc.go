// Package commandqueue provides lane-based task execution with FIFO ordering per lane.
//
// Invariants:
// - Tasks in the same lane execute in FIFO order.
// - Tasks in different lanes may execute concurrently.
// - A lane runs one task at a time; lanes are created on first use and pruned once idle.
// - Every submitted task receives exactly one Result, including on Close.
//
// Usage:
//
//	queue := commandqueue.New()
//	defer queue.Close()
//	done := queue.Submit(ctx, commandqueue.UserLane(42), func(ctx context.Context) (interface{}, error) {
//		return nil, ctrl.HandleToggle(ctx, ev)
//	}, nil)
//	res := <-done
package commandqueue
