// Package fanout runs a set of independent tasks concurrently and waits for
// every one of them to resolve.
//
// Invariants:
// - Join returns exactly one Outcome per task, in task order.
// - A failing, panicking or timed out task never cancels its siblings.
// - Every task runs under its own deadline, so Join always returns.
//
// Usage:
//
//	outcomes := fanout.Join(ctx, []fanout.Task{
//		{Name: "Jazz", Run: deliverJazz},
//		{Name: "default", Run: deliverDefault},
//	}, fanout.Options{TaskTimeout: 10 * time.Second})
//	for _, o := range fanout.Failed(outcomes) {
//		log.Printf("%s: %v", o.Name, o.Err)
//	}
package fanout
