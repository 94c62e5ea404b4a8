// Package session holds the per-user tagging state: the audio awaiting
// classification and the set of tags toggled on so far.
//
// Invariants:
// - At most one session exists per user; Put replaces it with an empty selection.
// - Selections only ever contain tags known to the destination registry.
// - Callers receive copies; the store is the only owner of session state.
// - Sessions never expire; they end on Remove or process exit.
//
// Usage:
//
//	store := session.NewMemoryStore(reg)
//	store.Put(42, -100123, session.AudioRef{FileID: "CQAC..."})
//	sess, _ := store.Toggle(42, "Jazz")
//	_ = sess.IsSelected("Jazz")
//	store.Remove(42)
package session
