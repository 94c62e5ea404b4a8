// Package tagging drives the per-user tagging flow: an audio upload opens a
// session and a selection prompt, toggles flip tags on the prompt, and the
// confirm control fans the audio out to every selected destination plus the
// fixed default destination.
//
// Invariants:
// - Only top-level uploads open a session; uploads inside a topic are ignored.
// - A toggle or confirm without a session never panics and is acknowledged.
// - Confirm delivers to each selected tag and the default destination, waits
//   for all deliveries, and always removes the session afterwards.
// - The summary names the selected tags in registry order; the default
//   destination is never named.
//
// The controller does not serialize events itself. Callers route every event
// of a user through one commandqueue lane.
package tagging
