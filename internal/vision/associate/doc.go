// Package associate owns per-frame assignment of detections to open
// usage sessions.
//
// Responsibilities: the Matcher contract and the gated greedy matcher used
// in production. The matcher sees sessions only as (id, last box) pairs;
// lifecycle state never leaks into this package.
//
// Dependency rule: associate may depend on geometry and detect, never on
// sessions or pipeline.
package associate
