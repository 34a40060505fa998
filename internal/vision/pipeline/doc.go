// Package pipeline orchestrates one camera's frame path: detect objects,
// associate them with open usage sessions, advance the session lifecycle,
// classify surface material, and compose the annotated frame for the
// stream.
//
// Responsibilities:
//   - run the per-frame sequence in a fixed order so a detection's effect
//     on the lifecycle and its annotation come from the same tick
//   - keep people out of duration accounting while still drawing them
//   - hand frames between the capture and processing goroutines with a
//     single latest-wins slot so a slow tick drops frames instead of
//     building a backlog
//
// Dependency rule: the pipeline depends on the detect, associate,
// sessions, material, overlay, and frames packages; nothing in those
// packages knows about the pipeline or about each other's wiring.
package pipeline
