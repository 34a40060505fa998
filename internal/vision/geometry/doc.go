// Package geometry owns the pure box arithmetic for the vision pipeline.
//
// Responsibilities: intersection-over-union, centroid, area, and box
// normalisation/clipping helpers. Everything here is a pure function over
// image.Rectangle; no state, no I/O.
//
// Dependency rule: geometry may depend on nothing but the standard library.
package geometry
