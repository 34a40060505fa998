// Package material classifies the surface finish of a tracked object from
// per-frame texture and highlight measurements.
//
// Responsibilities:
//   - reduce a region of interest to a Measurement (texture entropy in bits
//     and the fraction of blown-out highlight pixels)
//   - classify a Measurement as matte or specular
//   - remember, per track, that a glare highlight was ever observed: glare
//     is sticky, so a shiny object tilted away from the light does not
//     flip back to matte
//
// Measurement extraction lives in measure.go and needs image data; the
// classifier and the per-track memory are pure and testable without frames.
package material
