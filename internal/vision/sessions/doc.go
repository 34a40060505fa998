// Package sessions owns the usage-session lifecycle of the vision pipeline.
//
// Responsibilities: session creation from unmatched detections, gap-tolerant
// duration accounting, finalisation of disappeared sessions, and one-shot
// alert evaluation. Key type: Store.
//
// Dependency rule: sessions may depend on geometry, detect and associate,
// never on pipeline or audit. Lifecycle events reach the audit layer through
// the Recorder interface.
package sessions
