package associate

import (
	"image"

	"github.com/banshee-data/usage.report/internal/vision/detect"
	"github.com/banshee-data/usage.report/internal/vision/geometry"
)

// NoSession marks a detection the matcher could not assign to any open
// session. Session ids are always positive.
const NoSession int64 = 0

// Candidate is an open session as seen by the matcher: its id and the box
// it last occupied.
type Candidate struct {
	SessionID int64
	Box       image.Rectangle
}

// Matcher assigns this frame's detections to open sessions. The returned
// slice is indexed by detection; each element is the claimed session id or
// NoSession. Implementations must never assign one session to two
// detections within a single call. Both inputs may be empty.
type Matcher interface {
	Match(detections []detect.Detection, open []Candidate) []int64
}

// Gates holds the eligibility thresholds for session matching.
type Gates struct {
	// MinIoU is the minimum overlap with the session's last box.
	MinIoU float64

	// MaxAreaChange is the maximum relative area change against the
	// session's last box. Prevents a different, nearer object from
	// inheriting a session.
	MaxAreaChange float64

	// MaxCentroidDistance is the maximum centre jump in pixels. The value
	// assumes full-resolution frames; it is configuration, not policy,
	// precisely because it does not scale with frame size.
	MaxCentroidDistance float64
}

// DefaultGates returns the production matching thresholds.
func DefaultGates() Gates {
	return Gates{
		MinIoU:              0.30,
		MaxAreaChange:       0.40,
		MaxCentroidDistance: 80,
	}
}

// GreedyMatcher assigns detections to sessions in input order, claiming the
// maximum-IoU session among those passing all three gates.
//
// The result is deliberately order-dependent and carries no global
// optimality guarantee: an earlier detection can claim a session a later
// detection would have overlapped better. That behaviour is part of the
// matcher's contract — substituting an optimal assignment (e.g. Hungarian)
// belongs in a different Matcher implementation, not in a change here.
type GreedyMatcher struct {
	Gates Gates
}

// NewGreedyMatcher creates a GreedyMatcher with the given gates.
func NewGreedyMatcher(gates Gates) *GreedyMatcher {
	return &GreedyMatcher{Gates: gates}
}

// Match implements Matcher.
func (m *GreedyMatcher) Match(detections []detect.Detection, open []Candidate) []int64 {
	assignments := make([]int64, len(detections))
	claimed := make(map[int64]bool, len(open))

	for i, det := range detections {
		bestID := NoSession
		bestIoU := 0.0

		for _, cand := range open {
			if claimed[cand.SessionID] {
				continue
			}

			iou := geometry.IoU(det.Box, cand.Box)
			if iou < m.Gates.MinIoU {
				continue
			}
			if geometry.RelativeAreaChange(cand.Box, det.Box) > m.Gates.MaxAreaChange {
				continue
			}
			if geometry.CentroidDistance(det.Box, cand.Box) > m.Gates.MaxCentroidDistance {
				continue
			}

			if iou > bestIoU {
				bestID = cand.SessionID
				bestIoU = iou
			}
		}

		assignments[i] = bestID
		if bestID != NoSession {
			claimed[bestID] = true
		}
	}

	return assignments
}
