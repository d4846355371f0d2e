// Package gate applies the confidence threshold to extraction
// candidates. Rejected candidates are not discarded; they are
// persisted dismissed so the cutoff stays auditable and reversible.
package gate

import "mailminer/core/domain"

type Gate struct {
	Threshold float64
}

func New(threshold float64) Gate {
	return Gate{Threshold: threshold}
}

// Accept reports whether the candidate clears the threshold.
// The boundary is inclusive: a score equal to the threshold passes.
func (g Gate) Accept(c domain.Candidate) bool {
	return c.Confidence >= g.Threshold
}
