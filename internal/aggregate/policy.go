package aggregate

import (
	"fmt"

	"github.com/biosig/biosigner/internal/fuzzy"
)

// Outcome is the explicit result of the aggregation policy. The quality-gated
// fallback is a three-state machine, not exception flow: either every
// enrolled finger contributed, or a gated subset did, or the request is
// rejected with a specific reason.
type Outcome int

const (
	OutcomeFull Outcome = iota
	OutcomeFallback
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFull:
		return "full"
	case OutcomeFallback:
		return "fallback"
	case OutcomeRejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the output of either aggregation path.
type Result struct {
	MasterKey      []byte   `json:"-"`
	FingersUsed    int      `json:"fingers_used"`
	FingerIDs      []string `json:"finger_ids"`
	AverageQuality float64  `json:"average_quality"`
	HasQuality     bool     `json:"has_quality"`
	FallbackMode   bool     `json:"fallback_mode"`
	Outcome        Outcome  `json:"-"`
}

// Policy holds the fallback tuning. The quality bar tightens as more enrolled
// fingers are missing.
type Policy struct {
	BaseQualityThreshold int
	ThresholdStep        int
}

// DefaultPolicy matches the enrollment product tuning: one missing finger
// needs average quality 80, two missing need 85.
func DefaultPolicy() Policy {
	return Policy{BaseQualityThreshold: 75, ThresholdStep: 5}
}

func (p Policy) thresholdFor(missing int) int {
	return p.BaseQualityThreshold + p.ThresholdStep*missing
}

// FingerKeys runs the enrollment/verification aggregation policy over the
// presented per-finger keys.
func FingerKeys(keys []*fuzzy.FingerKey, enrolledCount int, requireAll bool, policy Policy) (*Result, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyInput
	}
	seen := make(map[string]struct{}, len(keys))
	ids := make([]string, 0, len(keys))
	raw := make([][]byte, 0, len(keys))
	qualitySum, hasQuality := 0, true
	for _, fk := range keys {
		if _, dup := seen[fk.FingerID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFinger, fk.FingerID)
		}
		seen[fk.FingerID] = struct{}{}
		ids = append(ids, fk.FingerID)
		raw = append(raw, fk.Key)
		if fk.Quality <= 0 {
			hasQuality = false
		}
		qualitySum += fk.Quality
	}
	avgQuality := float64(qualitySum) / float64(len(keys))

	if len(keys) < MinFingers {
		return nil, fmt.Errorf("%w: %d presented, floor is %d", ErrInsufficientFingers, len(keys), MinFingers)
	}
	if len(keys) > enrolledCount {
		return nil, fmt.Errorf("aggregate: %d fingers presented exceeds enrolled count %d", len(keys), enrolledCount)
	}

	missing := enrolledCount - len(keys)
	if missing > 0 {
		if requireAll {
			return nil, fmt.Errorf("%w: %d of %d enrolled fingers presented and all are required",
				ErrInsufficientFingers, len(keys), enrolledCount)
		}
		if !hasQuality {
			return nil, fmt.Errorf("%w: quality scores required for fallback", ErrQualityThreshold)
		}
		if threshold := policy.thresholdFor(missing); avgQuality < float64(threshold) {
			return nil, fmt.Errorf("%w: average %.1f below %d with %d fingers missing",
				ErrQualityThreshold, avgQuality, threshold, missing)
		}
	}

	master, err := XOR(raw)
	if err != nil {
		return nil, err
	}
	outcome := OutcomeFull
	if missing > 0 {
		outcome = OutcomeFallback
	}
	return &Result{
		MasterKey:      master,
		FingersUsed:    len(keys),
		FingerIDs:      ids,
		AverageQuality: avgQuality,
		HasQuality:     hasQuality,
		FallbackMode:   missing > 0,
		Outcome:        outcome,
	}, nil
}
