// Package threshold implements the k-of-n aggregation path: the master
// commitment is split with Shamir secret sharing over GF(2^8), byte-wise, and
// each finger's share is XOR-masked with that finger's own key. A share is
// useless without a successful Rep for its finger, and any k enrolled fingers
// reconstruct the same master the XOR path would have produced.
package threshold

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/biosig/biosigner/internal/aggregate"
	"github.com/biosig/biosigner/internal/fuzzy"
	"github.com/biosig/biosigner/internal/gf256"
)

var (
	// ErrInvalidThreshold covers threshold < 2, threshold > enrolled fingers,
	// and more fingers than the field can index.
	ErrInvalidThreshold = errors.New("threshold: invalid threshold parameters")
	// ErrDuplicateShareIndex indicates two presented shares claim the same
	// evaluation point; the Lagrange denominator would be zero.
	ErrDuplicateShareIndex = errors.New("threshold: duplicate share index")
	// ErrMissingShare indicates a presented finger has no stored share.
	ErrMissingShare = errors.New("threshold: no share for presented finger")
)

// maxShares is the field-size ceiling: evaluation points are nonzero bytes.
const maxShares = 255

// Share is one finger's masked Shamir share. Index is the polynomial
// evaluation point, always a unique positive integer; the secret lives at
// zero and is never an evaluation point.
type Share struct {
	FingerID    string `json:"finger_id"`
	Index       int    `json:"share_index"`
	MaskedShare []byte `json:"masked_share"`
}

// Enrollment is the output of CreateEnrollment.
type Enrollment struct {
	MasterKey []byte
	Shares    []Share
	Threshold int
	Total     int
}

// CreateEnrollment splits the XOR-aggregated master key across all enrolled
// fingers so that any k of them can later reconstruct it. Randomness is drawn
// from rng, or crypto/rand when nil.
func CreateEnrollment(keys []*fuzzy.FingerKey, k int, rng io.Reader) (*Enrollment, error) {
	if len(keys) == 0 {
		return nil, aggregate.ErrEmptyInput
	}
	if k < 2 {
		return nil, fmt.Errorf("%w: threshold %d is below 2", ErrInvalidThreshold, k)
	}
	if k > len(keys) {
		return nil, fmt.Errorf("%w: threshold %d exceeds %d enrolled fingers", ErrInvalidThreshold, k, len(keys))
	}
	if len(keys) > maxShares {
		return nil, fmt.Errorf("%w: %d fingers exceeds field ceiling %d", ErrInvalidThreshold, len(keys), maxShares)
	}
	if rng == nil {
		rng = rand.Reader
	}

	seen := make(map[string]struct{}, len(keys))
	raw := make([][]byte, len(keys))
	for i, fk := range keys {
		if _, dup := seen[fk.FingerID]; dup {
			return nil, fmt.Errorf("%w: %s", aggregate.ErrDuplicateFinger, fk.FingerID)
		}
		seen[fk.FingerID] = struct{}{}
		if len(fk.Key) != fuzzy.KeyLen {
			return nil, fmt.Errorf("%w: got %d bytes for %s", aggregate.ErrInvalidKeyLength, len(fk.Key), fk.FingerID)
		}
		raw[i] = fk.Key
	}
	master, err := aggregate.XOR(raw)
	if err != nil {
		return nil, err
	}

	// one degree-(k-1) polynomial per byte position, secret byte as the
	// constant term
	coeffs := make([][]byte, fuzzy.KeyLen)
	for j := range coeffs {
		coeffs[j] = make([]byte, k)
		coeffs[j][0] = master[j]
		if _, err := io.ReadFull(rng, coeffs[j][1:]); err != nil {
			return nil, fmt.Errorf("fail to draw polynomial coefficients: %w", err)
		}
	}

	shares := make([]Share, len(keys))
	for i, fk := range keys {
		index := i + 1
		masked := make([]byte, fuzzy.KeyLen)
		for j := range masked {
			masked[j] = gf256.Add(gf256.EvalPoly(coeffs[j], byte(index)), fk.Key[j])
		}
		shares[i] = Share{FingerID: fk.FingerID, Index: index, MaskedShare: masked}
	}
	return &Enrollment{
		MasterKey: master,
		Shares:    shares,
		Threshold: k,
		Total:     len(keys),
	}, nil
}

// RecoverParams carries the reconstruction policy.
type RecoverParams struct {
	Threshold      int
	TotalShares    int
	MinAvgQuality  float64
	RequireQuality bool
}

// Recover unmasks each presented finger's share with its freshly reproduced
// key and Lagrange-interpolates the byte-wise polynomials at zero.
func Recover(keys []*fuzzy.FingerKey, shares map[string]Share, params RecoverParams) (*aggregate.Result, error) {
	if len(keys) < params.Threshold {
		return nil, fmt.Errorf("%w: %d of %d required fingers presented",
			aggregate.ErrInsufficientFingers, len(keys), params.Threshold)
	}

	seen := make(map[string]struct{}, len(keys))
	indexSeen := make(map[int]struct{}, len(keys))
	points := make([]byte, 0, len(keys))
	values := make([][]byte, 0, len(keys))
	ids := make([]string, 0, len(keys))
	qualitySum, hasQuality := 0, true

	for _, fk := range keys {
		if _, dup := seen[fk.FingerID]; dup {
			return nil, fmt.Errorf("%w: %s", aggregate.ErrDuplicateFinger, fk.FingerID)
		}
		seen[fk.FingerID] = struct{}{}
		share, ok := shares[fk.FingerID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingShare, fk.FingerID)
		}
		if share.Index <= 0 || share.Index > maxShares {
			return nil, fmt.Errorf("threshold: share index %d out of range for %s", share.Index, fk.FingerID)
		}
		if _, dup := indexSeen[share.Index]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateShareIndex, share.Index)
		}
		indexSeen[share.Index] = struct{}{}
		if len(fk.Key) != fuzzy.KeyLen || len(share.MaskedShare) != fuzzy.KeyLen {
			return nil, fmt.Errorf("%w: finger %s", aggregate.ErrInvalidKeyLength, fk.FingerID)
		}

		unmasked := make([]byte, fuzzy.KeyLen)
		for j := range unmasked {
			unmasked[j] = gf256.Add(share.MaskedShare[j], fk.Key[j])
		}
		points = append(points, byte(share.Index))
		values = append(values, unmasked)
		ids = append(ids, fk.FingerID)
		if fk.Quality <= 0 {
			hasQuality = false
		}
		qualitySum += fk.Quality
	}

	avgQuality := float64(qualitySum) / float64(len(keys))
	if params.RequireQuality {
		if !hasQuality {
			return nil, fmt.Errorf("%w: quality scores required", aggregate.ErrQualityThreshold)
		}
		if avgQuality < params.MinAvgQuality {
			return nil, fmt.Errorf("%w: average %.1f below %.1f",
				aggregate.ErrQualityThreshold, avgQuality, params.MinAvgQuality)
		}
	}

	// interpolate only over the first threshold points; extra shares are
	// redundant by construction
	points = points[:params.Threshold]
	values = values[:params.Threshold]

	master := make([]byte, fuzzy.KeyLen)
	for j := range master {
		master[j] = interpolateAtZero(points, values, j)
	}
	return &aggregate.Result{
		MasterKey:      master,
		FingersUsed:    len(keys),
		FingerIDs:      ids,
		AverageQuality: avgQuality,
		HasQuality:     hasQuality,
		FallbackMode:   len(keys) < params.TotalShares,
		Outcome:        outcomeFor(len(keys), params.TotalShares),
	}, nil
}

func outcomeFor(used, total int) aggregate.Outcome {
	if used < total {
		return aggregate.OutcomeFallback
	}
	return aggregate.OutcomeFull
}

// interpolateAtZero evaluates the Lagrange interpolation of byte position j
// at x = 0. Division is multiplication by the field inverse; duplicate points
// were rejected upstream, so denominators are never zero.
func interpolateAtZero(points []byte, values [][]byte, j int) byte {
	var secret byte
	for i, xi := range points {
		num, den := byte(1), byte(1)
		for m, xm := range points {
			if m == i {
				continue
			}
			num = gf256.Mul(num, xm)                // (0 - xm) == xm in GF(2^8)
			den = gf256.Mul(den, gf256.Add(xi, xm)) // (xi - xm)
		}
		secret = gf256.Add(secret, gf256.Mul(values[i][j], gf256.Mul(num, gf256.Inv(den))))
	}
	return secret
}
