// Package aggregate combines per-finger keys into one 32-byte master
// commitment. XOR aggregation is commutative, associative and self-inverse,
// which is what makes rotation and revocation exact algebraic operations.
package aggregate

import (
	"errors"
	"fmt"

	"github.com/biosig/biosigner/internal/fuzzy"
)

var (
	// ErrEmptyInput indicates there were no keys to aggregate.
	ErrEmptyInput = errors.New("aggregate: no finger keys provided")
	// ErrInvalidKeyLength indicates a key that is not exactly 32 bytes.
	ErrInvalidKeyLength = errors.New("aggregate: finger key must be 32 bytes")
	// ErrInsufficientFingers indicates fewer fingers than the policy allows.
	ErrInsufficientFingers = errors.New("aggregate: insufficient fingers")
	// ErrQualityThreshold indicates the fallback quality gate was not met.
	ErrQualityThreshold = errors.New("aggregate: quality below fallback threshold")
	// ErrDuplicateFinger indicates the same finger contributed twice.
	ErrDuplicateFinger = errors.New("aggregate: duplicate finger id")
)

// MinFingers is the absolute floor: no policy ever aggregates fewer.
const MinFingers = 2

// XOR aggregates raw 32-byte keys byte-wise.
func XOR(keys [][]byte) ([]byte, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyInput
	}
	master := make([]byte, fuzzy.KeyLen)
	for _, k := range keys {
		if len(k) != fuzzy.KeyLen {
			return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeyLength, len(k))
		}
		for i := range master {
			master[i] ^= k[i]
		}
	}
	return master, nil
}

// RotateFinger replaces one finger's contribution in an existing master key
// without re-deriving the others: XOR out the old key, XOR in the new one.
func RotateFinger(oldMaster, oldKey, newKey []byte) ([]byte, error) {
	for _, k := range [][]byte{oldMaster, oldKey, newKey} {
		if len(k) != fuzzy.KeyLen {
			return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeyLength, len(k))
		}
	}
	out := make([]byte, fuzzy.KeyLen)
	for i := range out {
		out[i] = oldMaster[i] ^ oldKey[i] ^ newKey[i]
	}
	return out, nil
}

// RevokeFinger drops one finger and recomputes the master strictly from the
// remaining keys. Fails when fewer than the absolute floor would remain.
func RevokeFinger(remaining []*fuzzy.FingerKey) ([]byte, error) {
	if len(remaining) < MinFingers {
		return nil, fmt.Errorf("%w: %d fingers would remain, floor is %d",
			ErrInsufficientFingers, len(remaining), MinFingers)
	}
	keys := make([][]byte, len(remaining))
	for i, fk := range remaining {
		keys[i] = fk.Key
	}
	return XOR(keys)
}
