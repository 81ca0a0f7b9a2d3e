package types

import (
	"encoding/json"
	"fmt"

	"github.com/biosig/biosigner/internal/threshold"
)

// HelperBundle is the unit handed to helper storage: one finger's public
// helper data plus, on the threshold path, that finger's masked share.
type HelperBundle struct {
	Helper []byte           `json:"helper"`
	Share  *threshold.Share `json:"share,omitempty"`
}

// Encode serializes the bundle for storage.
func (b *HelperBundle) Encode() ([]byte, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("fail to encode helper bundle: %w", err)
	}
	return raw, nil
}

// DecodeHelperBundle reads a stored bundle back.
func DecodeHelperBundle(raw []byte) (*HelperBundle, error) {
	var b HelperBundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("fail to decode helper bundle: %w", err)
	}
	if len(b.Helper) == 0 {
		return nil, fmt.Errorf("helper bundle has no helper data")
	}
	return &b, nil
}
