package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/biosig/biosigner/internal/minutiae"
)

// FingerCapture is one finger's feature list as delivered by the external
// extractor. The core never sees image data.
type FingerCapture struct {
	FingerID string             `json:"finger_id"`
	Minutiae []minutiae.Minutia `json:"minutiae"`
}

// IsValid checks a single capture against the boundary minimums.
func (c FingerCapture) IsValid() error {
	if c.FingerID == "" {
		return errors.New("finger_id is required")
	}
	if len(c.Minutiae) < minutiae.DefaultMinMinutiae {
		return fmt.Errorf("finger %s has %d minutiae, minimum is %d",
			c.FingerID, len(c.Minutiae), minutiae.DefaultMinMinutiae)
	}
	for i, m := range c.Minutiae {
		if m.Quality < 0 || m.Quality > 100 {
			return fmt.Errorf("finger %s minutia %d quality %d out of range", c.FingerID, i, m.Quality)
		}
	}
	return nil
}

func validateCaptures(captures []FingerCapture) error {
	if len(captures) < 2 {
		return errors.New("at least 2 finger captures are required")
	}
	seen := make(map[string]struct{}, len(captures))
	for _, c := range captures {
		if err := c.IsValid(); err != nil {
			return err
		}
		if _, dup := seen[c.FingerID]; dup {
			return fmt.Errorf("duplicate finger_id %s", c.FingerID)
		}
		seen[c.FingerID] = struct{}{}
	}
	return nil
}

// EnrollmentRequest creates a new biometric identity from a full finger set.
// Threshold 0 selects the plain XOR path; 2..n enables k-of-n recovery.
type EnrollmentRequest struct {
	Captures    []FingerCapture `json:"captures"`
	Network     string          `json:"network"`
	Controllers []string        `json:"controllers,omitempty"`
	Threshold   int             `json:"threshold,omitempty"`
}

// IsValid checks if the enrollment request is valid.
func (r EnrollmentRequest) IsValid() error {
	if err := validateCaptures(r.Captures); err != nil {
		return err
	}
	if r.Network == "" {
		return errors.New("network is required")
	}
	if r.Threshold != 0 && (r.Threshold < 2 || r.Threshold > len(r.Captures)) {
		return fmt.Errorf("threshold %d must be between 2 and %d", r.Threshold, len(r.Captures))
	}
	return nil
}

// EnrollmentResponse reports the derived identity and where its public
// helper data lives. No key material ever appears here.
type EnrollmentResponse struct {
	Did            string            `json:"did"`
	IDHash         string            `json:"id_hash"`
	FingersUsed    int               `json:"fingers_used"`
	FingerIDs      []string          `json:"finger_ids"`
	AverageQuality float64           `json:"average_quality,omitempty"`
	FallbackMode   bool              `json:"fallback_mode"`
	HelperRefs     map[string]string `json:"helper_refs"`
	Threshold      int               `json:"threshold,omitempty"`
	EnrolledAt     time.Time         `json:"enrolled_at"`
}

// VerificationRequest re-presents some or all enrolled fingers for an
// existing identity.
type VerificationRequest struct {
	Did        string          `json:"did"`
	Captures   []FingerCapture `json:"captures"`
	Network    string          `json:"network"`
	RequireAll bool            `json:"require_all,omitempty"`
}

// IsValid checks if the verification request is valid.
func (r VerificationRequest) IsValid() error {
	if r.Did == "" {
		return errors.New("did is required")
	}
	if r.Network == "" {
		return errors.New("network is required")
	}
	return validateCaptures(r.Captures)
}

// VerificationResponse is the outcome of a verification attempt.
type VerificationResponse struct {
	Verified       bool    `json:"verified"`
	Did            string  `json:"did"`
	FingersUsed    int     `json:"fingers_used"`
	AverageQuality float64 `json:"average_quality,omitempty"`
	FallbackMode   bool    `json:"fallback_mode"`
}

// RotateRequest swaps one enrolled finger for a new capture. The replaced
// finger must still be presentable so its key can be reproduced and XOR-ed
// out; the remaining captures re-authenticate the identity.
type RotateRequest struct {
	Did        string          `json:"did"`
	Network    string          `json:"network"`
	OldCapture FingerCapture   `json:"old_capture"`
	NewCapture FingerCapture   `json:"new_capture"`
	Others     []FingerCapture `json:"other_captures"`
}

// IsValid checks if the rotation request is valid.
func (r RotateRequest) IsValid() error {
	if r.Did == "" {
		return errors.New("did is required")
	}
	if r.Network == "" {
		return errors.New("network is required")
	}
	if err := r.OldCapture.IsValid(); err != nil {
		return fmt.Errorf("old capture: %w", err)
	}
	if err := r.NewCapture.IsValid(); err != nil {
		return fmt.Errorf("new capture: %w", err)
	}
	for _, c := range r.Others {
		if err := c.IsValid(); err != nil {
			return fmt.Errorf("other capture: %w", err)
		}
	}
	return nil
}

// RevokeRequest removes one enrolled finger; the remaining captures must
// re-authenticate and stay above the aggregation floor.
type RevokeRequest struct {
	Did             string          `json:"did"`
	Network         string          `json:"network"`
	RevokedFingerID string          `json:"revoked_finger_id"`
	Captures        []FingerCapture `json:"captures"`
}

// IsValid checks if the revocation request is valid.
func (r RevokeRequest) IsValid() error {
	if r.Did == "" {
		return errors.New("did is required")
	}
	if r.Network == "" {
		return errors.New("network is required")
	}
	if r.RevokedFingerID == "" {
		return errors.New("revoked_finger_id is required")
	}
	return validateCaptures(r.Captures)
}

// RotationResponse reports the re-derived identity after a rotation or
// revocation. The commitment changes, so the DID changes with it.
type RotationResponse struct {
	OldDid     string            `json:"old_did"`
	NewDid     string            `json:"new_did"`
	IDHash     string            `json:"id_hash"`
	HelperRefs map[string]string `json:"helper_refs,omitempty"`
}
