package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/biosig/biosigner/internal/aggregate"
	"github.com/biosig/biosigner/internal/did"
	"github.com/biosig/biosigner/internal/fuzzy"
	"github.com/biosig/biosigner/internal/minutiae"
	"github.com/biosig/biosigner/internal/types"
)

// ErrRotationUnsupported is returned for threshold-enrolled identities,
// where replacing a finger requires re-running the full share enrollment.
var ErrRotationUnsupported = errors.New("rotation requires a plain XOR enrollment; re-enroll threshold identities")

// Rotate replaces one enrolled finger. Every enrolled finger must be
// presented so the old master can be reproduced; the new master is then
// old XOR oldKey XOR newKey, exact because XOR aggregation is self-inverse.
func (s *Identity) Rotate(ctx context.Context, req types.RotateRequest) (*types.RotationResponse, error) {
	record, err := s.getRecord(ctx, req.Did)
	if err != nil {
		return nil, err
	}
	if record.Revoked {
		return nil, fmt.Errorf("%w: %s", ErrIdentityRevoked, req.Did)
	}
	if record.Threshold > 0 {
		return nil, ErrRotationUnsupported
	}

	presented := append([]types.FingerCapture{req.OldCapture}, req.Others...)
	if len(presented) != len(record.HelperRefs) {
		return nil, fmt.Errorf("%w: rotation needs all %d enrolled fingers, got %d",
			aggregate.ErrInsufficientFingers, len(record.HelperRefs), len(presented))
	}

	keys, _, err := s.reproduceKeys(ctx, record, presented)
	if err != nil {
		return nil, err
	}
	oldResult, err := aggregate.FingerKeys(keys, len(record.HelperRefs), true, s.policy())
	if err != nil {
		return nil, err
	}
	reDerived, err := did.Generate(oldResult.MasterKey, req.Network)
	if err != nil {
		return nil, err
	}
	if reDerived != req.Did {
		return nil, fmt.Errorf("%w: presented fingers do not reproduce %s", fuzzy.ErrHelperMismatch, req.Did)
	}

	var oldKey *fuzzy.FingerKey
	for _, fk := range keys {
		if fk.FingerID == req.OldCapture.FingerID {
			oldKey = fk
		}
	}
	if oldKey == nil {
		return nil, fmt.Errorf("finger %s is not enrolled for %s", req.OldCapture.FingerID, req.Did)
	}

	newTemplate, err := minutiae.ProcessFingerprint(req.NewCapture.FingerID, req.NewCapture.Minutiae, s.params())
	if err != nil {
		return nil, fmt.Errorf("fail to process finger %s: %w", req.NewCapture.FingerID, err)
	}
	newKey, newHelper, err := fuzzy.Gen(newTemplate, nil)
	if err != nil {
		return nil, fmt.Errorf("fail to generate key for finger %s: %w", req.NewCapture.FingerID, err)
	}

	newMaster, err := aggregate.RotateFinger(oldResult.MasterKey, oldKey.Key, newKey.Key)
	if err != nil {
		return nil, err
	}
	return s.replaceIdentity(ctx, record, req.Network, newMaster, req.OldCapture.FingerID, req.NewCapture.FingerID, newHelper)
}

// Revoke drops one enrolled finger and re-derives the identity strictly from
// the remaining fingers, which must all be presented and stay above the
// aggregation floor.
func (s *Identity) Revoke(ctx context.Context, req types.RevokeRequest) (*types.RotationResponse, error) {
	record, err := s.getRecord(ctx, req.Did)
	if err != nil {
		return nil, err
	}
	if record.Revoked {
		return nil, fmt.Errorf("%w: %s", ErrIdentityRevoked, req.Did)
	}
	if record.Threshold > 0 {
		return nil, ErrRotationUnsupported
	}
	if _, enrolled := record.HelperRefs[req.RevokedFingerID]; !enrolled {
		return nil, fmt.Errorf("finger %s is not enrolled for %s", req.RevokedFingerID, req.Did)
	}
	for _, capture := range req.Captures {
		if capture.FingerID == req.RevokedFingerID {
			return nil, fmt.Errorf("revoked finger %s must not be presented", req.RevokedFingerID)
		}
	}
	if len(req.Captures) != len(record.HelperRefs)-1 {
		return nil, fmt.Errorf("%w: revocation needs the %d remaining fingers, got %d",
			aggregate.ErrInsufficientFingers, len(record.HelperRefs)-1, len(req.Captures))
	}

	keys, _, err := s.reproduceKeys(ctx, record, req.Captures)
	if err != nil {
		return nil, err
	}
	newMaster, err := aggregate.RevokeFinger(keys)
	if err != nil {
		return nil, err
	}
	return s.replaceIdentity(ctx, record, req.Network, newMaster, req.RevokedFingerID, "", nil)
}

// replaceIdentity derives the successor DID, rewrites helper references and
// swaps the registry record in one transaction.
func (s *Identity) replaceIdentity(ctx context.Context, old *types.IdentityRecord, network string,
	newMaster []byte, droppedFingerID, addedFingerID string, addedHelper *fuzzy.HelperData) (*types.RotationResponse, error) {
	newDid, err := did.Generate(newMaster, network)
	if err != nil {
		return nil, err
	}
	idHash, err := did.ExtractHash(newDid)
	if err != nil {
		return nil, err
	}

	helperRefs := make(map[string]string, len(old.HelperRefs))
	for fingerID, ref := range old.HelperRefs {
		if fingerID != droppedFingerID {
			helperRefs[fingerID] = ref
		}
	}
	if addedHelper != nil {
		bundle := &types.HelperBundle{Helper: addedHelper.Serialize()}
		encoded, err := bundle.Encode()
		if err != nil {
			return nil, err
		}
		ref, err := s.helperStore.Store(ctx, encoded)
		if err != nil {
			return nil, fmt.Errorf("fail to store helper data for finger %s: %w", addedFingerID, err)
		}
		helperRefs[addedFingerID] = ref
	}

	record := types.IdentityRecord{
		Did:         newDid,
		IDHash:      hex.EncodeToString(idHash),
		Network:     network,
		HelperRefs:  helperRefs,
		Controllers: old.Controllers,
		EnrolledAt:  time.Now().UTC(),
	}
	if err := s.db.ReplaceIdentity(ctx, old.Did, record); err != nil {
		return nil, fmt.Errorf("fail to replace identity record: %w", err)
	}
	if s.redis != nil {
		if err := s.redis.SetIdentityCacheItem(ctx, &record, time.Hour); err != nil {
			s.logger.Errorf("fail to cache identity record, err: %v", err)
		}
		retired := *old
		retired.Revoked = true
		if err := s.redis.SetIdentityCacheItem(ctx, &retired, time.Hour); err != nil {
			s.logger.Errorf("fail to cache retired identity record, err: %v", err)
		}
	}
	s.enqueueLedgerWrite(record)

	s.logger.WithFields(logrus.Fields{
		"old_did": old.Did,
		"new_did": newDid,
	}).Info("Identity rotated")

	return &types.RotationResponse{
		OldDid:     old.Did,
		NewDid:     newDid,
		IDHash:     record.IDHash,
		HelperRefs: helperRefs,
	}, nil
}
