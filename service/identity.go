package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/biosig/biosigner/cardano"
	"github.com/biosig/biosigner/config"
	"github.com/biosig/biosigner/internal/aggregate"
	"github.com/biosig/biosigner/internal/did"
	"github.com/biosig/biosigner/internal/fuzzy"
	"github.com/biosig/biosigner/internal/minutiae"
	"github.com/biosig/biosigner/internal/tasks"
	"github.com/biosig/biosigner/internal/threshold"
	"github.com/biosig/biosigner/internal/types"
	"github.com/biosig/biosigner/storage"
)

var (
	// ErrDuplicateEnrollment indicates the derived identifier already exists,
	// locally or on the ledger. Sybil attempts land here.
	ErrDuplicateEnrollment = errors.New("identity already enrolled")
	// ErrIdentityNotFound indicates no registry record for the DID.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrIdentityRevoked indicates the identity was revoked.
	ErrIdentityRevoked = errors.New("identity is revoked")
)

// Identity orchestrates the biometric pipeline: quantize, extract, aggregate,
// derive, persist, and hand the ledger write to the worker queue.
type Identity struct {
	cfg         config.Config
	logger      *logrus.Logger
	helperStore storage.HelperStore
	db          storage.DatabaseStorage
	redis       *storage.RedisStorage
	ledger      *cardano.Client
	queueClient *asynq.Client
}

func NewIdentity(cfg config.Config,
	helperStore storage.HelperStore,
	db storage.DatabaseStorage,
	redis *storage.RedisStorage,
	ledger *cardano.Client,
	queueClient *asynq.Client) *Identity {
	return &Identity{
		cfg:         cfg,
		logger:      logrus.WithField("service", "identity").Logger,
		helperStore: helperStore,
		db:          db,
		redis:       redis,
		ledger:      ledger,
		queueClient: queueClient,
	}
}

func (s *Identity) params() minutiae.Params {
	return minutiae.Params{
		GridSize:         s.cfg.Biometric.GridSize,
		AngleBins:        s.cfg.Biometric.AngleBins,
		QualityThreshold: s.cfg.Biometric.QualityThreshold,
		MinMinutiae:      s.cfg.Biometric.MinMinutiae,
	}
}

func (s *Identity) policy() aggregate.Policy {
	return aggregate.Policy{
		BaseQualityThreshold: s.cfg.Biometric.BaseFallbackQuality,
		ThresholdStep:        s.cfg.Biometric.FallbackQualityStep,
	}
}

// captureQuality is the average extractor-reported quality of a capture,
// zero when the extractor reported none.
func captureQuality(capture types.FingerCapture) int {
	sum, n := 0, 0
	for _, m := range capture.Minutiae {
		if m.Quality > 0 {
			sum += m.Quality
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

// Enroll runs Gen for every presented finger, aggregates the keys, derives
// the identifier, checks for duplicates, persists helper bundles and the
// registry record, and queues the ledger write.
func (s *Identity) Enroll(ctx context.Context, req types.EnrollmentRequest) (*types.EnrollmentResponse, error) {
	keys := make([]*fuzzy.FingerKey, 0, len(req.Captures))
	helpers := make(map[string]*fuzzy.HelperData, len(req.Captures))
	for _, capture := range req.Captures {
		template, err := minutiae.ProcessFingerprint(capture.FingerID, capture.Minutiae, s.params())
		if err != nil {
			return nil, fmt.Errorf("fail to process finger %s: %w", capture.FingerID, err)
		}
		key, helper, err := fuzzy.Gen(template, nil)
		if err != nil {
			return nil, fmt.Errorf("fail to generate key for finger %s: %w", capture.FingerID, err)
		}
		key.Quality = captureQuality(capture)
		keys = append(keys, key)
		helpers[capture.FingerID] = helper
	}

	var result *aggregate.Result
	shares := make(map[string]threshold.Share)
	if req.Threshold > 0 {
		enrollment, err := threshold.CreateEnrollment(keys, req.Threshold, nil)
		if err != nil {
			return nil, err
		}
		for _, share := range enrollment.Shares {
			shares[share.FingerID] = share
		}
		result = &aggregate.Result{
			MasterKey:   enrollment.MasterKey,
			FingersUsed: len(keys),
			Outcome:     aggregate.OutcomeFull,
		}
		for _, fk := range keys {
			result.FingerIDs = append(result.FingerIDs, fk.FingerID)
		}
	} else {
		var err error
		result, err = aggregate.FingerKeys(keys, len(keys), true, s.policy())
		if err != nil {
			return nil, err
		}
	}

	identifier, err := did.Generate(result.MasterKey, req.Network)
	if err != nil {
		return nil, err
	}
	if err := s.checkDuplicate(ctx, identifier); err != nil {
		return nil, err
	}

	helperRefs := make(map[string]string, len(helpers))
	for fingerID, helper := range helpers {
		bundle := &types.HelperBundle{Helper: helper.Serialize()}
		if share, ok := shares[fingerID]; ok {
			shareCopy := share
			bundle.Share = &shareCopy
		}
		encoded, err := bundle.Encode()
		if err != nil {
			return nil, err
		}
		ref, err := s.helperStore.Store(ctx, encoded)
		if err != nil {
			return nil, fmt.Errorf("fail to store helper data for finger %s: %w", fingerID, err)
		}
		helperRefs[fingerID] = ref
	}

	idHash, err := did.ExtractHash(identifier)
	if err != nil {
		return nil, err
	}
	record := types.IdentityRecord{
		Did:         identifier,
		IDHash:      hex.EncodeToString(idHash),
		Network:     req.Network,
		HelperRefs:  helperRefs,
		Controllers: req.Controllers,
		Threshold:   req.Threshold,
		EnrolledAt:  time.Now().UTC(),
	}
	if err := s.db.InsertIdentity(ctx, record); err != nil {
		return nil, fmt.Errorf("fail to insert identity record: %w", err)
	}
	if s.redis != nil {
		if err := s.redis.SetIdentityCacheItem(ctx, &record, time.Hour); err != nil {
			s.logger.Errorf("fail to cache identity record, err: %v", err)
		}
	}
	s.enqueueLedgerWrite(record)

	s.logger.WithFields(logrus.Fields{
		"did":          identifier,
		"fingers_used": result.FingersUsed,
		"threshold":    req.Threshold,
	}).Info("Identity enrolled")

	return &types.EnrollmentResponse{
		Did:            identifier,
		IDHash:         record.IDHash,
		FingersUsed:    result.FingersUsed,
		FingerIDs:      result.FingerIDs,
		AverageQuality: result.AverageQuality,
		FallbackMode:   result.FallbackMode,
		HelperRefs:     helperRefs,
		Threshold:      req.Threshold,
		EnrolledAt:     record.EnrolledAt,
	}, nil
}

func (s *Identity) checkDuplicate(ctx context.Context, identifier string) error {
	exists, err := s.db.IdentityExists(ctx, identifier)
	if err != nil {
		return fmt.Errorf("fail to check registry for %s: %w", identifier, err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEnrollment, identifier)
	}
	if s.ledger != nil {
		onChain, _, err := s.ledger.IdentityExists(ctx, identifier)
		if err != nil {
			return fmt.Errorf("fail to check ledger for %s: %w", identifier, err)
		}
		if onChain {
			return fmt.Errorf("%w: %s recorded on chain", ErrDuplicateEnrollment, identifier)
		}
	}
	return nil
}

func (s *Identity) enqueueLedgerWrite(record types.IdentityRecord) {
	if s.queueClient == nil {
		return
	}
	metadata, err := cardano.BuildEnvelope(record.Did, record.IDHash, record.HelperRefs, nil,
		record.Controllers, record.EnrolledAt, record.Revoked)
	if err != nil {
		s.logger.Errorf("fail to build metadata envelope, err: %v", err)
		return
	}
	submission := &types.MetadataSubmission{
		SubmissionID: uuid.New().String(),
		Did:          record.Did,
		Network:      record.Network,
		Metadata:     metadata,
	}
	task, err := submission.Task()
	if err != nil {
		s.logger.Errorf("fail to build metadata task, err: %v", err)
		return
	}
	if _, err := s.queueClient.Enqueue(task,
		asynq.MaxRetry(5),
		asynq.Timeout(2*time.Minute),
		asynq.Retention(10*time.Minute),
		asynq.Queue(tasks.QUEUE_NAME)); err != nil {
		s.logger.Errorf("fail to enqueue metadata task, err: %v", err)
	}
}

func (s *Identity) getRecord(ctx context.Context, identifier string) (*types.IdentityRecord, error) {
	if s.redis != nil {
		if record, err := s.redis.GetIdentityCacheItem(ctx, identifier); err == nil {
			return record, nil
		}
	}
	record, err := s.db.FindIdentityByDid(ctx, identifier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, identifier)
		}
		return nil, fmt.Errorf("fail to load identity record: %w", err)
	}
	return record, nil
}

// reproduceKeys runs Rep for every presented capture against the stored
// helper bundles. Any decode or tag failure surfaces as-is: the caller
// distinguishes "not the enrolled finger" from malformed input by error kind.
func (s *Identity) reproduceKeys(ctx context.Context, record *types.IdentityRecord, captures []types.FingerCapture) ([]*fuzzy.FingerKey, map[string]threshold.Share, error) {
	keys := make([]*fuzzy.FingerKey, 0, len(captures))
	shares := make(map[string]threshold.Share)
	for _, capture := range captures {
		ref, ok := record.HelperRefs[capture.FingerID]
		if !ok {
			return nil, nil, fmt.Errorf("finger %s is not enrolled for %s", capture.FingerID, record.Did)
		}
		raw, err := s.helperStore.Retrieve(ctx, ref)
		if err != nil {
			return nil, nil, fmt.Errorf("fail to retrieve helper data for finger %s: %w", capture.FingerID, err)
		}
		bundle, err := types.DecodeHelperBundle(raw)
		if err != nil {
			return nil, nil, err
		}
		helper, err := fuzzy.ParseHelperData(bundle.Helper)
		if err != nil {
			return nil, nil, err
		}
		template, err := minutiae.ProcessFingerprint(capture.FingerID, capture.Minutiae, s.params())
		if err != nil {
			return nil, nil, fmt.Errorf("fail to process finger %s: %w", capture.FingerID, err)
		}
		key, err := fuzzy.Rep(template, helper)
		if err != nil {
			return nil, nil, err
		}
		key.Quality = captureQuality(capture)
		keys = append(keys, key)
		if bundle.Share != nil {
			shares[capture.FingerID] = *bundle.Share
		}
	}
	return keys, shares, nil
}

// Verify reproduces keys for the presented fingers, re-aggregates, and
// compares the re-derived identifier with the claimed one.
func (s *Identity) Verify(ctx context.Context, req types.VerificationRequest) (*types.VerificationResponse, error) {
	record, err := s.getRecord(ctx, req.Did)
	if err != nil {
		return nil, err
	}
	if record.Revoked {
		return nil, fmt.Errorf("%w: %s", ErrIdentityRevoked, req.Did)
	}

	keys, shares, err := s.reproduceKeys(ctx, record, req.Captures)
	if err != nil {
		return nil, err
	}

	var result *aggregate.Result
	if record.Threshold > 0 {
		result, err = threshold.Recover(keys, shares, threshold.RecoverParams{
			Threshold:      record.Threshold,
			TotalShares:    len(record.HelperRefs),
			MinAvgQuality:  s.cfg.Biometric.RecoverMinAvgQuality,
			RequireQuality: len(keys) < len(record.HelperRefs),
		})
	} else {
		result, err = aggregate.FingerKeys(keys, len(record.HelperRefs), req.RequireAll || s.cfg.Biometric.RequireAllFingers, s.policy())
	}
	if err != nil {
		return nil, err
	}

	reDerived, err := did.Generate(result.MasterKey, req.Network)
	if err != nil {
		return nil, err
	}
	verified := reDerived == req.Did

	s.logger.WithFields(logrus.Fields{
		"did":          req.Did,
		"verified":     verified,
		"fingers_used": result.FingersUsed,
		"fallback":     result.FallbackMode,
	}).Info("Identity verification finished")

	return &types.VerificationResponse{
		Verified:       verified,
		Did:            req.Did,
		FingersUsed:    result.FingersUsed,
		AverageQuality: result.AverageQuality,
		FallbackMode:   result.FallbackMode,
	}, nil
}
