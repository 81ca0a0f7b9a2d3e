package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/biosig/biosigner/internal/types"
)

const IDENTITIES_TABLE = "identities"

func (p *PostgresBackend) InsertIdentity(ctx context.Context, record types.IdentityRecord) error {
	helperRefs, err := json.Marshal(record.HelperRefs)
	if err != nil {
		return fmt.Errorf("fail to marshal helper refs: %w", err)
	}
	controllers, err := json.Marshal(record.Controllers)
	if err != nil {
		return fmt.Errorf("fail to marshal controllers: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (did, id_hash, network, helper_refs, controllers, threshold, enrolled_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`, IDENTITIES_TABLE)
	_, err = p.pool.Exec(ctx, query,
		record.Did, record.IDHash, record.Network, helperRefs, controllers,
		record.Threshold, record.EnrolledAt, record.Revoked)
	return err
}

func (p *PostgresBackend) FindIdentityByDid(ctx context.Context, did string) (*types.IdentityRecord, error) {
	query := fmt.Sprintf(`SELECT did, id_hash, network, helper_refs, controllers, threshold, enrolled_at, revoked
		FROM %s WHERE did = $1 LIMIT 1;`, IDENTITIES_TABLE)

	var record types.IdentityRecord
	var helperRefs, controllers []byte
	err := p.pool.QueryRow(ctx, query, did).Scan(
		&record.Did, &record.IDHash, &record.Network, &helperRefs, &controllers,
		&record.Threshold, &record.EnrolledAt, &record.Revoked)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(helperRefs, &record.HelperRefs); err != nil {
		return nil, fmt.Errorf("fail to unmarshal helper refs: %w", err)
	}
	if err := json.Unmarshal(controllers, &record.Controllers); err != nil {
		return nil, fmt.Errorf("fail to unmarshal controllers: %w", err)
	}
	return &record, nil
}

func (p *PostgresBackend) IdentityExists(ctx context.Context, did string) (bool, error) {
	_, err := p.FindIdentityByDid(ctx, did)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *PostgresBackend) UpdateIdentityHelperRefs(ctx context.Context, did string, helperRefs map[string]string) error {
	refs, err := json.Marshal(helperRefs)
	if err != nil {
		return fmt.Errorf("fail to marshal helper refs: %w", err)
	}
	query := fmt.Sprintf(`UPDATE %s SET helper_refs = $2 WHERE did = $1;`, IDENTITIES_TABLE)
	_, err = p.pool.Exec(ctx, query, did, refs)
	return err
}

func (p *PostgresBackend) MarkIdentityRevoked(ctx context.Context, did string) error {
	query := fmt.Sprintf(`UPDATE %s SET revoked = TRUE WHERE did = $1;`, IDENTITIES_TABLE)
	tag, err := p.pool.Exec(ctx, query, did)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ReplaceIdentity atomically retires the old DID and records its successor,
// used by finger rotation and revocation where the commitment changes.
func (p *PostgresBackend) ReplaceIdentity(ctx context.Context, oldDid string, record types.IdentityRecord) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`UPDATE %s SET revoked = TRUE WHERE did = $1;`, IDENTITIES_TABLE)
	if _, err := tx.Exec(ctx, query, oldDid); err != nil {
		return err
	}
	helperRefs, err := json.Marshal(record.HelperRefs)
	if err != nil {
		return fmt.Errorf("fail to marshal helper refs: %w", err)
	}
	controllers, err := json.Marshal(record.Controllers)
	if err != nil {
		return fmt.Errorf("fail to marshal controllers: %w", err)
	}
	insert := fmt.Sprintf(`INSERT INTO %s (did, id_hash, network, helper_refs, controllers, threshold, enrolled_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`, IDENTITIES_TABLE)
	if _, err := tx.Exec(ctx, insert,
		record.Did, record.IDHash, record.Network, helperRefs, controllers,
		record.Threshold, record.EnrolledAt, record.Revoked); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
