package storage

import (
	"context"

	"github.com/biosig/biosigner/internal/types"
)

// DatabaseStorage is the enrollment registry: the local index of derived
// identifiers, their helper references and controller accounts.
type DatabaseStorage interface {
	Close() error

	InsertIdentity(ctx context.Context, record types.IdentityRecord) error
	FindIdentityByDid(ctx context.Context, did string) (*types.IdentityRecord, error)
	IdentityExists(ctx context.Context, did string) (bool, error)
	UpdateIdentityHelperRefs(ctx context.Context, did string, helperRefs map[string]string) error
	MarkIdentityRevoked(ctx context.Context, did string) error
	ReplaceIdentity(ctx context.Context, oldDid string, record types.IdentityRecord) error
}
