// Package did derives the public decentralized identifier from an aggregated
// biometric commitment. Derivation depends on nothing but the 32-byte
// commitment and the target network, which is what makes the identifier
// Sybil-resistant: the same finger set yields the same DID no matter which
// account attempts enrollment.
package did

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	method = "cardano"

	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
	NetworkPreprod = "preprod"
)

var (
	// ErrEmptyCommitment indicates an empty commitment byte string.
	ErrEmptyCommitment = errors.New("did: commitment is empty")
	// ErrInvalidNetwork indicates an unrecognized network name.
	ErrInvalidNetwork = errors.New("did: unrecognized network")
	// ErrMalformed indicates a DID string that does not parse.
	ErrMalformed = errors.New("did: malformed identifier")
)

// normalizeNetwork maps recognized network names to their DID segment.
// The preprod alias shares the testnet segment, so the same commitment on
// either testnet alias yields the same identifier.
func normalizeNetwork(network string) (string, error) {
	switch strings.ToLower(network) {
	case NetworkMainnet:
		return NetworkMainnet, nil
	case NetworkTestnet, NetworkPreprod:
		return NetworkTestnet, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidNetwork, network)
	}
}

// Generate deterministically derives "did:cardano:<network>:<base58(hash)>"
// from a commitment. Identical commitment and network always produce the
// identical string.
func Generate(commitment []byte, network string) (string, error) {
	if len(commitment) == 0 {
		return "", ErrEmptyCommitment
	}
	segment, err := normalizeNetwork(network)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(commitment)
	return fmt.Sprintf("did:%s:%s:%s", method, segment, base58.Encode(sum[:])), nil
}

// Verify recomputes the identifier for the commitment and compares.
func Verify(commitment []byte, identifier, network string) (bool, error) {
	expected, err := Generate(commitment, network)
	if err != nil {
		return false, err
	}
	return expected == identifier, nil
}

// ExtractHash parses a DID string and returns the decoded 32-byte hash.
func ExtractHash(identifier string) ([]byte, error) {
	parts := strings.Split(identifier, ":")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: expected 4 segments, got %d", ErrMalformed, len(parts))
	}
	if parts[0] != "did" || parts[1] != method {
		return nil, fmt.Errorf("%w: scheme %q method %q", ErrMalformed, parts[0], parts[1])
	}
	if _, err := normalizeNetwork(parts[2]); err != nil {
		return nil, fmt.Errorf("%w: network %q", ErrMalformed, parts[2])
	}
	decoded := base58.Decode(parts[3])
	if len(decoded) != blake2b.Size256 {
		return nil, fmt.Errorf("%w: base58 segment does not decode to a 32-byte hash", ErrMalformed)
	}
	// base58.Decode swallows invalid characters; round-trip to catch them
	if base58.Encode(decoded) != parts[3] {
		return nil, fmt.Errorf("%w: invalid base58 alphabet", ErrMalformed)
	}
	return decoded, nil
}
