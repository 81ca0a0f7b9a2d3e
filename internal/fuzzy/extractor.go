// Package fuzzy implements a code-offset fuzzy extractor over the BCH(127,64)
// code: Gen turns a quantized finger template into a reproducible 32-byte key
// plus public helper data, Rep reproduces the same key from any noisy capture
// within the 10-bit error budget.
package fuzzy

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/biosig/biosigner/internal/bch"
	"github.com/biosig/biosigner/internal/minutiae"
)

var (
	// ErrHelperMismatch signals that the presented template does not belong to
	// the helper data, detected via the integrity tag. This means "not the
	// enrolled finger", not a malformed request.
	ErrHelperMismatch = errors.New("fuzzy: template does not match helper data")
	// ErrDecodingFailure signals an error pattern beyond the correction budget.
	ErrDecodingFailure = errors.New("fuzzy: error pattern exceeds correction capacity")
)

const personalizationDomain = "biosigner-finger-v1"

// Gen derives a fresh key and helper record from an enrolled template.
// Randomness is drawn from rng, or crypto/rand when nil.
func Gen(template *minutiae.FingerTemplate, rng io.Reader) (*FingerKey, *HelperData, error) {
	if rng == nil {
		rng = rand.Reader
	}
	w := TemplateBits(template)

	codeword, err := bch.RandomCodeword(rng)
	if err != nil {
		return nil, nil, fmt.Errorf("fail to sample codeword: %w", err)
	}
	syndrome := xorBytes(w, codeword)

	salt := make([]byte, SaltLen)
	if _, err := io.ReadFull(rng, salt); err != nil {
		return nil, nil, fmt.Errorf("fail to generate salt: %w", err)
	}
	personalization := PersonalizationTag(template.FingerID)

	key, err := deriveKey(codeword, salt, personalization)
	if err != nil {
		return nil, nil, err
	}
	tag, err := integrityTag(salt, w)
	if err != nil {
		return nil, nil, err
	}

	helper := &HelperData{
		FingerID:        template.FingerID,
		Salt:            salt,
		Personalization: personalization,
		Syndrome:        syndrome,
		IntegrityTag:    tag,
	}
	return &FingerKey{FingerID: template.FingerID, Key: key}, helper, nil
}

// Rep reproduces the enrolled key from a noisy capture of the same finger.
// The decoder recovers the enrollment codeword when the quantized templates
// differ in at most bch.T bits; the integrity tag over the reconstructed
// enrollment template then rules out a miscorrected foreign finger before any
// key is handed back.
func Rep(template *minutiae.FingerTemplate, helper *HelperData) (*FingerKey, error) {
	if helper == nil {
		return nil, errors.New("fuzzy: helper data is required")
	}
	if template.FingerID != helper.FingerID {
		return nil, fmt.Errorf("%w: helper data is for finger %q", ErrHelperMismatch, helper.FingerID)
	}
	if len(helper.Syndrome) != bch.PackedLen {
		return nil, fmt.Errorf("fuzzy: malformed syndrome length %d", len(helper.Syndrome))
	}

	wNoisy := TemplateBits(template)
	received := xorBytes(wNoisy, helper.Syndrome)

	codeword, err := bch.Decode(received)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodingFailure, err)
	}

	// reconstruct the enrolled template bits and verify the tag in constant
	// time; a silently wrong key is never returned
	wEnrolled := xorBytes(codeword, helper.Syndrome)
	tag, err := integrityTag(helper.Salt, wEnrolled)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(tag, helper.IntegrityTag) != 1 {
		return nil, ErrHelperMismatch
	}

	key, err := deriveKey(codeword, helper.Salt, helper.Personalization)
	if err != nil {
		return nil, err
	}
	return &FingerKey{FingerID: template.FingerID, Key: key}, nil
}

// TemplateBits maps a template onto the 127-bit word consumed by the code
// offset. Each quantized minutia sets one bit at a position derived from its
// triple, so mostly-overlapping quantized sets differ in few bits.
func TemplateBits(template *minutiae.FingerTemplate) []byte {
	bits := make([]byte, bch.PackedLen)
	for _, q := range template.Minutiae {
		idx := bitIndex(q)
		bits[idx/8] |= 1 << (uint(idx) % 8)
	}
	return bits
}

func bitIndex(q minutiae.QuantizedMinutia) int {
	payload := []byte{
		byte(q.GridX), byte(q.GridX >> 8),
		byte(q.GridY), byte(q.GridY >> 8),
		byte(q.AngleBin),
	}
	sum := blake2b.Sum256(payload)
	v := uint32(sum[0]) | uint32(sum[1])<<8 | uint32(sum[2])<<16 | uint32(sum[3])<<24
	return int(v % uint32(bch.N))
}

// PersonalizationTag derives the per-finger domain separator that keeps keys
// from different fingers distinct even for identical codewords.
func PersonalizationTag(fingerID string) []byte {
	sum := blake2b.Sum256([]byte(personalizationDomain + "|" + fingerID))
	return sum[:16]
}

func deriveKey(codeword, salt, personalization []byte) ([]byte, error) {
	kdf, err := blake2b.New256(salt)
	if err != nil {
		return nil, fmt.Errorf("fail to initialize kdf: %w", err)
	}
	kdf.Write(personalization)
	kdf.Write(codeword)
	return kdf.Sum(nil), nil
}

func integrityTag(salt, w []byte) ([]byte, error) {
	mac := hmac.New(func() hash.Hash {
		h, _ := blake2b.New256(nil)
		return h
	}, salt)
	mac.Write(w)
	return mac.Sum(nil), nil
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
