package fuzzy

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	helperCodecVersion = 1

	// SaltLen is the salt length in bytes.
	SaltLen = 16
	// TagLen is the integrity tag length in bytes.
	TagLen = 32
	// KeyLen is the derived key length in bytes.
	KeyLen = 32
)

// HelperData is the public record produced at enrollment. It is safe to
// store or transmit in the clear: the syndrome is the template XOR a random
// codeword and by itself reveals neither. The personalization tag binds key
// derivation to exactly one finger.
type HelperData struct {
	FingerID        string
	Salt            []byte
	Personalization []byte
	Syndrome        []byte
	IntegrityTag    []byte
}

// Serialize writes the helper record in its versioned, length-prefixed
// binary form. The same record always produces the same bytes.
func (h *HelperData) Serialize() []byte {
	var buf bytes.Buffer
	buf.WriteByte(helperCodecVersion)
	for _, field := range [][]byte{[]byte(h.FingerID), h.Salt, h.Personalization, h.Syndrome, h.IntegrityTag} {
		binary.Write(&buf, binary.BigEndian, uint16(len(field)))
		buf.Write(field)
	}
	return buf.Bytes()
}

// ParseHelperData reads a record previously produced by Serialize.
func ParseHelperData(raw []byte) (*HelperData, error) {
	if len(raw) < 1 {
		return nil, errors.New("helper data is empty")
	}
	if raw[0] != helperCodecVersion {
		return nil, fmt.Errorf("unsupported helper data version %d", raw[0])
	}
	rest := raw[1:]
	fields := make([][]byte, 0, 5)
	for i := 0; i < 5; i++ {
		if len(rest) < 2 {
			return nil, errors.New("helper data truncated")
		}
		n := int(binary.BigEndian.Uint16(rest[:2]))
		rest = rest[2:]
		if len(rest) < n {
			return nil, errors.New("helper data truncated")
		}
		fields = append(fields, rest[:n])
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return nil, errors.New("helper data has trailing bytes")
	}
	return &HelperData{
		FingerID:        string(fields[0]),
		Salt:            append([]byte(nil), fields[1]...),
		Personalization: append([]byte(nil), fields[2]...),
		Syndrome:        append([]byte(nil), fields[3]...),
		IntegrityTag:    append([]byte(nil), fields[4]...),
	}, nil
}

// FingerKey is the reproducible per-finger secret. It lives in memory only
// and is never persisted or logged.
type FingerKey struct {
	FingerID string
	Key      []byte
	Quality  int
}
