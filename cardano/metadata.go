package cardano

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Cardano transaction metadata limits strings to 64 bytes, so long values
// are stored as chunk arrays.
const metadataStringLimit = 64

// Envelope is the on-chain record for one enrollment. Only public material
// goes in here: the DID, its hash, helper references (or inline helper
// bundles, hex-chunked), controllers and lifecycle flags.
type Envelope struct {
	Version     int                 `json:"version"`
	Did         string              `json:"did"`
	IDHash      string              `json:"id_hash"`
	HelperRefs  map[string]string   `json:"helper_refs,omitempty"`
	InlineData  map[string][]string `json:"inline_helper_data,omitempty"`
	Controllers []string            `json:"controllers,omitempty"`
	EnrolledAt  string              `json:"enrolled_at"`
	Revoked     bool                `json:"revoked"`
}

// BuildEnvelope packages an enrollment for the target metadata label.
// inlineData carries raw helper bundles for deployments that embed helper
// data on chain instead of referencing external storage.
func BuildEnvelope(didStr, idHash string, helperRefs map[string]string, inlineData map[string][]byte, controllers []string, enrolledAt time.Time, revoked bool) (json.RawMessage, error) {
	env := Envelope{
		Version:     1,
		Did:         didStr,
		IDHash:      idHash,
		HelperRefs:  helperRefs,
		Controllers: controllers,
		EnrolledAt:  enrolledAt.UTC().Format(time.RFC3339),
		Revoked:     revoked,
	}
	if len(inlineData) > 0 {
		env.InlineData = make(map[string][]string, len(inlineData))
		for fingerID, bundle := range inlineData {
			env.InlineData[fingerID] = chunkString(hex.EncodeToString(bundle))
		}
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("fail to marshal metadata envelope: %w", err)
	}
	return raw, nil
}

func chunkString(s string) []string {
	var chunks []string
	for len(s) > metadataStringLimit {
		chunks = append(chunks, s[:metadataStringLimit])
		s = s[metadataStringLimit:]
	}
	return append(chunks, s)
}

// ParseEnvelope reads an envelope back, rejoining chunked inline helper data.
func ParseEnvelope(raw json.RawMessage) (*Envelope, map[string][]byte, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("fail to unmarshal metadata envelope: %w", err)
	}
	if env.Version != 1 {
		return nil, nil, fmt.Errorf("unsupported metadata envelope version %d", env.Version)
	}
	var inline map[string][]byte
	if len(env.InlineData) > 0 {
		inline = make(map[string][]byte, len(env.InlineData))
		for fingerID, chunks := range env.InlineData {
			joined := strings.Join(chunks, "")
			bundle, err := hex.DecodeString(joined)
			if err != nil {
				return nil, nil, fmt.Errorf("fail to decode inline helper data for %s: %w", fingerID, err)
			}
			inline[fingerID] = bundle
		}
	}
	return &env, inline, nil
}
