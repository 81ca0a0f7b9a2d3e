package cardano

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundtrip(t *testing.T) {
	enrolledAt := time.Date(2025, 1, 14, 9, 30, 0, 0, time.UTC)
	refs := map[string]string{
		"right_index":  "a1b2c3",
		"right_middle": "d4e5f6",
	}
	raw, err := BuildEnvelope("did:cardano:mainnet:abc", "ffeedd", refs, nil,
		[]string{"addr1qxy"}, enrolledAt, false)
	require.NoError(t, err)

	env, inline, err := ParseEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, env.Version)
	assert.Equal(t, "did:cardano:mainnet:abc", env.Did)
	assert.Equal(t, "ffeedd", env.IDHash)
	assert.Equal(t, refs, env.HelperRefs)
	assert.Equal(t, []string{"addr1qxy"}, env.Controllers)
	assert.Equal(t, "2025-01-14T09:30:00Z", env.EnrolledAt)
	assert.False(t, env.Revoked)
	assert.Nil(t, inline)
}

func TestEnvelopeInlineHelperDataChunking(t *testing.T) {
	bundle := make([]byte, 150) // hex encodes to 300 chars, forcing chunking
	for i := range bundle {
		bundle[i] = byte(i)
	}
	raw, err := BuildEnvelope("did:cardano:testnet:abc", "aa",
		nil, map[string][]byte{"left_thumb": bundle}, nil, time.Now(), false)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	chunks := env.InlineData["left_thumb"]
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks[:len(chunks)-1] {
		assert.Len(t, chunk, metadataStringLimit)
	}
	assert.LessOrEqual(t, len(chunks[len(chunks)-1]), metadataStringLimit)

	_, inline, err := ParseEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, bundle, inline["left_thumb"])
}

func TestParseEnvelopeRejectsBadInput(t *testing.T) {
	_, _, err := ParseEnvelope(json.RawMessage(`{not json`))
	assert.Error(t, err)

	_, _, err = ParseEnvelope(json.RawMessage(`{"version":2,"did":"x"}`))
	assert.Error(t, err)

	_, _, err = ParseEnvelope(json.RawMessage(`{"version":1,"did":"x","inline_helper_data":{"f":["zz"]}}`))
	assert.Error(t, err)
}
