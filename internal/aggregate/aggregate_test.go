package aggregate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biosig/biosigner/internal/fuzzy"
)

func testKey(seed int64) []byte {
	key := make([]byte, fuzzy.KeyLen)
	rand.New(rand.NewSource(seed)).Read(key)
	return key
}

func fingerKey(id string, seed int64, quality int) *fuzzy.FingerKey {
	return &fuzzy.FingerKey{FingerID: id, Key: testKey(seed), Quality: quality}
}

func TestXORCommutative(t *testing.T) {
	a, b, c := testKey(1), testKey(2), testKey(3)
	m1, err := XOR([][]byte{a, b, c})
	require.NoError(t, err)
	m2, err := XOR([][]byte{c, a, b})
	require.NoError(t, err)
	assert.Equal(t, m1, m2)
}

func TestXORValidation(t *testing.T) {
	_, err := XOR(nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = XOR([][]byte{{1, 2, 3}})
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestRotateFingerMatchesRecompute(t *testing.T) {
	oldKey, keep, newKey := testKey(4), testKey(5), testKey(6)
	oldMaster, err := XOR([][]byte{oldKey, keep})
	require.NoError(t, err)

	rotated, err := RotateFinger(oldMaster, oldKey, newKey)
	require.NoError(t, err)

	recomputed, err := XOR([][]byte{newKey, keep})
	require.NoError(t, err)
	assert.Equal(t, recomputed, rotated)
}

func TestRevokeFingerFloor(t *testing.T) {
	keys := []*fuzzy.FingerKey{
		fingerKey("right_index", 7, 90),
		fingerKey("right_middle", 8, 90),
		fingerKey("left_thumb", 9, 90),
	}
	master, err := RevokeFinger(keys[:2])
	require.NoError(t, err)
	expected, err := XOR([][]byte{keys[0].Key, keys[1].Key})
	require.NoError(t, err)
	assert.Equal(t, expected, master)

	_, err = RevokeFinger(keys[:1])
	assert.ErrorIs(t, err, ErrInsufficientFingers)
}

func TestFingerKeysAllPresented(t *testing.T) {
	keys := []*fuzzy.FingerKey{
		fingerKey("right_index", 10, 60),
		fingerKey("right_middle", 11, 60),
		fingerKey("left_thumb", 12, 60),
		fingerKey("left_index", 13, 60),
	}
	result, err := FingerKeys(keys, 4, false, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFull, result.Outcome)
	assert.False(t, result.FallbackMode)
	assert.Equal(t, 4, result.FingersUsed)
	// low quality never blocks a full presentation
	assert.InDelta(t, 60.0, result.AverageQuality, 0.001)
}

func TestFingerKeysFallbackQualityGate(t *testing.T) {
	highQuality := []*fuzzy.FingerKey{
		fingerKey("right_index", 14, 85),
		fingerKey("right_middle", 15, 82),
		fingerKey("left_thumb", 16, 82),
	}
	// 3 of 4 presented, threshold 80, average 83: fallback allowed
	result, err := FingerKeys(highQuality, 4, false, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFallback, result.Outcome)
	assert.True(t, result.FallbackMode)
	assert.InDelta(t, 83.0, result.AverageQuality, 0.001)

	lowQuality := []*fuzzy.FingerKey{
		fingerKey("right_index", 17, 70),
		fingerKey("right_middle", 18, 70),
	}
	// 2 of 4 presented, threshold 85, average 70: rejected
	_, err = FingerKeys(lowQuality, 4, false, DefaultPolicy())
	assert.ErrorIs(t, err, ErrQualityThreshold)
}

func TestFingerKeysFallbackNeedsQualityScores(t *testing.T) {
	keys := []*fuzzy.FingerKey{
		fingerKey("right_index", 19, 90),
		fingerKey("right_middle", 20, 0),
		fingerKey("left_thumb", 21, 90),
	}
	_, err := FingerKeys(keys, 4, false, DefaultPolicy())
	assert.ErrorIs(t, err, ErrQualityThreshold)
}

func TestFingerKeysRequireAll(t *testing.T) {
	keys := []*fuzzy.FingerKey{
		fingerKey("right_index", 22, 95),
		fingerKey("right_middle", 23, 95),
		fingerKey("left_thumb", 24, 95),
	}
	_, err := FingerKeys(keys, 4, true, DefaultPolicy())
	assert.ErrorIs(t, err, ErrInsufficientFingers)

	result, err := FingerKeys(keys, 3, true, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFull, result.Outcome)
}

func TestFingerKeysValidation(t *testing.T) {
	_, err := FingerKeys(nil, 4, false, DefaultPolicy())
	assert.ErrorIs(t, err, ErrEmptyInput)

	dup := []*fuzzy.FingerKey{
		fingerKey("right_index", 25, 90),
		fingerKey("right_index", 26, 90),
	}
	_, err = FingerKeys(dup, 4, false, DefaultPolicy())
	assert.ErrorIs(t, err, ErrDuplicateFinger)

	one := []*fuzzy.FingerKey{fingerKey("right_index", 27, 90)}
	_, err = FingerKeys(one, 4, false, DefaultPolicy())
	assert.ErrorIs(t, err, ErrInsufficientFingers)

	tooMany := []*fuzzy.FingerKey{
		fingerKey("right_index", 28, 90),
		fingerKey("right_middle", 29, 90),
		fingerKey("left_thumb", 30, 90),
	}
	_, err = FingerKeys(tooMany, 2, false, DefaultPolicy())
	assert.Error(t, err)
}
