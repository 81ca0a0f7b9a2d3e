package fuzzy

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biosig/biosigner/internal/minutiae"
)

func testTemplate(fingerID string, seed int64, count int) *minutiae.FingerTemplate {
	rng := rand.New(rand.NewSource(seed))
	seen := map[minutiae.QuantizedMinutia]bool{}
	points := make([]minutiae.QuantizedMinutia, 0, count)
	for len(points) < count {
		q := minutiae.QuantizedMinutia{
			GridX:    rng.Intn(40) - 20,
			GridY:    rng.Intn(40) - 20,
			AngleBin: rng.Intn(16),
		}
		if seen[q] {
			continue
		}
		seen[q] = true
		points = append(points, q)
	}
	return &minutiae.FingerTemplate{
		FingerID:  fingerID,
		Minutiae:  points,
		GridSize:  10,
		AngleBins: 16,
	}
}

func TestGenRepExactCapture(t *testing.T) {
	template := testTemplate("right_index", 1, 14)

	key, helper, err := Gen(template, rand.New(rand.NewSource(2)))
	require.NoError(t, err)
	require.Len(t, key.Key, KeyLen)
	require.Len(t, helper.Salt, SaltLen)
	require.Len(t, helper.IntegrityTag, TagLen)

	reproduced, err := Rep(template, helper)
	require.NoError(t, err)
	assert.Equal(t, key.Key, reproduced.Key)
	assert.Equal(t, "right_index", reproduced.FingerID)
}

func TestRepToleratesNoisyCapture(t *testing.T) {
	template := testTemplate("right_index", 3, 14)
	key, helper, err := Gen(template, rand.New(rand.NewSource(4)))
	require.NoError(t, err)

	// one minutia missed, one extra spurious one; at most 2 bits flip
	noisy := &minutiae.FingerTemplate{
		FingerID:  template.FingerID,
		Minutiae:  append([]minutiae.QuantizedMinutia(nil), template.Minutiae[1:]...),
		GridSize:  template.GridSize,
		AngleBins: template.AngleBins,
	}
	noisy.Minutiae = append(noisy.Minutiae, minutiae.QuantizedMinutia{GridX: 99, GridY: 99, AngleBin: 3})

	reproduced, err := Rep(noisy, helper)
	require.NoError(t, err)
	assert.Equal(t, key.Key, reproduced.Key)
}

func TestRepRejectsForeignFinger(t *testing.T) {
	enrolled := testTemplate("right_index", 5, 14)
	_, helper, err := Gen(enrolled, rand.New(rand.NewSource(6)))
	require.NoError(t, err)

	foreign := testTemplate("right_index", 7, 14)
	_, err = Rep(foreign, helper)
	require.Error(t, err)
	if !errors.Is(err, ErrDecodingFailure) && !errors.Is(err, ErrHelperMismatch) {
		t.Fatalf("expected a rejection error, got %v", err)
	}
}

func TestRepRejectsFingerIDMismatch(t *testing.T) {
	template := testTemplate("right_index", 8, 14)
	_, helper, err := Gen(template, rand.New(rand.NewSource(9)))
	require.NoError(t, err)

	other := testTemplate("left_thumb", 8, 14)
	_, err = Rep(other, helper)
	assert.ErrorIs(t, err, ErrHelperMismatch)
}

func TestRepRejectsTamperedTag(t *testing.T) {
	template := testTemplate("right_index", 10, 14)
	_, helper, err := Gen(template, rand.New(rand.NewSource(11)))
	require.NoError(t, err)

	helper.IntegrityTag[0] ^= 0xFF
	_, err = Rep(template, helper)
	assert.ErrorIs(t, err, ErrHelperMismatch)
}

func TestKeysAreFingerSpecific(t *testing.T) {
	a := testTemplate("right_index", 12, 14)
	b := testTemplate("left_thumb", 12, 14)
	// same minutiae, different finger id
	b.Minutiae = a.Minutiae

	keyA, _, err := Gen(a, rand.New(rand.NewSource(13)))
	require.NoError(t, err)
	keyB, _, err := Gen(b, rand.New(rand.NewSource(13)))
	require.NoError(t, err)
	assert.NotEqual(t, keyA.Key, keyB.Key)
}

func TestHelperDataCodecRoundtrip(t *testing.T) {
	template := testTemplate("right_index", 14, 14)
	_, helper, err := Gen(template, rand.New(rand.NewSource(15)))
	require.NoError(t, err)

	parsed, err := ParseHelperData(helper.Serialize())
	require.NoError(t, err)
	assert.Equal(t, helper, parsed)
}

func TestParseHelperDataRejectsCorruption(t *testing.T) {
	template := testTemplate("right_index", 16, 14)
	_, helper, err := Gen(template, rand.New(rand.NewSource(17)))
	require.NoError(t, err)
	raw := helper.Serialize()

	_, err = ParseHelperData(raw[:len(raw)-4])
	assert.Error(t, err)

	_, err = ParseHelperData(append(raw, 0x00))
	assert.Error(t, err)

	bad := append([]byte(nil), raw...)
	bad[0] = 9
	_, err = ParseHelperData(bad)
	assert.Error(t, err)
}

func TestTemplateBitsStableUnderOrder(t *testing.T) {
	template := testTemplate("right_index", 18, 14)
	shuffled := &minutiae.FingerTemplate{
		FingerID:  template.FingerID,
		Minutiae:  append([]minutiae.QuantizedMinutia(nil), template.Minutiae...),
		GridSize:  template.GridSize,
		AngleBins: template.AngleBins,
	}
	rand.New(rand.NewSource(19)).Shuffle(len(shuffled.Minutiae), func(i, j int) {
		shuffled.Minutiae[i], shuffled.Minutiae[j] = shuffled.Minutiae[j], shuffled.Minutiae[i]
	})
	if !bytes.Equal(TemplateBits(template), TemplateBits(shuffled)) {
		t.Fatal("template bits must not depend on minutiae order")
	}
}
