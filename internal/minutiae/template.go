package minutiae

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Params are the paired tuning knobs of the quantizer. Grid size and angle
// bins move the same trade-off in opposite directions: coarser cells tolerate
// more sensor noise but carry less entropy per minutia.
type Params struct {
	GridSize         float64
	AngleBins        int
	QualityThreshold int
	MinMinutiae      int
}

// DefaultMinMinutiae is the authoritative minimum number of minutiae per
// finger, enforced both here and at the API boundary.
const DefaultMinMinutiae = 10

// DefaultParams mirror the production tuning.
func DefaultParams() Params {
	return Params{
		GridSize:         10,
		AngleBins:        16,
		QualityThreshold: 30,
		MinMinutiae:      DefaultMinMinutiae,
	}
}

// FingerTemplate is the canonical discrete form of one finger capture.
// The minutiae slice is always held in canonical sort order and never
// mutated after construction.
type FingerTemplate struct {
	FingerID  string
	Minutiae  []QuantizedMinutia
	GridSize  float64
	AngleBins int
}

// ProcessFingerprint runs the full normalize-and-quantize pipeline:
// quality filter, reference selection, translation/rotation normalization,
// quantization, duplicate collapse, canonical sort.
func ProcessFingerprint(fingerID string, points []Minutia, p Params) (*FingerTemplate, error) {
	filtered, err := FilterByQuality(points, p.QualityThreshold, p.MinMinutiae)
	if err != nil {
		return nil, err
	}
	ref, err := SelectReference(filtered)
	if err != nil {
		return nil, err
	}
	normalized := NormalizeRotation(NormalizeTranslation(filtered, ref), ref)

	quantized := make([]QuantizedMinutia, 0, len(normalized))
	for _, m := range normalized {
		quantized = append(quantized, Quantize(m, p.GridSize, p.AngleBins))
	}
	sort.Slice(quantized, func(i, j int) bool { return quantized[i].Less(quantized[j]) })
	quantized = RemoveDuplicates(quantized)

	if len(quantized) < p.MinMinutiae {
		return nil, fmt.Errorf("%w: %d distinct cells, need %d", ErrInvalidTemplate, len(quantized), p.MinMinutiae)
	}
	return &FingerTemplate{
		FingerID:  fingerID,
		Minutiae:  quantized,
		GridSize:  p.GridSize,
		AngleBins: p.AngleBins,
	}, nil
}

const templateCodecVersion = 1

// Serialize writes the template in its versioned canonical byte form.
// Identical minutiae sets always produce identical bytes, which is what the
// integrity tag in the fuzzy extractor is computed over.
func (t *FingerTemplate) Serialize() []byte {
	var buf bytes.Buffer
	buf.WriteByte(templateCodecVersion)
	writeLenPrefixed(&buf, []byte(t.FingerID))
	binary.Write(&buf, binary.BigEndian, uint16(t.AngleBins))
	binary.Write(&buf, binary.BigEndian, math.Float64bits(t.GridSize))
	binary.Write(&buf, binary.BigEndian, uint16(len(t.Minutiae)))
	for _, q := range t.Minutiae {
		binary.Write(&buf, binary.BigEndian, int16(q.GridX))
		binary.Write(&buf, binary.BigEndian, int16(q.GridY))
		binary.Write(&buf, binary.BigEndian, uint16(q.AngleBin))
	}
	return buf.Bytes()
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	binary.Write(buf, binary.BigEndian, uint16(len(b)))
	buf.Write(b)
}

// EstimateEntropy approximates the bit size of the distinct-configuration
// space of the template. Diagnostics only; nothing security-critical keys off
// this number.
func EstimateEntropy(t *FingerTemplate) float64 {
	if len(t.Minutiae) == 0 {
		return 0
	}
	minX, maxX := t.Minutiae[0].GridX, t.Minutiae[0].GridX
	minY, maxY := t.Minutiae[0].GridY, t.Minutiae[0].GridY
	for _, q := range t.Minutiae {
		minX, maxX = min(minX, q.GridX), max(maxX, q.GridX)
		minY, maxY = min(minY, q.GridY), max(maxY, q.GridY)
	}
	cells := float64(maxX-minX+1) * float64(maxY-minY+1) * float64(t.AngleBins)
	if cells < 2 {
		cells = 2
	}
	return float64(len(t.Minutiae)) * math.Log2(cells)
}
