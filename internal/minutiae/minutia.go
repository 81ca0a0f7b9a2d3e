package minutiae

import (
	"errors"
)

// MinutiaType is the ridge feature class reported by the extractor.
type MinutiaType string

const (
	TypeRidgeEnding MinutiaType = "ridge_ending"
	TypeBifurcation MinutiaType = "bifurcation"
)

var (
	// ErrInsufficientFeatures indicates too few minutiae survived quality filtering.
	ErrInsufficientFeatures = errors.New("insufficient minutiae after quality filtering")
	// ErrInvalidTemplate indicates the quantized template ended up below the configured minimum.
	ErrInvalidTemplate = errors.New("quantized template has too few minutiae")
)

// Minutia is a single fingerprint feature as delivered by the external
// feature extractor. Position is in sensor units, angle in degrees.
type Minutia struct {
	X       float64     `json:"x"`
	Y       float64     `json:"y"`
	Angle   float64     `json:"angle"`
	Quality int         `json:"quality"` // 0-100, 0 when the extractor reports none
	Type    MinutiaType `json:"type,omitempty"`
}

// QuantizedMinutia is the discretized, normalized form of a Minutia.
// Equality and set membership are defined on the full triple.
type QuantizedMinutia struct {
	GridX    int `json:"grid_x"`
	GridY    int `json:"grid_y"`
	AngleBin int `json:"angle_bin"`
}

// Less imposes the canonical total order used everywhere a template is
// serialized, so byte output never depends on capture order.
func (q QuantizedMinutia) Less(other QuantizedMinutia) bool {
	if q.GridX != other.GridX {
		return q.GridX < other.GridX
	}
	if q.GridY != other.GridY {
		return q.GridY < other.GridY
	}
	return q.AngleBin < other.AngleBin
}
