package minutiae

import (
	"math"
)

// QuantizePosition rounds a normalized coordinate to its grid cell.
func QuantizePosition(v float64, gridSize float64) int {
	return int(math.Round(v / gridSize))
}

// QuantizeAngle maps an angle in degrees onto one of bins equal wedges.
func QuantizeAngle(angle float64, bins int) int {
	a := math.Mod(angle, 360)
	if a < 0 {
		a += 360
	}
	bin := int(a / (360 / float64(bins)))
	if bin >= bins {
		bin = bins - 1
	}
	return bin
}

// Quantize discretizes a normalized minutia.
func Quantize(m Minutia, gridSize float64, angleBins int) QuantizedMinutia {
	return QuantizedMinutia{
		GridX:    QuantizePosition(m.X, gridSize),
		GridY:    QuantizePosition(m.Y, gridSize),
		AngleBin: QuantizeAngle(m.Angle, angleBins),
	}
}

// RemoveDuplicates collapses minutiae that quantized to the same triple,
// keeping the first occurrence in canonical order. Input must be sorted.
func RemoveDuplicates(points []QuantizedMinutia) []QuantizedMinutia {
	if len(points) == 0 {
		return points
	}
	out := points[:1]
	for _, q := range points[1:] {
		if q != out[len(out)-1] {
			out = append(out, q)
		}
	}
	return out
}
