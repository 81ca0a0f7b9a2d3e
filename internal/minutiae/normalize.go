package minutiae

import (
	"fmt"
	"math"
)

// FilterByQuality drops minutiae scoring below threshold. It fails when fewer
// than minCount points remain, since a sparse template cannot carry enough
// entropy for key derivation.
func FilterByQuality(points []Minutia, threshold int, minCount int) ([]Minutia, error) {
	filtered := make([]Minutia, 0, len(points))
	for _, m := range points {
		if m.Quality >= threshold {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) < minCount {
		return nil, fmt.Errorf("%w: %d of %d minutiae at quality >= %d, need %d",
			ErrInsufficientFeatures, len(filtered), len(points), threshold, minCount)
	}
	return filtered, nil
}

// SelectReference deterministically picks the anchor minutia for
// normalization: highest quality wins, position order breaks ties so two
// captures of the same finger agree on the anchor.
func SelectReference(points []Minutia) (Minutia, error) {
	if len(points) == 0 {
		return Minutia{}, fmt.Errorf("%w: no minutiae to select reference from", ErrInsufficientFeatures)
	}
	ref := points[0]
	for _, m := range points[1:] {
		if m.Quality > ref.Quality {
			ref = m
			continue
		}
		if m.Quality == ref.Quality && positionLess(m, ref) {
			ref = m
		}
	}
	return ref, nil
}

func positionLess(a, b Minutia) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Angle < b.Angle
}

// NormalizeTranslation subtracts the reference position from every point,
// removing dependence on where the finger landed on the sensor.
func NormalizeTranslation(points []Minutia, ref Minutia) []Minutia {
	out := make([]Minutia, len(points))
	for i, m := range points {
		m.X -= ref.X
		m.Y -= ref.Y
		out[i] = m
	}
	return out
}

// NormalizeRotation rotates all points and angles so the reference angle maps
// to zero. Input points are expected to be translation-normalized already.
func NormalizeRotation(points []Minutia, ref Minutia) []Minutia {
	theta := -ref.Angle * math.Pi / 180
	sin, cos := math.Sin(theta), math.Cos(theta)
	out := make([]Minutia, len(points))
	for i, m := range points {
		x := m.X*cos - m.Y*sin
		y := m.X*sin + m.Y*cos
		angle := math.Mod(m.Angle-ref.Angle, 360)
		if angle < 0 {
			angle += 360
		}
		m.X, m.Y, m.Angle = x, y, angle
		out[i] = m
	}
	return out
}
