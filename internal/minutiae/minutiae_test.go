package minutiae

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func sampleCapture() []Minutia {
	return []Minutia{
		{X: 100, Y: 100, Angle: 90, Quality: 95},
		{X: 120, Y: 105, Angle: 135, Quality: 80},
		{X: 80, Y: 140, Angle: 200, Quality: 75},
		{X: 150, Y: 90, Angle: 45, Quality: 88},
		{X: 60, Y: 60, Angle: 300, Quality: 70},
		{X: 130, Y: 150, Angle: 10, Quality: 82},
		{X: 90, Y: 120, Angle: 250, Quality: 77},
		{X: 110, Y: 70, Angle: 180, Quality: 85},
		{X: 70, Y: 100, Angle: 120, Quality: 73},
		{X: 140, Y: 130, Angle: 330, Quality: 79},
		{X: 105, Y: 95, Angle: 60, Quality: 81},
		{X: 85, Y: 85, Angle: 15, Quality: 74},
	}
}

func TestFilterByQuality(t *testing.T) {
	filtered, err := FilterByQuality(sampleCapture(), 75, 4)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range filtered {
		if m.Quality < 75 {
			t.Fatalf("minutia with quality %d survived threshold 75", m.Quality)
		}
	}

	_, err = FilterByQuality(sampleCapture(), 99, 4)
	if !errors.Is(err, ErrInsufficientFeatures) {
		t.Fatalf("expected ErrInsufficientFeatures, got %v", err)
	}
}

func TestSelectReferenceDeterministic(t *testing.T) {
	points := sampleCapture()
	ref1, err := SelectReference(points)
	if err != nil {
		t.Fatal(err)
	}
	// shuffle and re-select
	shuffled := append([]Minutia(nil), points...)
	rand.New(rand.NewSource(1)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	ref2, err := SelectReference(shuffled)
	if err != nil {
		t.Fatal(err)
	}
	if ref1 != ref2 {
		t.Fatalf("reference depends on input order: %+v vs %+v", ref1, ref2)
	}
}

func TestQuantizationStability(t *testing.T) {
	// points at cell centers and mid-bin angles; every perturbation below
	// half a cell / half a bin must land in the same cell
	grid := 10.0
	bins := 16
	base := []Minutia{
		{X: 20, Y: 30, Angle: 11.25},
		{X: -40, Y: 50, Angle: 33.75},
		{X: 0, Y: -10, Angle: 78.75},
		{X: 70, Y: 0, Angle: 191.25},
	}
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 100; trial++ {
		for _, m := range base {
			dx := (rng.Float64() - 0.5) * (grid - 0.01)
			dy := (rng.Float64() - 0.5) * (grid - 0.01)
			da := (rng.Float64() - 0.5) * (360/float64(bins) - 0.01)
			perturbed := Minutia{X: m.X + dx, Y: m.Y + dy, Angle: m.Angle + da}
			if Quantize(m, grid, bins) != Quantize(perturbed, grid, bins) {
				t.Fatalf("quantization moved: %+v vs %+v", m, perturbed)
			}
		}
	}
}

func TestQuantizeAngleWraps(t *testing.T) {
	if QuantizeAngle(-10, 16) != QuantizeAngle(350, 16) {
		t.Fatal("negative angles must wrap")
	}
	if QuantizeAngle(360, 16) != QuantizeAngle(0, 16) {
		t.Fatal("360 must alias 0")
	}
}

func TestProcessFingerprintOrderIndependent(t *testing.T) {
	params := DefaultParams()
	points := sampleCapture()

	t1, err := ProcessFingerprint("left_thumb", points, params)
	if err != nil {
		t.Fatal(err)
	}

	shuffled := append([]Minutia(nil), points...)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	t2, err := ProcessFingerprint("left_thumb", shuffled, params)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(t1.Serialize(), t2.Serialize()) {
		t.Fatal("serialized template depends on capture order")
	}
}

func TestProcessFingerprintTooFew(t *testing.T) {
	params := DefaultParams()
	_, err := ProcessFingerprint("left_thumb", sampleCapture()[:5], params)
	if !errors.Is(err, ErrInsufficientFeatures) {
		t.Fatalf("expected ErrInsufficientFeatures, got %v", err)
	}
}

func TestRemoveDuplicates(t *testing.T) {
	points := []QuantizedMinutia{
		{GridX: 1, GridY: 2, AngleBin: 3},
		{GridX: 1, GridY: 2, AngleBin: 3},
		{GridX: 2, GridY: 2, AngleBin: 3},
	}
	out := RemoveDuplicates(points)
	if len(out) != 2 {
		t.Fatalf("expected 2 distinct minutiae, got %d", len(out))
	}
}

func TestEstimateEntropy(t *testing.T) {
	params := DefaultParams()
	template, err := ProcessFingerprint("left_thumb", sampleCapture(), params)
	if err != nil {
		t.Fatal(err)
	}
	if bits := EstimateEntropy(template); bits <= 0 {
		t.Fatalf("expected positive entropy estimate, got %f", bits)
	}
}
