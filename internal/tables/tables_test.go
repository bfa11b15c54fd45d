package tables

import (
	"math"
	"testing"

	"github.com/dbehnke/sigcore/internal/fixedpoint"
)

func TestGetTrigUnitCircle(t *testing.T) {
	for _, a := range []fixedpoint.AngleSample{0, PiScaledQuarter(), PiScaledHalf(), -PiScaledQuarter()} {
		c, s := GetTrig(a)
		mag := float64(c)/fixedpoint.WeightScale*float64(c)/fixedpoint.WeightScale +
			float64(s)/fixedpoint.WeightScale*float64(s)/fixedpoint.WeightScale
		if math.Abs(mag-1) > 0.01 {
			t.Errorf("angle %d: cos^2+sin^2 = %f, want ~1", a, mag)
		}

		// The table lookup must agree with the full-precision conversion.
		wc, ws := fixedpoint.AngleToWeight(a)
		if math.Abs(float64(c-wc)) > fixedpoint.WeightScale/256 ||
			math.Abs(float64(s-ws)) > fixedpoint.WeightScale/256 {
			t.Errorf("angle %d: table (%d,%d) vs full precision (%d,%d)", a, c, s, wc, ws)
		}
	}
}

// PiScaledQuarter and PiScaledHalf are small test helpers for readable
// angle literals; they do not belong on the package's real API surface.
func PiScaledQuarter() fixedpoint.AngleSample { return fixedpoint.PiScaled / 2 }
func PiScaledHalf() fixedpoint.AngleSample    { return fixedpoint.PiScaled }

func TestMelToLinIndexMonotonic(t *testing.T) {
	for i := 1; i < HFFTSize; i++ {
		if MelToLinIndex[i] < MelToLinIndex[i-1] {
			t.Fatalf("MelToLinIndex not monotonic at %d: %d < %d", i, MelToLinIndex[i], MelToLinIndex[i-1])
		}
	}
	if MelToLinIndex[0] != 0 || MelToLinIndex[HFFTSize] != HFFTSize {
		t.Fatalf("boundary bins must be invariant: got A[0]=%d A[HFFTSize]=%d", MelToLinIndex[0], MelToLinIndex[HFFTSize])
	}
}

func TestHannWindowSymmetric(t *testing.T) {
	for i := 0; i < FFTSize/2; i++ {
		diff := int64(Hann[i]) - int64(Hann[FFTSize-1-i])
		if diff < 0 {
			diff = -diff
		}
		if diff > fixedpoint.WeightScale>>16 {
			t.Errorf("Hann window not symmetric at %d/%d: %d vs %d", i, FFTSize-1-i, Hann[i], Hann[FFTSize-1-i])
		}
	}
}

func TestRandTableUnitCircle(t *testing.T) {
	for i := 0; i < RandTableLen; i += 97 {
		c := float64(RandCos[i]) / fixedpoint.WeightScale
		s := float64(RandSin[i]) / fixedpoint.WeightScale
		mag := c*c + s*s
		if math.Abs(mag-1) > 0.01 {
			t.Errorf("rand ring entry %d not on unit circle: %f", i, mag)
		}
	}
}
