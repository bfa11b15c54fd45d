package tables

import (
	"math"
	"math/rand"

	"github.com/dbehnke/sigcore/internal/fixedpoint"
)

// Hann holds the squared-Hann analysis window used by the impulse-response
// normaliser (C6) and the PSOLA weighting window (C8), in weight scale.
var Hann [FFTSize]fixedpoint.WeightSample

// Cos holds a quarter-wave cosine table; get_trig-style four-quadrant
// unfolding reconstructs a full period from it.
var Cos [CosTableLen + 1]fixedpoint.WeightSample

// RandCos and RandSin hold a fixed, pre-generated ring of unit-circle
// points used as the unvoiced phase spectrum. The ring is seeded
// deterministically so synthesis output is reproducible across runs.
var (
	RandCos [RandTableLen]fixedpoint.WeightSample
	RandSin [RandTableLen]fixedpoint.WeightSample
)

// MelToLinIndex (A) and MelToLinDelta (D) implement the bilinear
// mel-to-linear frequency warp at the default warp factor as a precomputed
// index+5-bit-fraction table:
// out[i] = env[A[i]] + (D[i]*(env[A[i]+1]-env[A[i]]))>>5.
// A speaker-modified PU builds its own pair via MelToLin instead of
// mutating these.
var (
	MelToLinIndex [HFFTSizeP1]int32
	MelToLinDelta [HFFTSizeP1]int32
)

func init() {
	buildHann()
	buildCos()
	buildRand()
	MelToLinIndex, MelToLinDelta = MelToLin(FreqWarpFact)
}

func buildHann() {
	for i := 0; i < FFTSize; i++ {
		w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(FFTSize-1))
		w *= w
		Hann[i] = fixedpoint.WeightSample(math.Round(w * fixedpoint.WeightScale))
	}
}

func buildCos() {
	for i := 0; i <= CosTableLen; i++ {
		v := math.Cos(math.Pi / 2 * float64(i) / float64(CosTableLen))
		Cos[i] = fixedpoint.WeightSample(math.Round(v * fixedpoint.WeightScale))
	}
}

// GetTrig returns (cos,sin) for an angle-scale sample via four-quadrant
// unfolding of the quarter-wave Cos table, matching the angle convention
// in internal/fixedpoint (pi == 1<<14).
func GetTrig(a fixedpoint.AngleSample) (cosv, sinv fixedpoint.WeightSample) {
	const quarter = int32(fixedpoint.PiScaled) / 2 // pi/2, in angle-scale units
	const fullCircle = 4 * quarter                 // 2*pi

	w := int32(a) % fullCircle
	if w < 0 {
		w += fullCircle
	}
	quadrant := w / quarter
	rem := w % quarter

	idx := int64(rem) * CosTableLen / int64(quarter)
	if idx > CosTableLen {
		idx = CosTableLen
	}
	c := Cos[idx]
	s := Cos[CosTableLen-idx]

	switch quadrant {
	case 0:
		return c, s
	case 1:
		return -s, c
	case 2:
		return -c, -s
	default:
		return s, -c
	}
}

func buildRand() {
	r := rand.New(rand.NewSource(20260729))
	for i := 0; i < RandTableLen; i++ {
		theta := r.Float64() * 2 * math.Pi
		RandCos[i] = fixedpoint.WeightSample(math.Round(math.Cos(theta) * fixedpoint.WeightScale))
		RandSin[i] = fixedpoint.WeightSample(math.Round(math.Sin(theta) * fixedpoint.WeightScale))
	}
}

// MelToLin generates the bilinear mel-to-linear warp tables for the given
// warp factor (FreqWarpFact by default, or a speaker-modifier-adjusted
// value after a SPEAKER command).
func MelToLin(alpha float64) (idx, delta [HFFTSizeP1]int32) {
	idx[0] = 0
	delta[0] = 0
	idx[HFFTSize] = HFFTSize
	delta[HFFTSize] = 0

	for i := 1; i < HFFTSize; i++ {
		omega := math.Pi * float64(i) / float64(HFFTSize)
		warped := omega + 2*math.Atan2(alpha*math.Sin(omega), 1-alpha*math.Cos(omega))
		pos := warped / math.Pi * float64(HFFTSize)
		if pos < 0 {
			pos = 0
		}
		if pos > float64(HFFTSize-1) {
			pos = float64(HFFTSize - 1)
		}
		whole := int32(pos)
		frac := pos - float64(whole)
		idx[i] = whole
		delta[i] = int32(math.Round(frac * 32)) // 5-bit fraction
	}
	return idx, delta
}
