// Package spectrum implements the complex-spectrum and impulse-response
// stage: it combines the warped envelope magnitude with the reconstructed
// phase, inverse-transforms the half spectrum, windows the result, and
// normalises it against its own RMS energy so downstream excitation
// scaling starts from a level-independent impulse response.
package spectrum

import (
	"math"

	"github.com/dbehnke/sigcore/internal/fft"
	"github.com/dbehnke/sigcore/internal/fixedpoint"
	"github.com/dbehnke/sigcore/internal/memory"
	"github.com/dbehnke/sigcore/internal/phase"
	"github.com/dbehnke/sigcore/internal/tables"
)

// dcCutoffHz is the pitch above which the bottom of the envelope is
// cleared more aggressively to keep subharmonic buzz out of high voices.
const dcCutoffHz = 120

// magLimit caps the linear magnitude so a runaway envelope bin cannot
// overflow the FFT input.
const magLimit = 8.0

// magUnit is the fixed-point unit of the half-spectrum magnitude. It sits
// four bits under the spectrum scale so the n/2-scaled inverse transform
// of a full-band spectrum still fits an int32.
const magUnit = 1 << 22

// respGainShift restores the headroom magUnit gave away: the normalised
// impulse response comes out at a fixed RMS, and this lift puts it where
// the excitation-energy and accumulator shifts downstream expect it.
const respGainShift = 4

// Stage produces one impulse response per frame.
type Stage struct {
	Imp    []int32 // FFTSize time-domain impulse response
	fr, fi []int32 // HFFTSizeP1 half-spectrum scratch
	Energy float64 // RMS energy relative to magUnit, before normalisation
}

// NewStage allocates the stage's buffers from the PU arena.
func NewStage(arena *memory.Arena) *Stage {
	return &Stage{
		Imp: arena.Int32(tables.FFTSize),
		fr:  arena.Int32(tables.HFFTSizeP1),
		fi:  arena.Int32(tables.HFFTSizeP1),
	}
}

// EnvSpec combines the envelope magnitude and the phase stage's output
// into the half spectrum.
func (s *Stage) EnvSpec(env []int32, ph *phase.Stage, voiced, prevVoiced bool, f0 float64) {
	usePhase := voiced || prevVoiced
	for i := 0; i <= tables.HFFTSize; i++ {
		var c, si int32
		if usePhase && i < ph.FirstUV {
			cw, sw := tables.GetTrig(fixedpoint.AngleSample(ph.Ang[i]))
			c, si = int32(cw), int32(sw)
		} else {
			c, si = ph.OutCos[i], ph.OutSin[i]
		}

		mag := math.Exp(float64(env[i]) * tables.ExpK1 / fixedpoint.SpectrumScale)
		if mag > magLimit {
			mag = magLimit
		}
		// High-pitched voices lose the two bottom magnitude bins and half
		// the third; everything else only loses DC. Done on the linear
		// magnitude so the zeroed bins really carry no energy.
		switch {
		case i == 0:
			mag = 0
		case i == 1 && f0 > dcCutoffHz:
			mag = 0
		case i == 2 && f0 > dcCutoffHz:
			mag /= 2
		}
		// The weight-scale unit of the cos/sin pair cancels against the
		// magnitude unit (2^22 * w / 2^29 == w/128).
		s.fr[i] = int32(mag * float64(c) / 128)
		s.fi[i] = int32(mag * float64(si) / 128)
	}
}

// ImpulseResponse inverse-transforms the half spectrum, applies the
// squared-Hann window, and divides by the measured RMS energy. Energy is
// left holding the pre-normalisation RMS for the excitation generator.
func (s *Stage) ImpulseResponse() {
	// Pack the conjugate-symmetric half spectrum into the real-FFT
	// layout: a[0]=Re[0], a[1]=Re[n/2], a[2i]=Re[i], a[2i+1]=Im[i].
	s.Imp[0] = s.fr[0]
	s.Imp[1] = s.fr[tables.HFFTSize]
	for i := 1; i < tables.HFFTSize; i++ {
		s.Imp[2*i] = s.fr[i]
		s.Imp[2*i+1] = -s.fi[i]
	}

	fft.RDFT(tables.FFTSize, -1, s.Imp)
	for i := range s.Imp {
		s.Imp[i] = int32(int64(s.Imp[i]) * 2 / tables.FFTSize)
	}

	var sum float64
	for i := range s.Imp {
		s.Imp[i] = fixedpoint.ApplyWeight(s.Imp[i], tables.Hann[i])
		v := float64(s.Imp[i])
		sum += v * v
	}
	s.Energy = math.Sqrt(sum/tables.FFTSize) / magUnit

	// The divisor tracks the measured level, so the normalised response
	// has a fixed RMS; the gain shift lifts it into the range the PSOLA
	// accumulator arithmetic expects.
	div := fixedpoint.NormDivisor(s.Energy, tables.FixRespNorm)
	for i := range s.Imp {
		s.Imp[i] = (s.Imp[i] / div) << respGainShift
	}
}

// Reset clears the stage (full reset).
func (s *Stage) Reset() {
	for i := range s.Imp {
		s.Imp[i] = 0
	}
	for i := range s.fr {
		s.fr[i] = 0
		s.fi[i] = 0
	}
	s.Energy = 0
}
