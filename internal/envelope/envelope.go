// Package envelope implements the spectral envelope stage: mel-cepstrum in,
// linear-frequency log power spectrum out. The cepstrum is normalised into
// the FFT work buffer, transformed by the symmetric DCT, and warped from the
// mel axis to the linear axis through the precomputed bilinear index/delta
// tables.
package envelope

import (
	"github.com/dbehnke/sigcore/internal/fft"
	"github.com/dbehnke/sigcore/internal/memory"
	"github.com/dbehnke/sigcore/internal/tables"
)

// Stage converts one mel-cepstrum vector per frame. It owns its warp
// tables so a speaker-modifier rebuild stays local to the PU that asked
// for it.
type Stage struct {
	scaleExp int8
	idx      [tables.HFFTSizeP1]int32
	delta    [tables.HFFTSizeP1]int32

	work []int32 // FFTSize, DCT input/output
	Env  []int32 // HFFTSizeP1, warped log power spectrum
}

// NewStage builds a stage for the given mel-cepstrum codebook scale
// exponent, starting from the default warp factor.
func NewStage(scaleExp int8, arena *memory.Arena) *Stage {
	s := &Stage{
		scaleExp: scaleExp,
		idx:      tables.MelToLinIndex,
		delta:    tables.MelToLinDelta,
		work:     arena.Int32(tables.FFTSize),
		Env:      arena.Int32(tables.HFFTSizeP1),
	}
	return s
}

// SetWarp rebuilds this stage's bilinear warp tables for a new warp
// factor (SPEAKER command).
func (s *Stage) SetWarp(alpha float64) {
	s.idx, s.delta = tables.MelToLin(alpha)
}

// Process fills Env from the given mel-cepstrum vector (spectrum scale
// governed by the codebook's shared exponent).
func (s *Stage) Process(cep []int32) {
	// Normalise into the work buffer: coefficient 0 is scaled by the
	// fixed start norm, the rest shift up into spectrum scale. Codebook
	// exponents larger than the spectrum headroom are pinned.
	exp := s.scaleExp
	if exp > 26 {
		exp = 26
	}
	shift := uint(27 - exp)
	s.work[0] = int32(float64(cep[0]) * tables.StartFloatNorm)
	for i := 1; i < tables.CepOrder; i++ {
		s.work[i] = cep[i] << shift
	}
	for i := tables.CepOrder; i < tables.FFTSize; i++ {
		s.work[i] = 0
	}

	fft.DFCTSymmetric(tables.FFTSize, s.work)

	// Bilinear warp, bins 0 and HFFTSize invariant.
	s.Env[0] = s.work[0]
	s.Env[tables.HFFTSize] = s.work[tables.HFFTSize]
	for i := 1; i < tables.HFFTSize; i++ {
		a := s.idx[i]
		e0 := s.work[a]
		e1 := s.work[a+1]
		s.Env[i] = e0 + int32((int64(s.delta[i])*int64(e1-e0))>>5)
	}
}

// Reset clears the stage's buffers (full reset).
func (s *Stage) Reset() {
	for i := range s.work {
		s.work[i] = 0
	}
	for i := range s.Env {
		s.Env[i] = 0
	}
}
