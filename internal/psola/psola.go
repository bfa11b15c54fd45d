// Package psola implements the pitch-synchronous overlap-add synthesiser:
// scaled, windowed copies of the impulse response are summed into a
// double-frame accumulator at the excitation peak positions. Frames at a
// voiced/unvoiced boundary mix the current impulse response with the one
// saved just before the transition so the filter does not jump mid-pulse.
package psola

import (
	"github.com/dbehnke/sigcore/internal/excitation"
	"github.com/dbehnke/sigcore/internal/fixedpoint"
	"github.com/dbehnke/sigcore/internal/memory"
	"github.com/dbehnke/sigcore/internal/tables"
)

// accShift is the accumulator normalisation: every summed contribution is
// brought down by this much to keep the double-frame signal buffer inside
// int32 headroom.
const accShift = 18

// Transition direction values held in VoicTrans.
const (
	TransUV = 0 // unvoiced -> voiced
	TransVU = 1 // voiced -> unvoiced
)

// Stage owns the PSOLA accumulator and the saved transition response.
type Stage struct {
	SigVec  []int32 // 2*FFTSize accumulator
	PrevImp []int32 // impulse response saved at the last voicing flip
	VoicTrans int

	sign int32 // unvoiced alternation state, persists across frames
}

// NewStage allocates the accumulator and transition buffer from the PU
// arena.
func NewStage(arena *memory.Arena) *Stage {
	return &Stage{
		SigVec:  arena.Int32(2 * tables.FFTSize),
		PrevImp: arena.Int32(tables.FFTSize),
		sign:    1,
	}
}

// SaveTransition runs before a new impulse response is computed. When the
// voicing decision flipped, the previous frame's response is retained,
// the transition direction latched, and the peak table of the voicing
// class the frame has just flipped into is emptied, so peaks left from an
// earlier stretch of that class cannot leak through the boundary.
func (s *Stage) SaveTransition(prevFrameImp []int32, voiced, prevVoiced bool, exc *excitation.Stage) {
	if voiced == prevVoiced {
		return
	}
	copy(s.PrevImp, prevFrameImp)
	if prevVoiced {
		s.VoicTrans = TransVU
	} else {
		s.VoicTrans = TransUV
	}
	if voiced {
		exc.NV = 0
	} else {
		exc.NU = 0
	}
}

// Synthesize sums this frame's peaks into the accumulator.
func (s *Stage) Synthesize(imp []int32, exc *excitation.Stage) {
	s.shiftAccumulator()

	switch {
	case exc.NV > 0 && exc.NU == 0:
		s.addVoiced(imp, exc)
	case exc.NU > 0 && exc.NV == 0:
		s.addUnvoiced(imp, exc)
	case exc.NV > 0 && exc.NU > 0:
		if s.VoicTrans == TransUV {
			// Coming back to voiced: new pulses with the fresh response,
			// lingering unvoiced pulses with the saved one.
			s.addVoiced(imp, exc)
			s.addUnvoiced(s.PrevImp, exc)
		} else {
			s.addUnvoiced(imp, exc)
			s.addVoiced(s.PrevImp, exc)
		}
	}
}

// shiftAccumulator carries last frame's tail forward: the region beyond
// the analysis window slides toward the front, the leading stretch is
// cleared for this frame's pulses, and the freed tail is zeroed.
func (s *Stage) shiftAccumulator() {
	const f = tables.FFTSize
	const d = tables.Displace
	for i := 0; i < f-d; i++ {
		s.SigVec[i] = 0
	}
	copy(s.SigVec[f-d:2*f-d], s.SigVec[f:])
	for i := 2*f - d; i < 2*f; i++ {
		s.SigVec[i] = 0
	}
}

func (s *Stage) addVoiced(imp []int32, exc *excitation.Stage) {
	for i := 0; i < exc.NV; i++ {
		s.addPeak(imp, int(exc.LocV[i]), int64(exc.EnV[i]))
	}
}

// addUnvoiced alternates the contribution sign between successive pulses
// and lays negative-sign pulses in reverse, which breaks the periodicity
// a fixed impulse response would otherwise stamp onto noise.
func (s *Stage) addUnvoiced(imp []int32, exc *excitation.Stage) {
	for i := 0; i < exc.NU; i++ {
		pos := int(exc.LocU[i])
		en := int64(exc.EnU[i])
		if s.sign > 0 {
			s.addPeak(imp, pos, en)
		} else {
			s.addPeakReversed(imp, pos, -en)
		}
		s.sign = -s.sign
	}
}

// addPeak adds one windowed, energy-scaled copy of imp starting at pos.
// The window weight is the Hann value at the peak position; successive
// hops see the same pulse under complementary weights, so its total
// contribution stays level across the overlap.
func (s *Stage) addPeak(imp []int32, pos int, en int64) {
	w := int64(tables.Hann[pos])
	for j := 0; j < tables.FFTSize; j++ {
		// Energy first, then the window weight, so the 64-bit
		// intermediate stays in range for any legal energy.
		s.SigVec[pos+j] += int32(((int64(imp[j]) * en >> accShift) * w) >> fixedpoint.WeightScaleBits)
	}
}

// addPeakReversed lays the response backwards from (FFTSize-1)+pos down.
func (s *Stage) addPeakReversed(imp []int32, pos int, en int64) {
	w := int64(tables.Hann[pos])
	base := tables.FFTSize - 1 + pos
	for j := 0; j < tables.FFTSize; j++ {
		s.SigVec[base-j] += int32(((int64(imp[j]) * en >> accShift) * w) >> fixedpoint.WeightScaleBits)
	}
}

// Reset clears the accumulator, the saved response, and the alternation
// state (full reset).
func (s *Stage) Reset() {
	for i := range s.SigVec {
		s.SigVec[i] = 0
	}
	for i := range s.PrevImp {
		s.PrevImp[i] = 0
	}
	s.VoicTrans = TransUV
	s.sign = 1
}
