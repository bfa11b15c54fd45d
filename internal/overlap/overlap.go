// Package overlap implements the output stage: the PSOLA accumulator is
// folded into a running double-frame output buffer, and finished hops are
// clipped to 16-bit PCM for emission. The volume modifier is applied at
// emission, not while accumulating, so the accumulator keeps its headroom.
package overlap

import (
	"github.com/dbehnke/sigcore/internal/fixedpoint"
	"github.com/dbehnke/sigcore/internal/memory"
	"github.com/dbehnke/sigcore/internal/tables"
)

// pcmShift converts accumulator scale to 16-bit PCM scale.
const pcmShift = 9

// Stage owns the running output buffer. Its first FFTSize samples always
// hold the next two hops to emit.
type Stage struct {
	WavBuff []int32 // 2*FFTSize
}

// NewStage allocates the output buffer from the PU arena.
func NewStage(arena *memory.Arena) *Stage {
	return &Stage{WavBuff: arena.Int32(2 * tables.FFTSize)}
}

// Add folds one frame's accumulator into the output buffer, scaling up to
// PCM range. The fold lands one synthesis hop past the emit window: the
// hop being emitted was completed by the previous frame, and a freshly
// reset buffer drains silence before the first synthesised sample can
// reach the output. Saturation here is defined behaviour, not an error.
func (s *Stage) Add(sigVec []int32) {
	for i := 0; i < tables.FFTSize; i++ {
		v := int64(s.WavBuff[tables.SynthHop+i]) + int64(sigVec[i])<<pcmShift
		switch {
		case v > 1<<30:
			v = 1 << 30
		case v < -(1 << 30):
			v = -(1 << 30)
		}
		s.WavBuff[tables.SynthHop+i] = int32(v)
	}
}

// Emit drains one synthesis hop as two Displace-sample PCM bursts with
// the volume modifier applied, then slides the buffer forward.
func (s *Stage) Emit(vMod float64) [2][]int16 {
	var out [2][]int16
	for n := 0; n < 2; n++ {
		samples := make([]int16, tables.Displace)
		for i := 0; i < tables.Displace; i++ {
			v := float64(s.WavBuff[n*tables.Displace+i]) * vMod
			// Pre-clamp in float: an extreme volume modifier must clip,
			// not wrap through the int32 conversion.
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			samples[i] = fixedpoint.ClampPCM16(int32(v))
		}
		out[n] = samples
	}

	copy(s.WavBuff[:2*tables.FFTSize-tables.SynthHop], s.WavBuff[tables.SynthHop:])
	for i := 2*tables.FFTSize - tables.SynthHop; i < 2*tables.FFTSize; i++ {
		s.WavBuff[i] = 0
	}
	return out
}

// Reset clears the output buffer (full reset).
func (s *Stage) Reset() {
	for i := range s.WavBuff {
		s.WavBuff[i] = 0
	}
}
