// Package phase implements phase-spectrum reconstruction: voiced bins get
// a smoothed phase built from the five-frame phase history, unvoiced bins
// draw pseudo-random unit-circle points from the fixed cos/sin ring so
// successive unvoiced frames decorrelate without any per-frame randomness.
package phase

import (
	"github.com/dbehnke/sigcore/internal/fixedpoint"
	"github.com/dbehnke/sigcore/internal/frame"
	"github.com/dbehnke/sigcore/internal/memory"
	"github.com/dbehnke/sigcore/internal/tables"
)

// centre is the logical index of the frame being synthesised inside the
// five-deep phase history.
const centre = tables.PhaseBuffSize / 2

// Stage reconstructs the bilateral phase spectrum for one frame.
type Stage struct {
	iRand int // cursor into the random cos/sin ring

	// Ang holds the smoothed, unwrapped phase (angle scale) for bins
	// [0, FirstUV). OutCos/OutSin hold the unvoiced cos/sin pairs
	// (weight scale) for bins [FirstUV, HFFTSize]; bin HFFTSize is
	// always pinned to (1, 0).
	Ang     []int32
	OutCos  []int32
	OutSin  []int32
	FirstUV int
}

// NewStage allocates the stage's output buffers from the PU arena.
func NewStage(arena *memory.Arena) *Stage {
	return &Stage{
		Ang:    arena.Int32(tables.HFFTSizeP1),
		OutCos: arena.Int32(tables.HFFTSizeP1),
		OutSin: arena.Int32(tables.HFFTSizeP1),
	}
}

// Process fills Ang/OutCos/OutSin for the centre frame of the given phase
// history. voiced and voicing describe the frame being synthesised.
func (s *Stage) Process(voiced bool, voicing float64, phs *frame.Ring[[]int32], voxBnd *frame.Ring[int16]) {
	s.FirstUV = 0

	if voiced {
		// Width of the voiced band; plain truncation toward zero.
		voxbnd := int(tables.VoxBndConst * voicing)
		nComp := int(voxBnd.At(centre))

		// j: prefix where all five buffered frames have data.
		j := nComp
		for i := 0; i < tables.PhaseBuffSize; i++ {
			if n := int(voxBnd.At(i)); n < j {
				j = n
			}
		}
		// k: prefix where the centre and newest frames have data.
		k := nComp
		if n := int(voxBnd.At(tables.PhaseBuffSize - 1)); n < k {
			k = n
		}

		p0 := phs.At(0)
		p1 := phs.At(1)
		p2 := phs.At(centre)
		p3 := phs.At(3)
		p4 := phs.At(4)

		for i := 0; i < j; i++ {
			s.Ang[i] = -((p0[i] + p1[i] + p2[i] + p3[i] + p4[i]) << 6) / 5
		}
		for i := j; i < k; i++ {
			s.Ang[i] = -((p1[i] + p2[i] + p3[i]) << 6) / 3
		}
		for i := k; i < nComp; i++ {
			s.Ang[i] = -(p2[i] << 6)
		}

		// Unwrap: cumulative sum modulo pi with each partial halved into
		// angle scale; the final element is halved after the sweep. The
		// sweep spans the whole voiced band, not just the freshly
		// smoothed prefix: bins past the codebook's component count keep
		// their previous contents and are folded in as-is.
		for i := 1; i < voxbnd; i++ {
			s.Ang[i] += s.Ang[i-1] - int32(fixedpoint.PiScaled)
			s.Ang[i-1] >>= 1
		}
		if voxbnd > 0 {
			s.Ang[voxbnd-1] >>= 1
		}

		s.FirstUV = voxbnd
	}

	// Unvoiced bins from the random ring; the cursor advances by the
	// number of bins taken and rewinds when a full draw would run off
	// the table's end.
	count := tables.HFFTSizeP1 - s.FirstUV
	if s.iRand+count > tables.RandTableLen {
		s.iRand = 0
	}
	for i := s.FirstUV; i < tables.HFFTSize; i++ {
		s.OutCos[i] = int32(tables.RandCos[s.iRand+i-s.FirstUV])
		s.OutSin[i] = int32(tables.RandSin[s.iRand+i-s.FirstUV])
	}
	s.iRand += count

	// The Nyquist bin carries no phase.
	s.OutCos[tables.HFFTSize] = fixedpoint.WeightScale
	s.OutSin[tables.HFFTSize] = 0
}

// Reset rewinds the random-ring cursor and clears the outputs (full
// reset).
func (s *Stage) Reset() {
	s.iRand = 0
	s.FirstUV = 0
	for i := range s.Ang {
		s.Ang[i] = 0
		s.OutCos[i] = 0
		s.OutSin[i] = 0
	}
}
