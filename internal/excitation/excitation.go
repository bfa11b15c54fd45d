// Package excitation lays out the impulse train driving the PSOLA
// synthesiser: pitch-period spacing for voiced frames, unrectified-pitch
// spacing for unvoiced ones. Peak positions and energies persist across
// frames, sliding back by the frame displacement each time, so a pulse
// keeps its alignment with the accumulator while it remains inside the
// placement window.
package excitation

import (
	"math"

	"github.com/dbehnke/sigcore/internal/fixedpoint"
	"github.com/dbehnke/sigcore/internal/tables"
)

// windowLen is the placement window: the length of the impulse response a
// peak is convolved with.
const windowLen = tables.FFTSize

// Stage owns the excitation tables.
type Stage struct {
	LocV [tables.MaxEx]int16
	LocU [tables.MaxEx]int16
	EnV  [tables.MaxEx]int32
	EnU  [tables.MaxEx]int32
	NV   int
	NU   int

	NextPeak int32

	// Running counters for the stats line; never read by the DSP path.
	PlacedTotal  uint64
	DroppedTotal uint64
}

// Generate slides the surviving peaks back by the frame displacement,
// drops the ones that fell off the front, and appends new peaks from
// NextPeak onward at the frame's period. energy is the impulse response's
// pre-normalisation RMS from the spectrum stage. The slide matches the
// accumulator rotation in the PSOLA stage, so a surviving peak stays on
// the same absolute sample and lives for about
// FFTSize/Displace frames.
func (s *Stage) Generate(voiced bool, f0, fuv float64, energy float64) {
	const hop = tables.Displace

	s.NV = compact(s.LocV[:], s.EnV[:], s.NV, hop, &s.DroppedTotal)
	s.NU = compact(s.LocU[:], s.EnU[:], s.NU, hop, &s.DroppedTotal)
	s.NextPeak -= hop
	if s.NextPeak < 0 {
		s.NextPeak = 0
	}

	f := f0
	if !voiced {
		f = fuv
		if f <= 0 {
			f = tables.UVCutoffFreq
		}
	}
	if f < 1 {
		f = 1
	}
	period := int32(math.Round(tables.SampFreq / f))
	if period < 1 {
		period = 1
	}

	eCl := fixedpoint.ClampExcitationEnergy(energy)
	en := int32(eCl * math.Sqrt(tables.SampFreq/(float64(hop)*f)) * 3 * tables.GetExcK1)

	for s.NextPeak < windowLen {
		if s.NV+s.NU < tables.MaxEx {
			if voiced {
				s.LocV[s.NV] = int16(s.NextPeak)
				s.EnV[s.NV] = en
				s.NV++
			} else {
				s.LocU[s.NU] = int16(s.NextPeak)
				s.EnU[s.NU] = en
				s.NU++
			}
			s.PlacedTotal++
		}
		s.NextPeak += period
	}
}

// compact slides every position back by hop and drops entries below zero,
// keeping the arrays dense.
func compact(loc []int16, en []int32, n int, hop int32, dropped *uint64) int {
	kept := 0
	for i := 0; i < n; i++ {
		pos := int32(loc[i]) - hop
		if pos >= 0 {
			loc[kept] = int16(pos)
			en[kept] = en[i]
			kept++
		} else {
			*dropped++
		}
	}
	return kept
}

// WindowLen reports the placement window size, for invariant checks.
func (s *Stage) WindowLen() int { return windowLen }

// Reset clears every table and cursor (full reset).
func (s *Stage) Reset() {
	s.NV, s.NU = 0, 0
	s.NextPeak = 0
	for i := range s.LocV {
		s.LocV[i], s.LocU[i] = 0, 0
		s.EnV[i], s.EnU[i] = 0, 0
	}
}
