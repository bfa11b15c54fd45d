package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbehnke/sigcore/internal/fixedpoint"
	"github.com/dbehnke/sigcore/internal/frame"
	"github.com/dbehnke/sigcore/internal/memory"
	"github.com/dbehnke/sigcore/internal/tables"
)

func newHistory(counts [tables.PhaseBuffSize]int16, fill int32) (*frame.Ring[[]int32], *frame.Ring[int16]) {
	phs := frame.NewRingOf(tables.PhaseBuffSize, func(i int) []int32 {
		row := make([]int32, tables.PhaseOrder)
		for j := range row {
			row[j] = fill
		}
		return row
	})
	vox := frame.NewRing[int16](tables.PhaseBuffSize)
	for i, c := range counts {
		vox.Set(i, c)
	}
	return phs, vox
}

func TestUnvoicedFrameDrawsFromRandomRing(t *testing.T) {
	s := NewStage(memory.NewArena(4096, "phase-test"))
	phs, vox := newHistory([tables.PhaseBuffSize]int16{}, 0)

	s.Process(false, 0, phs, vox)

	require.Equal(t, 0, s.FirstUV)
	for i := 0; i < tables.HFFTSize; i++ {
		assert.Equal(t, int32(tables.RandCos[i]), s.OutCos[i], "bin %d", i)
		assert.Equal(t, int32(tables.RandSin[i]), s.OutSin[i], "bin %d", i)
	}
	// Nyquist is pinned.
	require.Equal(t, int32(fixedpoint.WeightScale), s.OutCos[tables.HFFTSize])
	require.Equal(t, int32(0), s.OutSin[tables.HFFTSize])
}

func TestRandomRingCursorAdvancesAndWraps(t *testing.T) {
	s := NewStage(memory.NewArena(4096, "phase-test"))
	phs, vox := newHistory([tables.PhaseBuffSize]int16{}, 0)

	s.Process(false, 0, phs, vox)
	first := s.OutCos[0]
	s.Process(false, 0, phs, vox)
	second := s.OutCos[0]
	require.NotEqual(t, first, second, "cursor must advance between frames")

	// Enough draws to hit the wrap: 760/129 rounds down to 5 full draws.
	for i := 0; i < 4; i++ {
		s.Process(false, 0, phs, vox)
	}
	require.Equal(t, first, s.OutCos[0], "cursor must rewind to the start near the table end")
}

func TestVoicedSmoothingKernels(t *testing.T) {
	s := NewStage(memory.NewArena(4096, "phase-test"))

	// All five frames have 4 components except the oldest (2), so the
	// 5-tap kernel covers [0,2), the narrower kernels the rest.
	phs, vox := newHistory([tables.PhaseBuffSize]int16{2, 4, 4, 4, 4}, 10)

	s.Process(true, 1.0, phs, vox)

	// Identical histories make every kernel average to the same raw value
	// (-10<<6) before unwrapping, so the unwrap chain is exercised over
	// uniform input: ang[0] halves to -320, later bins accumulate -pi.
	require.Equal(t, int32(-320), s.Ang[0])
	require.NotZero(t, s.Ang[1])

	// The voiced band is set by voicing alone, even when the codebook
	// record carries fewer components.
	require.Equal(t, int(tables.VoxBndConst), s.FirstUV)
}

func TestVoicedBandScalesWithVoicing(t *testing.T) {
	s := NewStage(memory.NewArena(4096, "phase-test"))
	phs, vox := newHistory([tables.PhaseBuffSize]int16{72, 72, 72, 72, 72}, 1)

	s.Process(true, 1.0, phs, vox)
	full := s.FirstUV
	require.Equal(t, int(tables.VoxBndConst), full)

	s.Process(true, 0.5, phs, vox)
	require.Equal(t, int(tables.VoxBndConst*0.5), s.FirstUV)
	require.Less(t, s.FirstUV, full)
}

func TestResetRewindsCursor(t *testing.T) {
	s := NewStage(memory.NewArena(4096, "phase-test"))
	phs, vox := newHistory([tables.PhaseBuffSize]int16{}, 0)

	s.Process(false, 0, phs, vox)
	s.Process(false, 0, phs, vox)
	s.Reset()
	s.Process(false, 0, phs, vox)
	require.Equal(t, int32(tables.RandCos[0]), s.OutCos[0])
}
