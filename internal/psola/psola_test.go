package psola

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbehnke/sigcore/internal/excitation"
	"github.com/dbehnke/sigcore/internal/memory"
	"github.com/dbehnke/sigcore/internal/tables"
)

func testImpulse(level int32) []int32 {
	imp := make([]int32, tables.FFTSize)
	for i := range imp {
		imp[i] = level
	}
	return imp
}

func TestVoicedPeaksAccumulate(t *testing.T) {
	s := NewStage(memory.NewArena(4096, "psola-test"))
	var exc excitation.Stage
	exc.NV = 1
	exc.LocV[0] = 64
	exc.EnV[0] = 3 * 1024

	s.Synthesize(testImpulse(1 << 14), &exc)

	// The copy starts at the peak position and runs one window length.
	require.Zero(t, s.SigVec[32])
	require.NotZero(t, s.SigVec[64])
	require.NotZero(t, s.SigVec[64+tables.FFTSize-1])
}

func TestUnvoicedSignAlternation(t *testing.T) {
	s := NewStage(memory.NewArena(4096, "psola-test"))

	run := func() int32 {
		var exc excitation.Stage
		exc.NU = 1
		exc.LocU[0] = 64
		exc.EnU[0] = 3 * 1024
		for i := range s.SigVec {
			s.SigVec[i] = 0
		}
		s.Synthesize(testImpulse(1<<14), &exc)
		var sum int32
		for _, v := range s.SigVec {
			sum += v
		}
		return sum
	}

	first := run()
	second := run()
	require.NotZero(t, first)
	require.Less(t, second, int32(0), "second pulse must flip sign")
	require.Greater(t, first, int32(0))
}

func TestTransitionUsesSavedResponse(t *testing.T) {
	s := NewStage(memory.NewArena(4096, "psola-test"))
	var exc excitation.Stage

	// Voiced history, then a flip to unvoiced: the saved response must be
	// the one from before the flip, and the stale unvoiced table emptied.
	prev := testImpulse(1 << 10)
	exc.NU = 2
	s.SaveTransition(prev, false, true, &exc)
	require.Equal(t, TransVU, s.VoicTrans)
	require.Zero(t, exc.NU)
	require.Equal(t, int32(1<<10), s.PrevImp[0])

	// Mixed frame under V->U: surviving voiced peaks replay the saved
	// response, new unvoiced ones use the current response.
	exc.NV = 1
	exc.LocV[0] = 64
	exc.EnV[0] = 1 << 18
	exc.NU = 1
	exc.LocU[0] = 32
	exc.EnU[0] = 1 << 18
	s.Synthesize(testImpulse(0), &exc)
	require.NotZero(t, s.SigVec[64], "saved response must drive the voiced tail")
}

func TestSaveTransitionNoOpWithoutFlip(t *testing.T) {
	s := NewStage(memory.NewArena(4096, "psola-test"))
	var exc excitation.Stage
	exc.NU = 2
	s.SaveTransition(testImpulse(5), true, true, &exc)
	require.Equal(t, 2, exc.NU)
	require.Zero(t, s.PrevImp[0])
}

func TestAccumulatorCarriesTailForward(t *testing.T) {
	s := NewStage(memory.NewArena(4096, "psola-test"))
	const f = tables.FFTSize
	const d = tables.Displace

	// Mark the tail region and run an empty frame: the mark must slide
	// into the middle slot, the front must be clear, the freed end zero.
	s.SigVec[f+10] = 777
	var exc excitation.Stage
	s.Synthesize(testImpulse(0), &exc)

	require.Equal(t, int32(777), s.SigVec[f-d+10])
	require.Zero(t, s.SigVec[0])
	require.Zero(t, s.SigVec[2*f-1])
}
