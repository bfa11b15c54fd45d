package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbehnke/sigcore/internal/memory"
	"github.com/dbehnke/sigcore/internal/tables"
)

func newTestStage() *Stage {
	return NewStage(7, memory.NewArena(8192, "envelope-test"))
}

func TestFlatCepstrumGivesFlatEnvelope(t *testing.T) {
	s := newTestStage()
	cep := make([]int32, tables.CepOrder)
	cep[0] = 1000

	s.Process(cep)

	// With only coefficient 0 set, the symmetric DCT output is constant,
	// so the warp must reproduce the same constant at every bin.
	want := s.Env[0]
	require.NotZero(t, want)
	for i := 1; i <= tables.HFFTSize; i++ {
		assert.Equal(t, want, s.Env[i], "bin %d", i)
	}
}

func TestBoundaryBinsInvariantUnderWarp(t *testing.T) {
	s := newTestStage()
	cep := make([]int32, tables.CepOrder)
	cep[0] = 500
	cep[1] = 20
	cep[2] = -10

	s.Process(cep)

	require.Equal(t, s.work[0], s.Env[0])
	require.Equal(t, s.work[tables.HFFTSize], s.Env[tables.HFFTSize])
}

func TestWarpInterpolatesBetweenNeighbours(t *testing.T) {
	s := newTestStage()
	cep := make([]int32, tables.CepOrder)
	cep[0] = 500
	cep[1] = 40

	s.Process(cep)

	// Every warped bin must lie within the range of the two source bins
	// it interpolates between.
	for i := 1; i < tables.HFFTSize; i++ {
		a := s.idx[i]
		lo, hi := s.work[a], s.work[a+1]
		if lo > hi {
			lo, hi = hi, lo
		}
		assert.GreaterOrEqual(t, s.Env[i], lo, "bin %d below source range", i)
		assert.LessOrEqual(t, s.Env[i], hi, "bin %d above source range", i)
	}
}

func TestSetWarpChangesTablesLocally(t *testing.T) {
	s := newTestStage()
	def := s.idx

	s.SetWarp(0.1)
	require.NotEqual(t, def, s.idx, "warp rebuild must change the index table")

	// The package defaults must be untouched by a per-stage rebuild.
	require.Equal(t, def, tables.MelToLinIndex)
}
