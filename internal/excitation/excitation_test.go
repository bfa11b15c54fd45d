package excitation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbehnke/sigcore/internal/tables"
)

func TestVoicedPeaksPitchSpaced(t *testing.T) {
	var s Stage
	s.Generate(true, 130, 0, 1.0)

	require.Greater(t, s.NV, 1)
	require.Zero(t, s.NU)

	period := int16(math.Round(16000.0 / 130))
	for i := 1; i < s.NV; i++ {
		assert.Equal(t, period, s.LocV[i]-s.LocV[i-1], "peak %d", i)
	}
}

func TestPeaksSlideBackAndSurvive(t *testing.T) {
	var s Stage
	s.Generate(true, 130, 0, 1.0)
	first := append([]int16(nil), s.LocV[:s.NV]...)
	nFirst := s.NV

	s.Generate(true, 130, 0, 1.0)

	// Every survivor moved back by exactly one frame displacement; the
	// spacing grid is unbroken across the frame boundary.
	survivors := 0
	for i := 0; i < nFirst; i++ {
		if int32(first[i])-tables.Displace >= 0 {
			assert.Equal(t, first[i]-tables.Displace, s.LocV[survivors], "survivor %d", i)
			survivors++
		}
	}
	require.Greater(t, survivors, 0)
	period := int16(math.Round(16000.0 / 130))
	for i := 1; i < s.NV; i++ {
		assert.Equal(t, period, s.LocV[i]-s.LocV[i-1], "spacing broken at %d", i)
	}
}

func TestInvariantsHoldAcrossManyFrames(t *testing.T) {
	var s Stage
	f0s := []float64{0, 90, 130, 300, 0, 0, 440, 70}
	for n := 0; n < 64; n++ {
		f0 := f0s[n%len(f0s)]
		s.Generate(f0 > 0, f0, 160, 2.0)

		require.LessOrEqual(t, s.NV+s.NU, tables.MaxEx, "frame %d", n)
		require.GreaterOrEqual(t, s.NextPeak, int32(0), "frame %d", n)
		for i := 0; i < s.NV; i++ {
			require.GreaterOrEqual(t, int(s.LocV[i]), 0)
			require.Less(t, int(s.LocV[i]), s.WindowLen())
			require.GreaterOrEqual(t, s.EnV[i], int32(0))
		}
		for i := 0; i < s.NU; i++ {
			require.GreaterOrEqual(t, int(s.LocU[i]), 0)
			require.Less(t, int(s.LocU[i]), s.WindowLen())
			require.GreaterOrEqual(t, s.EnU[i], int32(0))
		}
	}
}

func TestEnergyClampPieces(t *testing.T) {
	energyFor := func(e float64) int32 {
		var s Stage
		s.Generate(true, 250, 0, e)
		require.Greater(t, s.NV, 0)
		return s.EnV[0]
	}

	// Displace*f0 == 64*250 == 16000, so the sqrt term is exactly 1 and
	// the stored energy is just clamp(E)*3*1024.
	require.Equal(t, int32(0.5*3*1024), energyFor(0.5))
	require.Equal(t, int32(3*3*1024), energyFor(2)) // 2E-1
	require.Equal(t, int32(9*3*1024), energyFor(50))
}

func TestUnvoicedFallsBackToCutoff(t *testing.T) {
	var s Stage
	s.Generate(false, 0, 0, 1.0)
	require.Greater(t, s.NU, 0)
	require.Zero(t, s.NV)

	period := int16(math.Round(16000.0 / tables.UVCutoffFreq))
	if s.NU > 1 {
		assert.Equal(t, period, s.LocU[1]-s.LocU[0])
	}
}
