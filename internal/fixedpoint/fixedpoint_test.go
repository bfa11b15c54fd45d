package fixedpoint

import "testing"

func TestClampPCM16(t *testing.T) {
	cases := []struct {
		in   int32
		want int16
	}{
		{0, 0},
		{32767, 32767},
		{32768, 32767},
		{100000, 32767},
		{-32768, -32768},
		{-32769, -32768},
		{-100000, -32768},
	}
	for _, c := range cases {
		if got := ClampPCM16(c.in); got != c.want {
			t.Errorf("ClampPCM16(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestClampExcitationEnergy(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{1, 1},
		{2, 3},
		{5, 9},
		{6, 9},
		{100, 9},
	}
	for _, c := range cases {
		if got := ClampExcitationEnergy(c.in); got != c.want {
			t.Errorf("ClampExcitationEnergy(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestFloorDivisor(t *testing.T) {
	if FloorDivisor(0) != 1 {
		t.Fatal("expected floor at 1")
	}
	if FloorDivisor(-5) != 1 {
		t.Fatal("expected floor at 1 for negative")
	}
	if FloorDivisor(5) != 5 {
		t.Fatal("expected unchanged for values >= 1")
	}
}

func TestMulWeightIdentity(t *testing.T) {
	// Multiplying by the unit weight value should approximately
	// reproduce the original value (within the documented pre-shift
	// error).
	got := MulWeight(WeightScale, WeightScale/2)
	want := WeightSample(WeightScale / 2)
	diff := int64(got) - int64(want)
	if diff < 0 {
		diff = -diff
	}
	if diff > WeightScale>>13 {
		t.Fatalf("MulWeight unit identity off by %d", diff)
	}
}

func TestTwiddlePreservesScale(t *testing.T) {
	got := Twiddle(int32(SpectrumScale), WeightSample(WeightScale))
	diff := int64(got) - int64(SpectrumScale)
	if diff < 0 {
		diff = -diff
	}
	if diff > SpectrumScale>>13 {
		t.Fatalf("Twiddle by unit weight should approximate identity, got %d want ~%d", got, SpectrumScale)
	}
}
