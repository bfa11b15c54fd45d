package fft

import "testing"

// TestRDFTRoundTrip checks that rdft(n,+1,a); rdft(n,-1,a); scale by 2/n
// reproduces the input buffer within the fixed-point twiddle error bound.
func TestRDFTRoundTrip(t *testing.T) {
	sizes := []int{4, 8, 16, 32, 64, 256, 1024}

	for _, n := range sizes {
		a := make([]int32, n)
		for i := range a {
			// Deterministic, non-trivial values within [-2^20, 2^20].
			a[i] = int32((i*2654435761)%(1<<20)) - (1 << 19)
		}
		orig := make([]int32, n)
		copy(orig, a)

		RDFT(n, +1, a)
		RDFT(n, -1, a)
		for i := range a {
			a[i] = int32(int64(a[i]) * 2 / int64(n))
		}

		// epsilon == 2^-13 of the 2^20 value range; the round trip may
		// differ from the input by at most n*epsilon of that range.
		const epsShift = 13
		for i := range a {
			diff := int64(a[i]) - int64(orig[i])
			if diff < 0 {
				diff = -diff
			}
			bound := int64(n) << uint(20-epsShift)
			if diff > bound {
				t.Fatalf("n=%d i=%d: round-trip diff %d exceeds bound %d (orig=%d got=%d)",
					n, i, diff, bound, orig[i], a[i])
			}
		}
	}
}

func TestDDCTRoundTrip(t *testing.T) {
	n := 64
	a := make([]int32, n)
	for i := range a {
		a[i] = int32((i*40503)%(1<<18)) - (1 << 17)
	}
	orig := make([]int32, n)
	copy(orig, a)

	DDCT(n, +1, a)
	for i := range a {
		a[i] = int32(int64(a[i]) * 2 / int64(n))
	}
	DDCT(n, -1, a)

	for i := range a {
		diff := int64(a[i]) - int64(orig[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > int64(n)*8 {
			t.Fatalf("i=%d: round-trip diff %d too large (orig=%d got=%d)", i, diff, orig[i], a[i])
		}
	}
}

func TestRDFTPanicsOnBadLength(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-power-of-two length")
		}
	}()
	RDFT(6, +1, make([]int32, 6))
}
