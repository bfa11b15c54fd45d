// Package fft implements the fixed-point real FFT and DCT kernel the
// synthesis pipeline builds on: a bit-reversal + radix-2 butterfly cascade
// for the real DFT, and direct cosine-series evaluation for the DCT
// variants used by the spectral envelope stage. All three operate in place
// on int32 buffers; twiddle factors are weight-scale (unit == 1<<29) and
// every butterfly multiply goes through fixedpoint.Twiddle, the pre-shifted
// primitive whose ~2^-14 relative error is the numeric contract of the
// whole chain.
//
// The butterfly cascade block-normalises: data is shifted up to fill the
// int32 range before the first stage and conditionally halved per stage,
// so the pre-shifted multiplies keep their relative accuracy regardless of
// the caller's scale and the accumulation can never overflow.
package fft

import (
	"math"

	"github.com/dbehnke/sigcore/internal/fixedpoint"
)

// RDFT computes the real discrete Fourier transform of a length-n
// (n = 2^k, k >= 2) int32 buffer in place.
//
// Forward (isgn > 0): a[0]=Re[0], a[1]=Re[n/2], a[2i]=Re[i], a[2i+1]=Im[i]
// for i in [1, n/2).
//
// Inverse (isgn < 0): a holds the layout above on entry; on return a holds
// the time-domain signal scaled by n/2. The caller multiplies by 2/n.
func RDFT(n int, isgn int, a []int32) {
	if n < 4 || n&(n-1) != 0 {
		panic("fft: RDFT length must be a power of two >= 4")
	}

	re := make([]int32, n)
	im := make([]int32, n)

	if isgn > 0 {
		copy(re, a)
		cfft(n, +1, re, im)
		a[0] = re[0]
		a[1] = re[n/2]
		for i := 1; i < n/2; i++ {
			a[2*i] = re[i]
			a[2*i+1] = im[i]
		}
		return
	}

	// Inverse: rebuild the full (conjugate-symmetric) complex spectrum
	// from the packed half-spectrum layout, then run the inverse complex
	// FFT and keep the real part.
	re[0] = a[0]
	im[0] = 0
	re[n/2] = a[1]
	im[n/2] = 0
	for i := 1; i < n/2; i++ {
		re[i] = a[2*i]
		im[i] = a[2*i+1]
		re[n-i] = a[2*i]
		im[n-i] = -a[2*i+1]
	}
	cfft(n, -1, re, im)
	// cfft's inverse already drops the extra bit, so its real part is the
	// n/2-scaled result the 2/n caller convention expects.
	copy(a, re)
}

// DDCT computes a type-II DCT (isgn > 0) or its type-III inverse
// (isgn < 0) of a length-n buffer in place. Calling DDCT(n,+1,a), scaling
// every element by 2/n, then DDCT(n,-1,a) recovers the original buffer up
// to fixed-point error.
//
// Implemented as direct cosine-series evaluation rather than a
// split-radix-factored fast DCT: the buffers this runs over are small,
// so the O(n^2) cost is immaterial. The series accumulates at full 64-bit
// width; only the weight-scale unit is divided back out.
func DDCT(n int, isgn int, a []int32) {
	out := make([]int32, n)
	if isgn > 0 {
		for k := 0; k < n; k++ {
			var sum int64
			for j := 0; j < n; j++ {
				theta := math.Pi / float64(n) * (float64(j) + 0.5) * float64(k)
				sum += int64(a[j]) * int64(cosWeight(theta))
			}
			out[k] = int32(sum >> fixedpoint.WeightScaleBits)
		}
	} else {
		for j := 0; j < n; j++ {
			sum := (int64(a[0]) << fixedpoint.WeightScaleBits) / 2
			for k := 1; k < n; k++ {
				theta := math.Pi / float64(n) * (float64(j) + 0.5) * float64(k)
				sum += int64(a[k]) * int64(cosWeight(theta))
			}
			out[j] = int32(sum >> fixedpoint.WeightScaleBits)
		}
	}
	copy(a, out)
}

// DFCTSymmetric computes the symmetric real cosine series that converts a
// zero-padded mel-cepstrum vector into a log-like power envelope:
// out[k] = a[0] + 2*sum_{j=1}^{n-1} a[j]*cos(pi*j*k/n).
func DFCTSymmetric(n int, a []int32) {
	out := make([]int32, n)
	for k := 0; k < n; k++ {
		sum := int64(a[0]) << fixedpoint.WeightScaleBits
		for j := 1; j < n; j++ {
			theta := math.Pi * float64(j) * float64(k) / float64(n)
			sum += int64(a[j]) * int64(cosWeight2(theta))
		}
		out[k] = int32(sum >> fixedpoint.WeightScaleBits)
	}
	copy(a, out)
}

func cosWeight(theta float64) fixedpoint.WeightSample {
	return fixedpoint.WeightSample(math.Round(math.Cos(theta) * fixedpoint.WeightScale))
}

func cosWeight2(theta float64) fixedpoint.WeightSample {
	return fixedpoint.WeightSample(math.Round(2 * math.Cos(theta) * fixedpoint.WeightScale))
}

// blockCeiling is the magnitude at which a stage's data is halved before
// the next butterfly pass; one spare bit absorbs the add.
const blockCeiling = 1 << 29

// cfft is an in-place radix-2 decimation-in-time complex FFT over int32
// real/imaginary buffers of power-of-two length n. sign > 0 is forward
// (twiddle e^-i*theta), sign < 0 is inverse (twiddle e^+i*theta).
//
// Block floating point: the data is shifted up front to sit just under
// the ceiling, each stage halves it back down when it grows, and the net
// exponent is restored at the end. The forward result is the plain DFT;
// the inverse result carries the extra 1/2 of the 2/n caller convention.
func cfft(n, sign int, re, im []int32) {
	bitReverse(n, re, im)
	tw := twiddles(n)

	exp := normalizeUp(re, im)

	for size := 2; size <= n; size <<= 1 {
		if peak(re, im) >= blockCeiling {
			halve(re, im)
			exp--
		}
		half := size / 2
		step := n / size
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				idx := k * step
				wc := tw.cos[idx]
				ws := tw.sin[idx]
				if sign > 0 {
					ws = -ws
				}

				i0 := start + k
				i1 := i0 + half

				xr := fixedpoint.Twiddle(re[i1], wc) - fixedpoint.Twiddle(im[i1], ws)
				xi := fixedpoint.Twiddle(re[i1], ws) + fixedpoint.Twiddle(im[i1], wc)

				re[i1] = re[i0] - xr
				im[i1] = im[i0] - xi
				re[i0] = re[i0] + xr
				im[i0] = im[i0] + xi
			}
		}
	}

	// Restore the block exponent. The inverse drops one extra bit: the
	// raw inverse sum is n*x, the caller convention wants n*x/2.
	if sign < 0 {
		exp++
	}
	applyExp(re, im, exp)
}

// normalizeUp shifts the data so its peak sits just under the ceiling,
// returning the applied exponent.
func normalizeUp(re, im []int32) int {
	p := peak(re, im)
	if p == 0 {
		return 0
	}
	exp := 0
	for p < blockCeiling/2 {
		p <<= 1
		exp++
	}
	if exp > 0 {
		for i := range re {
			re[i] <<= uint(exp)
			im[i] <<= uint(exp)
		}
	}
	return exp
}

func peak(re, im []int32) int64 {
	var p int64
	for i := range re {
		r := int64(re[i])
		if r < 0 {
			r = -r
		}
		m := int64(im[i])
		if m < 0 {
			m = -m
		}
		if r > p {
			p = r
		}
		if m > p {
			p = m
		}
	}
	return p
}

func halve(re, im []int32) {
	for i := range re {
		re[i] = (re[i] + 1) >> 1
		im[i] = (im[i] + 1) >> 1
	}
}

// applyExp undoes the block exponent: positive means the data is exp bits
// hot and shifts back down, negative shifts up.
func applyExp(re, im []int32, exp int) {
	switch {
	case exp > 0:
		for i := range re {
			re[i] = (re[i] + (1 << uint(exp-1))) >> uint(exp)
			im[i] = (im[i] + (1 << uint(exp-1))) >> uint(exp)
		}
	case exp < 0:
		for i := range re {
			re[i] <<= uint(-exp)
			im[i] <<= uint(-exp)
		}
	}
}

// bitReverse permutes re/im into bit-reversed index order, the standard
// precondition for the iterative butterfly cascade above.
func bitReverse(n int, re, im []int32) {
	j := 0
	for i := 0; i < n-1; i++ {
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
		m := n >> 1
		for m >= 1 && j&m != 0 {
			j ^= m
			m >>= 1
		}
		j |= m
	}
}

type twiddleSet struct {
	cos, sin []fixedpoint.WeightSample
}

var twiddleCache = map[int]*twiddleSet{}

// twiddles returns (building and caching on first use) the n/2 twiddle
// roots e^{i*2*pi*k/n}, k in [0, n/2), in weight scale.
func twiddles(n int) *twiddleSet {
	if t, ok := twiddleCache[n]; ok {
		return t
	}
	t := &twiddleSet{
		cos: make([]fixedpoint.WeightSample, n/2),
		sin: make([]fixedpoint.WeightSample, n/2),
	}
	for k := 0; k < n/2; k++ {
		theta := 2 * math.Pi * float64(k) / float64(n)
		t.cos[k] = fixedpoint.WeightSample(math.Round(math.Cos(theta) * fixedpoint.WeightScale))
		t.sin[k] = fixedpoint.WeightSample(math.Round(math.Sin(theta) * fixedpoint.WeightScale))
	}
	twiddleCache[n] = t
	return t
}
