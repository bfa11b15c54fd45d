// Package tables holds the core's behavioural constants and the
// precomputed static data (Hann windows, cosine table, random cos/sin ring,
// bilinear mel-to-linear index/delta tables) that every synthesis stage
// reads but none of them own. Tables are generated once, at package init or
// via MelToLin for the ones that depend on a runtime-tunable parameter
// (the mel-to-linear warp depends on the speaker modifier), and are treated
// as read-only afterwards.
package tables

// These constants are behavioural, not incidental: changing any of them
// changes the audio the core produces.
const (
	CepOrder      = 25
	PhaseOrder    = 72
	FFTSize       = 256
	HFFTSize      = FFTSize / 2
	HFFTSizeP1    = HFFTSize + 1
	Displace      = FFTSize / 4 // analysis frame displacement; also samples per emitted PCM item
	SynthHop      = FFTSize / 2 // output-buffer advance per frame; two Displace-sized items
	SampFreq      = 16000
	CosTableLen   = 512
	RandTableLen  = 760
	MaxEx         = 32
	CepstBuffSize = 3
	PhaseBuffSize = 5
	VCutoffFreq   = 4500.0
	UVCutoffFreq  = 300.0
	FreqWarpFact  = 0.42

	// StartFloatNorm scales mel-cepstrum coefficient 0 before the DCT in
	// the envelope stage.
	StartFloatNorm = 0.41
	// GetExcK1 scales excitation peak energy.
	GetExcK1 = 1024.0
	// FixRespNorm scales the impulse-response RMS energy divisor.
	FixRespNorm = 4096.0
	// ExpK1 scales the log envelope before it is exponentiated into a
	// linear magnitude.
	ExpK1 = 0.5
)

// VoxBndConst is the number of low-frequency bins smoothed for a
// fully-voiced (voicing==1) frame: HFFTSize * VCutoffFreq / (SampFreq/2).
const VoxBndConst = HFFTSize * VCutoffFreq / (SampFreq / 2)
