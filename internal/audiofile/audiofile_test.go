package audiofile

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, name string, wantEnc Encoding) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)

	samples := make([]int16, 200)
	for i := range samples {
		samples[i] = int16(i*31 - 3000)
	}

	w, err := CreateWriter(path, 16000)
	require.NoError(t, err)
	require.NoError(t, w.WriteSamples(samples[:150]))
	require.NoError(t, w.WriteSamples(samples[150:]))
	require.Equal(t, uint32(200), w.SampleCount())
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	info := r.Info()
	require.Equal(t, wantEnc, info.Encoding)
	require.Equal(t, uint32(16000), info.SampleRate)
	require.Equal(t, uint32(200), info.SampleCount)

	got := make([]int16, 0, 200)
	buf := make([]int16, 64)
	for {
		n, err := r.ReadSamples(buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if n == 0 {
			break
		}
	}
	require.Equal(t, samples, got)
}

func TestWAVRoundTrip(t *testing.T) { roundTrip(t, "x.wav", EncodingWAV) }
func TestAURoundTrip(t *testing.T)  { roundTrip(t, "x.au", EncodingAU) }
func TestRawRoundTrip(t *testing.T) { roundTrip(t, "x.pcm", EncodingRaw) }

func TestOpenMissingFileFails(t *testing.T) {
	_, err := OpenReader(filepath.Join(t.TempDir(), "nope.wav"))
	require.Error(t, err)
}

func TestRejectsCompressedWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	w, err := CreateWriter(path, 16000)
	require.NoError(t, err)
	require.NoError(t, w.WriteSamples([]int16{1, 2, 3}))
	require.NoError(t, w.Close())

	// Corrupt the audio-format field.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[20] = 2
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = OpenReader(path)
	require.Error(t, err)
}
