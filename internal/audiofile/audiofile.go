// Package audiofile reads and writes the headered PCM files the PLAY and
// SAVE commands operate on: RIFF/WAVE PCM, Sun/NeXT .au, and raw headerless
// 16 kHz int16. The PU treats files as opaque beyond sample rate, encoding,
// and sample count; this package is the whole of that contract.
package audiofile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
)

// Encoding identifies the container wrapped around the PCM samples.
type Encoding int

const (
	EncodingRaw Encoding = iota
	EncodingWAV
	EncodingAU
)

// String names the encoding for log lines.
func (e Encoding) String() string {
	switch e {
	case EncodingWAV:
		return "wav"
	case EncodingAU:
		return "au"
	default:
		return "raw"
	}
}

// Info is what the core knows about an open audio file.
type Info struct {
	SampleRate  uint32
	Encoding    Encoding
	SampleCount uint32 // 0 when unknown (raw input of unknown length)
}

const (
	wavHeaderLen = 44
	auHeaderLen  = 24
	auEncoding16 = 3 // 16-bit linear PCM
)

// Reader streams int16 samples from an audio file, one slice at a time.
type Reader struct {
	f    *os.File
	info Info
	be   bool // .au payloads are big-endian
}

// OpenReader opens path and sniffs the container by magic: "RIFF" for
// WAV, ".snd" for AU, anything else is treated as raw 16 kHz PCM.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var magic [4]byte
	n, err := f.Read(magic[:])
	if err != nil && err != io.EOF {
		f.Close()
		return nil, err
	}

	r := &Reader{f: f, info: Info{SampleRate: 16000, Encoding: EncodingRaw}}
	switch {
	case n == 4 && string(magic[:]) == "RIFF":
		if err := r.readWAVHeader(); err != nil {
			f.Close()
			return nil, fmt.Errorf("audiofile: %s: %v", path, err)
		}
	case n == 4 && string(magic[:]) == ".snd":
		if err := r.readAUHeader(); err != nil {
			f.Close()
			return nil, fmt.Errorf("audiofile: %s: %v", path, err)
		}
	default:
		// Raw: rewind, the magic bytes were samples.
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
		if st, err := f.Stat(); err == nil {
			r.info.SampleCount = uint32(st.Size() / 2)
		}
	}
	return r, nil
}

func (r *Reader) readWAVHeader() error {
	// The magic is already consumed; read the rest of the fixed header.
	var rest [wavHeaderLen - 4]byte
	if _, err := io.ReadFull(r.f, rest[:]); err != nil {
		return fmt.Errorf("short WAV header: %v", err)
	}
	if string(rest[4:8]) != "WAVE" || string(rest[8:12]) != "fmt " {
		return fmt.Errorf("not a PCM WAVE file")
	}
	if binary.LittleEndian.Uint16(rest[16:18]) != 1 {
		return fmt.Errorf("only PCM WAVE is supported")
	}
	r.info.Encoding = EncodingWAV
	r.info.SampleRate = binary.LittleEndian.Uint32(rest[20:24])
	r.info.SampleCount = binary.LittleEndian.Uint32(rest[36:40]) / 2
	return nil
}

func (r *Reader) readAUHeader() error {
	var rest [auHeaderLen - 4]byte
	if _, err := io.ReadFull(r.f, rest[:]); err != nil {
		return fmt.Errorf("short AU header: %v", err)
	}
	dataOffset := binary.BigEndian.Uint32(rest[0:4])
	dataSize := binary.BigEndian.Uint32(rest[4:8])
	if binary.BigEndian.Uint32(rest[8:12]) != auEncoding16 {
		return fmt.Errorf("only 16-bit linear AU is supported")
	}
	r.info.Encoding = EncodingAU
	r.info.SampleRate = binary.BigEndian.Uint32(rest[12:16])
	if dataSize != 0xffffffff {
		r.info.SampleCount = dataSize / 2
	}
	r.be = true
	if dataOffset > auHeaderLen {
		if _, err := r.f.Seek(int64(dataOffset), io.SeekStart); err != nil {
			return err
		}
	}
	return nil
}

// Info returns the file's decoded parameters.
func (r *Reader) Info() Info { return r.info }

// ReadSamples fills dst with up to len(dst) samples and returns how many
// were read; io.EOF once the file is drained.
func (r *Reader) ReadSamples(dst []int16) (int, error) {
	buf := make([]byte, 2*len(dst))
	n, err := io.ReadFull(r.f, buf)
	if err == io.ErrUnexpectedEOF {
		err = nil // partial tail read is fine
	}
	got := n / 2
	for i := 0; i < got; i++ {
		if r.be {
			dst[i] = int16(binary.BigEndian.Uint16(buf[2*i:]))
		} else {
			dst[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
		}
	}
	if got == 0 && err == nil {
		err = io.EOF
	}
	return got, err
}

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

// Writer streams int16 samples into an audio file, patching the header's
// size fields on Close.
type Writer struct {
	f       *os.File
	enc     Encoding
	be      bool
	rate    uint32
	samples uint32
}

// CreateWriter creates path, choosing the container from the extension:
// .wav and .au get their headers, anything else is raw.
func CreateWriter(path string, sampleRate uint32) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &Writer{f: f, rate: sampleRate}
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".wav"):
		w.enc = EncodingWAV
		if err := w.writeWAVHeader(sampleRate, 0); err != nil {
			f.Close()
			return nil, err
		}
	case strings.HasSuffix(strings.ToLower(path), ".au"):
		w.enc = EncodingAU
		w.be = true
		if err := w.writeAUHeader(sampleRate, 0xffffffff); err != nil {
			f.Close()
			return nil, err
		}
	default:
		w.enc = EncodingRaw
	}
	return w, nil
}

func (w *Writer) writeWAVHeader(rate, dataBytes uint32) error {
	var h [wavHeaderLen]byte
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataBytes)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], 1) // mono
	binary.LittleEndian.PutUint32(h[24:28], rate)
	binary.LittleEndian.PutUint32(h[28:32], rate*2)
	binary.LittleEndian.PutUint16(h[32:34], 2)
	binary.LittleEndian.PutUint16(h[34:36], 16)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataBytes)
	_, err := w.f.Write(h[:])
	return err
}

func (w *Writer) writeAUHeader(rate, dataSize uint32) error {
	var h [auHeaderLen]byte
	copy(h[0:4], ".snd")
	binary.BigEndian.PutUint32(h[4:8], auHeaderLen)
	binary.BigEndian.PutUint32(h[8:12], dataSize)
	binary.BigEndian.PutUint32(h[12:16], auEncoding16)
	binary.BigEndian.PutUint32(h[16:20], rate)
	binary.BigEndian.PutUint32(h[20:24], 1) // mono
	_, err := w.f.Write(h[:])
	return err
}

// WriteSamples appends samples to the file.
func (w *Writer) WriteSamples(samples []int16) error {
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		if w.be {
			binary.BigEndian.PutUint16(buf[2*i:], uint16(s))
		} else {
			binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
		}
	}
	if _, err := w.f.Write(buf); err != nil {
		return err
	}
	w.samples += uint32(len(samples))
	return nil
}

// SampleCount reports how many samples have been written.
func (w *Writer) SampleCount() uint32 { return w.samples }

// Close patches the container's size fields and closes the file.
func (w *Writer) Close() error {
	switch w.enc {
	case EncodingWAV:
		if _, err := w.f.Seek(0, io.SeekStart); err == nil {
			_ = w.writeWAVHeader(w.rate, w.samples*2)
		}
	case EncodingAU:
		if _, err := w.f.Seek(0, io.SeekStart); err == nil {
			_ = w.writeAUHeader(w.rate, w.samples*2)
		}
	}
	return w.f.Close()
}
