// Package codebook reads the phase, mel-cepstrum, and log-F0 parameter
// codebooks the frame assembler resolves per-frame indices against. A
// missing or malformed resource file is detected once, at construction,
// and reported as ErrResourceMissing; after that, a lookup fails only for
// an index outside the table or a record that runs past the end of the file.
package codebook

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dbehnke/sigcore/internal/tables"
)

// ErrResourceMissing is returned from Open when a required knowledge-base
// file is absent or malformed. Construction fails once and the core never
// attempts a per-frame resource lookup that can fail the same way.
var ErrResourceMissing = errors.New("codebook: required knowledge-base resource missing")

// Paths names the three resource files a Reader is built from.
type Paths struct {
	Phase       string
	MelCepstrum string
	LogF0       string
}

// Reader serves phase vectors and packed-Gaussian means keyed by a 16-bit
// index, the contract C3 (the frame assembler) and C4 (the envelope stage)
// depend on.
type Reader struct {
	phase  *phaseIndex
	melCep *meanTable
	logF0  *meanTable
}

// Open loads all three resources eagerly and returns ErrResourceMissing if
// any is absent or structurally invalid.
func Open(p Paths) (*Reader, error) {
	phase, err := loadPhaseIndex(p.Phase)
	if err != nil {
		return nil, fmt.Errorf("%w: phase codebook %q: %v", ErrResourceMissing, p.Phase, err)
	}
	melCep, err := loadMeanTable(p.MelCepstrum, tables.CepOrder)
	if err != nil {
		return nil, fmt.Errorf("%w: mel-cepstrum codebook %q: %v", ErrResourceMissing, p.MelCepstrum, err)
	}
	logF0, err := loadMeanTable(p.LogF0, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: log-F0 codebook %q: %v", ErrResourceMissing, p.LogF0, err)
	}
	return &Reader{phase: phase, melCep: melCep, logF0: logF0}, nil
}

// PhaseVector returns the codebook's phase vector for index, clamped to
// tables.PhaseOrder components with the tail of vec zero-filled, plus the
// component count actually stored.
func (r *Reader) PhaseVector(index uint16) (vec [tables.PhaseOrder]int32, n int, err error) {
	if int(index) >= len(r.phase.offsets) {
		return vec, 0, fmt.Errorf("codebook: phase index %d out of range (%d entries)", index, len(r.phase.offsets))
	}
	off := int(r.phase.offsets[index])
	if off >= len(r.phase.content) {
		return vec, 0, fmt.Errorf("codebook: phase offset %d out of range", off)
	}
	count := int(r.phase.content[off])
	if count > tables.PhaseOrder {
		count = tables.PhaseOrder
	}
	if off+1+count > len(r.phase.content) {
		return vec, 0, fmt.Errorf("codebook: phase record at offset %d truncated", off)
	}
	for i := 0; i < count; i++ {
		vec[i] = int32(r.phase.content[off+1+i])
	}
	return vec, count, nil
}

// MelCepstrumMean returns the CepOrder-long packed Gaussian mean vector for
// index, along with the shared scale exponent (bigpow - meanpow) needed to
// recover the log-power spectrum scale in C4.
func (r *Reader) MelCepstrumMean(index uint16) (coeffs []int32, scaleExp int8, err error) {
	return r.melCep.vector(index)
}

// LogF0Mean returns the packed log-F0 mean for index and its scale exponent.
func (r *Reader) LogF0Mean(index uint16) (mean int32, scaleExp int8, err error) {
	vec, exp, err := r.logF0.vector(index)
	if err != nil {
		return 0, 0, err
	}
	return vec[0], exp, nil
}

// MelCepScaleExp returns the shared scale exponent (bigpow - meanpow) of
// the mel-cepstrum codebook, used by the envelope stage to recover the
// log-power spectrum scale.
func (r *Reader) MelCepScaleExp() int8 { return r.melCep.scaleExp }

// LogF0ScaleExp returns the shared scale exponent of the log-F0 codebook,
// used by the frame assembler to convert log-F0 mantissas to Hz.
func (r *Reader) LogF0ScaleExp() int8 { return r.logF0.scaleExp }

// NumPhaseEntries reports the size of the phase offset table, used by
// kbstore's dump tooling to bound iteration.
func (r *Reader) NumPhaseEntries() int { return len(r.phase.offsets) }

// NumMeanEntries reports how many mel-cepstrum (or log-F0, same count by
// construction) mean records are present.
func (r *Reader) NumMeanEntries() int { return r.melCep.count() }

type phaseIndex struct {
	offsets []uint32
	content []byte
}

// loadPhaseIndex parses the §6 phase-codebook layout: a 2-byte
// offset-table length, then that many 4-byte little-endian offsets into a
// following content region of {u8 count, u8[count] values} records.
func loadPhaseIndex(path string) (*phaseIndex, error) {
	data, err := readAll(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 2 {
		return nil, fmt.Errorf("truncated before offset-table length")
	}
	n := int(binary.LittleEndian.Uint16(data[0:2]))
	tableEnd := 2 + n*4
	if len(data) < tableEnd {
		return nil, fmt.Errorf("truncated offset table: need %d bytes, have %d", tableEnd, len(data))
	}
	offsets := make([]uint32, n)
	for i := 0; i < n; i++ {
		offsets[i] = binary.LittleEndian.Uint32(data[2+i*4 : 6+i*4])
	}
	return &phaseIndex{offsets: offsets, content: data[tableEnd:]}, nil
}

type meanTable struct {
	data     []byte
	scaleExp int8
	width    int
}

// loadMeanTable parses the §6 packed-means layout: a leading int8 scale
// exponent followed by fixed-width (width*int16, little-endian) records.
func loadMeanTable(path string, width int) (*meanTable, error) {
	data, err := readAll(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 1 {
		return nil, fmt.Errorf("truncated before scale exponent")
	}
	return &meanTable{data: data[1:], scaleExp: int8(data[0]), width: width}, nil
}

func (t *meanTable) vector(index uint16) ([]int32, int8, error) {
	recBytes := t.width * 2
	off := int(index) * recBytes
	if off+recBytes > len(t.data) {
		return nil, 0, fmt.Errorf("codebook: mean index %d out of range (%d records)", index, t.count())
	}
	out := make([]int32, t.width)
	for i := 0; i < t.width; i++ {
		out[i] = int32(int16(binary.LittleEndian.Uint16(t.data[off+i*2 : off+i*2+2])))
	}
	return out, t.scaleExp, nil
}

func (t *meanTable) count() int {
	if t.width == 0 {
		return 0
	}
	return len(t.data) / (t.width * 2)
}

func readAll(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
