// Package frame implements the frame assembler: the stage that accumulates
// incoming per-frame acoustic parameter items into the short history
// buffers the synthesis stages read, applies the pitch modifier, and gates
// synthesis behind the two-frame look-ahead.
package frame

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dbehnke/sigcore/internal/codebook"
	"github.com/dbehnke/sigcore/internal/memory"
	"github.com/dbehnke/sigcore/internal/tables"
	"github.com/dbehnke/sigcore/internal/transport"
)

// lookAhead is the number of buffered frames required before synthesis may
// run: the frame synthesised each step is the oldest of three, so two
// newer frames are always in hand for phase smoothing.
const lookAhead = tables.CepstBuffSize

// ParamFrame is one parsed FRAME_PAR payload.
type ParamFrame struct {
	PhonID     int16
	F0Raw      int16 // log-F0 mantissa, first triple
	VoicingRaw int16 // packed voicing byte, first triple
	FuvRaw     int16 // unrectified log-F0 mantissa, first triple
	Cep        [tables.CepOrder]int16
	PhaseIndex uint16
	HasPhase   bool
}

// ParseParamFrame decodes the fixed FRAME_PAR layout: a 16-bit phonetic
// id, CepOrder (f0, voicing, f0-unrectified) 16-bit triples of which only
// the first is semantically used, CepOrder signed mel-cepstrum
// coefficients, and an optional trailing phase-codebook index.
func ParseParamFrame(payload []byte) (ParamFrame, error) {
	var pf ParamFrame
	const tripleBytes = 3 * 2 * tables.CepOrder
	cepOff := 2 + tripleBytes
	phaseOff := cepOff + 2*tables.CepOrder
	if len(payload) < phaseOff {
		return pf, fmt.Errorf("frame: FRAME_PAR payload %d bytes, need at least %d", len(payload), phaseOff)
	}

	pf.PhonID = int16(binary.LittleEndian.Uint16(payload[0:2]))
	pf.F0Raw = int16(binary.LittleEndian.Uint16(payload[2:4]))
	pf.VoicingRaw = int16(binary.LittleEndian.Uint16(payload[4:6]))
	pf.FuvRaw = int16(binary.LittleEndian.Uint16(payload[6:8]))
	for i := 0; i < tables.CepOrder; i++ {
		pf.Cep[i] = int16(binary.LittleEndian.Uint16(payload[cepOff+2*i : cepOff+2*i+2]))
	}
	if len(payload) >= phaseOff+2 {
		pf.PhaseIndex = binary.LittleEndian.Uint16(payload[phaseOff : phaseOff+2])
		pf.HasPhase = true
	}
	return pf, nil
}

// Assembler owns the cyclic parameter histories. Each Shift/Load pair
// rotates the rings by one: logical index 0 becomes the frame to
// synthesise, the newest slot receives the incoming frame.
type Assembler struct {
	cb       *codebook.Reader
	lfzScale float64 // 2^(bigpow-meanpow) from the log-F0 codebook

	cepBuff     *Ring[[]int32]
	phsBuff     *Ring[[]int32]
	f0Buff      *Ring[int16]
	phIdBuff    *Ring[int16]
	voicingBuff *Ring[int16]
	fuvBuff     *Ring[int16]
	voxBndBuff  *Ring[int16]

	nAvailable int

	// Parameters of the frame to synthesise this step (logical index 0),
	// valid after Load.
	PhID       int16
	F0         float64
	Fuv        float64
	Voicing    float64
	Voiced     bool
	PrevVoiced bool
}

// NewAssembler builds an assembler whose history storage comes from the
// PU arena.
func NewAssembler(cb *codebook.Reader, arena *memory.Arena) *Assembler {
	a := &Assembler{
		cb:          cb,
		lfzScale:    math.Exp2(float64(cb.LogF0ScaleExp())),
		f0Buff:      NewRing[int16](tables.CepstBuffSize),
		phIdBuff:    NewRing[int16](tables.CepstBuffSize),
		voicingBuff: NewRing[int16](tables.CepstBuffSize),
		fuvBuff:     NewRing[int16](tables.CepstBuffSize),
		voxBndBuff:  NewRing[int16](tables.PhaseBuffSize),
	}
	cepRows := arena.Int32Matrix(tables.CepstBuffSize, tables.CepOrder)
	a.cepBuff = NewRingOf(tables.CepstBuffSize, func(i int) []int32 { return cepRows[i] })
	phsRows := arena.Int32Matrix(tables.PhaseBuffSize, tables.PhaseOrder)
	a.phsBuff = NewRingOf(tables.PhaseBuffSize, func(i int) []int32 { return phsRows[i] })
	return a
}

// ShiftHistory rotates every history ring by one and latches the previous
// frame's voicing decision. The recycled newest slots still hold the
// oldest frame's data until Load overwrites them.
func (a *Assembler) ShiftHistory() {
	a.PrevVoiced = a.Voiced
	a.cepBuff.Shift()
	a.phsBuff.Shift()
	a.f0Buff.Shift()
	a.phIdBuff.Shift()
	a.voicingBuff.Shift()
	a.fuvBuff.Shift()
	a.voxBndBuff.Shift()
}

// Load parses the new frame into the newest slots, derives the
// synthesis parameters of the now-oldest frame, applies the pitch
// modifier, and bumps the availability counter (saturating at the
// look-ahead depth).
func (a *Assembler) Load(it transport.Item, pitchMod float64) error {
	pf, err := ParseParamFrame(it.Payload)
	if err != nil {
		return err
	}

	newestCep := tables.CepstBuffSize - 1
	newestPhs := tables.PhaseBuffSize - 1

	a.phIdBuff.Set(newestCep, pf.PhonID)
	a.f0Buff.Set(newestCep, pf.F0Raw)
	a.voicingBuff.Set(newestCep, pf.VoicingRaw)
	a.fuvBuff.Set(newestCep, pf.FuvRaw)
	cep := a.cepBuff.At(newestCep)
	for i := 0; i < tables.CepOrder; i++ {
		cep[i] = int32(pf.Cep[i])
	}

	if pf.HasPhase {
		vec, n, err := a.cb.PhaseVector(pf.PhaseIndex)
		if err != nil {
			return fmt.Errorf("frame: phase index %d: %v", pf.PhaseIndex, err)
		}
		copy(a.phsBuff.At(newestPhs), vec[:])
		a.voxBndBuff.Set(newestPhs, int16(n))
	} else {
		phs := a.phsBuff.At(newestPhs)
		for i := range phs {
			phs[i] = 0
		}
		a.voxBndBuff.Set(newestPhs, 0)
	}

	// Synthesis parameters come from the oldest entries.
	a.PhID = a.phIdBuff.At(0)
	if mant := a.f0Buff.At(0); mant != 0 {
		a.F0 = math.Exp(float64(mant) / a.lfzScale)
	} else {
		a.F0 = 0
	}
	a.Fuv = math.Exp(float64(a.fuvBuff.At(0)) / a.lfzScale)

	v := uint16(a.voicingBuff.At(0))
	a.Voicing = float64(((v&1)<<3)|((v>>1)&7)) / 15.0

	a.F0 *= pitchMod
	a.Fuv *= pitchMod
	a.Voiced = a.F0 > 0

	a.nAvailable++
	if a.nAvailable > lookAhead {
		a.nAvailable = lookAhead
	}
	return nil
}

// Ready reports whether the look-ahead is full and synthesis may run.
func (a *Assembler) Ready() bool { return a.nAvailable >= lookAhead }

// Cep returns the mel-cepstrum vector of the frame to synthesise.
func (a *Assembler) Cep() []int32 { return a.cepBuff.At(0) }

// Phs returns the phase-history ring for the smoothing stage.
func (a *Assembler) Phs() *Ring[[]int32] { return a.phsBuff }

// VoxBnd returns the component-count history ring.
func (a *Assembler) VoxBnd() *Ring[int16] { return a.voxBndBuff }

// Reset zeroes every history and the availability counter (full reset).
func (a *Assembler) Reset() {
	for i := 0; i < a.cepBuff.Len(); i++ {
		row := a.cepBuff.At(i)
		for j := range row {
			row[j] = 0
		}
	}
	for i := 0; i < a.phsBuff.Len(); i++ {
		row := a.phsBuff.At(i)
		for j := range row {
			row[j] = 0
		}
	}
	a.f0Buff.Reset()
	a.phIdBuff.Reset()
	a.voicingBuff.Reset()
	a.fuvBuff.Reset()
	a.voxBndBuff.Reset()
	a.nAvailable = 0
	a.PhID = 0
	a.F0, a.Fuv, a.Voicing = 0, 0, 0
	a.Voiced, a.PrevVoiced = false, false
}
