// Package sigpu implements the signal-generation processing unit: the
// cooperative state machine that drives the synthesis stages over incoming
// FRAME_PAR items, executes side commands, and emits PCM FRAME items. One
// Step performs at most one inner transition and returns, so an outer
// scheduler can multiplex several units without threads or locks.
package sigpu

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/dbehnke/sigcore/internal/audiofile"
	"github.com/dbehnke/sigcore/internal/codebook"
	"github.com/dbehnke/sigcore/internal/envelope"
	"github.com/dbehnke/sigcore/internal/excitation"
	"github.com/dbehnke/sigcore/internal/fixedpoint"
	"github.com/dbehnke/sigcore/internal/frame"
	"github.com/dbehnke/sigcore/internal/memory"
	"github.com/dbehnke/sigcore/internal/overlap"
	"github.com/dbehnke/sigcore/internal/phase"
	"github.com/dbehnke/sigcore/internal/psola"
	"github.com/dbehnke/sigcore/internal/spectrum"
	"github.com/dbehnke/sigcore/internal/tables"
	"github.com/dbehnke/sigcore/internal/transport"
)

// StepMode is reserved by the step contract; the signal PU treats every
// mode the same way.
type StepMode uint8

// ModeNormal is the only mode the scheduler currently sends.
const ModeNormal StepMode = 0

// StepResult is what a Step invocation reports back to the scheduler.
type StepResult int

const (
	StepIdle    StepResult = iota // no input available
	StepBusy                      // more work pending, call again
	StepAtomic                    // finished an item cleanly
	StepOutFull                   // output buffer has no room
	StepError                     // unrecoverable
)

// String names the result for log lines.
func (r StepResult) String() string {
	switch r {
	case StepIdle:
		return "idle"
	case StepBusy:
		return "busy"
	case StepAtomic:
		return "atomic"
	case StepOutFull:
		return "out_full"
	default:
		return "error"
	}
}

// ResetMode selects how much state Reset clears.
type ResetMode int

const (
	// ResetFull zeroes all synthesis state, rewinds the tables' cursors,
	// and restores the modifiers to their configured defaults.
	ResetFull ResetMode = iota
	// ResetSoft only resets the state machine cursors.
	ResetSoft
)

// Outer scheduler states.
type procState int

const (
	stateCollect procState = iota
	stateSchedule
	stateProcess
	statePlay
	stateFeed
)

// Inner per-frame states, executed linearly per FRAME_PAR item.
type innerState int

const (
	stateShiftHistory innerState = iota
	stateLoadNewFrame
	stateEnvWarp
	statePhase
	stateEnvSpec
	stateImpulseResponse
	statePSOLA
	stateOverlapAdd
	stateEmit
)

// Options configures a PU at construction.
type Options struct {
	Codebooks codebook.Paths
	Logger    *log.Logger

	// BufferSize is the capacity of each item buffer; zero means
	// transport.BufSizeSig.
	BufferSize uint32
	// ArenaSize is the working pool in int32 slots; zero picks a size
	// that fits every stage with headroom.
	ArenaSize int

	// Default voice modifiers; zero values mean 1.0 / 0.5 / 1.0.
	Pitch   float64
	Volume  float64
	Speaker float64
}

// PU is one signal processing unit.
type PU struct {
	logger *log.Logger

	in  *transport.RingBuffer
	out *transport.RingBuffer

	arena *memory.Arena
	cb    *codebook.Reader
	asm   *frame.Assembler
	env   *envelope.Stage
	ph    *phase.Stage
	spec  *spectrum.Stage
	exc   excitation.Stage
	ps    *psola.Stage
	ola   *overlap.Stage

	pMod, vMod, sMod float64
	defaults         Options

	procState  procState
	retState   procState
	innerState innerState

	cur     transport.Item
	pending []transport.Item

	playFile string
	player   *audiofile.Reader
	saveFile string
	saver    *audiofile.Writer

	nNumFrame uint32

	framesIn  uint64
	framesOut uint64
	pcmBytes  uint64
}

// New builds a PU, loading every knowledge base eagerly. A missing
// resource fails here, once; Step never fails for that reason.
func New(opts Options) (*PU, error) {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.BufferSize == 0 {
		opts.BufferSize = transport.BufSizeSig
	}
	if opts.ArenaSize == 0 {
		opts.ArenaSize = 16 * tables.FFTSize
	}
	if opts.Pitch == 0 {
		opts.Pitch = 1.0
	}
	if opts.Volume == 0 {
		opts.Volume = 0.5
	}
	if opts.Speaker == 0 {
		opts.Speaker = 1.0
	}

	cb, err := codebook.Open(opts.Codebooks)
	if err != nil {
		return nil, fmt.Errorf("sigpu: %w", err)
	}

	arena := memory.NewArena(opts.ArenaSize, "sigpu")
	p := &PU{
		logger:   opts.Logger,
		in:       transport.NewRingBuffer(opts.BufferSize, "sig-in"),
		out:      transport.NewRingBuffer(opts.BufferSize, "sig-out"),
		arena:    arena,
		cb:       cb,
		asm:      frame.NewAssembler(cb, arena),
		env:      envelope.NewStage(cb.MelCepScaleExp(), arena),
		ph:       phase.NewStage(arena),
		spec:     spectrum.NewStage(arena),
		ps:       psola.NewStage(arena),
		ola:      overlap.NewStage(arena),
		defaults: opts,
	}
	p.applyDefaults()
	return p, nil
}

func (p *PU) applyDefaults() {
	p.pMod = p.defaults.Pitch
	p.vMod = p.defaults.Volume
	p.sMod = p.defaults.Speaker
	p.env.SetWarp(warpFor(p.sMod))
}

// warpFor maps the speaker modifier onto the bilinear warp factor, kept
// inside the stable region of the warp.
func warpFor(sMod float64) float64 {
	alpha := tables.FreqWarpFact * sMod
	if alpha > 0.95 {
		alpha = 0.95
	}
	if alpha < -0.95 {
		alpha = -0.95
	}
	return alpha
}

// In returns the PU's input item buffer. Single writer by construction.
func (p *PU) In() *transport.RingBuffer { return p.in }

// Out returns the PU's output item buffer. Single reader by construction.
func (p *PU) Out() *transport.RingBuffer { return p.out }

// Stats reports frames consumed, frames emitted, and PCM bytes produced.
func (p *PU) Stats() (framesIn, framesOut, pcmBytes uint64) {
	return p.framesIn, p.framesOut, p.pcmBytes
}

// Step advances the PU by at most one inner transition. It never blocks
// and never panics past its own boundary; the result code is the whole
// story.
func (p *PU) Step(mode StepMode) StepResult {
	_ = mode
	switch p.procState {
	case stateCollect:
		return p.stepCollect()
	case stateSchedule:
		return p.stepSchedule()
	case stateProcess:
		return p.stepProcess()
	case statePlay:
		return p.stepPlay()
	case stateFeed:
		return p.stepFeed()
	}
	return StepError
}

func (p *PU) stepCollect() StepResult {
	it, ok, err := p.in.ReadItem()
	if err != nil {
		p.logger.Printf("sigpu: discarding malformed input: %v", err)
		return StepBusy
	}
	if !ok {
		if p.player != nil {
			p.procState = statePlay
			return StepBusy
		}
		return StepIdle
	}
	p.cur = it
	p.procState = stateSchedule
	return StepBusy
}

func (p *PU) stepSchedule() StepResult {
	switch {
	case p.cur.Type == transport.ItemFramePar:
		p.framesIn++
		p.procState = stateProcess
		p.innerState = stateShiftHistory
		return StepBusy

	case p.cur.Type == transport.ItemCmd && handlesCmd(p.cur.Info1):
		// Side commands are consumed, never forwarded; a failing one is
		// logged and dropped so frame processing continues.
		if err := p.execCommand(p.cur); err != nil {
			p.logger.Printf("sigpu: command %d failed: %v", p.cur.Info1, err)
		}
		p.procState = stateCollect
		return StepAtomic

	default:
		// Anything else passes through verbatim, in order.
		p.pending = append(p.pending, p.cur)
		p.retState = stateCollect
		p.procState = stateFeed
		return StepBusy
	}
}

func handlesCmd(sub uint8) bool {
	switch sub {
	case transport.CmdPlay, transport.CmdSave, transport.CmdUnsave,
		transport.CmdPitch, transport.CmdVolume, transport.CmdSpeaker:
		return true
	}
	return false
}

// stepProcess runs one of the nine per-frame states.
func (p *PU) stepProcess() StepResult {
	switch p.innerState {
	case stateShiftHistory:
		p.asm.ShiftHistory()
		p.innerState = stateLoadNewFrame
		return StepBusy

	case stateLoadNewFrame:
		if err := p.asm.Load(p.cur, p.pMod); err != nil {
			p.logger.Printf("sigpu: discarding malformed FRAME_PAR: %v", err)
			p.procState = stateCollect
			return StepBusy
		}
		if !p.asm.Ready() {
			// Look-ahead not full yet: consume without emitting.
			p.procState = stateCollect
			return StepBusy
		}
		p.innerState = stateEnvWarp
		return StepBusy

	case stateEnvWarp:
		// The transition bookkeeping sees the previous frame's impulse
		// response, which is exactly what must be retained.
		p.ps.SaveTransition(p.spec.Imp, p.asm.Voiced, p.asm.PrevVoiced, &p.exc)
		p.env.Process(p.asm.Cep())
		p.innerState = statePhase
		return StepBusy

	case statePhase:
		p.ph.Process(p.asm.Voiced, p.asm.Voicing, p.asm.Phs(), p.asm.VoxBnd())
		p.innerState = stateEnvSpec
		return StepBusy

	case stateEnvSpec:
		p.spec.EnvSpec(p.env.Env, p.ph, p.asm.Voiced, p.asm.PrevVoiced, p.asm.F0)
		p.innerState = stateImpulseResponse
		return StepBusy

	case stateImpulseResponse:
		p.spec.ImpulseResponse()
		p.innerState = statePSOLA
		return StepBusy

	case statePSOLA:
		p.exc.Generate(p.asm.Voiced, p.asm.F0, p.asm.Fuv, p.spec.Energy)
		p.ps.Synthesize(p.spec.Imp, &p.exc)
		p.innerState = stateOverlapAdd
		return StepBusy

	case stateOverlapAdd:
		p.ola.Add(p.ps.SigVec)
		p.innerState = stateEmit
		return StepBusy

	case stateEmit:
		for _, burst := range p.ola.Emit(p.vMod) {
			p.pending = append(p.pending, p.frameItem(burst))
			p.nNumFrame++
		}
		p.framesOut += 2
		p.innerState = stateShiftHistory
		p.retState = stateCollect
		p.procState = stateFeed
		return StepBusy
	}
	return StepError
}

// frameItem wraps one PCM burst as a FRAME item: info1 carries the sample
// count, info2 the frame counter folded into the half-hop, the payload the
// little-endian samples.
func (p *PU) frameItem(samples []int16) transport.Item {
	payload := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(payload[2*i:], uint16(s))
	}
	return transport.Item{
		Type:    transport.ItemFrame,
		Info1:   uint8(len(samples)),
		Info2:   uint8(p.nNumFrame % tables.Displace),
		Payload: payload,
	}
}

// stepFeed drains as many pending output items into the out buffer as fit
// in one step, reporting out_full when the reader has not caught up.
func (p *PU) stepFeed() StepResult {
	for len(p.pending) > 0 {
		it := p.pending[0]
		if err := p.out.WriteItem(it); err != nil {
			return StepOutFull
		}
		if it.Type == transport.ItemFrame {
			p.pcmBytes += uint64(len(it.Payload))
			if p.saver != nil {
				p.writeSave(it)
			}
		}
		p.pending = p.pending[1:]
	}
	p.pending = nil
	p.procState = p.retState
	return StepAtomic
}

// writeSave mirrors one emitted FRAME item into the save file. A write
// failure closes the file and stops saving; frame processing continues.
func (p *PU) writeSave(it transport.Item) {
	samples := make([]int16, len(it.Payload)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(it.Payload[2*i:]))
	}
	if err := p.saver.WriteSamples(samples); err != nil {
		p.logger.Printf("sigpu: save to %s failed, closing: %v", p.saveFile, err)
		p.saver.Close()
		p.saver = nil
		p.saveFile = ""
	}
}

// stepPlay emits one Displace-sample burst from the play file per step,
// clip-multiplied by the volume modifier.
func (p *PU) stepPlay() StepResult {
	buf := make([]int16, tables.Displace)
	n, err := p.player.ReadSamples(buf)
	if n > 0 {
		for i := 0; i < n; i++ {
			v := float64(buf[i]) * p.vMod
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			buf[i] = fixedpoint.ClampPCM16(int32(v))
		}
		p.pending = append(p.pending, p.frameItem(buf[:n]))
		p.nNumFrame++
		p.retState = statePlay
		p.procState = stateFeed
	}
	if err != nil || n == 0 {
		p.player.Close()
		p.player = nil
		p.playFile = ""
		if p.procState != stateFeed {
			p.procState = stateCollect
		} else {
			p.retState = stateCollect
		}
	}
	return StepBusy
}

// execCommand dispatches one side command by its info1 sub-command byte.
func (p *PU) execCommand(it transport.Item) error {
	switch it.Info1 {
	case transport.CmdPlay:
		name := string(it.Payload)
		if name != "" && name == p.saveFile {
			return fmt.Errorf("refusing to play the active save file %q", name)
		}
		r, err := audiofile.OpenReader(name)
		if err != nil {
			return err
		}
		if p.player != nil {
			p.player.Close()
		}
		p.player = r
		p.playFile = name
		p.logger.Printf("sigpu: playing %s (%s, %d Hz)", name, r.Info().Encoding, r.Info().SampleRate)
		return nil

	case transport.CmdSave:
		name := string(it.Payload)
		if name != "" && name == p.playFile {
			return fmt.Errorf("refusing to save over the active play file %q", name)
		}
		w, err := audiofile.CreateWriter(name, tables.SampFreq)
		if err != nil {
			return err
		}
		if p.saver != nil {
			p.saver.Close()
		}
		p.saver = w
		p.saveFile = name
		p.logger.Printf("sigpu: saving to %s", name)
		return nil

	case transport.CmdUnsave:
		if p.saver != nil {
			err := p.saver.Close()
			p.logger.Printf("sigpu: closed save file %s (%d samples)", p.saveFile, p.saver.SampleCount())
			p.saver = nil
			p.saveFile = ""
			return err
		}
		return nil

	case transport.CmdPitch, transport.CmdVolume, transport.CmdSpeaker:
		return p.setModifier(it)
	}
	return fmt.Errorf("unhandled sub-command %d", it.Info1)
}

// setModifier updates a voice modifier from a 16-bit payload: mode byte
// 'a' sets payload/100 absolutely, 'r' scales the current value by
// payload/1000.
func (p *PU) setModifier(it transport.Item) error {
	if len(it.Payload) < 2 {
		return fmt.Errorf("modifier payload too short (%d bytes)", len(it.Payload))
	}
	raw := float64(int16(binary.LittleEndian.Uint16(it.Payload)))

	target := &p.pMod
	switch it.Info1 {
	case transport.CmdVolume:
		target = &p.vMod
	case transport.CmdSpeaker:
		target = &p.sMod
	}

	switch it.Info2 {
	case 'a':
		*target = raw / 100
	case 'r':
		*target *= raw / 1000
	default:
		return fmt.Errorf("unknown modifier mode %q", it.Info2)
	}

	if it.Info1 == transport.CmdSpeaker {
		// A speaker change rebuilds this PU's mel-to-linear warp.
		p.env.SetWarp(warpFor(p.sMod))
	}
	return nil
}

// Reset restores the PU. ResetFull regenerates the warp tables, zeroes
// every stage, clears both item buffers, and restores the default
// modifiers; ResetSoft only rewinds the state machine cursors.
func (p *PU) Reset(mode ResetMode) {
	p.procState = stateCollect
	p.retState = stateCollect
	p.innerState = stateShiftHistory
	p.pending = nil

	if mode == ResetSoft {
		return
	}

	p.asm.Reset()
	p.env.Reset()
	p.ph.Reset()
	p.spec.Reset()
	p.exc.Reset()
	p.ps.Reset()
	p.ola.Reset()
	p.in.Clear()
	p.out.Clear()
	if p.player != nil {
		p.player.Close()
		p.player = nil
		p.playFile = ""
	}
	if p.saver != nil {
		p.saver.Close()
		p.saver = nil
		p.saveFile = ""
	}
	p.nNumFrame = 0
	p.applyDefaults()
}
