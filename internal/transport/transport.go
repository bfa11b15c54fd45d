// Package transport implements the byte-oriented item buffers every
// pipeline stage communicates through: a single-writer/single-reader ring
// of bytes carrying items framed by a 4-byte (type, info1, info2, len)
// header. Readers take whole items only; writers reserve the full framed
// length or fail.
package transport

import (
	"errors"
	"fmt"
)

// Item types understood by the signal PU. Unknown types are structurally
// valid and pass through the PU unchanged.
const (
	ItemFramePar uint8 = 'p' // per-frame acoustic parameter vector
	ItemFrame    uint8 = 'f' // synthesised PCM frame
	ItemCmd      uint8 = 'c' // side command, info1 selects the sub-command
	ItemBound    uint8 = 'b' // sentence/segment boundary marker
	ItemFlush    uint8 = 'u' // end-of-stream flush
)

// Sub-commands carried in a CMD item's info1 byte.
const (
	CmdPlay    uint8 = 1
	CmdSave    uint8 = 3
	CmdUnsave  uint8 = 4
	CmdPitch   uint8 = 6
	CmdVolume  uint8 = 7
	CmdSpeaker uint8 = 8
)

// HeaderLen is the fixed item header size.
const HeaderLen = 4

// BufSizeSig is the default capacity of a signal-stage item buffer.
const BufSizeSig = 4096

// ErrBufferOverflow is returned by WriteItem when the buffer cannot hold
// the full framed item.
var ErrBufferOverflow = errors.New("transport: buffer overflow")

// ErrMalformedItem is returned by ReadItem when a header's length field
// overruns the bytes actually present. The malformed bytes are discarded.
var ErrMalformedItem = errors.New("transport: malformed item")

// Item is one parsed transport item: the 4-byte header fields plus up to
// 255 payload bytes.
type Item struct {
	Type    uint8
	Info1   uint8
	Info2   uint8
	Payload []byte
}

// Len returns the item's framed size in bytes (header + payload).
func (it Item) Len() int { return HeaderLen + len(it.Payload) }

// RingBuffer is a single-writer/single-reader byte ring. It follows the
// same iPtr/oPtr discipline as the codec-side ring buffers, with one
// addition: whenever the read cursor catches the write cursor both are
// reset to zero, keeping free space contiguous for the next item burst.
type RingBuffer struct {
	name   string
	buffer []uint8
	length uint32
	iPtr   uint32 // input pointer (where new data is written)
	oPtr   uint32 // output pointer (where data is read from)
}

// NewRingBuffer creates a ring buffer with the given capacity and a name
// used in diagnostics.
func NewRingBuffer(length uint32, name string) *RingBuffer {
	if length == 0 {
		panic("transport: RingBuffer length must be > 0")
	}
	return &RingBuffer{
		name:   name,
		buffer: make([]uint8, length),
		length: length,
	}
}

// FreeSpace returns the number of bytes that can be written before the
// buffer is full.
func (rb *RingBuffer) FreeSpace() uint32 {
	length := rb.length
	if rb.oPtr > rb.iPtr {
		length = rb.oPtr - rb.iPtr
	} else if rb.iPtr > rb.oPtr {
		length = rb.length - (rb.iPtr - rb.oPtr)
	}
	if length > rb.length {
		length = 0
	}
	return length
}

// DataSize returns the number of bytes currently queued.
func (rb *RingBuffer) DataSize() uint32 {
	return rb.length - rb.FreeSpace()
}

// IsEmpty reports whether no data is queued.
func (rb *RingBuffer) IsEmpty() bool { return rb.oPtr == rb.iPtr }

// Clear drops all queued data and rewinds both cursors.
func (rb *RingBuffer) Clear() {
	rb.iPtr = 0
	rb.oPtr = 0
}

// Name returns the buffer's diagnostic name.
func (rb *RingBuffer) Name() string { return rb.name }

func (rb *RingBuffer) writeByte(b uint8) {
	rb.buffer[rb.iPtr] = b
	rb.iPtr++
	if rb.iPtr == rb.length {
		rb.iPtr = 0
	}
}

func (rb *RingBuffer) readByte() uint8 {
	b := rb.buffer[rb.oPtr]
	rb.oPtr++
	if rb.oPtr == rb.length {
		rb.oPtr = 0
	}
	return b
}

func (rb *RingBuffer) peekByte(offset uint32) uint8 {
	p := rb.oPtr + offset
	if p >= rb.length {
		p -= rb.length
	}
	return rb.buffer[p]
}

// resetIfEmpty rewinds the cursors once all queued data has been consumed,
// maximising the contiguous free region for the writer.
func (rb *RingBuffer) resetIfEmpty() {
	if rb.oPtr == rb.iPtr {
		rb.oPtr = 0
		rb.iPtr = 0
	}
}

// WriteItem reserves header+payload bytes and writes the framed item, or
// returns ErrBufferOverflow leaving the buffer untouched.
func (rb *RingBuffer) WriteItem(it Item) error {
	if len(it.Payload) > 255 {
		return fmt.Errorf("transport: item payload %d exceeds the 255-byte length field", len(it.Payload))
	}
	need := uint32(it.Len())
	if rb.FreeSpace() <= need {
		return fmt.Errorf("%w: %s needs %d bytes, %d free", ErrBufferOverflow, rb.name, need, rb.FreeSpace())
	}
	rb.writeByte(it.Type)
	rb.writeByte(it.Info1)
	rb.writeByte(it.Info2)
	rb.writeByte(uint8(len(it.Payload)))
	for _, b := range it.Payload {
		rb.writeByte(b)
	}
	return nil
}

// ReadItem consumes and returns the next whole item. ok is false when
// fewer than HeaderLen bytes are queued; an incomplete header is left in
// place. Writers frame whole items, so a header whose length field is
// larger than the queued payload bytes is treated as garbage: everything
// queued is dropped and ErrMalformedItem is returned.
func (rb *RingBuffer) ReadItem() (it Item, ok bool, err error) {
	avail := rb.DataSize()
	if avail < HeaderLen {
		return Item{}, false, nil
	}
	plen := uint32(rb.peekByte(3))
	if avail < HeaderLen+plen {
		// Writers frame whole items, so a short payload means the
		// header bytes themselves are garbage. Drop everything queued.
		rb.Clear()
		return Item{}, false, fmt.Errorf("%w: %s header claims %d payload bytes, %d queued",
			ErrMalformedItem, rb.name, plen, avail-HeaderLen)
	}
	it.Type = rb.readByte()
	it.Info1 = rb.readByte()
	it.Info2 = rb.readByte()
	n := rb.readByte()
	if n > 0 {
		it.Payload = make([]byte, n)
		for i := range it.Payload {
			it.Payload[i] = rb.readByte()
		}
	}
	rb.resetIfEmpty()
	return it, true, nil
}
