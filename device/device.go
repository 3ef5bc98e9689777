// Package device implements a software model of the command processor that
// consumes queues written by package cmdq.
//
// The device executes the same in-band protocol a hardware consumer would:
// it fetches 32-bit command words from mapped buffers, follows Jump and
// Call/Ret commands with a fixed-depth call stack, idles on a zero word
// until notified, and communicates with the producer through an 8-bit
// signal register. It doubles as the reference consumer for tests, which
// can single-step it to observe partially drained queues.
package device

import (
	"fmt"

	"github.com/gorcp/rcq/debug"
)

// Addr locates a word inside a buffer previously mapped into the device.
// The upper halfword selects the segment, the lower halfword is the word
// offset within it. Addrs embedded in the low 24 bits of a command word
// are limited to segment ids below 0x100.
type Addr uint32

func (a Addr) segment() uint16 { return uint16(a >> 16) }
func (a Addr) offset() int     { return int(a & 0xffff) }

// Signal is a bit in the status register shared between producer and
// consumer. The device gives no meaning to any bit except the ones below,
// which are part of the queue protocol.
type Signal uint8

const (
	_                   Signal = 1 << iota
	SigRdpDone                 // raster backend has drained all forwarded commands
	SigSyncpoint               // consumer reached a syncpoint, pending producer acknowledge
	SigHighpriRunning          // consumer is executing the high-priority queue
	SigHighpriRequested        // producer asks for a switch to the high-priority queue
	SigBufdoneHigh             // consumer left one of the two high-priority buffers
	SigBufdoneLow              // consumer left one of the two low-priority buffers
	SigMore                    // producer wrote more data into the current queue
)

// Command is a core command id, i.e. overlay 0. All other overlay ids are
// assigned at runtime via Register.
type Command byte

const (
	CmdWaitNewInput    Command = 0x0 // a zero word; the device idles on it
	CmdNoop            Command = 0x1
	CmdJump            Command = 0x2 // arg0[23:0]: target Addr
	CmdCall            Command = 0x3 // arg0[23:0]: target Addr, arg1: nesting
	CmdRet             Command = 0x4
	CmdDma             Command = 0x5 // arg0: Addr, arg1: DMEM offset, arg2: bytes-1, arg3: flags
	CmdWriteStatus     Command = 0x6 // arg0[7:0]: set mask, arg0[15:8]: clear mask
	CmdTestWriteStatus Command = 0x7 // like CmdWriteStatus; kept distinct for tracing
	CmdHighpriEnd      Command = 0x8 // leave the high-priority queue
	CmdRdpAppend       Command = 0x9 // arg1, arg2: one raster command dword
)

// DMA direction flag, see CmdDma arg3.
const DmaToDevice = 1 << 0

const (
	// DMEMSize is the size of the consumer-local memory addressable by
	// CmdDma. Overlay state is stored here.
	DMEMSize = 4096

	callStackDepth  = 8
	maxOverlayCount = 8
	overlayIdCount  = 16
)

// Raster receives raster command dwords forwarded by CmdRdpAppend. A nil
// raster discards them.
type Raster interface {
	Append(uw, lw uint32)
}

// RecordingRaster captures forwarded raster commands for inspection.
type RecordingRaster struct {
	Cmds []uint64
}

func (r *RecordingRaster) Append(uw, lw uint32) {
	r.Cmds = append(r.Cmds, uint64(uw)<<32|uint64(lw))
}

// CmdDesc describes one overlay command handler.
type CmdDesc struct {
	// Words is the total command length in words, including the header
	// word. Must be at least 1.
	Words int
	// Fn is invoked with the full command, args[0] being the header word
	// with its top byte cleared.
	Fn func(d *Device, args []uint32)
}

// Overlay is a consumer-side module exposing up to 64 command handlers.
// Overlays with more than 16 commands occupy multiple consecutive ids.
type Overlay struct {
	Name     string
	Commands []CmdDesc
	// Data is copied into DMEM at registration and addressable by CmdDma.
	// Its placement is returned by Register.
	Data []byte
}

type ovlSlot struct {
	ovl  *Overlay
	base int // first id slot occupied by the overlay
}

// Device is a single software command processor. It is not safe for
// concurrent use; the queue protocol assumes exactly one producer which
// serializes its own access.
type Device struct {
	// Manual disables draining in Resume. Tests set it to control
	// consumer progress one Step at a time.
	Manual bool

	DMEM [DMEMSize]byte

	signals  Signal
	onSignal func(Signal)

	segs     map[uint16][]uint32
	nextSeg  uint16
	freeSegs []uint16

	pc    Addr
	stack [callStackDepth]Addr
	sp    int

	inHighpri bool
	savedPC   Addr // low-priority resume position while in highpri
	highpriPC Addr // next fetch position of the high-priority queue

	overlays [overlayIdCount]ovlSlot
	dmemUsed int

	raster Raster
}

func New() *Device {
	return &Device{
		segs:    make(map[uint16][]uint32),
		nextSeg: 1,
	}
}

// AttachRaster connects the backend receiving CmdRdpAppend dwords.
func (d *Device) AttachRaster(r Raster) { d.raster = r }

// Map makes buf addressable by the device. The returned Addr points at the
// first word of buf. Segment ids of unmapped buffers are reused.
func (d *Device) Map(buf []uint32) Addr {
	debug.Assert(len(buf) <= 0x10000, "buffer too large")
	var seg uint16
	if n := len(d.freeSegs); n > 0 {
		seg = d.freeSegs[n-1]
		d.freeSegs = d.freeSegs[:n-1]
	} else {
		seg = d.nextSeg
		d.nextSeg++
		debug.Assert(seg < 0x100, "segment table exhausted")
	}
	d.segs[seg] = buf
	return Addr(seg) << 16
}

// Unmap removes a mapping established by Map. The caller must guarantee
// the device will never fetch from it again.
func (d *Device) Unmap(a Addr) {
	seg := a.segment()
	if _, ok := d.segs[seg]; !ok {
		return
	}
	delete(d.segs, seg)
	d.freeSegs = append(d.freeSegs, seg)
}

func (d *Device) buf(a Addr) []uint32 {
	buf, ok := d.segs[a.segment()]
	if !ok {
		d.crash(fmt.Sprintf("fetch from unmapped segment %#x", uint32(a)))
	}
	return buf
}

// Signals returns the current status register.
func (d *Device) Signals() Signal { return d.signals }

// SetSignals sets the given bits in the status register.
func (d *Device) SetSignals(s Signal) { d.signals |= s }

// ClearSignals clears the given bits in the status register.
func (d *Device) ClearSignals(s Signal) { d.signals &^= s }

// OnSignal installs a handler invoked whenever an executed command sets
// signal bits, i.e. CmdWriteStatus and CmdTestWriteStatus. The handler runs
// on the goroutine driving the device, outside any time-critical context.
func (d *Device) OnSignal(fn func(set Signal)) { d.onSignal = fn }

// Start points the device at the two queues. Fetching begins at lowpri;
// highpri is entered on demand via SigHighpriRequested.
func (d *Device) Start(lowpri, highpri Addr) {
	d.pc = lowpri
	d.highpriPC = highpri
	d.inHighpri = false
	d.sp = 0
}

// Resume wakes the device up. Unless in manual mode it synchronously
// executes commands until the queue idles. A hardware consumer would run
// concurrently instead; producers must not assume either behavior.
func (d *Device) Resume() {
	if d.Manual {
		return
	}
	for d.Step() {
	}
}

// Idle reports whether a call to Step would make no progress.
func (d *Device) Idle() bool {
	if !d.inHighpri && d.signals&SigHighpriRequested != 0 {
		return false
	}
	buf := d.buf(d.pc)
	off := d.pc.offset()
	return off < len(buf) && buf[off] == 0
}

// Step executes a single command and reports whether progress was made.
// A false return means the device is idle waiting for new input.
func (d *Device) Step() bool {
	if !d.inHighpri && d.signals&SigHighpriRequested != 0 {
		d.signals &^= SigHighpriRequested
		d.signals |= SigHighpriRunning
		d.savedPC = d.pc
		d.pc = d.highpriPC
		d.inHighpri = true
	}

	buf := d.buf(d.pc)
	off := d.pc.offset()
	if off >= len(buf) {
		d.crash(fmt.Sprintf("fetch out of bounds at %#08x", uint32(d.pc)))
	}
	word := buf[off]
	if word == 0 { // CmdWaitNewInput
		d.signals &^= SigMore
		return false
	}

	ovl := word >> 28
	if ovl == 0 {
		d.stepCore(Command(word>>24), buf, off)
		return true
	}

	slot := d.overlays[ovl]
	if slot.ovl == nil {
		d.crash(fmt.Sprintf("invalid overlay %#x in command %#08x", ovl, word))
	}
	idx := int(word>>24) - slot.base<<4
	if idx >= len(slot.ovl.Commands) {
		d.crash(fmt.Sprintf("invalid command %#08x for overlay %s", word, slot.ovl.Name))
	}
	desc := &slot.ovl.Commands[idx]
	args := make([]uint32, desc.Words)
	copy(args, buf[off:off+desc.Words])
	args[0] &= 0x00ffffff
	d.pc += Addr(desc.Words)
	desc.Fn(d, args)
	return true
}

func (d *Device) stepCore(cmd Command, buf []uint32, off int) {
	arg0 := buf[off] & 0x00ffffff
	switch cmd {
	case CmdNoop:
		d.pc++
	case CmdJump:
		d.pc = Addr(arg0)
	case CmdCall:
		if d.sp >= callStackDepth {
			d.crash("call stack overflow")
		}
		d.stack[d.sp] = d.pc + 2
		d.sp++
		d.pc = Addr(arg0)
	case CmdRet:
		if d.sp == 0 {
			d.crash("return with empty call stack")
		}
		d.sp--
		d.pc = d.stack[d.sp]
	case CmdDma:
		d.dma(Addr(arg0), buf[off+1], buf[off+2]+1, buf[off+3])
		d.pc += 4
	case CmdWriteStatus, CmdTestWriteStatus:
		// With a synchronous producer-side acknowledge handler there is
		// nothing to test-and-wait for; both ids behave like a plain
		// status write.
		set := Signal(arg0)
		clear := Signal(arg0 >> 8)
		d.signals = d.signals&^clear | set
		d.pc++
		if set != 0 && d.onSignal != nil {
			d.onSignal(set)
		}
	case CmdHighpriEnd:
		if !d.inHighpri {
			d.crash("high-priority end outside high-priority queue")
		}
		d.highpriPC = d.pc + 1
		d.pc = d.savedPC
		d.inHighpri = false
		d.signals &^= SigHighpriRunning
	case CmdRdpAppend:
		if d.raster != nil {
			d.raster.Append(buf[off+1], buf[off+2])
		}
		d.pc += 3
	default:
		d.crash(fmt.Sprintf("invalid command %#08x", buf[off]))
	}
}

func (d *Device) dma(a Addr, dmem, n, flags uint32) {
	if dmem&0x7 != 0 || n&0x7 != 0 || int(dmem+n) > DMEMSize {
		d.crash("unaligned dma")
	}
	buf := d.buf(a)
	off := a.offset()
	words := int(n) / 4
	if off+words > len(buf) {
		d.crash("dma out of bounds")
	}
	if flags&DmaToDevice != 0 {
		for i := 0; i < words; i++ {
			w := buf[off+i]
			d.DMEM[int(dmem)+4*i+0] = byte(w >> 24)
			d.DMEM[int(dmem)+4*i+1] = byte(w >> 16)
			d.DMEM[int(dmem)+4*i+2] = byte(w >> 8)
			d.DMEM[int(dmem)+4*i+3] = byte(w)
		}
	} else {
		for i := 0; i < words; i++ {
			p := d.DMEM[int(dmem)+4*i : int(dmem)+4*i+4]
			buf[off+i] = uint32(p[0])<<24 | uint32(p[1])<<16 | uint32(p[2])<<8 | uint32(p[3])
		}
	}
}

// Register installs an overlay and returns its id, preshifted by 28 as
// expected by cmdq's Write. Overlays with more than 16 commands occupy
// consecutive ids, which are implicitly reserved.
func (d *Device) Register(ovl *Overlay) uint32 {
	debug.Assert(len(ovl.Commands) > 0, "overlay without commands")
	for _, c := range ovl.Commands {
		debug.Assert(c.Words >= 1, "zero-length overlay command")
	}
	slots := (len(ovl.Commands) + overlayIdCount - 1) / overlayIdCount

	id := -1
	for i := 1; i+slots <= overlayIdCount+1; i++ {
		free := true
		for j := 0; j < slots; j++ {
			if i+j >= overlayIdCount || d.overlays[i+j].ovl != nil {
				free = false
				break
			}
		}
		if free {
			id = i
			break
		}
	}
	if id == -1 {
		panic("device: max overlay count")
	}
	for j := 0; j < slots; j++ {
		d.overlays[id+j] = ovlSlot{ovl: ovl, base: id}
	}

	if len(ovl.Data) > 0 {
		debug.Assert(d.dmemUsed+len(ovl.Data) <= DMEMSize, "overlay state exceeds DMEM")
		copy(d.DMEM[d.dmemUsed:], ovl.Data)
		d.dmemUsed += (len(ovl.Data) + 7) &^ 7
	}

	return uint32(id) << 28
}

// Unregister frees the id slots occupied by a registered overlay. The
// producer must not have pending commands for it.
func (d *Device) Unregister(id uint32) {
	slot := d.overlays[id>>28]
	debug.Assert(slot.ovl != nil, "unregister of unknown overlay")
	for i := range d.overlays {
		if d.overlays[i].ovl == slot.ovl {
			d.overlays[i] = ovlSlot{}
		}
	}
}

// A crashed device corresponds to a halted consumer: continuing after a
// corrupted command stream is unsafe, so this is fatal.
func (d *Device) crash(msg string) {
	panic("device: " + msg)
}
