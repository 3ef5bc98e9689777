// Package cmdq implements the producer side of the device command queue.
//
// Commands are 32-bit words appended to one of two double-buffered queues
// consumed asynchronously by the device: the low-priority queue, which is
// the default target, and a high-priority queue that preempts it (see
// HighpriBegin). The first word of each command carries a 4-bit overlay id
// and a 4-bit command id in its top byte; the remaining bits and any
// trailing words are command arguments.
//
// A Queue is owned by a single goroutine. None of its state is locked; if
// multiple goroutines must issue commands, access has to be serialized
// externally.
package cmdq

import (
	"time"

	"github.com/gorcp/rcq/debug"
	"github.com/gorcp/rcq/device"
)

const (
	// MaxCommandSize is the maximum command length in words, for
	// commands assembled via WriteBegin.
	MaxCommandSize = 62
	// MaxShortCommandSize is the maximum command length in words for a
	// single Write call.
	MaxShortCommandSize = 16

	// Default buffer sizes in words. The high-priority queue is expected
	// to hold only short latency-sensitive sequences.
	DefaultBufSize        = 512
	DefaultHighpriBufSize = 128

	// Nesting depth of blocks calling blocks, limited by the device's
	// call stack.
	MaxBlockNesting = 8

	// A consumer making no progress for this long is considered wedged.
	// There is no recovery path, the producer would stall forever.
	watchdogTimeout = 1 * time.Second
)

// context is one double-buffered command queue.
type context struct {
	buffers    [2][]uint32
	addrs      [2]device.Addr
	bufIdx     int
	cur        int
	bufdoneSig device.Signal
	highpri    bool
}

func newContext(dev *device.Device, bufsize int, signal device.Signal) *context {
	debug.Assert(bufsize > 2*MaxCommandSize, "queue buffer too small")
	c := &context{bufdoneSig: signal}
	for i := range c.buffers {
		c.buffers[i] = make([]uint32, bufsize)
		c.addrs[i] = dev.Map(c.buffers[i])
	}
	return c
}

func (c *context) clearBuffer(idx int) {
	clear(c.buffers[idx])
}

// append writes a single command into the given buffer at the current
// cursor. The first word is written last so that a concurrently fetching
// consumer never observes a half-written command.
func (c *context) append(bufidx int, prefix uint32, args []uint32) {
	buffer := c.buffers[bufidx]
	if len(args) == 0 {
		buffer[c.cur] = prefix
		c.cur++
		return
	}
	debug.Assert(args[0]&0xff000000 == 0, "most significant byte of first argument must be zero")
	copy(buffer[c.cur+1:], args[1:])
	buffer[c.cur] = prefix | args[0]
	c.cur += len(args)
}

// Queue is the producer-side handle to a device's command queues. All
// queue state, including the "one block recording at a time" and "one
// high-priority segment at a time" invariants, lives here.
type Queue struct {
	dev *device.Device

	lowpri, highpri *context
	ctx             *context // current write target

	block  *Block   // block being recorded, nil otherwise
	cursor *Cursor  // open incremental write, nil otherwise
	hp     *Highpri // open high-priority segment, nil otherwise

	syncGen   uint32
	syncDone  uint32
	callbacks []syncCallback
}

// New initializes the device's queues with default buffer sizes and
// returns the producer handle.
func New(dev *device.Device) *Queue {
	return NewSized(dev, DefaultBufSize, DefaultHighpriBufSize)
}

// NewSized is New with explicit buffer sizes in words. Buffer size is not
// observable in command semantics; it only trades memory for fewer buffer
// switches.
func NewSized(dev *device.Device, lowpriSize, highpriSize int) *Queue {
	q := &Queue{dev: dev}
	q.lowpri = newContext(dev, lowpriSize, device.SigBufdoneLow)
	q.highpri = newContext(dev, highpriSize, device.SigBufdoneHigh)
	q.highpri.highpri = true
	q.ctx = q.lowpri

	dev.OnSignal(q.handleSignal)
	dev.ClearSignals(0xff)
	dev.SetSignals(device.SigBufdoneLow | device.SigBufdoneHigh)
	dev.Start(q.lowpri.addrs[0], q.highpri.addrs[0])
	return q
}

// Device returns the underlying device.
func (q *Queue) Device() *device.Device { return q.dev }

// Register installs an overlay on the device. The returned id is
// preshifted by 28 and passed as the first argument of Write.
func (q *Queue) Register(ovl *device.Overlay) uint32 {
	q.Wait()
	return q.dev.Register(ovl)
}

// Unregister removes an overlay after waiting for all pending commands.
func (q *Queue) Unregister(id uint32) {
	q.Wait()
	q.dev.Unregister(id)
}

func (q *Queue) checkFinished() {
	if q.cursor != nil {
		panic("cmdq: unfinished write cursor, missing Cursor.End")
	}
}

// Write appends a single command. The overlay id must be a value returned
// by Register, or 0 for core commands. The first argument, if present,
// must have its top byte clear; it shares the first word with the command
// id. Write never blocks and never notifies the consumer, use Flush for
// that.
func (q *Queue) Write(ovl uint32, cmd byte, args ...uint32) {
	debug.Assert(len(args) <= MaxShortCommandSize, "too many arguments to Write, use WriteBegin instead")
	q.checkFinished()
	q.append(ovl|uint32(cmd)<<24, args)
}

func (q *Queue) append(prefix uint32, args []uint32) {
	if q.block != nil {
		q.block.append(prefix, args)
		return
	}
	c := q.ctx
	c.append(c.bufIdx, prefix, args)
	if c.cur+MaxCommandSize > len(c.buffers[c.bufIdx]) {
		q.nextBuffer()
	}
}

// nextBuffer switches the current context to its other buffer. The switch
// is encoded in-band: the old buffer is terminated with a status write
// marking it reusable, followed by a jump into the new buffer, so the
// consumer follows transparently.
func (q *Queue) nextBuffer() {
	c := q.ctx
	start := time.Now()
	for q.dev.Signals()&c.bufdoneSig == 0 {
		q.dev.SetSignals(device.SigMore)
		q.dev.Resume()
		if time.Since(start) > watchdogTimeout {
			panic("cmdq: queue overflow, consumer stalled")
		}
	}
	q.dev.ClearSignals(c.bufdoneSig)

	c.bufIdx = 1 - c.bufIdx
	c.clearBuffer(c.bufIdx)

	c.append(1-c.bufIdx, cmdWord(device.CmdWriteStatus), []uint32{statusArg(c.bufdoneSig, 0)})
	c.append(1-c.bufIdx, cmdWord(device.CmdJump), []uint32{uint32(c.addrs[c.bufIdx])})
	c.cur = 0

	q.dev.Resume()
}

// Flush makes sure the consumer will observe and execute all commands
// written so far. It never blocks. Calling it after every batch of related
// commands is cheap and recommended.
//
// Flush is a no-op while a block is being recorded: the block has not been
// dispatched for execution yet, so there is nothing to observe.
func (q *Queue) Flush() {
	q.checkFinished()
	if q.block != nil {
		return
	}
	q.dev.SetSignals(device.SigMore)
	q.dev.Resume()
}

// Wait blocks until the consumer has executed every command written up to
// this call, including raster commands it forwarded. A consumer making no
// progress for too long is fatal, there is no recovery from a wedged
// device.
func (q *Queue) Wait() {
	debug.Assert(q.block == nil, "wait during block recording")
	q.Flush()
	start := time.Now()
	for !q.dev.Idle() {
		q.dev.Resume()
		if time.Since(start) > watchdogTimeout {
			panic("cmdq: wait timeout, consumer stalled")
		}
	}
}

// Noop enqueues a command that does nothing. Useful for debugging.
func (q *Queue) Noop() {
	q.Write(0, byte(device.CmdNoop))
}

// DMALoad enqueues a copy of n bytes from the mapped buffer at src into
// the device's local memory at byte offset dmem. Offsets and length must
// be multiples of 8.
func (q *Queue) DMALoad(dmem uint32, src device.Addr, n int) {
	q.dma(src, dmem, n, device.DmaToDevice)
}

// DMAStore enqueues a copy of n bytes from the device's local memory at
// byte offset dmem into the mapped buffer at dst. Offsets and length must
// be multiples of 8.
func (q *Queue) DMAStore(dst device.Addr, dmem uint32, n int) {
	q.dma(dst, dmem, n, 0)
}

func (q *Queue) dma(a device.Addr, dmem uint32, n int, flags uint32) {
	debug.Assert(dmem&0x7 == 0 && n&0x7 == 0, "unaligned dma")
	q.Write(0, byte(device.CmdDma), uint32(a), dmem, uint32(n-1), flags)
}

func cmdWord(cmd device.Command) uint32 {
	return uint32(cmd) << 24
}

func statusArg(set, clear device.Signal) uint32 {
	return uint32(clear)<<8 | uint32(set)
}

func (q *Queue) handleSignal(set device.Signal) {
	if set&device.SigSyncpoint == 0 {
		return
	}
	q.dev.ClearSignals(device.SigSyncpoint)
	q.syncDone++
	for len(q.callbacks) > 0 && reached(q.syncDone, q.callbacks[0].id) {
		cb := q.callbacks[0]
		q.callbacks = q.callbacks[1:]
		cb.fn()
	}
}
