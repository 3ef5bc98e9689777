package cmdq

import (
	"github.com/gorcp/rcq/debug"
	"github.com/gorcp/rcq/device"
)

// Chunk sizes of the growable block buffer, in words. Each chunk doubles
// the previous one until maxChunkSize.
const (
	minChunkSize = 64
	maxChunkSize = 4096
)

// Block is a recorded command sequence that can be run any number of
// times. Recording it once and replaying it is much cheaper than
// re-issuing the same commands.
//
// A block must not be freed while the consumer may still execute it; run
// FreeDeferred instead of Free when in doubt.
type Block struct {
	q       *Queue
	chunks  [][]uint32
	addrs   []device.Addr
	cur     int // write position in the last chunk
	nesting int // call stack depth needed to run this block
	entry   device.Addr
}

// BlockBuilder records commands into a block until End. While it is open
// all commands written to the queue are captured instead of executed.
type BlockBuilder struct {
	q *Queue
	b *Block
}

// BlockBegin starts recording a block. Until the returned builder's End,
// every command written to the queue goes into the block. Only one block
// can be recorded at a time, and recording cannot start inside a
// high-priority segment.
//
// Syncpoints and Wait are forbidden during recording: the block is not
// executing, so there is no position in the command stream they could
// refer to.
func (q *Queue) BlockBegin() *BlockBuilder {
	if q.block != nil {
		panic("cmdq: block already being recorded")
	}
	if q.hp != nil {
		panic("cmdq: block recording in high-priority segment")
	}
	q.checkFinished()

	b := &Block{q: q, nesting: 1}
	b.grow(minChunkSize)
	b.entry = b.addrs[0]
	q.block = b
	return &BlockBuilder{q, b}
}

// End finishes the recording and returns the block, ready to be run.
func (bb *BlockBuilder) End() *Block {
	q := bb.q
	debug.Assert(q.block == bb.b, "block builder already finished")
	q.checkFinished()

	b := bb.b
	b.append(cmdWord(device.CmdRet), nil)
	q.block = nil
	return b
}

// Run enqueues an invocation of the block. The block runs in the
// low-priority queue only; invoking it from a high-priority segment is
// not allowed. Blocks may run other blocks up to MaxBlockNesting deep.
func (q *Queue) Run(b *Block) {
	debug.Assert(b.q == q, "block run on foreign queue")
	debug.Assert(q.block != b, "block run while still being recorded")
	if q.hp != nil {
		panic("cmdq: block run in high-priority segment")
	}
	if b.nesting > MaxBlockNesting {
		panic("cmdq: block nesting too deep")
	}
	q.Write(0, byte(device.CmdCall), uint32(b.entry), uint32(b.nesting))
	if q.block != nil && q.block.nesting <= b.nesting {
		q.block.nesting = b.nesting + 1
	}
}

// Free releases the block's buffers. The caller must guarantee the
// consumer is past all of its invocations; FreeDeferred does that
// automatically.
func (b *Block) Free() {
	for _, a := range b.addrs {
		b.q.dev.Unmap(a)
	}
	b.chunks = nil
	b.addrs = nil
}

// FreeDeferred releases the block once the consumer has executed all
// commands written so far, which includes all of the block's invocations.
func (q *Queue) FreeDeferred(b *Block) {
	debug.Assert(q.block != b, "free of block being recorded")
	q.CallDeferred(b.Free)
}

func (b *Block) grow(size int) {
	chunk := make([]uint32, size)
	b.chunks = append(b.chunks, chunk)
	b.addrs = append(b.addrs, b.q.dev.Map(chunk))
	b.cur = 0
}

// reserve returns space for n contiguous words, linking in a new chunk
// with an in-band jump when the current one is full. One word per chunk
// stays reserved for that jump.
func (b *Block) reserve(n int) []uint32 {
	last := b.chunks[len(b.chunks)-1]
	if b.cur+n+1 > len(last) {
		size := min(2*len(last), maxChunkSize)
		debug.Assert(n+1 <= size, "command exceeds block chunk size")
		jumpAt := b.cur
		b.grow(size)
		last[jumpAt] = cmdWord(device.CmdJump) | uint32(b.addrs[len(b.addrs)-1])
		last = b.chunks[len(b.chunks)-1]
	}
	s := last[b.cur : b.cur+n]
	b.cur += n
	return s
}

func (b *Block) unreserve(n int) {
	b.cur -= n
}

func (b *Block) append(prefix uint32, args []uint32) {
	buf := b.reserve(max(len(args), 1))
	if len(args) == 0 {
		buf[0] = prefix
		return
	}
	debug.Assert(args[0]&0xff000000 == 0, "most significant byte of first argument must be zero")
	copy(buf[1:], args[1:])
	buf[0] = prefix | args[0]
}
