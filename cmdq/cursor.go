package cmdq

import "github.com/gorcp/rcq/debug"

// Cursor assembles a command longer than MaxShortCommandSize word by
// word. The command only becomes visible to the consumer on End; until
// then the header word holds zero, which stops the consumer at the
// command's position.
//
// A cursor left open is a bug. Any other queue operation issued before
// End panics.
type Cursor struct {
	q      *Queue
	buf    []uint32
	prefix uint32
	n      int
}

// WriteBegin starts assembling a command of up to MaxCommandSize words,
// header included. The returned cursor must be finished with End before
// any other operation on the queue.
func WriteBegin(q *Queue, ovl uint32, cmd byte, size int) *Cursor {
	debug.Assert(size <= MaxCommandSize, "command too long")
	q.checkFinished()

	w := &Cursor{q: q, prefix: ovl | uint32(cmd)<<24}
	if q.block != nil {
		w.buf = q.block.reserve(size)
	} else {
		c := q.ctx
		if c.cur+size > len(c.buffers[c.bufIdx]) {
			q.nextBuffer()
		}
		w.buf = c.buffers[c.bufIdx][c.cur : c.cur+size]
		c.cur += size
	}
	q.cursor = w
	return w
}

// Arg appends one argument word. The first argument must have its top
// byte clear; it shares the header word with the command id.
func (w *Cursor) Arg(v uint32) {
	if w.n == 0 {
		debug.Assert(v&0xff000000 == 0, "most significant byte of first argument must be zero")
		w.prefix |= v
	} else {
		w.buf[w.n] = v
	}
	w.n++
}

// End publishes the command by writing the header word. Fewer argument
// words than reserved is fine, the gap is zero-filled and skipped by the
// consumer after the next command is written over it.
func (w *Cursor) End() {
	debug.Assert(w.n >= 1, "empty command")
	debug.Assert(w.n <= len(w.buf), "cursor overflow")
	w.buf[0] = w.prefix
	w.q.cursor = nil

	// Unused reserved words would stall the consumer at the first zero
	// word. Reclaim them.
	if w.q.block != nil {
		w.q.block.unreserve(len(w.buf) - w.n)
	} else {
		w.q.ctx.cur -= len(w.buf) - w.n
	}
}
