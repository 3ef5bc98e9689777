package cmdq

import (
	"time"

	"github.com/gorcp/rcq/debug"
	"github.com/gorcp/rcq/device"
)

// Highpri is an open high-priority segment. While it is open, all
// commands written to the queue go to the high-priority queue, which the
// consumer switches to at the next command boundary, ahead of everything
// still pending in the low-priority queue.
//
// High-priority segments are for short latency-critical sequences. They
// must not contain syncpoints or block invocations, and a segment left
// open blocks the low-priority queue indefinitely.
type Highpri struct {
	q *Queue
}

// HighpriBegin opens a high-priority segment. It must be closed with End
// before another one can be opened.
func (q *Queue) HighpriBegin() *Highpri {
	if q.hp != nil {
		panic("cmdq: high-priority segment already open, missing Highpri.End")
	}
	if q.block != nil {
		panic("cmdq: high-priority segment in block recording")
	}
	q.checkFinished()

	q.hp = &Highpri{q}
	q.ctx = q.highpri
	q.dev.SetSignals(device.SigHighpriRequested)
	q.dev.Resume()
	return q.hp
}

// End closes the segment and returns the queue to low-priority writing.
// The consumer resumes the low-priority queue where it was preempted.
func (h *Highpri) End() {
	q := h.q
	if q.hp != h {
		panic("cmdq: high-priority segment already closed")
	}
	q.checkFinished()

	q.Write(0, byte(device.CmdHighpriEnd))
	q.hp = nil
	q.ctx = q.lowpri
	q.dev.SetSignals(device.SigMore)
	q.dev.Resume()
}

// HighpriSync blocks until the consumer has executed all closed
// high-priority segments and left the high-priority queue.
func (q *Queue) HighpriSync() {
	debug.Assert(q.hp == nil, "sync inside high-priority segment")
	const busy = device.SigHighpriRequested | device.SigHighpriRunning
	start := time.Now()
	for q.dev.Signals()&busy != 0 {
		q.dev.Resume()
		if time.Since(start) > watchdogTimeout {
			panic("cmdq: high-priority sync timeout, consumer stalled")
		}
	}
}
