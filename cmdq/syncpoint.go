package cmdq

import (
	"time"

	"github.com/gorcp/rcq/device"
)

// Syncpoint marks a position in the command stream. Once the consumer has
// executed past it, the syncpoint is reached and stays reached. Syncpoints
// created later are reached later: observing one reached implies all
// earlier ones are too.
type Syncpoint struct {
	q  *Queue
	id uint32
}

type syncCallback struct {
	id uint32
	fn func()
}

// reached reports whether the done counter has passed id, correct across
// counter wraparound.
func reached(done, id uint32) bool {
	return int32(done-id) >= 0
}

func (q *Queue) syncpoint() uint32 {
	if q.block != nil {
		panic("cmdq: syncpoint in block recording")
	}
	if q.hp != nil {
		panic("cmdq: syncpoint in high-priority segment")
	}
	q.syncGen++
	q.Write(0, byte(device.CmdTestWriteStatus), statusArg(device.SigSyncpoint, 0))
	return q.syncGen
}

// NewSyncpoint inserts a syncpoint at the current position of the command
// stream and flushes the queue. Syncpoints cannot be created while
// recording a block or inside a high-priority segment; the position they
// would mark is not a position in the low-priority stream.
func (q *Queue) NewSyncpoint() Syncpoint {
	id := q.syncpoint()
	q.Flush()
	return Syncpoint{q, id}
}

// NewSyncpointCb is NewSyncpoint with a callback invoked when the
// syncpoint is reached. The callback runs on the goroutine driving the
// queue, during a queue operation; it must not issue queue operations
// itself.
func (q *Queue) NewSyncpointCb(fn func()) Syncpoint {
	id := q.syncpoint()
	q.callbacks = append(q.callbacks, syncCallback{id, fn})
	q.Flush()
	return Syncpoint{q, id}
}

// CallDeferred arranges for fn to run once the consumer has executed all
// commands written so far. Same callback restrictions as NewSyncpointCb.
func (q *Queue) CallDeferred(fn func()) {
	q.NewSyncpointCb(fn)
}

// Check reports whether the syncpoint has been reached. It never blocks.
func (s Syncpoint) Check() bool {
	return reached(s.q.syncDone, s.id)
}

// Wait blocks until the syncpoint is reached.
func (s Syncpoint) Wait() {
	start := time.Now()
	for !s.Check() {
		s.q.dev.Resume()
		if time.Since(start) > watchdogTimeout {
			panic("cmdq: syncpoint wait timeout, consumer stalled")
		}
	}
}
