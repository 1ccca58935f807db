package engine

import "github.com/quarryfs/quarry/pkg/backing"

// monitor tracks one in-flight backing read on behalf of one requester
// block. It holds a reference on the retrieval and one on the backing
// block; both are dropped exactly once, when the monitor reaches a
// terminal state.
type monitor struct {
	op      *Retrieval
	obj     *Object
	blk     *Block
	back    *backing.Block
	waiter  *backing.Waiter
	settled bool
}

// newMonitor wires a monitor between a requester block and its backing
// block. The caller's reference on back transfers to the monitor. The
// waiter bridges the backing store's completion into the engine: it
// checks the notification is for the block it registered on, moves the
// monitor to the object's work queue and schedules the object. It runs
// on the reader goroutine, so it must not block.
func (e *Engine) newMonitor(op *Retrieval, obj *Object, blk *Block, back *backing.Block) *monitor {
	op.get()
	m := &monitor{
		op:   op,
		obj:  obj,
		blk:  blk,
		back: back,
	}
	m.waiter = backing.NewWaiter(func(b *backing.Block) {
		if b != m.back {
			return
		}
		if m.obj.enqueue(m) {
			e.queue.push(m.obj)
		}
	})
	e.metrics.MonitorsInFlight(int(e.inFlight.Add(1)))
	return m
}

// settle marks the terminal transition: it returns the monitor budget
// and drops the monitor's references. Monitors are owned by a single
// goroutine at a time, so no lock is needed.
func (e *Engine) settle(m *monitor) {
	if m.settled {
		return
	}
	m.settled = true
	m.back.Put()
	e.monitors.Release(1)
	e.metrics.MonitorsInFlight(int(e.inFlight.Add(-1)))
	m.op.put()
}
