package engine

import "github.com/quarryfs/quarry/internal/logger"

// processObject drains one scheduled object's completion queue. After
// copyQuantum monitors the object is pushed back so other objects get
// a worker; a stopping engine drains in place instead.
func (e *Engine) processObject(obj *Object) {
	for n := 0; ; n++ {
		if n >= copyQuantum && !e.stopping() {
			if obj.hasWork() {
				e.queue.push(obj)
				return
			}
		}
		m := obj.dequeue()
		if m == nil {
			return
		}
		e.runMonitor(m)
	}
}

// runMonitor resolves one notified monitor: copy the backing bytes on
// success, fail the block on backing error, or recover from a
// truncation race.
func (e *Engine) runMonitor(m *monitor) {
	for {
		switch {
		case m.back.Uptodate():
			copy(m.blk.Data, m.back.Data())
			m.op.markCached(m.blk)
			e.completeMonitor(m, nil)
			return
		case m.back.HasError():
			e.degradeObject(m.obj, m.back.Err())
			e.completeMonitor(m, ErrIO)
			return
		}

		// Neither flag set: the read was disturbed, most likely by a
		// truncation while the monitor was queued.
		result, cause := e.reissueRead(m)
		switch result {
		case reissueRetry:
			// Re-armed; the next notification finds it again.
			e.metrics.Reissue(ReissueRetry)
			return
		case reissueGone:
			e.metrics.Reissue(ReissueGone)
			e.completeMonitor(m, ErrNoData)
			return
		case reissueIO:
			e.metrics.Reissue(ReissueIO)
			e.degradeObject(m.obj, cause)
			e.completeMonitor(m, ErrIO)
			return
		case reissueRecovered:
			e.metrics.Reissue(ReissueRecovered)
		}
	}
}

// completeMonitor delivers the terminal outcome for a block and drops
// the monitor's references. Exactly one terminal delivery per monitor.
func (e *Engine) completeMonitor(m *monitor, err error) {
	switch {
	case err == nil:
		e.metrics.Completion(OutcomeOK)
	case err == ErrNoData:
		e.metrics.Completion(OutcomeNoData)
	default:
		e.metrics.Completion(OutcomeIOError)
	}
	m.op.notify(m.blk, err)
	e.settle(m)
}

// degradeObject demotes an object after a backing I/O failure. Later
// cache operations on it fail fast and reads bypass to the origin.
func (e *Engine) degradeObject(obj *Object, cause error) {
	if obj.degraded.Swap(true) {
		return
	}
	e.metrics.ObjectDegraded()
	logger.Error("object degraded after backing I/O failure",
		logger.KeyObject, obj.key,
		logger.KeyError, cause)
}
