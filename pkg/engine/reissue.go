package engine

// reissueResult classifies the outcome of a truncation-race recovery
// attempt. It stays inside the engine; callers of the public API only
// ever see the terminal errors it maps to.
type reissueResult int

const (
	// reissueRetry: the monitor is re-armed and a fresh notification
	// will arrive. Not terminal.
	reissueRetry reissueResult = iota

	// reissueGone: the backing block was truncated away. The block is
	// a miss now, not an error.
	reissueGone

	// reissueIO: backing failure while recovering.
	reissueIO

	// reissueRecovered: the block settled while re-locking; the caller
	// re-examines its flags.
	reissueRecovered
)

// reissueRead re-drives the backing read for a monitor whose
// notification found the block neither uptodate nor failed. The usual
// cause is a truncation racing the read: the block the monitor watches
// may have been dropped from the store, or replaced by a new one under
// the same index.
func (e *Engine) reissueRead(m *monitor) (reissueResult, error) {
	store := m.obj.backer.Blocks()

	// Identity check: the monitor's block must still be the one the
	// store maps at this index.
	cur, ok := store.Peek(m.blk.Index)
	if ok {
		same := cur == m.back
		cur.Put()
		if !same {
			return reissueGone, nil
		}
	} else {
		return reissueGone, nil
	}

	b := m.back
	if b.TryLock() {
		switch {
		case b.HasError():
			b.Unlock()
			return reissueIO, b.Err()
		case b.Uptodate():
			b.Unlock()
			return reissueRecovered, nil
		}
		// Holding the lock, so no unlock can consume the waiter
		// between registration and issue.
		b.AddWaiter(m.waiter)
		if err := store.IssueRead(b); err != nil {
			b.RemoveWaiter(m.waiter)
			b.Unlock()
			return reissueIO, err
		}
		e.metrics.ReadIssued()
	} else {
		// Someone else's read is in flight; ride its completion.
		b.AddWaiter(m.waiter)
	}

	// A completion may have slipped in before the waiter registered.
	// Locking and unlocking re-fires the notification if so.
	if b.TryLock() {
		b.Unlock()
	}
	return reissueRetry, nil
}
