package chatclient

import "sync"

// statusEmitter delivers status transitions to a handler in the order they happened,
// never while the caller holds a lock of its own. A handler that re-enters the
// session is drained by the goroutine already delivering.
type statusEmitter struct {
	fn func(Status)

	deliver sync.Mutex
	qmu     sync.Mutex
	pending []Status
}

func (e *statusEmitter) push(s Status) {
	if e.fn == nil {
		return
	}
	e.qmu.Lock()
	e.pending = append(e.pending, s)
	e.qmu.Unlock()
}

func (e *statusEmitter) take() []Status {
	e.qmu.Lock()
	defer e.qmu.Unlock()
	p := e.pending
	e.pending = nil
	return p
}

func (e *statusEmitter) hasPending() bool {
	e.qmu.Lock()
	defer e.qmu.Unlock()
	return len(e.pending) > 0
}

func (e *statusEmitter) flush() {
	if e.fn == nil {
		return
	}
	for {
		if !e.deliver.TryLock() {
			return
		}
		for batch := e.take(); len(batch) > 0; batch = e.take() {
			for _, s := range batch {
				e.fn(s)
			}
		}
		e.deliver.Unlock()
		if !e.hasPending() {
			return
		}
	}
}

// transcriptEmitter coalesces transcript changes into snapshots.
type transcriptEmitter struct {
	fn       func([]Message)
	snapshot func() []Message

	deliver sync.Mutex
	qmu     sync.Mutex
	dirty   bool
}

func (e *transcriptEmitter) mark() {
	if e.fn == nil {
		return
	}
	e.qmu.Lock()
	e.dirty = true
	e.qmu.Unlock()
}

func (e *transcriptEmitter) takeDirty() bool {
	e.qmu.Lock()
	defer e.qmu.Unlock()
	d := e.dirty
	e.dirty = false
	return d
}

func (e *transcriptEmitter) isDirty() bool {
	e.qmu.Lock()
	defer e.qmu.Unlock()
	return e.dirty
}

func (e *transcriptEmitter) flush() {
	if e.fn == nil {
		return
	}
	for {
		if !e.deliver.TryLock() {
			return
		}
		for e.takeDirty() {
			e.fn(e.snapshot())
		}
		e.deliver.Unlock()
		if !e.isDirty() {
			return
		}
	}
}
