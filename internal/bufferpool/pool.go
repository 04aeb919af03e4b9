// Package bufferpool implements the newest-wins exchange of frame
// buffers between the encoder (producer) and the V4L2 output queue
// (consumer). One slot is held by the consumer at all times; the
// remaining slots rotate through the producer side.
package bufferpool

import (
	"sync"
	"time"
)

type slotState int

const (
	stateFree slotState = iota
	stateInUse
	stateFilled
)

type slot struct {
	buf       []byte
	state     slotState
	timestamp int64
	bytesUsed int
}

// Pool holds one consumer slot and N producer slots over a fixed set
// of backing buffers (typically mmap'd V4L2 output buffers).
type Pool struct {
	mu          sync.Mutex
	cond        *sync.Cond
	slots       []slot
	consumerIdx int

	onDepthChanged func(int)
}

// Option configures optional Pool behavior at construction.
type Option func(*Pool)

// WithDepthObserver registers a callback invoked with the current
// count of Filled producer slots every time that count changes. The
// session orchestrator uses this to feed usbcamd_buffer_pool_depth
// without this package depending on prometheus directly.
func WithDepthObserver(observe func(depth int)) Option {
	return func(p *Pool) { p.onDepthChanged = observe }
}

// New builds a Pool over buffers, where buffers[0] starts as the
// consumer slot and buffers[1:] start as Free producer slots.
func New(buffers [][]byte, opts ...Option) *Pool {
	if len(buffers) == 0 {
		panic("bufferpool: New requires at least one buffer")
	}
	p := &Pool{slots: make([]slot, len(buffers))}
	p.cond = sync.NewCond(&p.mu)
	for i, b := range buffers {
		p.slots[i] = slot{buf: b, state: stateFree}
	}
	p.slots[0].state = stateInUse
	p.consumerIdx = 0
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// filledCount returns the number of slots currently Filled. Caller
// must hold p.mu.
func (p *Pool) filledCount() int {
	n := 0
	for i := range p.slots {
		if p.slots[i].state == stateFilled {
			n++
		}
	}
	return n
}

// reportDepth invokes the depth observer, if any, with the current
// Filled count. Caller must hold p.mu; reportDepth itself only reads.
func (p *Pool) reportDepth() {
	if p.onDepthChanged == nil {
		return
	}
	p.onDepthChanged(p.filledCount())
}

// TryAcquireFree returns the index and backing buffer of the first
// Free producer slot, flipping it to InUse, or ok=false if none are
// free.
func (p *Pool) TryAcquireFree() (index int, buf []byte, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.slots {
		if i == p.consumerIdx {
			continue
		}
		if p.slots[i].state == stateFree {
			p.slots[i].state = stateInUse
			return i, p.slots[i].buf, true
		}
	}
	return 0, nil, false
}

// QueueFilled marks an InUse producer slot Filled, stamping it with
// timestamp and the number of valid bytes the encoder wrote, and wakes
// any consumer waiting in TakeFilledAndSwap.
func (p *Pool) QueueFilled(index int, timestamp int64, bytesUsed int) {
	p.mu.Lock()
	p.slots[index].state = stateFilled
	p.slots[index].timestamp = timestamp
	p.slots[index].bytesUsed = bytesUsed
	p.reportDepth()
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Cancel returns an InUse producer slot to Free without publishing it,
// used when encoding fails.
func (p *Pool) Cancel(index int) {
	p.mu.Lock()
	p.slots[index].state = stateFree
	p.mu.Unlock()
}

// TakeFilledAndSwap blocks until at least one producer slot is Filled,
// selects the one with the largest timestamp (ties broken by lowest
// index), demotes every other Filled slot to Free, frees the current
// consumer slot, and swaps the chosen slot into the consumer role.
// Returns the new consumer slot's index, backing buffer, timestamp,
// and the number of valid bytes the encoder wrote into it.
func (p *Pool) TakeFilledAndSwap() (index int, buf []byte, timestamp int64, bytesUsed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		best := -1
		for i := range p.slots {
			if p.slots[i].state != stateFilled {
				continue
			}
			if best == -1 || p.slots[i].timestamp > p.slots[best].timestamp {
				best = i
			}
		}
		if best != -1 {
			for i := range p.slots {
				if i != best && p.slots[i].state == stateFilled {
					p.slots[i].state = stateFree
				}
			}
			p.slots[p.consumerIdx].state = stateFree
			p.slots[best].state = stateInUse
			p.consumerIdx = best
			p.reportDepth()
			return best, p.slots[best].buf, p.slots[best].timestamp, p.slots[best].bytesUsed
		}
		p.cond.Wait()
	}
}

// TakeFilledAndSwapTimeout is TakeFilledAndSwap bounded by a diagnostic
// timeout: a consumer that waits past timeout without a Filled slot
// returns ok=false instead of blocking forever, so the caller can log
// a starvation warning. This is a diagnostic only — the spec's normal
// path relies on the poller to ensure the consumer is never called
// before the driver is ready for a frame.
func (p *Pool) TakeFilledAndSwapTimeout(timeout time.Duration) (index int, buf []byte, timestamp int64, bytesUsed int, ok bool) {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, p.cond.Broadcast)
	defer timer.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		best := -1
		for i := range p.slots {
			if p.slots[i].state != stateFilled {
				continue
			}
			if best == -1 || p.slots[i].timestamp > p.slots[best].timestamp {
				best = i
			}
		}
		if best != -1 {
			for i := range p.slots {
				if i != best && p.slots[i].state == stateFilled {
					p.slots[i].state = stateFree
				}
			}
			p.slots[p.consumerIdx].state = stateFree
			p.slots[best].state = stateInUse
			p.consumerIdx = best
			p.reportDepth()
			return best, p.slots[best].buf, p.slots[best].timestamp, p.slots[best].bytesUsed, true
		}
		if time.Now().After(deadline) {
			return 0, nil, 0, 0, false
		}
		p.cond.Wait()
	}
}

// ConsumerIndex returns the slot index currently held by the consumer.
func (p *Pool) ConsumerIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consumerIdx
}
