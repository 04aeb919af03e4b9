// Package poller provides a level-triggered readiness wait over a
// small, dynamic set of file descriptors, bounded by a fixed timeout
// ceiling so a single event loop can service both UVC control traffic
// and V4L2 stream I/O without starving either.
package poller

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Events is a bitset over the readiness classes this poller tracks.
type Events uint32

const (
	Readable Events = 1 << iota
	Priority
	Writable
)

func (e Events) toPollEvents() int16 {
	var p int16
	if e&Readable != 0 {
		p |= unix.POLLIN
	}
	if e&Priority != 0 {
		p |= unix.POLLPRI
	}
	if e&Writable != 0 {
		p |= unix.POLLOUT
	}
	return p
}

func fromPollEvents(p int16) Events {
	var e Events
	if p&unix.POLLIN != 0 {
		e |= Readable
	}
	if p&unix.POLLPRI != 0 {
		e |= Priority
	}
	if p&unix.POLLOUT != 0 {
		e |= Writable
	}
	return e
}

// Ready describes one fd that became ready during Wait.
type Ready struct {
	Fd     int
	Events Events
}

// WaitTimeout is the default Wait bound. 66ms keeps a 15fps stream's
// dequeue loop from stalling under event starvation.
const WaitTimeout = 66

// ErrNotTracked is returned by Modify/Remove for an fd that was never
// added.
var ErrNotTracked = errors.New("poller: fd not tracked")

// Poller wraps unix.Poll over a dynamic fd set.
type Poller struct {
	fds     []unix.PollFd
	index   map[int]int // fd -> position in fds
	timeout int
}

// New creates an empty Poller bounded by the default WaitTimeout.
func New() *Poller {
	return NewWithTimeout(WaitTimeout)
}

// NewWithTimeout creates an empty Poller bounded by timeoutMs, letting
// a deployment trade dequeue latency for fewer wakeups on a slower
// stream than the 66ms default assumes.
func NewWithTimeout(timeoutMs int) *Poller {
	if timeoutMs <= 0 {
		timeoutMs = WaitTimeout
	}
	return &Poller{index: make(map[int]int), timeout: timeoutMs}
}

// Add registers fd for the given readiness classes.
func (p *Poller) Add(fd int, events Events) error {
	if _, exists := p.index[fd]; exists {
		return fmt.Errorf("poller: fd %d already tracked", fd)
	}
	p.index[fd] = len(p.fds)
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: events.toPollEvents()})
	return nil
}

// Modify changes the tracked readiness classes for fd. Implemented as
// remove+add: some kernels reject in-place modification of a UVC
// gadget node's event set while events are pending.
func (p *Poller) Modify(fd int, events Events) error {
	if err := p.Remove(fd); err != nil {
		return err
	}
	return p.Add(fd, events)
}

// Remove stops tracking fd.
func (p *Poller) Remove(fd int) error {
	i, exists := p.index[fd]
	if !exists {
		return ErrNotTracked
	}

	last := len(p.fds) - 1
	p.fds[i] = p.fds[last]
	p.index[int(p.fds[i].Fd)] = i
	p.fds = p.fds[:last]
	delete(p.index, fd)
	return nil
}

// Wait blocks until an fd becomes ready or the poller's timeout
// elapses, returning the set of ready fds with their triggered event
// classes. A timeout returns a nil slice and nil error.
func (p *Poller) Wait() ([]Ready, error) {
	n, err := unix.Poll(p.fds, p.timeout)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("poller: poll: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	ready := make([]Ready, 0, n)
	for _, pfd := range p.fds {
		if pfd.Revents == 0 {
			continue
		}
		ready = append(ready, Ready{Fd: int(pfd.Fd), Events: fromPollEvents(pfd.Revents)})
	}
	return ready, nil
}
