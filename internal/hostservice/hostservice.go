// Package hostservice declares the boundary between the UVC gadget
// core and the process that owns the camera session: the five
// callbacks the core drives outward, and the four upcalls the host
// drives inward.
package hostservice

import "github.com/usbcamd/usbcamd/internal/encoder"

// Callbacks is implemented by the host process and consumed by the
// core. Every method may involve cross-process work; the core never
// holds an internal lock across a call into it.
type Callbacks interface {
	// SetStreamConfig is idempotent within a session.
	SetStreamConfig(isMJPEG bool, width, height, fps uint32)
	StartStreaming()
	StopStreaming()
	// ReturnImage signals the host may release a previously ingressed
	// hardware buffer identified by the timestamp it was submitted
	// with.
	ReturnImage(timestamp int64)
	// StopService is a fire-and-forget request to terminate the
	// hosting process.
	StopService()
}

// Core is implemented by the gadget core and driven by the host
// process.
type Core interface {
	// ShouldStart reports whether a suitable output node exists,
	// ignoring any path in ignoredNodes.
	ShouldStart(ignoredNodes map[string]bool) bool
	// SetupAndStart opens the discovered node, starts the poller, and
	// returns 0 on success or a negative error code.
	SetupAndStart(ignoredNodes map[string]bool) int32
	// EncodeImage ingresses one hardware frame. Returns 0 on success
	// or a negative error code (e.g. backpressure drop).
	EncodeImage(buffer encoder.HardwareBufferDesc, timestamp int64, rotation int32) int32
	// OnDestroy tears down any running session and releases the node.
	OnDestroy()
}
