// Package session wires the readiness poller, buffer pool, V4L2
// output device, UVC control state machine, and encoder together into
// the per-connection lifecycle the host service drives through
// hostservice.Core.
package session

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/usbcamd/usbcamd/internal/encoder"
	"github.com/usbcamd/usbcamd/internal/events"
	"github.com/usbcamd/usbcamd/internal/hostservice"
	"github.com/usbcamd/usbcamd/internal/metrics"
	"github.com/usbcamd/usbcamd/internal/poller"
	"github.com/usbcamd/usbcamd/internal/uvccontrol"
	"github.com/usbcamd/usbcamd/pkg/linuxav/v4l2"
)

// hardwareBufferHandle records what startSession/onEncodeResult needs
// to release a host-owned hardware buffer exactly once.
type hardwareBufferHandle struct {
	buffer    encoder.HardwareBufferDesc
	timestamp int64
}

// Orchestrator implements hostservice.Core: it owns the V4L2 device,
// the UVC control state machine, and the nullable streaming session,
// serializing every externally visible operation behind one mutex.
type Orchestrator struct {
	callbacks hostservice.Callbacks
	eventBus  *events.Bus
	metrics   *metrics.Registry

	mu         sync.Mutex
	device     *v4l2.OutputDevice
	watch      *v4l2.UnlinkWatch
	catalogue  *uvccontrol.Catalogue
	controller *uvccontrol.Controller
	poller     *poller.Poller
	sess       *session

	running      atomic.Bool
	pollerDone   chan struct{}
	nextBufferID atomic.Int64

	buffersMu sync.Mutex
	buffers   map[int64]hardwareBufferHandle

	pollerTimeoutMs int

	shutdownWG sync.WaitGroup
}

// Option configures optional Orchestrator behavior at construction.
type Option func(*Orchestrator)

// WithPollerTimeout overrides the readiness poller's default 66ms wait
// bound. A deployment with a slower host link can trade dequeue
// latency for fewer wakeups by raising this.
func WithPollerTimeout(ms int) Option {
	return func(o *Orchestrator) { o.pollerTimeoutMs = ms }
}

// New builds an idle Orchestrator. Call SetupAndStart to open a
// device and begin serving UVC events.
func New(callbacks hostservice.Callbacks, eventBus *events.Bus, metricsRegistry *metrics.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		callbacks: callbacks,
		eventBus:  eventBus,
		metrics:   metricsRegistry,
		buffers:   make(map[int64]hardwareBufferHandle),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ShouldStart reports whether a video-output node exists.
func (o *Orchestrator) ShouldStart(ignoredNodes map[string]bool) bool {
	path, err := v4l2.FindOutputDevice(ignoredNodes)
	return err == nil && path != ""
}

// SetupAndStart opens the discovered output node, enumerates its
// format catalogue, subscribes to UVC events, and starts the poller
// loop. Returns 0 on success or a negative code on failure.
func (o *Orchestrator) SetupAndStart(ignoredNodes map[string]bool) int32 {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running.Load() {
		return 0
	}

	path, err := v4l2.FindOutputDevice(ignoredNodes)
	if err != nil {
		slog.With("component", "session").Error("no usable output device", "error", err)
		return -1
	}

	device, err := v4l2.OpenOutput(path)
	if err != nil {
		slog.With("component", "session").Error("open output device failed", "error", err, "path", path)
		return -2
	}

	catalogue, err := uvccontrol.BuildCatalogue(path)
	if err != nil {
		slog.With("component", "session").Error("build catalogue failed", "error", err, "path", path)
		_ = device.Close()
		return -3
	}

	if err := device.SubscribeUVCEvents(); err != nil {
		slog.With("component", "session").Error("subscribe UVC events failed", "error", err)
		_ = device.Close()
		return -4
	}

	watch, err := v4l2.WatchUnlink(path)
	if err != nil {
		slog.With("component", "session").Error("watch unlink failed", "error", err)
		_ = device.Close()
		return -5
	}

	p := poller.NewWithTimeout(o.pollerTimeoutMs)
	if err := p.Add(device.Fd(), poller.Priority); err != nil {
		slog.With("component", "session").Error("poller add device fd failed", "error", err)
		_ = watch.Close()
		_ = device.Close()
		return -6
	}
	if err := p.Add(watch.Fd(), poller.Readable); err != nil {
		slog.With("component", "session").Error("poller add watch fd failed", "error", err)
		_ = p.Remove(device.Fd())
		_ = watch.Close()
		_ = device.Close()
		return -7
	}

	o.device = device
	o.watch = watch
	o.catalogue = catalogue
	o.poller = p
	o.controller = uvccontrol.NewController(device, catalogue, o.onCommitted)
	o.pollerDone = make(chan struct{})
	o.running.Store(true)

	go o.pollerLoop(path)
	return 0
}

// onCommitted fires from the UVC control state machine when a COMMIT
// successfully applies a format, starting the data plane.
func (o *Orchestrator) onCommitted(params uvccontrol.NegotiatedParameters) {
	o.metrics.NegotiationsTotal.Inc()
	cfg := CameraConfig{Width: params.Width, Height: params.Height, FourCC: params.FourCC, FPS: params.FPS}
	o.eventBus.Publish(events.NegotiatedEvent{
		FormatIndex:   params.FormatIndex,
		FrameIndex:    params.FrameIndex,
		Width:         uint16(params.Width),
		Height:        uint16(params.Height),
		IntervalUnits: uvccontrol.UnitsPerSecond / max32(params.FPS, 1),
	})

	sess, err := o.startSession(cfg)
	if err != nil {
		slog.With("component", "session").Error("start session failed", "error", err)
		return
	}
	o.mu.Lock()
	o.sess = sess
	o.mu.Unlock()
}

func max32(v, floor uint32) uint32 {
	if v == 0 {
		return floor
	}
	return v
}

// dataPlaneEvents is the poller interest set once a session is live:
// priority for control events, writable for stream dequeue readiness.
func (o *Orchestrator) dataPlaneEvents() poller.Events {
	return poller.Priority | poller.Writable
}

// pollerLoop is the poller thread: it owns the V4L2 fd and the watch
// fd, dispatching UVC events and stream-writable readiness. It never
// calls into the host service while holding o.mu.
func (o *Orchestrator) pollerLoop(path string) {
	defer close(o.pollerDone)

	for o.running.Load() {
		waitStart := time.Now()
		ready, err := o.poller.Wait()
		o.metrics.PollerWaitDuration.Observe(time.Since(waitStart).Seconds())
		if err != nil {
			slog.With("component", "session").Warn("poller wait failed", "error", err)
			continue
		}
		if !o.running.Load() {
			return
		}
		for _, r := range ready {
			o.dispatch(path, r)
		}
	}
}

func (o *Orchestrator) dispatch(path string, r poller.Ready) {
	o.mu.Lock()
	device := o.device
	watch := o.watch
	sess := o.sess
	o.mu.Unlock()

	if device != nil && r.Fd == device.Fd() {
		if r.Events&poller.Priority != 0 {
			o.handleUVCEvent()
		}
		if r.Events&poller.Writable != 0 && sess != nil {
			if err := o.onWritable(sess); err != nil {
				slog.With("component", "session").Warn("writable dispatch failed", "error", err)
			}
		}
		return
	}
	if watch != nil && r.Fd == watch.Fd() {
		if watch.Unlinked() {
			slog.With("component", "session").Info("output node unlinked", "path", path)
			o.eventBus.Publish(events.DeviceLostEvent{DevicePath: path})
			o.teardown()
		}
	}
}

// handleUVCEvent dequeues and dispatches exactly one pending UVC
// event. A transient DQEVENT failure is logged and the current
// iteration aborted; the session survives.
func (o *Orchestrator) handleUVCEvent() {
	o.mu.Lock()
	device := o.device
	controller := o.controller
	o.mu.Unlock()
	if device == nil {
		return
	}

	ev, err := device.DequeueUVCEvent()
	if err != nil {
		slog.With("component", "session").Warn("dequeue UVC event failed", "error", err)
		return
	}

	switch ev.Type {
	case v4l2.UVC_EVENT_CONNECT:
		// ignored
	case v4l2.UVC_EVENT_DISCONNECT:
		o.teardown()
	case v4l2.UVC_EVENT_SETUP:
		resp := controller.HandleSetup(ev)
		if resp == nil {
			return
		}
		if err := device.SendUVCResponse(resp); err != nil {
			slog.With("component", "session").Warn("send UVC response failed", "error", err)
		}
	case v4l2.UVC_EVENT_DATA:
		if err := controller.HandleData(ev.SetupData()); err != nil {
			slog.With("component", "session").Warn("UVC data event failed", "error", err)
		}
	case v4l2.UVC_EVENT_STREAMOFF:
		o.mu.Lock()
		sess := o.sess
		o.sess = nil
		o.mu.Unlock()
		if sess != nil {
			o.stopSession(sess)
		}
		controller.Reset()
		if err := o.poller.Modify(device.Fd(), poller.Priority); err != nil {
			slog.With("component", "session").Warn("narrow poller interest failed", "error", err)
		}
	}
}

// teardown runs the DISCONNECT/unlink/OnDestroy shutdown path (stopping
// any live session; STREAMOFF alone is handled in handleUVCEvent) and
// fires the host's stopService on a detached shutdown thread, joined
// before any subsequent teardown begins so the sequence stays causal.
func (o *Orchestrator) teardown() {
	o.shutdownWG.Wait()

	o.mu.Lock()
	if !o.running.Load() {
		o.mu.Unlock()
		return
	}
	o.running.Store(false)
	sess := o.sess
	o.sess = nil
	device := o.device
	watch := o.watch
	o.mu.Unlock()

	if sess != nil {
		o.stopSession(sess)
	}
	if watch != nil {
		_ = watch.Close()
	}
	if device != nil {
		_ = device.Close()
	}

	o.shutdownWG.Add(1)
	go func() {
		defer o.shutdownWG.Done()
		o.callbacks.StopService()
	}()
}

// OnDestroy tears down any running session and blocks until the
// poller loop and the shutdown thread have both exited.
func (o *Orchestrator) OnDestroy() {
	o.teardown()
	if o.pollerDone != nil {
		<-o.pollerDone
	}
	o.shutdownWG.Wait()
}

// EncodeImage implements the frame-drop-at-ingress ingress path
// (§4.7): it acquires a Free producer slot for buffer, stamping it
// with timestamp, or reports backpressure and releases buffer
// immediately if the pool is saturated.
func (o *Orchestrator) EncodeImage(buffer encoder.HardwareBufferDesc, timestamp int64, rotation int32) int32 {
	o.mu.Lock()
	sess := o.sess
	o.mu.Unlock()
	if sess == nil {
		return -1
	}

	idx, dst, ok := sess.pool.TryAcquireFree()
	if !ok {
		o.metrics.FramesDroppedTotal.WithLabelValues("queue_full").Inc()
		o.eventBus.Publish(events.FrameDroppedEvent{Reason: "queue_full"})
		return -2
	}

	bufferID := o.nextBufferID.Add(1)
	o.buffersMu.Lock()
	o.buffers[bufferID] = hardwareBufferHandle{buffer: buffer, timestamp: timestamp}
	o.buffersMu.Unlock()

	sess.worker.Submit(encoder.EncodeRequest{
		BufferID:  bufferID,
		Timestamp: timestamp,
		Rotation:  encoder.Rotation(rotation),
		Source:    buffer,
		SlotIndex: idx,
		Dst:       dst,
	})
	return 0
}

// releaseHardwareBuffer drops the id->handle entry, completing the
// exactly-once release guarantee for a given ingress.
func (o *Orchestrator) releaseHardwareBuffer(bufferID int64) {
	o.buffersMu.Lock()
	delete(o.buffers, bufferID)
	o.buffersMu.Unlock()
}
