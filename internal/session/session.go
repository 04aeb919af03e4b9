package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/usbcamd/usbcamd/internal/bufferpool"
	"github.com/usbcamd/usbcamd/internal/encoder"
	"github.com/usbcamd/usbcamd/internal/events"
	"github.com/usbcamd/usbcamd/pkg/linuxav/v4l2"
)

// producerBuffers is the pool's fixed allocation: one consumer slot
// plus three producer slots.
const producerBuffers = 4

// CameraConfig is the negotiated format a session streams at.
type CameraConfig struct {
	Width, Height uint32
	FourCC        uint32
	FPS           uint32
}

// IsMJPEG reports whether this config's fourcc is MJPEG (as opposed to
// YUY2), matching the boolean shape of the host's setStreamConfig.
func (c CameraConfig) IsMJPEG() bool { return c.FourCC == v4l2.V4L2_PIX_FMT_MJPEG }

// session is the live data-plane state that exists only between
// STREAMON and STREAMOFF/DISCONNECT/unlink.
type session struct {
	pool   *bufferpool.Pool
	worker *encoder.Worker
	config CameraConfig
}

// startSession allocates the V4L2 output buffer queue, builds the
// encoder worker, and primes the gadget with its first frame. Per
// §4.6 step 5, this blocks until the first encoded frame is available.
func (o *Orchestrator) startSession(cfg CameraConfig) (*session, error) {
	if err := o.device.RequestBuffers(producerBuffers); err != nil {
		return nil, fmt.Errorf("allocate output buffers: %w", err)
	}

	buffers := make([][]byte, o.device.BufferCount())
	for i := range buffers {
		buffers[i] = o.device.Buffer(i)
	}
	pool := bufferpool.New(buffers, bufferpool.WithDepthObserver(func(depth int) {
		o.metrics.BufferPoolDepth.Set(float64(depth))
	}))

	fourcc := encoder.FourCCYUY2
	formatLabel := "yuy2"
	if cfg.IsMJPEG() {
		fourcc = encoder.FourCCMJPEG
		formatLabel = "mjpeg"
	}

	sess := &session{pool: pool, config: cfg}
	sess.worker = encoder.NewWorker(fourcc, int(cfg.Width), int(cfg.Height), o.onEncodeResult(sess),
		encoder.WithDurationObserver(func(d time.Duration) {
			o.metrics.EncodeDuration.WithLabelValues(formatLabel).Observe(d.Seconds())
		}),
	)
	sess.worker.Start()

	// Publish the session before priming: EncodeImage only fills
	// producer slots of the session stored in o.sess.
	o.mu.Lock()
	o.sess = sess
	o.mu.Unlock()

	o.callbacks.SetStreamConfig(cfg.IsMJPEG(), cfg.Width, cfg.Height, cfg.FPS)
	o.callbacks.StartStreaming()

	// Prime the gadget: block for the first filled buffer, stream on,
	// and queue it before widening poller interest.
	idx, _, _, bytesUsed := pool.TakeFilledAndSwap()
	if err := o.device.StreamOn(); err != nil {
		return nil, fmt.Errorf("stream on: %w", err)
	}
	if err := o.device.QueueBuffer(idx, uint32(bytesUsed)); err != nil {
		return nil, fmt.Errorf("queue priming buffer: %w", err)
	}

	if err := o.poller.Modify(o.device.Fd(), o.dataPlaneEvents()); err != nil {
		return nil, fmt.Errorf("widen poller interest: %w", err)
	}

	o.eventBus.Publish(events.StreamOnEvent{
		FormatIndex: o.controller.NegotiatedParameters().FormatIndex,
		Width:       uint16(cfg.Width),
		Height:      uint16(cfg.Height),
	})

	return sess, nil
}

// onEncodeResult is the encoder.ResultCallback bound to sess: on
// success it queues the filled producer slot back into the pool; on
// failure it cancels the slot to Free. In both cases the hardware
// buffer lock is released and the host is told it may reclaim it.
func (o *Orchestrator) onEncodeResult(sess *session) encoder.ResultCallback {
	return func(req encoder.EncodeRequest, bytesUsed int, success bool) {
		if success {
			sess.pool.QueueFilled(req.SlotIndex, req.Timestamp, bytesUsed)
			format := "yuy2"
			if sess.config.IsMJPEG() {
				format = "mjpeg"
			}
			o.metrics.FramesEncodedTotal.WithLabelValues(format).Inc()
		} else {
			sess.pool.Cancel(req.SlotIndex)
			o.metrics.FramesDroppedTotal.WithLabelValues("encode_failed").Inc()
			o.eventBus.Publish(events.EncodeFailedEvent{Format: fourccLabel(sess.config.FourCC), Error: "encode failed"})
		}
		o.releaseHardwareBuffer(req.BufferID)
		o.callbacks.ReturnImage(req.Timestamp)
	}
}

func fourccLabel(fourcc uint32) string {
	if fourcc == v4l2.V4L2_PIX_FMT_MJPEG {
		return "mjpeg"
	}
	return "yuy2"
}

// onWritable handles a writable-readiness event on the V4L2 fd during
// streaming: dequeue a buffer the driver has consumed, take the next
// filled producer buffer, and requeue it. No explicit pacing is
// applied — the kernel's writability signals cadence.
func (o *Orchestrator) onWritable(sess *session) error {
	if _, err := o.device.DequeueBuffer(); err != nil {
		return fmt.Errorf("dequeue consumed buffer: %w", err)
	}

	idx, _, _, bytesUsed := sess.pool.TakeFilledAndSwap()
	if err := o.device.QueueBuffer(idx, uint32(bytesUsed)); err != nil {
		return fmt.Errorf("queue next buffer: %w", err)
	}
	return nil
}

// stopSession tears down the session: stream off, drain and join the encoder
// worker, and release the V4L2 buffer queue.
func (o *Orchestrator) stopSession(sess *session) {
	if err := o.device.StreamOff(); err != nil {
		slog.With("component", "session").Warn("stream off failed", "error", err)
	}
	sess.worker.Stop()
	if err := o.device.RequestBuffers(0); err != nil {
		slog.With("component", "session").Warn("release output buffers failed", "error", err)
	}
	o.callbacks.StopStreaming()
	o.eventBus.Publish(events.StreamOffEvent{})
}
