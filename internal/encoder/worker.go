package encoder

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// pollInterval bounds how long the worker's condition-variable wait
// can block before re-checking the shutdown flag.
const pollInterval = 50 * time.Millisecond

// FourCC identifies which UVC wire format the worker produces.
type FourCC int

const (
	FourCCYUY2 FourCC = iota
	FourCCMJPEG
)

// HardwareBufferDesc is the planar layout the host service hands the
// core for one ingressed camera frame. Exactly one of the two shapes
// below is populated, selected by IsRGBA.
//
// For planar/semi-planar YUV 4:2:0: Y is the luma plane; Chroma is the
// single interleaved U/V plane (pixel stride 2 for NV12/NV21) or, for
// fully planar sources, just the U plane with V immediately following
// at pixel stride 1. UOffset/VOffset pick which byte of each chroma
// pixel is U vs V.
type HardwareBufferDesc struct {
	Y, Chroma         []byte
	YStride           int
	ChromaStride      int
	ChromaPixelStride int
	UOffset, VOffset  int

	RGBA       []byte
	RGBAStride int

	IsRGBA bool
}

// EncodeRequest is the unit of work the encoder worker consumes: a
// hardware-buffer descriptor paired with the producer-slot buffer it
// must fill.
type EncodeRequest struct {
	BufferID  int64
	Timestamp int64
	Rotation  Rotation
	Source    HardwareBufferDesc
	SlotIndex int
	Dst       []byte
}

// ResultCallback is invoked exactly once per EncodeRequest, reporting
// whether the destination buffer now holds a valid frame and how many
// bytes were written.
type ResultCallback func(req EncodeRequest, bytesUsed int, success bool)

// WorkerOption configures optional Worker behavior at construction.
type WorkerOption func(*Worker)

// WithDurationObserver registers a callback invoked with the wall time
// spent inside encode for every request, success or failure. The
// session orchestrator uses this to feed usbcamd_encode_duration_seconds
// without the encoder package depending on prometheus directly.
func WithDurationObserver(observe func(time.Duration)) WorkerOption {
	return func(w *Worker) { w.observeDuration = observe }
}

// Worker runs one dedicated encode thread for a session, converting
// EncodeRequests into the session's committed wire format.
type Worker struct {
	fourcc  FourCC
	scratch *I420

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []EncodeRequest
	running bool
	stopped bool

	onResult        ResultCallback
	observeDuration func(time.Duration)
	wg              sync.WaitGroup
}

// NewWorker allocates I420 scratch sized to width x height and returns
// a stopped worker; call Start to spin up its goroutine.
func NewWorker(fourcc FourCC, width, height int, onResult ResultCallback, opts ...WorkerOption) *Worker {
	w := &Worker{
		fourcc:   fourcc,
		scratch:  NewI420(width, height),
		onResult: onResult,
	}
	w.cond = sync.NewCond(&w.mu)
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the worker goroutine.
func (w *Worker) Start() {
	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop()
}

// Submit enqueues a request for encoding. Safe to call concurrently
// with Stop; requests submitted after Stop has begun draining are
// reported as failures without being encoded.
func (w *Worker) Submit(req EncodeRequest) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		w.onResult(req, 0, false)
		return
	}
	w.queue = append(w.queue, req)
	w.mu.Unlock()
	w.cond.Broadcast()
}

// Stop flips the continue flag, wakes the worker, and blocks until it
// has drained its queue (reporting every still-queued request as a
// failure) and exited.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.running = false
	w.stopped = true
	w.mu.Unlock()
	w.cond.Broadcast()
	w.wg.Wait()
}

func (w *Worker) loop() {
	defer w.wg.Done()

	for {
		req, ok := w.next()
		if !ok {
			w.drainAsFailures()
			return
		}
		start := time.Now()
		bytesUsed, err := w.encode(req)
		if w.observeDuration != nil {
			w.observeDuration(time.Since(start))
		}
		if err != nil {
			slog.With("component", "encoder").Warn("encode failed", "error", err, "bufferId", req.BufferID)
			w.onResult(req, 0, false)
			continue
		}
		w.onResult(req, bytesUsed, true)
	}
}

// next blocks, polling the shutdown flag every pollInterval, until a
// request is available or the worker has been stopped.
func (w *Worker) next() (EncodeRequest, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for len(w.queue) == 0 && w.running {
		timer := time.AfterFunc(pollInterval, w.cond.Broadcast)
		w.cond.Wait()
		timer.Stop()
	}
	if !w.running {
		return EncodeRequest{}, false
	}
	req := w.queue[0]
	w.queue = w.queue[1:]
	return req, true
}

// drainAsFailures reports every request left in the queue at shutdown
// as a failure so hardware-buffer refcounts are released.
func (w *Worker) drainAsFailures() {
	w.mu.Lock()
	remaining := w.queue
	w.queue = nil
	w.mu.Unlock()

	for _, req := range remaining {
		w.onResult(req, 0, false)
	}
}

func (w *Worker) encode(req EncodeRequest) (int, error) {
	src := req.Source
	if src.IsRGBA {
		if err := w.scratch.FromRGBA8888(src.RGBA, src.RGBAStride); err != nil {
			return 0, fmt.Errorf("rgba->i420: %w", err)
		}
	} else {
		if err := w.scratch.FromSemiPlanarYUV420(src.Y, src.Chroma, src.YStride, src.ChromaStride, src.ChromaPixelStride, src.UOffset, src.VOffset, req.Rotation); err != nil {
			return 0, fmt.Errorf("yuv->i420: %w", err)
		}
	}

	switch w.fourcc {
	case FourCCYUY2:
		n, err := w.scratch.ToYUY2(req.Dst)
		if err != nil {
			return 0, fmt.Errorf("i420->yuy2: %w", err)
		}
		return n, nil
	case FourCCMJPEG:
		n, err := w.scratch.ToMJPEG(req.Dst)
		if err != nil {
			return 0, fmt.Errorf("i420->mjpeg: %w", err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unknown fourcc %d", w.fourcc)
	}
}
