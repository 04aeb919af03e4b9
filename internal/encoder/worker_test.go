package encoder

import (
	"sync"
	"testing"
	"time"
)

func TestWorkerEncodesYUY2Request(t *testing.T) {
	w, h := 8, 4
	y, chroma := solidNV12(w, h, 80, 60, 180)

	var mu sync.Mutex
	var gotSuccess bool
	var gotBytes int
	done := make(chan struct{})

	worker := NewWorker(FourCCYUY2, w, h, func(req EncodeRequest, bytesUsed int, success bool) {
		mu.Lock()
		gotSuccess = success
		gotBytes = bytesUsed
		mu.Unlock()
		close(done)
	})
	worker.Start()
	defer worker.Stop()

	dst := make([]byte, w*h*2)
	worker.Submit(EncodeRequest{
		BufferID: 1,
		Source: HardwareBufferDesc{
			Y: y, Chroma: chroma,
			YStride: w, ChromaStride: w, ChromaPixelStride: 2, UOffset: 0, VOffset: 1,
		},
		Dst: dst,
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for encode result")
	}

	mu.Lock()
	defer mu.Unlock()
	if !gotSuccess {
		t.Fatal("expected success")
	}
	if gotBytes != w*h*2 {
		t.Errorf("bytesUsed = %d, want %d", gotBytes, w*h*2)
	}
}

func TestWorkerFailsOvershootDestination(t *testing.T) {
	w, h := 8, 4
	y, chroma := solidNV12(w, h, 1, 1, 1)

	done := make(chan bool, 1)
	worker := NewWorker(FourCCYUY2, w, h, func(req EncodeRequest, bytesUsed int, success bool) {
		done <- success
	})
	worker.Start()
	defer worker.Stop()

	worker.Submit(EncodeRequest{
		Source: HardwareBufferDesc{Y: y, Chroma: chroma, YStride: w, ChromaStride: w, ChromaPixelStride: 2, VOffset: 1},
		Dst:    make([]byte, 2), // too small
	})

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected failure for undersized destination")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

// TestWorkerDrainsBacklogAsFailuresOnStop exercises next()'s shutdown
// check directly: a request already sitting in the queue when running
// flips false must come back out of next() as ok=false (not be popped
// and encoded), and drainAsFailures must then report it as a failure.
func TestWorkerDrainsBacklogAsFailuresOnStop(t *testing.T) {
	worker := NewWorker(FourCCYUY2, 4, 4, func(EncodeRequest, int, bool) {})
	worker.running = true
	worker.queue = []EncodeRequest{{BufferID: 1}, {BufferID: 2}}

	worker.running = false // what Stop() does, mid-backlog

	if _, ok := worker.next(); ok {
		t.Fatal("next() returned a queued request after shutdown, want drain")
	}
	if len(worker.queue) != 2 {
		t.Fatalf("next() consumed the backlog, got %d entries left, want 2", len(worker.queue))
	}

	var results []bool
	worker.onResult = func(req EncodeRequest, bytesUsed int, success bool) {
		results = append(results, success)
	}
	worker.drainAsFailures()

	if len(results) != 2 {
		t.Fatalf("drained %d results, want 2", len(results))
	}
	for _, success := range results {
		if success {
			t.Error("backlog entry drained at shutdown reported success, want failure")
		}
	}
}

func TestWorkerReportsExactlyOnceEachSubmission(t *testing.T) {
	w, h := 4, 4
	y, chroma := solidNV12(w, h, 1, 1, 1)

	var mu sync.Mutex
	results := 0
	worker := NewWorker(FourCCYUY2, w, h, func(req EncodeRequest, bytesUsed int, success bool) {
		mu.Lock()
		results++
		mu.Unlock()
	})

	// Submitted before Start, so some (or all) may still be queued
	// when Stop runs, exercising the drain-as-failures shutdown path;
	// regardless, every submission must get exactly one callback.
	for i := 0; i < 3; i++ {
		worker.Submit(EncodeRequest{
			Source: HardwareBufferDesc{Y: y, Chroma: chroma, YStride: w, ChromaStride: w, ChromaPixelStride: 2, VOffset: 1},
			Dst:    make([]byte, w*h*2),
		})
	}
	worker.Start()
	worker.Stop()

	mu.Lock()
	defer mu.Unlock()
	if results != 3 {
		t.Fatalf("got %d results, want 3", results)
	}
}
