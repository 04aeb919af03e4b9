//go:build linux

package v4l2

import (
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/unix"
)

// OutputDevice wraps a V4L2 output node (e.g. a v4l2loopback device, or
// the uvcvideo function's companion /dev/videoN) with the mmap'd buffer
// queue needed to push encoded frames into it.
type OutputDevice struct {
	fd      int
	path    string
	width   uint32
	height  uint32
	format  uint32
	buffers [][]byte
}

// OpenOutput opens a V4L2 output device for writing.
func OpenOutput(devicePath string) (*OutputDevice, error) {
	fd, err := open(devicePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", devicePath, err)
	}
	return &OutputDevice{fd: fd, path: devicePath}, nil
}

// SetFormat negotiates the output pixel format with VIDIOC_S_FMT. The
// kernel may adjust width/height/bytesperline; the adjusted values are
// returned.
func (d *OutputDevice) SetFormat(width, height, pixelFormat uint32) (uint32, uint32, error) {
	fmt_ := v4l2_format{
		typ: V4L2_BUF_TYPE_VIDEO_OUTPUT,
		pix: v4l2_pix_format{
			width:       width,
			height:      height,
			pixelformat: pixelFormat,
			field:       1, // V4L2_FIELD_NONE
		},
	}

	if err := ioctl(d.fd, VIDIOC_S_FMT, unsafe.Pointer(&fmt_)); err != nil {
		return 0, 0, fmt.Errorf("VIDIOC_S_FMT on %s: %w", d.path, err)
	}

	d.width, d.height, d.format = fmt_.pix.width, fmt_.pix.height, pixelFormat
	return fmt_.pix.width, fmt_.pix.height, nil
}

// RequestBuffers allocates and mmaps count kernel-side buffers via
// VIDIOC_REQBUFS/VIDIOC_QUERYBUF.
func (d *OutputDevice) RequestBuffers(count uint32) error {
	for _, mem := range d.buffers {
		if mem != nil {
			_ = unix.Munmap(mem)
		}
	}
	d.buffers = nil

	req := v4l2_requestbuffers{
		count:  count,
		typ:    V4L2_BUF_TYPE_VIDEO_OUTPUT,
		memory: V4L2_MEMORY_MMAP,
	}
	if err := ioctl(d.fd, VIDIOC_REQBUFS, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("VIDIOC_REQBUFS on %s: %w", d.path, err)
	}
	if req.count != count {
		return fmt.Errorf("VIDIOC_REQBUFS on %s: requested %d buffers, driver granted %d", d.path, count, req.count)
	}

	d.buffers = make([][]byte, req.count)
	for i := uint32(0); i < req.count; i++ {
		buf := v4l2_buffer{
			typ:    V4L2_BUF_TYPE_VIDEO_OUTPUT,
			memory: V4L2_MEMORY_MMAP,
			index:  i,
		}
		if err := ioctl(d.fd, VIDIOC_QUERYBUF, unsafe.Pointer(&buf)); err != nil {
			return fmt.Errorf("VIDIOC_QUERYBUF[%d] on %s: %w", i, d.path, err)
		}

		mem, err := unix.Mmap(d.fd, int64(buf.offset), int(buf.length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return fmt.Errorf("mmap buffer %d on %s: %w", i, d.path, err)
		}
		d.buffers[i] = mem
	}

	slog.With("component", "v4l2").Debug("allocated output buffers", "path", d.path, "count", req.count)
	return nil
}

// BufferCount returns the number of mmap'd buffers.
func (d *OutputDevice) BufferCount() int { return len(d.buffers) }

// Buffer returns the mmap'd memory backing the buffer at index. The
// caller must not hold onto it past Close.
func (d *OutputDevice) Buffer(index int) []byte { return d.buffers[index] }

// QueueBuffer submits buffer index, carrying bytesUsed bytes of
// payload, to the kernel's output queue.
func (d *OutputDevice) QueueBuffer(index int, bytesUsed uint32) error {
	buf := v4l2_buffer{
		typ:       V4L2_BUF_TYPE_VIDEO_OUTPUT,
		memory:    V4L2_MEMORY_MMAP,
		index:     uint32(index),
		bytesused: bytesUsed,
	}
	if err := ioctl(d.fd, VIDIOC_QBUF, unsafe.Pointer(&buf)); err != nil {
		return fmt.Errorf("VIDIOC_QBUF[%d] on %s: %w", index, d.path, err)
	}
	return nil
}

// DequeueBuffer retrieves a buffer the kernel has finished consuming,
// returning its index so the caller can refill and requeue it.
func (d *OutputDevice) DequeueBuffer() (int, error) {
	buf := v4l2_buffer{
		typ:    V4L2_BUF_TYPE_VIDEO_OUTPUT,
		memory: V4L2_MEMORY_MMAP,
	}
	if err := ioctl(d.fd, VIDIOC_DQBUF, unsafe.Pointer(&buf)); err != nil {
		return 0, fmt.Errorf("VIDIOC_DQBUF on %s: %w", d.path, err)
	}
	return int(buf.index), nil
}

// StreamOn starts streaming on the output queue.
func (d *OutputDevice) StreamOn() error {
	typ := uint32(V4L2_BUF_TYPE_VIDEO_OUTPUT)
	if err := ioctl(d.fd, VIDIOC_STREAMON, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("VIDIOC_STREAMON on %s: %w", d.path, err)
	}
	return nil
}

// StreamOff stops streaming and returns all buffers to the dequeued
// state.
func (d *OutputDevice) StreamOff() error {
	typ := uint32(V4L2_BUF_TYPE_VIDEO_OUTPUT)
	if err := ioctl(d.fd, VIDIOC_STREAMOFF, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("VIDIOC_STREAMOFF on %s: %w", d.path, err)
	}
	return nil
}

// Fd exposes the raw file descriptor for use with a readiness poller.
func (d *OutputDevice) Fd() int { return d.fd }

// Close unmaps all buffers and closes the device.
func (d *OutputDevice) Close() error {
	for _, mem := range d.buffers {
		if mem != nil {
			_ = unix.Munmap(mem)
		}
	}
	d.buffers = nil
	return close(d.fd)
}
