//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for output-device discovery, format enumeration, buffer queueing, and
// the UVC gadget control-plane ioctls layered on top of a V4L2 output
// node.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Device Discovery
//
// Use FindOutputDevice to locate the gadget's /dev/videoN output node:
//
//	path, err := v4l2.FindOutputDevice(ignoredNodes)
//	device, err := v4l2.OpenOutput(path)
//
// # Format Queries
//
// Query supported formats, resolutions, and framerates:
//
//	formats, _ := v4l2.GetFormats("/dev/video0")
//	for _, fmt := range formats {
//	    resolutions, _ := v4l2.GetResolutions("/dev/video0", fmt.PixelFormat)
//	    for _, res := range resolutions {
//	        framerates, _ := v4l2.GetFramerates("/dev/video0", fmt.PixelFormat, res.Width, res.Height)
//	    }
//	}
//
// # Output Buffer Queue
//
// OutputDevice wraps REQBUFS/QUERYBUF/mmap and the QBUF/DQBUF/STREAMON/
// STREAMOFF cycle for a memory-mapped output node:
//
//	device.RequestBuffers(4)
//	device.StreamOn()
//	device.QueueBuffer(index, bytesUsed)
//
// # UVC Gadget Events
//
// SubscribeUVCEvents and DequeueUVCEvent expose the SETUP/DATA/STREAMON/
// STREAMOFF event stream a UVC control-plane state machine dispatches
// against.
package v4l2
