//go:build linux

package v4l2

import (
	"fmt"
	"path/filepath"
	"unsafe"
)

// FindOutputDevice globs /dev/video*, skips any path present in
// ignored, and returns the first node that advertises the "video
// output" capability — the node the UVC gadget function exposes.
func FindOutputDevice(ignored map[string]bool) (string, error) {
	matches, err := filepath.Glob("/dev/video*")
	if err != nil {
		return "", fmt.Errorf("glob /dev/video*: %w", err)
	}

	for _, path := range matches {
		if ignored[path] {
			continue
		}

		fd, openErr := open(path)
		if openErr != nil {
			continue
		}

		cap := v4l2_capability{}
		capErr := ioctl(fd, VIDIOC_QUERYCAP, unsafe.Pointer(&cap))
		close(fd)
		if capErr != nil {
			continue
		}

		caps := cap.capabilities
		if caps&V4L2_CAP_DEVICE_CAPS != 0 {
			caps = cap.device_caps
		}
		if caps&V4L2_CAP_VIDEO_OUTPUT != 0 {
			return path, nil
		}
	}

	return "", fmt.Errorf("no V4L2 output-capable device found")
}
