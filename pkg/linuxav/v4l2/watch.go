//go:build linux

package v4l2

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// UnlinkWatch watches a single path for removal. It exposes its raw
// inotify fd so the readiness poller can multiplex it alongside the
// V4L2 device fd instead of running a dedicated goroutine.
type UnlinkWatch struct {
	fd   int
	wd   int
	path string
}

// WatchUnlink registers a filesystem watch on path for attribute
// changes and removal, matching the "node disappeared without a clean
// UVC DISCONNECT" detection the session orchestrator relies on.
func WatchUnlink(path string) (*UnlinkWatch, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("inotify_init1: %w", err)
	}

	wd, err := unix.InotifyAddWatch(fd, path, unix.IN_ATTRIB|unix.IN_DELETE_SELF)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("inotify_add_watch %s: %w", path, err)
	}

	return &UnlinkWatch{fd: fd, wd: wd, path: path}, nil
}

// Fd exposes the inotify fd for the readiness poller.
func (w *UnlinkWatch) Fd() int { return w.fd }

// Unlinked drains any pending inotify events and reports whether path
// no longer exists. Called after the poller reports the watch fd
// readable.
func (w *UnlinkWatch) Unlinked() bool {
	buf := make([]byte, 4096)
	_, _ = unix.Read(w.fd, buf) // drain; we only care whether the path survived

	if _, err := os.Stat(w.path); err != nil {
		return os.IsNotExist(err)
	}
	return false
}

// Close releases the inotify fd.
func (w *UnlinkWatch) Close() error {
	return unix.Close(w.fd)
}
