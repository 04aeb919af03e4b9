package cmd

import "github.com/usbcamd/usbcamd/internal/logging"

// loggingCallbacks is the standalone-daemon implementation of
// hostservice.Callbacks: it has no host process to notify, so every
// upcall is just logged. A real embedder (the process that actually
// feeds frames into Core.EncodeImage) replaces this with its own
// implementation.
type loggingCallbacks struct {
	logger logging.Logger
}

func newLoggingCallbacks(logger logging.Logger) *loggingCallbacks {
	return &loggingCallbacks{logger: logger}
}

func (c *loggingCallbacks) SetStreamConfig(isMJPEG bool, width, height, fps uint32) {
	format := "yuy2"
	if isMJPEG {
		format = "mjpeg"
	}
	c.logger.Info("stream config set", "format", format, "width", width, "height", height, "fps", fps)
}

func (c *loggingCallbacks) StartStreaming() {
	c.logger.Info("streaming started")
}

func (c *loggingCallbacks) StopStreaming() {
	c.logger.Info("streaming stopped")
}

func (c *loggingCallbacks) ReturnImage(timestamp int64) {
	c.logger.Debug("image buffer returned", "timestamp", timestamp)
}

func (c *loggingCallbacks) StopService() {
	c.logger.Info("service stop requested")
}
