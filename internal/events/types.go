package events

// Event type constants for kelindar/event.
const (
	TypeNegotiated uint32 = iota + 1
	TypeStreamOn
	TypeStreamOff
	TypeDeviceLost
	TypeFrameDropped
	TypeEncodeFailed
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// NegotiatedEvent is published when PROBE/COMMIT negotiation finalizes
// a streaming format.
type NegotiatedEvent struct {
	FormatIndex   uint8  `json:"format_index"`
	FrameIndex    uint8  `json:"frame_index"`
	Width         uint16 `json:"width"`
	Height        uint16 `json:"height"`
	IntervalUnits uint32 `json:"interval_100ns"`
}

// Type returns the event type identifier for NegotiatedEvent.
func (e NegotiatedEvent) Type() uint32 { return TypeNegotiated }

// StreamOnEvent is published when the host issues UVC STREAMON.
type StreamOnEvent struct {
	FormatIndex uint8 `json:"format_index"`
	Width       uint16
	Height      uint16
}

// Type returns the event type identifier for StreamOnEvent.
func (e StreamOnEvent) Type() uint32 { return TypeStreamOn }

// StreamOffEvent is published when the host issues UVC STREAMOFF.
type StreamOffEvent struct{}

// Type returns the event type identifier for StreamOffEvent.
func (e StreamOffEvent) Type() uint32 { return TypeStreamOff }

// DeviceLostEvent is published when the configured V4L2 output node
// disappears from the filesystem.
type DeviceLostEvent struct {
	DevicePath string `json:"device_path"`
}

// Type returns the event type identifier for DeviceLostEvent.
func (e DeviceLostEvent) Type() uint32 { return TypeDeviceLost }

// FrameDroppedEvent is published when EncodeImage drops an ingress frame
// because no producer slot is Free (reason "queue_full"). Filled frames
// that the buffer pool's newest-wins selection discards are not reported.
type FrameDroppedEvent struct {
	Reason string `json:"reason" example:"queue_full" doc:"queue_full"`
}

// Type returns the event type identifier for FrameDroppedEvent.
func (e FrameDroppedEvent) Type() uint32 { return TypeFrameDropped }

// EncodeFailedEvent is published when the encoder fails to produce an
// output frame (e.g. the JPEG encoder aborted).
type EncodeFailedEvent struct {
	Format string `json:"format" example:"mjpeg"`
	Error  string `json:"error"`
}

// Type returns the event type identifier for EncodeFailedEvent.
func (e EncodeFailedEvent) Type() uint32 { return TypeEncodeFailed }
