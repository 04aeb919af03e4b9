package uvccontrol

import (
	"fmt"
	"log/slog"

	"github.com/usbcamd/usbcamd/pkg/linuxav/v4l2"
)

// Selector is the current control selector, latched by SET_CUR and
// consumed by the following DATA event.
type Selector int

const (
	SelectorUndefined Selector = iota
	SelectorProbe
	SelectorCommit
)

const (
	interfaceControl   = 0
	interfaceStreaming = 1
)

// NegotiatedParameters describes the last applied COMMIT, exposed so
// the session orchestrator can build a CameraConfig without re-parsing
// wire structures.
type NegotiatedParameters struct {
	FormatIndex uint8
	FrameIndex  uint8
	FourCC      uint32
	Width       uint32
	Height      uint32
	FPS         uint32
}

// Controller is the UVC control-plane state machine for one session.
// It owns the probe/commit StreamingControl scratch and, on COMMIT,
// applies the negotiated format to the V4L2 device.
type Controller struct {
	catalogue *Catalogue
	device    *v4l2.OutputDevice

	selector Selector
	probe    v4l2.StreamingControl
	commit   v4l2.StreamingControl

	negotiated  NegotiatedParameters
	onCommitted func(NegotiatedParameters)
}

// NewController builds a Controller over an already-open device and
// its enumerated catalogue. onCommitted, if non-nil, fires every time
// a COMMIT successfully applies a format — the session orchestrator
// uses this to start the data plane.
func NewController(device *v4l2.OutputDevice, catalogue *Catalogue, onCommitted func(NegotiatedParameters)) *Controller {
	return &Controller{device: device, catalogue: catalogue, onCommitted: onCommitted}
}

// NegotiatedParameters returns the parameters of the last successfully
// applied COMMIT.
func (c *Controller) NegotiatedParameters() NegotiatedParameters {
	return c.negotiated
}

// Reset zeroes probe/commit state, used on STREAMOFF.
func (c *Controller) Reset() {
	c.selector = SelectorUndefined
	c.probe = v4l2.StreamingControl{}
	c.commit = v4l2.StreamingControl{}
	c.negotiated = NegotiatedParameters{}
}

// HandleSetup dispatches a UVC_EVENT_SETUP event and returns the
// response payload to submit via UVCIOC_SEND_RESPONSE.
func (c *Controller) HandleSetup(ev *v4l2.UvcEvent) []byte {
	req := ev.Setup

	switch req.BRequestType & v4l2.USB_TYPE_MASK {
	case v4l2.USB_TYPE_STANDARD:
		return nil
	case v4l2.USB_TYPE_CLASS:
		if req.BRequestType&v4l2.USB_RECIP_MASK != v4l2.USB_RECIP_INTERFACE {
			slog.With("component", "uvccontrol").Debug("ignoring non-interface class request")
			return nil
		}
		switch req.InterfaceNumber() {
		case interfaceControl:
			return c.handleControlInterface(req.WLength)
		case interfaceStreaming:
			return c.handleStreamingInterface(req.BRequest, req.ControlSelector())
		default:
			slog.With("component", "uvccontrol").Warn("unknown interface", "index", req.InterfaceNumber())
			return nil
		}
	default:
		slog.With("component", "uvccontrol").Debug("ignoring non-class, non-standard setup request")
		return nil
	}
}

// handleControlInterface stubs every VideoControl-interface request
// with a wLength-byte reply whose first byte is 0x03 (one byte when
// wLength is 0): unit controls beyond this stub are out of scope.
func (c *Controller) handleControlInterface(length uint16) []byte {
	n := length
	if n == 0 {
		n = 1
	}
	resp := make([]byte, n)
	resp[0] = 0x03
	return resp
}

// handleStreamingInterface implements the PROBE/COMMIT request table.
func (c *Controller) handleStreamingInterface(bRequest uint8, controlSelect uint8) []byte {
	var selector Selector
	switch controlSelect {
	case v4l2.UVC_VS_PROBE_CONTROL:
		selector = SelectorProbe
	case v4l2.UVC_VS_COMMIT_CONTROL:
		selector = SelectorCommit
	default:
		slog.With("component", "uvccontrol").Warn("unknown control selector", "cs", controlSelect)
		return nil
	}

	switch bRequest {
	case v4l2.UVC_SET_CUR:
		c.selector = selector
		return make([]byte, v4l2.StreamingControlWireSize)

	case v4l2.UVC_GET_CUR:
		sc := c.probe
		if selector == SelectorCommit {
			sc = c.commit
		}
		wire := sc.Marshal()
		return wire[:]

	case v4l2.UVC_GET_MAX:
		sc, _, ok := c.catalogue.Negotiate(FormatTriplet{FormatIndex: 0xFF, FrameIndex: 0xFF, Interval: 0xFFFFFFFF})
		if !ok {
			return make([]byte, v4l2.StreamingControlWireSize)
		}
		wire := sc.Marshal()
		return wire[:]

	case v4l2.UVC_GET_MIN, v4l2.UVC_GET_DEF:
		sc, _, ok := c.catalogue.Negotiate(FormatTriplet{FormatIndex: 1, FrameIndex: 1, Interval: 0})
		if !ok {
			return make([]byte, v4l2.StreamingControlWireSize)
		}
		wire := sc.Marshal()
		return wire[:]

	case v4l2.UVC_GET_RES:
		return make([]byte, v4l2.StreamingControlWireSize)

	case v4l2.UVC_GET_LEN:
		// Corrected little-endian encoding of the 48-byte (0x30) length.
		// The reference implementation this gadget's behavior was
		// derived from writes the two bytes in the wrong order.
		return []byte{0x30, 0x00}

	case v4l2.UVC_GET_INFO:
		return []byte{0x03} // supports GET and SET

	default:
		slog.With("component", "uvccontrol").Warn("unknown streaming bRequest", "req", bRequest)
		return nil
	}
}

// HandleData dispatches a UVC_EVENT_DATA event following a SET_CUR,
// applying the negotiation to probe or commit depending on the latched
// selector.
func (c *Controller) HandleData(payload []byte) error {
	var sc v4l2.StreamingControl
	if err := sc.Unmarshal(payload); err != nil {
		return fmt.Errorf("parse streaming control payload: %w", err)
	}

	triplet := FormatTriplet{
		FormatIndex: sc.BFormatIndex,
		FrameIndex:  sc.BFrameIndex,
		Interval:    sc.DwFrameInterval,
	}

	switch c.selector {
	case SelectorProbe:
		negotiated, _, ok := c.catalogue.Negotiate(triplet)
		if !ok {
			return fmt.Errorf("probe negotiation failed for triplet %+v", triplet)
		}
		c.probe = negotiated
		return nil

	case SelectorCommit:
		negotiated, frame, ok := c.catalogue.Negotiate(triplet)
		if !ok {
			return fmt.Errorf("commit negotiation failed for triplet %+v", triplet)
		}
		c.commit = negotiated
		return c.applyCommit(negotiated, frame)

	default:
		slog.With("component", "uvccontrol").Warn("data event with no latched selector, ignoring")
		return nil
	}
}

// applyCommit pushes the negotiated format into the V4L2 device and
// records fps, firing onCommitted so the orchestrator can start the
// data plane.
func (c *Controller) applyCommit(sc v4l2.StreamingControl, frame Frame) error {
	format, ok := c.catalogue.Format(sc.BFormatIndex)
	if !ok {
		return fmt.Errorf("commit references unknown format index %d", sc.BFormatIndex)
	}

	width, height, err := c.device.SetFormat(frame.Width, frame.Height, format.FourCC)
	if err != nil {
		return fmt.Errorf("apply committed format: %w", err)
	}

	fps := uint32(0)
	if sc.DwFrameInterval != 0 {
		fps = UnitsPerSecond / sc.DwFrameInterval
	}

	c.negotiated = NegotiatedParameters{
		FormatIndex: sc.BFormatIndex,
		FrameIndex:  sc.BFrameIndex,
		FourCC:      format.FourCC,
		Width:       width,
		Height:      height,
		FPS:         fps,
	}

	if c.onCommitted != nil {
		c.onCommitted(c.negotiated)
	}
	return nil
}
