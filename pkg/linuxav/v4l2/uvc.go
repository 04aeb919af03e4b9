//go:build linux

package v4l2

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// UVC event types, delivered via VIDIOC_DQEVENT on the gadget node.
const (
	UVC_EVENT_CONNECT    = 0x08000000 + 0
	UVC_EVENT_DISCONNECT = 0x08000000 + 1
	UVC_EVENT_STREAMON   = 0x08000000 + 2
	UVC_EVENT_STREAMOFF  = 0x08000000 + 3
	UVC_EVENT_SETUP      = 0x08000000 + 4
	UVC_EVENT_DATA       = 0x08000000 + 5
)

// UVC request codes (USB Video Class Table 4-35 bRequest field).
const (
	UVC_RC_UNDEFINED = 0x00
	UVC_SET_CUR      = 0x01
	UVC_GET_CUR      = 0x81
	UVC_GET_MIN      = 0x82
	UVC_GET_MAX      = 0x83
	UVC_GET_RES      = 0x84
	UVC_GET_LEN      = 0x85
	UVC_GET_INFO     = 0x86
	UVC_GET_DEF      = 0x87
)

// Video streaming interface control selectors (UVC 1.5 Table 4-74).
const (
	UVC_VS_PROBE_CONTROL  = 0x01
	UVC_VS_COMMIT_CONTROL = 0x02
)

// USB control request type/recipient masks (linux/usb/ch9.h).
const (
	USB_DIR_IN          = 0x80
	USB_TYPE_MASK       = 0x60
	USB_TYPE_STANDARD   = 0x00
	USB_TYPE_CLASS      = 0x20
	USB_RECIP_MASK      = 0x1f
	USB_RECIP_INTERFACE = 0x01
)

// UVCIOC_SEND_RESPONSE submits the host's response to a pending SETUP
// event. Its value is architecture-independent: struct uvc_request_data
// has no pointer or arch-sized fields.
const UVCIOC_SEND_RESPONSE = 0x40405501

// usb_ctrlrequest is the 8-byte standard USB control transfer header,
// aliased over the first 8 bytes of a UVC_EVENT_SETUP event's union.
type usb_ctrlrequest struct {
	BRequestType uint8
	BRequest     uint8
	WValue       uint16
	WIndex       uint16
	WLength      uint16
}

// ControlSelector returns the high byte of wValue, which UVC uses as
// the control selector (e.g. UVC_VS_PROBE_CONTROL).
func (r usb_ctrlrequest) ControlSelector() uint8 { return uint8(r.WValue >> 8) }

// InterfaceNumber returns the low byte of wIndex, the interface number
// a class-interface request targets.
func (r usb_ctrlrequest) InterfaceNumber() uint8 { return uint8(r.WIndex & 0xff) }

// uvc_request_data is the payload exchanged with UVCIOC_SEND_RESPONSE.
type uvc_request_data struct {
	length int32
	data   [60]byte
}

// UvcEvent is the decoded form of a dequeued UVC event: the event type
// plus, for SETUP events, the standard USB control header.
type UvcEvent struct {
	Type    uint32
	Setup   usb_ctrlrequest
	rawData [64]byte // raw DATA-event payload for UVC_EVENT_DATA
}

// SetupData returns the raw payload of a UVC_EVENT_DATA event.
func (e *UvcEvent) SetupData() []byte { return e.rawData[:] }

// SubscribeUVCEvents subscribes to the full UVC control event set this
// gadget cares about: CONNECT, DISCONNECT, SETUP, DATA, STREAMON,
// STREAMOFF.
func (d *OutputDevice) SubscribeUVCEvents() error {
	for _, evType := range []uint32{
		UVC_EVENT_CONNECT, UVC_EVENT_DISCONNECT, UVC_EVENT_SETUP,
		UVC_EVENT_DATA, UVC_EVENT_STREAMON, UVC_EVENT_STREAMOFF,
	} {
		sub := v4l2_event_subscription{typ: evType}
		if err := ioctl(d.fd, VIDIOC_SUBSCRIBE_EVENT, unsafe.Pointer(&sub)); err != nil {
			return fmt.Errorf("subscribe UVC event 0x%x: %w", evType, err)
		}
	}
	return nil
}

// DequeueUVCEvent blocks (on a non-blocking fd, only after the poller
// has reported priority-readiness) retrieving the next pending UVC
// event.
func (d *OutputDevice) DequeueUVCEvent() (*UvcEvent, error) {
	raw := v4l2_event{}
	if err := ioctl(d.fd, VIDIOC_DQEVENT, unsafe.Pointer(&raw)); err != nil {
		return nil, fmt.Errorf("VIDIOC_DQEVENT on %s: %w", d.path, err)
	}

	ev := &UvcEvent{Type: raw.typ}
	copy(ev.rawData[:], raw.u[:])
	if raw.typ == UVC_EVENT_SETUP {
		ev.Setup = usb_ctrlrequest{
			BRequestType: raw.u[0],
			BRequest:     raw.u[1],
			WValue:       binary.LittleEndian.Uint16(raw.u[2:4]),
			WIndex:       binary.LittleEndian.Uint16(raw.u[4:6]),
			WLength:      binary.LittleEndian.Uint16(raw.u[6:8]),
		}
	}
	return ev, nil
}

// SendUVCResponse submits data as the response to a pending SETUP
// event via UVCIOC_SEND_RESPONSE. data must be at most 60 bytes.
func (d *OutputDevice) SendUVCResponse(data []byte) error {
	if len(data) > 60 {
		return fmt.Errorf("uvc response too large: %d bytes", len(data))
	}
	req := uvc_request_data{length: int32(len(data))}
	copy(req.data[:], data)
	if err := ioctl(d.fd, UVCIOC_SEND_RESPONSE, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("UVCIOC_SEND_RESPONSE on %s: %w", d.path, err)
	}
	return nil
}

// StreamingControl is the 48-byte UVC 1.5 PROBE/COMMIT wire structure
// (§4.3.1). The UVC 1.1 fields (wire bytes 0..33) are kept as named
// fields; the UVC 1.5 fields after them are not modeled: Marshal
// zero-fills bytes 34..47 and Unmarshal ignores them.
type StreamingControl struct {
	BmHint                   uint16
	BFormatIndex             uint8
	BFrameIndex              uint8
	DwFrameInterval          uint32
	WKeyFrameRate            uint16
	WPFrameRate              uint16
	WCompQuality             uint16
	WCompWindowSize          uint16
	WDelay                   uint16
	DwMaxVideoFrameSize      uint32
	DwMaxPayloadTransferSize uint32
	DwClockFrequency         uint32
	BmFramingInfo            uint8
	BPreferredVersion        uint8
	BMinVersion              uint8
	BMaxVersion              uint8
}

// StreamingControlWireSize is the on-wire size of StreamingControl.
const StreamingControlWireSize = 48

// Marshal packs the structure into its 48-byte little-endian wire
// form.
func (c *StreamingControl) Marshal() [StreamingControlWireSize]byte {
	var b [StreamingControlWireSize]byte
	binary.LittleEndian.PutUint16(b[0:2], c.BmHint)
	b[2] = c.BFormatIndex
	b[3] = c.BFrameIndex
	binary.LittleEndian.PutUint32(b[4:8], c.DwFrameInterval)
	binary.LittleEndian.PutUint16(b[8:10], c.WKeyFrameRate)
	binary.LittleEndian.PutUint16(b[10:12], c.WPFrameRate)
	binary.LittleEndian.PutUint16(b[12:14], c.WCompQuality)
	binary.LittleEndian.PutUint16(b[14:16], c.WCompWindowSize)
	binary.LittleEndian.PutUint16(b[16:18], c.WDelay)
	binary.LittleEndian.PutUint32(b[18:22], c.DwMaxVideoFrameSize)
	binary.LittleEndian.PutUint32(b[22:26], c.DwMaxPayloadTransferSize)
	binary.LittleEndian.PutUint32(b[26:30], c.DwClockFrequency)
	b[30] = c.BmFramingInfo
	b[31] = c.BPreferredVersion
	b[32] = c.BMinVersion
	b[33] = c.BMaxVersion
	// bytes 34..48 are reserved padding, left zero.
	return b
}

// Unmarshal populates the structure from a 48-byte (or longer; extra
// bytes ignored) little-endian wire payload.
func (c *StreamingControl) Unmarshal(b []byte) error {
	if len(b) < StreamingControlWireSize {
		return fmt.Errorf("streaming control payload too short: %d bytes", len(b))
	}
	c.BmHint = binary.LittleEndian.Uint16(b[0:2])
	c.BFormatIndex = b[2]
	c.BFrameIndex = b[3]
	c.DwFrameInterval = binary.LittleEndian.Uint32(b[4:8])
	c.WKeyFrameRate = binary.LittleEndian.Uint16(b[8:10])
	c.WPFrameRate = binary.LittleEndian.Uint16(b[10:12])
	c.WCompQuality = binary.LittleEndian.Uint16(b[12:14])
	c.WCompWindowSize = binary.LittleEndian.Uint16(b[14:16])
	c.WDelay = binary.LittleEndian.Uint16(b[16:18])
	c.DwMaxVideoFrameSize = binary.LittleEndian.Uint32(b[18:22])
	c.DwMaxPayloadTransferSize = binary.LittleEndian.Uint32(b[22:26])
	c.DwClockFrequency = binary.LittleEndian.Uint32(b[26:30])
	c.BmFramingInfo = b[30]
	c.BPreferredVersion = b[31]
	c.BMinVersion = b[32]
	c.BMaxVersion = b[33]
	return nil
}
