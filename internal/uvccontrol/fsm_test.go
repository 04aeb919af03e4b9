package uvccontrol

import (
	"testing"

	"github.com/usbcamd/usbcamd/pkg/linuxav/v4l2"
)

func testCatalogue() *Catalogue {
	return &Catalogue{Formats: []Format{
		{
			Index:  1,
			FourCC: v4l2.V4L2_PIX_FMT_YUYV,
			Frames: []Frame{
				{Index: 1, Width: 640, Height: 480, Intervals: []uint32{333333, 666666}},
				{Index: 2, Width: 1280, Height: 720, Intervals: []uint32{666666}},
			},
		},
	}}
}

func setupRequest(bRequestType, bRequest uint8, wValue, wIndex, wLength uint16) *v4l2.UvcEvent {
	ev := &v4l2.UvcEvent{Type: v4l2.UVC_EVENT_SETUP}
	// Setup is populated through the package's own decoding path in
	// production; tests build it directly since the field names are
	// exported for exactly this purpose.
	ev.Setup.BRequestType = bRequestType
	ev.Setup.BRequest = bRequest
	ev.Setup.WValue = wValue
	ev.Setup.WIndex = wIndex
	ev.Setup.WLength = wLength
	return ev
}

const (
	classInterfaceOut = v4l2.USB_TYPE_CLASS | v4l2.USB_RECIP_INTERFACE
)

func TestControlInterfaceStub(t *testing.T) {
	c := NewController(nil, testCatalogue(), nil)
	ev := setupRequest(classInterfaceOut, v4l2.UVC_GET_INFO, 0, 0, 1)
	resp := c.HandleSetup(ev)
	if len(resp) != 1 || resp[0] != 0x03 {
		t.Fatalf("control interface stub = %v, want [0x03]", resp)
	}
}

func TestStreamingGetLenByteOrder(t *testing.T) {
	c := NewController(nil, testCatalogue(), nil)
	wValue := uint16(v4l2.UVC_VS_PROBE_CONTROL) << 8
	ev := setupRequest(classInterfaceOut, v4l2.UVC_GET_LEN, wValue, 1, 2)
	resp := c.HandleSetup(ev)
	if len(resp) != 2 || resp[0] != 0x30 || resp[1] != 0x00 {
		t.Fatalf("GET_LEN response = %#v, want [0x30 0x00]", resp)
	}
}

func TestStreamingGetInfo(t *testing.T) {
	c := NewController(nil, testCatalogue(), nil)
	wValue := uint16(v4l2.UVC_VS_COMMIT_CONTROL) << 8
	ev := setupRequest(classInterfaceOut, v4l2.UVC_GET_INFO, wValue, 1, 1)
	resp := c.HandleSetup(ev)
	if len(resp) != 1 || resp[0] != 0x03 {
		t.Fatalf("GET_INFO response = %v, want [0x03]", resp)
	}
}

func TestStreamingGetMaxClampsToLastEntries(t *testing.T) {
	c := NewController(nil, testCatalogue(), nil)
	wValue := uint16(v4l2.UVC_VS_PROBE_CONTROL) << 8
	ev := setupRequest(classInterfaceOut, v4l2.UVC_GET_MAX, wValue, 1, 48)
	resp := c.HandleSetup(ev)
	if len(resp) != v4l2.StreamingControlWireSize {
		t.Fatalf("GET_MAX response length = %d, want %d", len(resp), v4l2.StreamingControlWireSize)
	}
	var sc v4l2.StreamingControl
	if err := sc.Unmarshal(resp); err != nil {
		t.Fatal(err)
	}
	if sc.BFormatIndex != 1 || sc.BFrameIndex != 2 {
		t.Errorf("GET_MAX = format %d frame %d, want 1,2 (last catalogued entries)", sc.BFormatIndex, sc.BFrameIndex)
	}
}

func TestStreamingGetMinDefIsFirstEntry(t *testing.T) {
	c := NewController(nil, testCatalogue(), nil)
	wValue := uint16(v4l2.UVC_VS_PROBE_CONTROL) << 8
	ev := setupRequest(classInterfaceOut, v4l2.UVC_GET_MIN, wValue, 1, 48)
	resp := c.HandleSetup(ev)
	var sc v4l2.StreamingControl
	if err := sc.Unmarshal(resp); err != nil {
		t.Fatal(err)
	}
	if sc.BFormatIndex != 1 || sc.BFrameIndex != 1 {
		t.Errorf("GET_MIN = format %d frame %d, want 1,1", sc.BFormatIndex, sc.BFrameIndex)
	}
}

func TestSetCurThenDataLatchesProbe(t *testing.T) {
	c := NewController(nil, testCatalogue(), nil)
	wValue := uint16(v4l2.UVC_VS_PROBE_CONTROL) << 8

	setCur := setupRequest(classInterfaceOut, v4l2.UVC_SET_CUR, wValue, 1, 48)
	resp := c.HandleSetup(setCur)
	if len(resp) != v4l2.StreamingControlWireSize {
		t.Fatalf("SET_CUR response length = %d, want %d", len(resp), v4l2.StreamingControlWireSize)
	}
	if c.selector != SelectorProbe {
		t.Fatalf("selector after SET_CUR(PROBE) = %v, want SelectorProbe", c.selector)
	}

	payload := v4l2.StreamingControl{BFormatIndex: 1, BFrameIndex: 1, DwFrameInterval: 666666}
	wire := payload.Marshal()
	if err := c.HandleData(wire[:]); err != nil {
		t.Fatalf("HandleData: %v", err)
	}
	if c.probe.BFormatIndex != 1 || c.probe.BFrameIndex != 1 {
		t.Errorf("probe after DATA = %+v", c.probe)
	}

	getCur := setupRequest(classInterfaceOut, v4l2.UVC_GET_CUR, wValue, 1, 48)
	resp = c.HandleSetup(getCur)
	var sc v4l2.StreamingControl
	if err := sc.Unmarshal(resp); err != nil {
		t.Fatal(err)
	}
	if sc.BFrameIndex != 1 {
		t.Errorf("GET_CUR after probe DATA = %+v, want BFrameIndex 1", sc)
	}
}

func TestDataWithoutLatchedSelectorIsIgnored(t *testing.T) {
	c := NewController(nil, testCatalogue(), nil)
	payload := v4l2.StreamingControl{BFormatIndex: 1, BFrameIndex: 1}
	wire := payload.Marshal()
	if err := c.HandleData(wire[:]); err != nil {
		t.Fatalf("HandleData with no latched selector should not error, got %v", err)
	}
}

func TestStandardRequestsAreIgnored(t *testing.T) {
	c := NewController(nil, testCatalogue(), nil)
	ev := setupRequest(v4l2.USB_TYPE_STANDARD, 0, 0, 0, 0)
	if resp := c.HandleSetup(ev); resp != nil {
		t.Errorf("standard request should yield nil response, got %v", resp)
	}
}

func TestUnknownInterfaceIsIgnored(t *testing.T) {
	c := NewController(nil, testCatalogue(), nil)
	ev := setupRequest(classInterfaceOut, v4l2.UVC_GET_INFO, 0, 9, 1)
	if resp := c.HandleSetup(ev); resp != nil {
		t.Errorf("unknown interface should yield nil response, got %v", resp)
	}
}
