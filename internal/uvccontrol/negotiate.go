package uvccontrol

import "github.com/usbcamd/usbcamd/pkg/linuxav/v4l2"

// FormatTriplet is the negotiation currency exchanged over UVC:
// a format index, a frame index, and a requested frame interval in
// 100ns units.
type FormatTriplet struct {
	FormatIndex uint8
	FrameIndex  uint8
	Interval    uint32
}

// Negotiate clamps t's format/frame indices into range, picks the
// smallest catalogued interval that is >= t.Interval (falling back to
// the maximum), and returns the resulting StreamingControl alongside
// the resolved frame. Negotiate is idempotent: negotiating the result
// of a prior negotiation a second time yields the identical structure,
// since clamping and interval selection are both stable under re-
// application of already-valid values.
func (c *Catalogue) Negotiate(t FormatTriplet) (v4l2.StreamingControl, Frame, bool) {
	if t.FormatIndex == 0 || c.NumFormats() == 0 {
		return v4l2.StreamingControl{}, Frame{}, false
	}

	chosenFormatIdx := clampIndex(t.FormatIndex, uint8(c.NumFormats()))
	format, ok := c.Format(chosenFormatIdx)
	if !ok || len(format.Frames) == 0 {
		return v4l2.StreamingControl{}, Frame{}, false
	}

	if t.FrameIndex == 0 {
		return v4l2.StreamingControl{}, Frame{}, false
	}
	chosenFrameIdx := clampIndex(t.FrameIndex, uint8(len(format.Frames)))
	frame, ok := format.Frame(chosenFrameIdx)
	if !ok {
		return v4l2.StreamingControl{}, Frame{}, false
	}

	chosenInterval := selectInterval(frame.Intervals, t.Interval)

	sc := v4l2.StreamingControl{
		BmHint:                   1,
		BFormatIndex:             chosenFormatIdx,
		BFrameIndex:              chosenFrameIdx,
		DwFrameInterval:          chosenInterval,
		DwMaxPayloadTransferSize: 3072,
		DwMaxVideoFrameSize:      frame.Width * frame.Height * 2, // YUY2 exact, MJPEG worst-case upper bound
		BmFramingInfo:            3,
		BPreferredVersion:        1,
		BMaxVersion:              1,
	}
	return sc, frame, true
}

// clampIndex clamps a non-zero 1-based index into [1, max].
func clampIndex(requested, max uint8) uint8 {
	if requested > max {
		return max
	}
	return requested
}

// selectInterval picks the first interval >= requested out of a
// sorted-ascending slice, falling back to the maximum (last) entry.
func selectInterval(sorted []uint32, requested uint32) uint32 {
	if len(sorted) == 0 {
		return 0
	}
	for _, v := range sorted {
		if v >= requested {
			return v
		}
	}
	return sorted[len(sorted)-1]
}
