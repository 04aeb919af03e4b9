// Package uvccontrol implements the UVC PROBE/COMMIT control-plane
// state machine: format/frame/interval enumeration, setup/data event
// dispatch, and negotiation of a FormatTriplet into a StreamingControl
// response.
package uvccontrol

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/usbcamd/usbcamd/pkg/linuxav/v4l2"
)

// UnitsPerSecond is the UVC frame-interval unit: 100ns ticks.
const UnitsPerSecond = 10_000_000

// Frame is one enumerated frame size and its ordered-ascending list of
// supported intervals, in 100ns units.
type Frame struct {
	Index     uint8
	Width     uint32
	Height    uint32
	Intervals []uint32
}

// Format is one enumerated pixel format and its 1-based, contiguous
// frame list.
type Format struct {
	Index  uint8
	FourCC uint32
	Frames []Frame
}

// Catalogue is the ordered format list enumerated once at device open.
type Catalogue struct {
	Formats []Format
}

// supportedFourCC restricts the catalogue to the two transports this
// gadget can actually produce.
var supportedFourCC = map[uint32]bool{
	v4l2.V4L2_PIX_FMT_YUYV:  true,
	v4l2.V4L2_PIX_FMT_MJPEG: true,
}

// BuildCatalogue enumerates formats, frame sizes, and frame intervals
// on devicePath, keeping only YUY2 and MJPEG entries. Any other fourcc
// reported by the kernel is logged and skipped.
func BuildCatalogue(devicePath string) (*Catalogue, error) {
	formats, err := v4l2.GetFormats(devicePath)
	if err != nil {
		return nil, fmt.Errorf("enumerate formats on %s: %w", devicePath, err)
	}

	cat := &Catalogue{}
	nextIndex := uint8(1)

	for _, f := range formats {
		if !supportedFourCC[f.PixelFormat] {
			slog.With("component", "uvccontrol").Info("skipping unsupported fourcc", "fourcc", v4l2.FormatFourCC(f.PixelFormat))
			continue
		}

		resolutions, resErr := v4l2.GetResolutions(devicePath, f.PixelFormat)
		if resErr != nil {
			return nil, fmt.Errorf("enumerate resolutions for %s: %w", v4l2.FormatFourCC(f.PixelFormat), resErr)
		}

		format := Format{Index: nextIndex, FourCC: f.PixelFormat}
		frameIndex := uint8(1)
		for _, res := range resolutions {
			rates, rateErr := v4l2.GetFramerates(devicePath, f.PixelFormat, res.Width, res.Height)
			if rateErr != nil {
				return nil, fmt.Errorf("enumerate framerates for %dx%d: %w", res.Width, res.Height, rateErr)
			}

			intervals := make([]uint32, 0, len(rates))
			for _, r := range rates {
				if r.Denominator == 0 {
					continue
				}
				intervals = append(intervals, uint32(uint64(r.Numerator)*UnitsPerSecond/uint64(r.Denominator)))
			}
			sort.Slice(intervals, func(i, j int) bool { return intervals[i] < intervals[j] })
			if len(intervals) == 0 {
				continue
			}

			format.Frames = append(format.Frames, Frame{
				Index:     frameIndex,
				Width:     res.Width,
				Height:    res.Height,
				Intervals: intervals,
			})
			frameIndex++
		}

		if len(format.Frames) == 0 {
			continue
		}
		cat.Formats = append(cat.Formats, format)
		nextIndex++
	}

	if len(cat.Formats) == 0 {
		return nil, fmt.Errorf("no supported formats (YUY2/MJPEG) advertised by %s", devicePath)
	}
	return cat, nil
}

// Format looks up a format by its 1-based index.
func (c *Catalogue) Format(index uint8) (Format, bool) {
	if index < 1 || int(index) > len(c.Formats) {
		return Format{}, false
	}
	return c.Formats[index-1], true
}

// Frame looks up a frame within a format by its 1-based index.
func (f Format) Frame(index uint8) (Frame, bool) {
	if index < 1 || int(index) > len(f.Frames) {
		return Frame{}, false
	}
	return f.Frames[index-1], true
}

// NumFormats returns the number of catalogued formats.
func (c *Catalogue) NumFormats() int { return len(c.Formats) }

// NumFrames returns the number of frames for the given 1-based format
// index, or 0 if the index is out of range.
func (c *Catalogue) NumFrames(formatIdx uint8) int {
	f, ok := c.Format(formatIdx)
	if !ok {
		return 0
	}
	return len(f.Frames)
}
