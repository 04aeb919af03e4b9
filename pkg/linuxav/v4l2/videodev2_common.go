//go:build linux

package v4l2

// v4l2_pix_format describes a single-planar pixel format. Identical
// layout on every architecture; none of its fields are pointer-sized.
type v4l2_pix_format struct {
	width        uint32
	height       uint32
	pixelformat  uint32
	field        uint32
	bytesperline uint32
	sizeimage    uint32
	colorspace   uint32
	priv         uint32
	flags        uint32
	ycbcr_enc    uint32
	quantization uint32
	xfer_func    uint32
}

// v4l2_format wraps the kernel's format union. Only the pix branch is
// used by this package; the remainder of the union is unused padding.
type v4l2_format struct {
	typ uint32
	pix v4l2_pix_format
	_   [152]byte
}

// v4l2_requestbuffers is used with VIDIOC_REQBUFS to allocate the
// kernel-side buffer queue.
type v4l2_requestbuffers struct {
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	reserved     [3]uint8
}

// v4l2_timecode is embedded in v4l2_buffer; unused by this package but
// required to keep the buffer struct's field offsets correct.
type v4l2_timecode struct {
	typ      uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}
