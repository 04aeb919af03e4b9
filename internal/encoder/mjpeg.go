package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// jpegQuality matches the baseline quality the UVC MJPEG format this
// gadget advertises expects: good enough for a live preview, cheap
// enough to run every frame on a dedicated worker.
const jpegQuality = 85

// ToMJPEG encodes src as a baseline JPEG into dst, returning the
// number of bytes written. Heights that are not a multiple of the
// JPEG MCU row size are handled by image/jpeg's own edge-replication
// padding of image.YCbCr — the same CLAMP_TO_EDGE behavior a raw-data
// libjpeg encode would need bespoke scanline-pointer tables for, here
// free from reusing the stdlib's internal subsampled-image handling.
func (src *I420) ToMJPEG(dst []byte) (int, error) {
	img := &image.YCbCr{
		Y:              src.Y,
		Cb:             src.U,
		Cr:             src.V,
		YStride:        src.YStride,
		CStride:        src.CStride,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, src.Width, src.Height),
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return 0, fmt.Errorf("jpeg encode: %w", err)
	}
	if buf.Len() > len(dst) {
		return 0, fmt.Errorf("jpeg output too large for destination: %d > %d", buf.Len(), len(dst))
	}
	n := copy(dst, buf.Bytes())
	return n, nil
}
