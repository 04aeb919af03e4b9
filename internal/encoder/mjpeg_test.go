package encoder

import (
	"bytes"
	"image/jpeg"
	"testing"
)

// TestMJPEGPaddingPreservesHeight encodes a height that is not a
// multiple of 16 (the JPEG MCU height for 4:2:0 subsampling) and verifies the
// round-tripped image reports the true, unpadded height.
func TestMJPEGPaddingPreservesHeight(t *testing.T) {
	w, h := 64, 478 // not a multiple of 16
	src := NewI420(w, h)
	for row := 0; row < h; row++ {
		lum := byte(row % 200)
		for col := 0; col < w; col++ {
			src.Y[row*src.YStride+col] = lum
		}
	}
	// Give the true last row a distinct value; the encoder replicates it
	// into the MCU padding below the image.
	for col := 0; col < w; col++ {
		src.Y[(h-1)*src.YStride+col] = 250
	}

	dst := make([]byte, 4*1024*1024)
	n, err := src.ToMJPEG(dst)
	if err != nil {
		t.Fatal(err)
	}

	img, err := jpeg.Decode(bytes.NewReader(dst[:n]))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dy() != h {
		t.Fatalf("decoded height = %d, want %d", bounds.Dy(), h)
	}
	if bounds.Dx() != w {
		t.Fatalf("decoded width = %d, want %d", bounds.Dx(), w)
	}
}

func TestMJPEGDestinationTooSmall(t *testing.T) {
	src := NewI420(640, 480)
	dst := make([]byte, 4)
	if _, err := src.ToMJPEG(dst); err == nil {
		t.Fatal("expected error for undersized destination")
	}
}
