package uvccontrol

import "testing"

func TestNegotiateClampsOutOfRangeIndices(t *testing.T) {
	cat := testCatalogue()
	sc, frame, ok := cat.Negotiate(FormatTriplet{FormatIndex: 0xFF, FrameIndex: 0xFF, Interval: 1})
	if !ok {
		t.Fatal("expected negotiation to succeed via clamping")
	}
	if sc.BFormatIndex != 1 || sc.BFrameIndex != 2 {
		t.Errorf("clamped to format %d frame %d, want 1,2", sc.BFormatIndex, sc.BFrameIndex)
	}
	if frame.Width != 1280 || frame.Height != 720 {
		t.Errorf("clamped frame = %dx%d, want 1280x720", frame.Width, frame.Height)
	}
}

func TestNegotiateZeroFormatIndexAborts(t *testing.T) {
	cat := testCatalogue()
	if _, _, ok := cat.Negotiate(FormatTriplet{FormatIndex: 0, FrameIndex: 1}); ok {
		t.Error("expected FormatIndex 0 to abort negotiation")
	}
}

func TestNegotiateZeroFrameIndexAborts(t *testing.T) {
	cat := testCatalogue()
	if _, _, ok := cat.Negotiate(FormatTriplet{FormatIndex: 1, FrameIndex: 0}); ok {
		t.Error("expected FrameIndex 0 to abort negotiation")
	}
}

func TestNegotiateIsIdempotent(t *testing.T) {
	cat := testCatalogue()
	sc1, _, ok := cat.Negotiate(FormatTriplet{FormatIndex: 1, FrameIndex: 1, Interval: 500000})
	if !ok {
		t.Fatal("first negotiation failed")
	}
	sc2, _, ok := cat.Negotiate(FormatTriplet{FormatIndex: sc1.BFormatIndex, FrameIndex: sc1.BFrameIndex, Interval: sc1.DwFrameInterval})
	if !ok {
		t.Fatal("second negotiation failed")
	}
	if sc1 != sc2 {
		t.Errorf("negotiation not idempotent: %+v != %+v", sc1, sc2)
	}
}

func TestNegotiateIntervalSelectsNearestAtOrAbove(t *testing.T) {
	cat := testCatalogue()
	sc, _, ok := cat.Negotiate(FormatTriplet{FormatIndex: 1, FrameIndex: 1, Interval: 400000})
	if !ok {
		t.Fatal("negotiation failed")
	}
	if sc.DwFrameInterval != 666666 {
		t.Errorf("interval = %d, want 666666 (next >= 400000)", sc.DwFrameInterval)
	}
}
