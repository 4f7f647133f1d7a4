package video

import "testing"

func TestH264TagByte(t *testing.T) {
	if got := H264TagByte(true); got != 0x17 {
		t.Errorf("H264TagByte(true) = 0x%02X, want 0x17", got)
	}
	if got := H264TagByte(false); got != 0x27 {
		t.Errorf("H264TagByte(false) = 0x%02X, want 0x27", got)
	}
}

func TestTagByte(t *testing.T) {
	if got := TagByte(GeneratedKeyFrame, ScreenVideo); got != 0x43 {
		t.Errorf("TagByte = 0x%02X, want 0x43", got)
	}
}
