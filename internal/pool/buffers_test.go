package pool

import "testing"

func TestGetUDPBuffer(t *testing.T) {
	buf := GetUDPBuffer()
	if len(buf) != UDPBufferSize {
		t.Errorf("len = %d, want %d", len(buf), UDPBufferSize)
	}
	copy(buf, []byte("test"))
	PutUDPBuffer(buf)

	buf2 := GetUDPBuffer()
	if len(buf2) != UDPBufferSize {
		t.Errorf("len = %d, want %d", len(buf2), UDPBufferSize)
	}
}

func TestGetFramedBuffer(t *testing.T) {
	buf := GetFramedBuffer()
	if len(buf) != FramedBufferSize {
		t.Errorf("len = %d, want %d", len(buf), FramedBufferSize)
	}
	PutFramedBuffer(buf)

	buf2 := GetFramedBuffer()
	if len(buf2) != FramedBufferSize {
		t.Errorf("len = %d, want %d", len(buf2), FramedBufferSize)
	}
}

func TestPutUDPBufferUndersizedIsDropped(t *testing.T) {
	// Must not panic, and must not corrupt the pool for later gets.
	PutUDPBuffer(make([]byte, 10))
	buf := GetUDPBuffer()
	if len(buf) != UDPBufferSize {
		t.Errorf("len = %d, want %d", len(buf), UDPBufferSize)
	}
}
