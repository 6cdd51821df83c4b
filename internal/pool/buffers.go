// Package pool holds sync.Pool-backed byte buffers for the transport
// layer, so a steady stream of queries doesn't allocate a fresh receive
// buffer per exchange.
package pool

import "sync"

const (
	// UDPBufferSize holds one UDP reply, including an EDNS(0) payload
	// up to the advertised 1232-byte size with headroom to spare.
	UDPBufferSize = 4096

	// FramedBufferSize holds one length-prefixed TCP/TLS reply, the
	// maximum a 16-bit RFC 1035 length prefix can carry.
	FramedBufferSize = 65535
)

var udpPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, UDPBufferSize)
		return &buf
	},
}

var framedPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, FramedBufferSize)
		return &buf
	},
}

// GetUDPBuffer returns a buffer of length UDPBufferSize.
func GetUDPBuffer() []byte {
	bufPtr := udpPool.Get().(*[]byte)
	return (*bufPtr)[:UDPBufferSize]
}

// PutUDPBuffer returns buf to the pool. Undersized buffers (e.g. a
// caller-supplied slice) are dropped rather than pooled.
func PutUDPBuffer(buf []byte) {
	if cap(buf) < UDPBufferSize {
		return
	}
	buf = buf[:cap(buf)]
	udpPool.Put(&buf)
}

// GetFramedBuffer returns a buffer of length FramedBufferSize for a
// length-prefixed TCP or TLS reply.
func GetFramedBuffer() []byte {
	bufPtr := framedPool.Get().(*[]byte)
	return (*bufPtr)[:FramedBufferSize]
}

// PutFramedBuffer returns buf to the pool.
func PutFramedBuffer(buf []byte) {
	if cap(buf) < FramedBufferSize {
		return
	}
	buf = buf[:cap(buf)]
	framedPool.Put(&buf)
}
