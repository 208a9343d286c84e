package acquire

import (
	"sync"

	"github.com/nasa-jpl/goscan/device"
)

// Buffer is the image being assembled.  The engine is its only writer and
// takes the lock around every mutation; readers take it with Lock or use
// Snapshot.
type Buffer struct {
	mu   sync.Mutex
	data []byte
}

// Lock locks the buffer for reading with Bytes
func (b *Buffer) Lock() { b.mu.Lock() }

// Unlock releases a Lock
func (b *Buffer) Unlock() { b.mu.Unlock() }

// Bytes returns the buffer contents.  The caller must hold the lock and must
// not keep the slice past Unlock.
func (b *Buffer) Bytes() []byte { return b.data }

// Snapshot copies the current contents
func (b *Buffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...)
}

// Len is the number of bytes in the buffer
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// reset empties the buffer.  Plane images are scattered into place, so their
// buffer starts zero filled at full size.
func (b *Buffer) reset(size int, zeroed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if zeroed {
		b.data = make([]byte, size)
		return
	}
	b.data = make([]byte, 0, size)
}

func (b *Buffer) append(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
}

// scatter writes plane bytes p, starting at plane index start, into their
// interleaved offsets
func (b *Buffer) scatter(p []byte, start int, f device.Frame, depth int) {
	if len(p) == 0 {
		return
	}
	last := PlaneOffset(start+len(p)-1, f, depth)
	b.mu.Lock()
	defer b.mu.Unlock()
	if last >= len(b.data) {
		grown := make([]byte, last+1)
		copy(grown, b.data)
		b.data = grown
	}
	for i, v := range p {
		b.data[PlaneOffset(start+i, f, depth)] = v
	}
}

// PlaneOffset is the interleaved offset of byte i of a single color plane
func PlaneOffset(i int, f device.Frame, depth int) int {
	ch := int(f - device.FrameRed)
	if depth == 16 {
		return (i/2)*6 + i%2 + ch*2
	}
	return i*3 + ch
}

// Invert complements every sample of p in place.  16 bit samples are
// complemented a whole word at a time; a trailing odd byte is left alone.
func Invert(p []byte, depth int) {
	n := len(p)
	if depth == 16 {
		n -= n % 2
	}
	for i := 0; i < n; i++ {
		p[i] = ^p[i]
	}
}
