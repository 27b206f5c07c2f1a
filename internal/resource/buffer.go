package resource

import (
	"io"
	"sync"
)

// streamBuffer decouples the network reader from the decoder. Writes block
// once the high-water mark is reached so an unplayed stream cannot grow the
// buffer without bound; reads block while the buffer is empty and open.
type streamBuffer struct {
	mu        sync.Mutex
	cond      *sync.Cond
	data      []byte
	total     int64
	highWater int
	closed    bool
	err       error
}

func newStreamBuffer(highWater int) *streamBuffer {
	b := &streamBuffer{highWater: highWater}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *streamBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.data) >= b.highWater && !b.closed {
		b.cond.Wait()
	}
	if b.closed {
		return 0, b.closeErr()
	}

	b.data = append(b.data, p...)
	b.total += int64(len(p))
	b.cond.Broadcast()
	return len(p), nil
}

func (b *streamBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.data) == 0 && !b.closed {
		b.cond.Wait()
	}
	if len(b.data) == 0 {
		return 0, b.closeErr()
	}

	n := copy(p, b.data)
	b.data = b.data[n:]
	b.cond.Broadcast()
	return n, nil
}

// CloseWithError unblocks all readers and writers. Buffered data remains
// readable; once drained, reads return err (or io.EOF when err is nil).
func (b *streamBuffer) CloseWithError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.err = err
	b.cond.Broadcast()
}

// Total returns the number of bytes ever written, the readiness measure.
func (b *streamBuffer) Total() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func (b *streamBuffer) closeErr() error {
	if b.err != nil {
		return b.err
	}
	return io.EOF
}
