package transport

import (
	"bytes"
	"sync"
)

// Buffer is a Transport backed by in-memory buffers. Inject feeds bytes to
// the reader side and Written collects everything sent.
//
// Buffer is safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	rx       []byte
	tx       bytes.Buffer
	writeErr error
}

// Inject queues bytes for ReadByte.
func (b *Buffer) Inject(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rx = append(b.rx, p...)
}

// ByteAvailable implements Transport.
func (b *Buffer) ByteAvailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rx) > 0
}

// ReadByte implements Transport.
func (b *Buffer) ReadByte() (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.rx) == 0 {
		return 0, ErrNoData
	}
	c := b.rx[0]
	b.rx = b.rx[1:]
	return c, nil
}

// WriteBytes implements Transport.
func (b *Buffer) WriteBytes(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return b.writeErr
	}
	b.tx.Write(p)
	return nil
}

// FailWrites makes every following write return err. A nil err clears it.
func (b *Buffer) FailWrites(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeErr = err
}

// Written returns and clears everything written so far.
func (b *Buffer) Written() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]byte(nil), b.tx.Bytes()...)
	b.tx.Reset()
	return out
}
