package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultQueueSize is the receive buffer capacity in bytes.
	DefaultQueueSize = 4096

	// DefaultWriteTimeout bounds a single WriteBytes on links that support
	// write deadlines.
	DefaultWriteTimeout = time.Second
)

// writeDeadliner is implemented by links with native write deadlines, such
// as net.Conn.
type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Queue buffers bytes read from an underlying link into a bounded queue the
// runtime drains without blocking. A background goroutine plays the part of
// the receive interrupt; bytes arriving while the queue is full are dropped
// and counted, like a UART overrun.
type Queue struct {
	rw           io.ReadWriter
	bytes        chan byte
	writeTimeout time.Duration

	dropped atomic.Uint64
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// NewQueue starts draining rw into a queue of the given capacity. A
// non-positive capacity selects DefaultQueueSize.
func NewQueue(rw io.ReadWriter, capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	q := &Queue{
		rw:           rw,
		bytes:        make(chan byte, capacity),
		writeTimeout: DefaultWriteTimeout,
		done:         make(chan struct{}),
	}
	go q.receive()
	return q
}

func (q *Queue) receive() {
	defer close(q.done)

	buf := make([]byte, 256)
	for {
		n, err := q.rw.Read(buf)
		for _, b := range buf[:n] {
			select {
			case q.bytes <- b:
			default:
				q.dropped.Add(1)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				q.mu.Lock()
				q.err = err
				q.mu.Unlock()
			}
			return
		}
	}
}

// ByteAvailable implements Transport.
func (q *Queue) ByteAvailable() bool {
	return len(q.bytes) > 0
}

// ReadByte implements Transport.
func (q *Queue) ReadByte() (byte, error) {
	select {
	case b := <-q.bytes:
		return b, nil
	default:
		return 0, ErrNoData
	}
}

// SetWriteTimeout changes the write deadline applied to links that support
// one. Zero disables it. Not safe to call concurrently with WriteBytes.
func (q *Queue) SetWriteTimeout(d time.Duration) {
	q.writeTimeout = d
}

// WriteBytes implements Transport. On links with write deadlines a peer
// that stops reading fails the write after the write timeout instead of
// blocking the caller.
func (q *Queue) WriteBytes(p []byte) error {
	if d, ok := q.rw.(writeDeadliner); ok && q.writeTimeout > 0 {
		if err := d.SetWriteDeadline(time.Now().Add(q.writeTimeout)); err != nil {
			return fmt.Errorf("transport write deadline: %w", err)
		}
		defer d.SetWriteDeadline(time.Time{})
	}

	for len(p) > 0 {
		n, err := q.rw.Write(p)
		if err != nil {
			return fmt.Errorf("transport write: %w", err)
		}
		p = p[n:]
	}
	return nil
}

// Dropped returns the number of bytes lost to a full queue.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Err returns the error that stopped the receiver, if any. A clean EOF is
// not an error.
func (q *Queue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// Done is closed when the receiver stops.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Close closes the underlying link if it is an io.Closer and waits for the
// receiver to stop.
func (q *Queue) Close() error {
	var err error
	if c, ok := q.rw.(io.Closer); ok {
		err = c.Close()
	}
	<-q.done
	return err
}
