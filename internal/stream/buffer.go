// Package stream re-chunks raw generator output into per-character
// protocol frames emitted with a typing cadence.
package stream

import "sync"

// Chunk is one unit of raw generator output.
type Chunk struct {
	Text string
	Err  error
}

// Buffer queues generator chunks for a single reply without ever
// blocking the producer, so server-side full-text accumulation never
// waits on a slow or disconnected frame consumer.
type Buffer struct {
	mu     sync.Mutex
	queue  []Chunk
	closed bool
	ready  chan struct{}
}

func NewBuffer() *Buffer {
	return &Buffer{ready: make(chan struct{}, 1)}
}

// Append enqueues a text chunk. Appends after Close are discarded.
func (b *Buffer) Append(text string) {
	if text == "" {
		return
	}
	b.push(Chunk{Text: text})
}

// Fail enqueues a stream-level error and closes the buffer.
func (b *Buffer) Fail(err error) {
	if err == nil {
		return
	}
	b.push(Chunk{Err: err})
	b.Close()
}

// Close marks the upstream stream as exhausted. Queued chunks remain
// readable.
func (b *Buffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.signal()
}

func (b *Buffer) push(chunk Chunk) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, chunk)
	b.mu.Unlock()
	b.signal()
}

func (b *Buffer) signal() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// next blocks until a chunk is available or the buffer is closed and
// drained. A closed stop channel unblocks it immediately with ok=false.
func (b *Buffer) next(stop <-chan struct{}) (Chunk, bool) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			chunk := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return chunk, true
		}
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return Chunk{}, false
		}

		select {
		case <-b.ready:
		case <-stop:
			return Chunk{}, false
		}
	}
}
