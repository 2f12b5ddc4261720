package stream

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Frame is one unit of the reply protocol sent to the client: a single
// character, or the terminal done marker.
type Frame struct {
	Content string
	Done    bool
}

// Pacer drains a Buffer character by character and hands each character
// to an emit callback after a randomized typing delay.
type Pacer struct {
	src          *Buffer
	stopUpstream func()
	delayFor     func(r rune) time.Duration

	cancelOnce sync.Once
	cancelled  chan struct{}
}

// NewPacer wires a pacer to its chunk source. stopUpstream is invoked
// once on cancellation to tell the producer to stop; it may be nil.
func NewPacer(src *Buffer, stopUpstream func()) *Pacer {
	return &Pacer{
		src:          src,
		stopUpstream: stopUpstream,
		delayFor:     typingDelay,
		cancelled:    make(chan struct{}),
	}
}

// Cancel halts frame emission, abandoning any in-flight delay, and
// signals the upstream producer to stop. Safe to call concurrently with
// Run and more than once.
func (p *Pacer) Cancel() {
	p.cancelOnce.Do(func() {
		close(p.cancelled)
		if p.stopUpstream != nil {
			p.stopUpstream()
		}
	})
}

// Run emits one frame per upstream character, a Done frame when the
// stream is exhausted, and nothing further once cancelled. Carriage
// returns are swallowed. ctx cancellation behaves like Cancel. The
// return value is the upstream stream error, if any; cancellation is
// not an error.
func (p *Pacer) Run(ctx context.Context, emit func(Frame) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			p.Cancel()
		case <-finished:
		}
	}()

	for {
		chunk, ok := p.src.next(p.cancelled)
		if p.isCancelled() {
			return nil
		}
		if !ok {
			return emit(Frame{Done: true})
		}
		if chunk.Err != nil {
			return chunk.Err
		}

		for _, r := range chunk.Text {
			if r == '\r' {
				continue
			}
			if p.isCancelled() {
				return nil
			}
			if err := emit(Frame{Content: string(r)}); err != nil {
				p.Cancel()
				return err
			}
			if !p.wait(p.delayFor(r)) {
				return nil
			}
		}
	}
}

func (p *Pacer) isCancelled() bool {
	select {
	case <-p.cancelled:
		return true
	default:
		return false
	}
}

// wait reports false when cancelled mid-delay.
func (p *Pacer) wait(d time.Duration) bool {
	if d <= 0 {
		return !p.isCancelled()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.cancelled:
		return false
	case <-timer.C:
		return true
	}
}

// typingDelay buckets characters into pause classes approximating a
// human typist: long after sentence breaks, short between words.
func typingDelay(r rune) time.Duration {
	switch {
	case r == '\n':
		return randomDelay(180, 260)
	case r == ' ':
		return randomDelay(18, 35)
	case strings.ContainsRune(".?!", r):
		return randomDelay(200, 320)
	case strings.ContainsRune(",;:", r):
		return randomDelay(150, 240)
	default:
		return randomDelay(12, 28)
	}
}

func randomDelay(minMs, maxMs int) time.Duration {
	return time.Duration(minMs+rand.Intn(maxMs-minMs+1)) * time.Millisecond
}
