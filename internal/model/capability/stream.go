package capability

import (
	"context"
	"io"
	"sync"
)

// Stream is a lazy, finite, non-restartable sequence of response chunks.
// Exactly one producer goroutine pushes chunks and ends the stream with Close
// or Fail; the consumer pulls with Recv and may Cancel at any point, after
// which Push fails and the producer is expected to stop promptly.
type Stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	ch     chan string

	once sync.Once
	err  error
}

// NewStream returns a stream whose producer context is derived from parent.
func NewStream(parent context.Context) *Stream {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Stream{
		ctx:    ctx,
		cancel: cancel,
		// Unbuffered: production is paced by consumption.
		ch: make(chan string),
	}
}

// Push delivers one chunk to the consumer. It blocks until the chunk is
// consumed and returns the cancellation cause once the stream is cancelled.
func (s *Stream) Push(chunk string) error {
	select {
	case s.ch <- chunk:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// Close ends the sequence. Recv returns io.EOF once drained.
func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.ch)
	})
}

// Fail ends the sequence with a terminal error returned by Recv.
func (s *Stream) Fail(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.ch)
	})
}

// Recv blocks for the next chunk. It returns io.EOF after Close, the terminal
// error after Fail, or ctx.Err() when the caller's context ends first.
func (s *Stream) Recv(ctx context.Context) (string, error) {
	select {
	case chunk, ok := <-s.ch:
		if !ok {
			if s.err != nil {
				return "", s.err
			}
			return "", io.EOF
		}
		return chunk, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Cancel stops the producer. Safe to call from the consumer at any time and
// more than once.
func (s *Stream) Cancel() {
	s.cancel()
}

// Context is done once the stream is cancelled; producers doing their own
// blocking work should watch it.
func (s *Stream) Context() context.Context {
	return s.ctx
}
