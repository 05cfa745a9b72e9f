// Package capture provides frame sources for the pipeline: a bounded
// in-memory channel fed by a producer, and a directory of image files.
package capture

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/okian/learnpath/internal/domain/model"
	"github.com/okian/learnpath/pkg/metrics"
)

const defaultChannelCapacity = 64

// ChannelSource is a bounded frame buffer. Producers Push without
// blocking; Close marks the producer side exhausted; Stop is the
// consumer's cancel signal.
type ChannelSource struct {
	frames   chan model.Frame
	capacity int
	stop     chan struct{}
	stopOnce sync.Once

	mu      sync.RWMutex
	closed  bool
	stopped bool
	seq     int
}

// NewChannelSource creates a channel source.
func NewChannelSource(opts ...ChannelOption) *ChannelSource {
	s := &ChannelSource{
		capacity: defaultChannelCapacity,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.frames = make(chan model.Frame, s.capacity)
	metrics.UpdateFrameQueue(0, s.capacity)
	return s
}

// Push offers one encoded frame. It returns false when the buffer is full,
// the source was closed or stopped, or ctx is done.
func (s *ChannelSource) Push(ctx context.Context, data []byte, source string) bool {
	if ctx.Err() != nil {
		metrics.RecordFrameDropped()
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.stopped {
		metrics.RecordFrameDropped()
		metrics.RecordErrorByComponent("capture", "closed")
		return false
	}

	f := model.Frame{Seq: s.seq + 1, Data: data, Source: source, CapturedAt: time.Now()}
	select {
	case s.frames <- f:
		s.seq++
		metrics.RecordFrameEnqueued()
		metrics.UpdateFrameQueue(len(s.frames), s.capacity)
		return true
	default:
		metrics.RecordFrameDropped()
		metrics.RecordErrorByComponent("capture", "queue_full")
		return false
	}
}

// Close marks the producer side exhausted. Buffered frames stay readable.
func (s *ChannelSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	close(s.frames)
	s.closed = true
	return nil
}

// HasMore reports whether Next may still yield a frame.
func (s *ChannelSource) HasMore() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return false
	}
	return !s.closed || len(s.frames) > 0
}

// Next blocks for the next frame. It returns io.EOF once the source is
// closed and drained or stopped, and ctx.Err() if ctx ends first.
func (s *ChannelSource) Next(ctx context.Context) (model.Frame, error) {
	select {
	case <-s.stop:
		return model.Frame{}, io.EOF
	default:
	}
	select {
	case f, ok := <-s.frames:
		if !ok {
			return model.Frame{}, io.EOF
		}
		metrics.RecordFrameDequeued()
		metrics.UpdateFrameQueue(len(s.frames), s.capacity)
		return f, nil
	case <-s.stop:
		return model.Frame{}, io.EOF
	case <-ctx.Done():
		return model.Frame{}, ctx.Err()
	}
}

// Stop ends the sequence for the consumer and rejects further pushes.
func (s *ChannelSource) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.stop)
	})
}

// Len returns the number of buffered frames.
func (s *ChannelSource) Len() int {
	return len(s.frames)
}

// IsClosed reports whether the producer side was closed.
func (s *ChannelSource) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
