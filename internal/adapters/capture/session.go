package capture

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/learnpath/internal/domain/pipeline"
	"github.com/okian/learnpath/pkg/logger"
	"github.com/okian/learnpath/pkg/metrics"
)

const (
	defaultMaxSessions = 8
	defaultSessionTTL  = 10 * time.Minute
)

// RunFunc runs the pipeline over src for score.
type RunFunc func(ctx context.Context, src pipeline.FrameSource, score float64) (*pipeline.Result, error)

// session is one capture run fed by a remote producer.
type session struct {
	id     string
	src    *ChannelSource
	cancel context.CancelFunc
	done   chan struct{}

	// set before done is closed
	res        *pipeline.Result
	err        error
	finishedAt time.Time
}

func (s *session) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Sessions runs one pipeline per open session over a ChannelSource that a
// producer fills frame by frame. Results are kept until collected or until
// they are older than the session TTL.
type Sessions struct {
	run      RunFunc
	capacity int
	max      int
	ttl      time.Duration
	logger   logger.Logger

	mu       sync.Mutex
	sessions map[string]*session
	shutdown bool
	wg       sync.WaitGroup
}

// NewSessions creates a session manager that starts runs with run.
func NewSessions(run RunFunc, opts ...SessionOption) *Sessions {
	m := &Sessions{
		run:      run,
		capacity: defaultChannelCapacity,
		max:      defaultMaxSessions,
		ttl:      defaultSessionTTL,
		logger:   logger.Nop(),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open starts a capture run for score and returns its session id.
func (m *Sessions) Open(score float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return "", ErrSessionsShutdown
	}
	m.sweepLocked(time.Now())
	if len(m.sessions) >= m.max {
		return "", ErrTooManySessions
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     uuid.NewString(),
		src:    NewChannelSource(WithCapacity(m.capacity)),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.sessions[s.id] = s
	metrics.UpdateCaptureSessions(len(m.sessions))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		res, err := m.run(ctx, s.src, score)
		s.res, s.err, s.finishedAt = res, err, time.Now()
		close(s.done)
		if err != nil {
			m.logger.Warn(ctx, "capture session failed", logger.String("session_id", s.id), logger.Error(err))
			return
		}
		m.logger.Info(ctx, "capture session finished",
			logger.String("session_id", s.id),
			logger.Int("snapshots", res.Snapshots),
			logger.String("reason", res.StopReason),
		)
	}()

	m.logger.Info(ctx, "capture session opened", logger.String("session_id", s.id), logger.Float64("score", score))
	return s.id, nil
}

// Push hands one encoded frame to session id and returns how many frames
// are buffered.
func (m *Sessions) Push(ctx context.Context, id string, data []byte) (int, error) {
	s, err := m.get(id)
	if err != nil {
		return 0, err
	}
	if s.finished() {
		return 0, ErrSessionFinished
	}
	if !s.src.Push(ctx, data, "session:"+id) {
		if s.finished() || s.src.IsClosed() {
			return 0, ErrSessionFinished
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, ErrFrameRejected
	}
	return s.src.Len(), nil
}

// Close ends the producer side of session id. Buffered frames are still
// captured; the run then finishes as source exhausted.
func (m *Sessions) Close(id string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	return s.src.Close()
}

// Wait blocks until session id finishes and returns its result, removing
// the session. ErrSessionPending is returned if ctx ends first.
func (m *Sessions) Wait(ctx context.Context, id string) (*pipeline.Result, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return nil, ErrSessionPending
	}
	m.remove(id)
	return s.res, s.err
}

// Cancel stops session id and discards its result.
func (m *Sessions) Cancel(id string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	s.cancel()
	s.src.Stop()
	<-s.done
	m.remove(id)
	return nil
}

// Len returns the number of sessions, running or awaiting collection.
func (m *Sessions) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown cancels every session and waits for their runs to return.
func (m *Sessions) Shutdown() {
	m.mu.Lock()
	m.shutdown = true
	for _, s := range m.sessions {
		s.cancel()
		s.src.Stop()
	}
	m.sessions = make(map[string]*session)
	metrics.UpdateCaptureSessions(0)
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Sessions) get(id string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *Sessions) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	metrics.UpdateCaptureSessions(len(m.sessions))
}

// sweepLocked drops finished sessions nobody collected within the TTL.
func (m *Sessions) sweepLocked(now time.Time) {
	for id, s := range m.sessions {
		if s.finished() && now.Sub(s.finishedAt) > m.ttl {
			delete(m.sessions, id)
		}
	}
	metrics.UpdateCaptureSessions(len(m.sessions))
}
