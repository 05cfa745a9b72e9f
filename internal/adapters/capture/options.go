package capture

import (
	"strings"
	"time"

	"github.com/okian/learnpath/pkg/logger"
)

// ChannelOption applies a configuration option to the ChannelSource.
type ChannelOption func(*ChannelSource)

// WithCapacity sets how many frames the channel buffers.
func WithCapacity(capacity int) ChannelOption {
	return func(s *ChannelSource) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// DirOption applies a configuration option to the DirSource.
type DirOption func(*DirSource)

// WithExtensions replaces the accepted file extensions, e.g. ".png".
func WithExtensions(exts ...string) DirOption {
	return func(s *DirSource) {
		if len(exts) == 0 {
			return
		}
		s.extensions = make([]string, len(exts))
		for i, e := range exts {
			e = strings.ToLower(strings.TrimSpace(e))
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			s.extensions[i] = e
		}
	}
}

// SessionOption applies a configuration option to Sessions.
type SessionOption func(*Sessions)

// WithSessionCapacity sets the frame buffer of each session.
func WithSessionCapacity(capacity int) SessionOption {
	return func(m *Sessions) {
		if capacity > 0 {
			m.capacity = capacity
		}
	}
}

// WithMaxSessions caps concurrently held sessions.
func WithMaxSessions(n int) SessionOption {
	return func(m *Sessions) {
		if n > 0 {
			m.max = n
		}
	}
}

// WithSessionTTL sets how long an uncollected result is kept.
func WithSessionTTL(d time.Duration) SessionOption {
	return func(m *Sessions) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(l logger.Logger) SessionOption {
	return func(m *Sessions) {
		if l != nil {
			m.logger = l
		}
	}
}
