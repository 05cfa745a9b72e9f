package pipeline

import (
	"time"

	"github.com/okian/learnpath/pkg/logger"
)

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithInterval sets the pause between two captures. Zero captures
// back to back.
func WithInterval(d time.Duration) Option {
	return func(p *Pipeline) {
		if d >= 0 {
			p.interval = d
		}
	}
}

// WithSnapshotCount sets the target number of snapshots per run.
func WithSnapshotCount(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.count = n
		}
	}
}

// WithMinSnapshots sets how many snapshots an interrupted capture must
// have collected to still proceed to inference.
func WithMinSnapshots(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.minSnapshots = n
		}
	}
}

// WithCaptureTimeout caps the wall-clock time of acquisition. Zero derives
// the cap from interval and count.
func WithCaptureTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d >= 0 {
			p.captureTimeout = d
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}
