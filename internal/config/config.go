// Package config defines service configuration structures and loading hooks.
//
// Model dimensions, capture policy and the target label order are all
// configuration. They must agree with the persisted parameter snapshot.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Defaults mirror the dimensions the shipped parameters were trained with.
const (
	defaultInputDim        = 6
	defaultEmbedDim        = 32
	defaultNumHeads        = 2
	defaultHiddenDim       = 64
	defaultNumLayers       = 2
	defaultNumQuestions    = 5
	defaultNumClasses      = 3
	defaultLayerNormEps    = 1e-5
	defaultSnapshotCount   = 20
	defaultSnapshotEvery   = 5 * time.Second
	defaultClassifierLimit = 10 * time.Second
	captureGrace           = 30 * time.Second
	defaultFrameQueueSize  = 64
	defaultMaxSessions     = 8
)

// DefaultTargetLabels is the canonical label order of the expression part
// of the fused vector.
func DefaultTargetLabels() []string {
	return []string{"angry", "happy", "neutral", "sad", "surprise"}
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// ParamsPath names the persisted parameter snapshot (.json, .yaml).
	ParamsPath string `koanf:"params_path"`

	// QuestionBankPath names the YAML question bank served by /questions.
	QuestionBankPath string `koanf:"question_bank_path"`

	// Model dimensions.
	InputDim     int     `koanf:"input_dim"`
	EmbedDim     int     `koanf:"embed_dim"`
	NumHeads     int     `koanf:"num_heads"`
	HiddenDim    int     `koanf:"hidden_dim"`
	NumLayers    int     `koanf:"num_layers"`
	NumQuestions int     `koanf:"num_questions"`
	NumClasses   int     `koanf:"num_classes"`
	LayerNormEps float64 `koanf:"layer_norm_eps"`

	// Capture policy.
	SnapshotInterval time.Duration `koanf:"snapshot_interval"`
	SnapshotCount    int           `koanf:"snapshot_count"`
	MinSnapshots     int           `koanf:"min_snapshots"`
	// CaptureTimeout caps acquisition wall-clock time; zero derives it from
	// interval and count.
	CaptureTimeout time.Duration `koanf:"capture_timeout"`

	// FrameQueueSize bounds the frames buffered per live capture session.
	FrameQueueSize int `koanf:"frame_queue_size"`

	// MaxCaptureSessions caps concurrently held live capture sessions.
	MaxCaptureSessions int `koanf:"max_capture_sessions"`

	// TargetLabels fixes which classifier labels are kept and their order.
	TargetLabels []string `koanf:"target_labels"`

	// ClassifierURL is the expression classifier endpoint used by capture.
	ClassifierURL     string        `koanf:"classifier_url"`
	ClassifierTimeout time.Duration `koanf:"classifier_timeout"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		ParamsPath:         "adaptive_transformer.json",
		InputDim:           defaultInputDim,
		EmbedDim:           defaultEmbedDim,
		NumHeads:           defaultNumHeads,
		HiddenDim:          defaultHiddenDim,
		NumLayers:          defaultNumLayers,
		NumQuestions:       defaultNumQuestions,
		NumClasses:         defaultNumClasses,
		LayerNormEps:       defaultLayerNormEps,
		SnapshotInterval:   defaultSnapshotEvery,
		SnapshotCount:      defaultSnapshotCount,
		MinSnapshots:       1,
		FrameQueueSize:     defaultFrameQueueSize,
		MaxCaptureSessions: defaultMaxSessions,
		TargetLabels:       DefaultTargetLabels(),
		ClassifierTimeout:  defaultClassifierLimit,
	}
}

// EffectiveCaptureTimeout returns CaptureTimeout or, when unset, enough
// time for every snapshot plus a grace period.
func (c *Config) EffectiveCaptureTimeout() time.Duration {
	if c.CaptureTimeout > 0 {
		return c.CaptureTimeout
	}
	return c.SnapshotInterval*time.Duration(c.SnapshotCount) + captureGrace
}

// Validate checks cross-field invariants. Labels are normalized to
// lower case in place.
func (c *Config) Validate() error {
	for name, v := range map[string]int{
		"input_dim":            c.InputDim,
		"embed_dim":            c.EmbedDim,
		"num_heads":            c.NumHeads,
		"hidden_dim":           c.HiddenDim,
		"num_layers":           c.NumLayers,
		"num_questions":        c.NumQuestions,
		"num_classes":          c.NumClasses,
		"snapshot_count":       c.SnapshotCount,
		"min_snapshots":        c.MinSnapshots,
		"frame_queue_size":     c.FrameQueueSize,
		"max_capture_sessions": c.MaxCaptureSessions,
	} {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, name, v)
		}
	}
	if c.EmbedDim%c.NumHeads != 0 {
		return fmt.Errorf("%w: embed_dim %d not divisible by num_heads %d", ErrInvalidConfig, c.EmbedDim, c.NumHeads)
	}
	if c.LayerNormEps <= 0 {
		return fmt.Errorf("%w: layer_norm_eps must be positive", ErrInvalidConfig)
	}
	if c.MinSnapshots > c.SnapshotCount {
		return fmt.Errorf("%w: min_snapshots %d exceeds snapshot_count %d", ErrInvalidConfig, c.MinSnapshots, c.SnapshotCount)
	}
	if c.SnapshotInterval < 0 {
		return fmt.Errorf("%w: snapshot_interval must not be negative", ErrInvalidConfig)
	}
	if len(c.TargetLabels) == 0 {
		return fmt.Errorf("%w: target_labels must not be empty", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.TargetLabels))
	for i, l := range c.TargetLabels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" {
			return fmt.Errorf("%w: target_labels[%d] is empty", ErrInvalidConfig, i)
		}
		if _, dup := seen[l]; dup {
			return fmt.Errorf("%w: duplicate target label %q", ErrInvalidConfig, l)
		}
		seen[l] = struct{}{}
		c.TargetLabels[i] = l
	}
	if c.InputDim != len(c.TargetLabels)+1 {
		return fmt.Errorf("%w: input_dim %d must equal len(target_labels)+1 = %d", ErrInvalidConfig, c.InputDim, len(c.TargetLabels)+1)
	}
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	return nil
}
