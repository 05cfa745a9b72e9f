package service

import (
	"time"

	"github.com/okian/learnpath/internal/adapters/repository"
	"github.com/okian/learnpath/internal/domain/difficulty"
	"github.com/okian/learnpath/internal/domain/pipeline"
	"github.com/okian/learnpath/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithModelConfig sets the model dimensions used to load parameters.
func WithModelConfig(cfg difficulty.Config) Option {
	return func(s *Service) {
		s.modelCfg = cfg
	}
}

// WithParamsPath sets the parameter snapshot path.
func WithParamsPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.paramsPath = path
		}
	}
}

// WithModel injects an already loaded model; the snapshot is not read.
func WithModel(m *difficulty.Model) Option {
	return func(s *Service) {
		if m != nil {
			s.model = m
			s.modelCfg = m.Config()
		}
	}
}

// WithQuestionBankPath sets the YAML question bank path. Empty disables
// question selection.
func WithQuestionBankPath(path string) Option {
	return func(s *Service) {
		s.questionBankPath = path
	}
}

// WithQuestionBank injects a question store.
func WithQuestionBank(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.questions = store
		}
	}
}

// WithQuestionSeed fixes the question sampling seed.
func WithQuestionSeed(seed int64) Option {
	return func(s *Service) {
		s.questionSeed = &seed
	}
}

// WithTargetLabels sets the canonical expression label order.
func WithTargetLabels(labels []string) Option {
	return func(s *Service) {
		if len(labels) > 0 {
			s.targetLabels = append([]string(nil), labels...)
		}
	}
}

// WithClassifier injects the frame classifier used by Capture.
func WithClassifier(c pipeline.Classifier) Option {
	return func(s *Service) {
		if c != nil {
			s.classifier = c
		}
	}
}

// WithClassifierURL configures an HTTP classifier, built on Start when no
// classifier was injected.
func WithClassifierURL(url string, timeout time.Duration) Option {
	return func(s *Service) {
		s.classifierURL = url
		s.classifierTTL = timeout
	}
}

// WithPipelineOptions appends capture policy options.
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(s *Service) {
		s.pipelineOpts = append(s.pipelineOpts, opts...)
	}
}

// WithFrameQueueSize sets the frame buffer of each live capture session.
func WithFrameQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.frameQueueSize = n
		}
	}
}

// WithMaxCaptureSessions caps concurrently held live capture sessions.
func WithMaxCaptureSessions(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
