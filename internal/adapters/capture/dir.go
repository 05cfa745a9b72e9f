package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/learnpath/internal/domain/model"
)

var defaultExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp"}

// DirSource replays the image files of a directory in name order, one
// frame per file.
type DirSource struct {
	dir        string
	extensions []string
	files      []string

	mu      sync.Mutex
	next    int
	stopped bool
}

// NewDirSource lists dir once. Only files with an image extension are
// used; subdirectories are ignored.
func NewDirSource(dir string, opts ...DirOption) (*DirSource, error) {
	const op = "capture.dir"
	s := &DirSource{dir: dir, extensions: defaultExtensions}
	for _, opt := range opts {
		opt(s)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, model.WrapKind(op, model.ErrCapture, err)
	}
	if !info.IsDir() {
		return nil, model.WrapKind(op, model.ErrCapture, fmt.Errorf("%w: %s", ErrNotDirectory, dir))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, model.WrapKind(op, model.ErrCapture, err)
	}
	for _, e := range entries {
		if e.IsDir() || !s.accepts(e.Name()) {
			continue
		}
		s.files = append(s.files, e.Name())
	}
	sort.Strings(s.files)
	return s, nil
}

func (s *DirSource) accepts(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range s.extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// Len returns the number of frames the directory holds.
func (s *DirSource) Len() int { return len(s.files) }

// HasMore reports whether unread files remain.
func (s *DirSource) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped && s.next < len(s.files)
}

// Next reads the next file.
func (s *DirSource) Next(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}
	s.mu.Lock()
	if s.stopped || s.next >= len(s.files) {
		s.mu.Unlock()
		return model.Frame{}, io.EOF
	}
	name := s.files[s.next]
	s.next++
	seq := s.next
	s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return model.Frame{}, fmt.Errorf("read frame %s: %w", name, err)
	}
	return model.Frame{Seq: seq, Data: data, Source: name, CapturedAt: time.Now()}, nil
}

// Stop ends the sequence.
func (s *DirSource) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}
