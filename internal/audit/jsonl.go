package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/banshee-data/usage.report/internal/security"
)

// JSONLSink appends one JSON object per line to a dated file per camera:
// <root>/<YYYY-MM-DD>/<camera>.jsonl. The date directory follows the
// event's own timestamp, so a trail replayed from a recording lands under
// the recording's dates.
type JSONLSink struct {
	root string

	mu   sync.Mutex
	path string // currently open file, empty until first write
	file *os.File
}

// NewJSONLSink creates a sink rooted at dir. The directory tree is
// created lazily on first write.
func NewJSONLSink(dir string) *JSONLSink {
	return &JSONLSink{root: dir}
}

// Write implements Sink.
func (s *JSONLSink) Write(e Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Camera names come from operator configuration; never let one name a
	// path outside the log root.
	dir := filepath.Join(s.root, e.Timestamp.Format("2006-01-02"))
	path := filepath.Join(dir, security.SanitizeFilename(e.Camera)+".jsonl")
	if err := security.ValidatePathWithinDirectory(path, s.root); err != nil {
		return fmt.Errorf("audit: reject log path: %w", err)
	}
	if path != s.path {
		// Date or camera rolled over; switch files.
		if s.file != nil {
			s.file.Close()
			s.file = nil
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("audit: create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("audit: open log file: %w", err)
		}
		s.file = f
		s.path = path
	}

	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: append event: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.path = ""
	return err
}
