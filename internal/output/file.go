package output

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"reposync/internal/report"
)

// FileSink writes structured output to --out. NDJSON is appended as events
// arrive so a partial run still leaves a readable stream. The JSON array is
// written atomically on Close, like the run report.
type FileSink struct {
	mu     sync.Mutex
	path   string
	file   *os.File // ndjson only
	stream *stream
}

// NewFileSink opens path for format, inferring the format from the file
// extension when format is empty.
func NewFileSink(path string, format string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("output path required")
	}

	var (
		f   Format
		err error
	)
	if format == "" {
		f, err = FormatForPath(path)
	} else {
		f, err = ParseFormat(format)
	}
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	s := &FileSink{path: path, stream: newStream(f)}
	if f == FormatNDJSON {
		s.file, err = os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
	}
	return s, nil
}

func (s *FileSink) Write(v any) error {
	e, ok := v.(Event)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream.write(s.file, e)
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		return s.file.Close()
	}
	bs, err := s.stream.aggregate()
	if err != nil {
		return err
	}
	return report.WriteFileAtomic(s.path, bs, 0o644)
}
