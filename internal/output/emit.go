package output

import (
	"fmt"
	"io"
	"sync"
)

// EmitSink writes an additional structured stream, usually to stdout, for
// tools that drive reposync.
type EmitSink struct {
	mu     sync.Mutex
	writer io.Writer
	stream *stream
}

func NewEmitSink(w io.Writer, format string) (*EmitSink, error) {
	if w == nil {
		return nil, fmt.Errorf("emit sink writer must not be nil")
	}
	f, err := ParseFormat(format)
	if err != nil {
		return nil, fmt.Errorf("emit sink: %w", err)
	}
	return &EmitSink{writer: w, stream: newStream(f)}, nil
}

func (s *EmitSink) Write(v any) error {
	e, ok := v.(Event)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream.write(s.writer, e)
}

func (s *EmitSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream.format != FormatJSON {
		return nil
	}
	bs, err := s.stream.aggregate()
	if err != nil {
		return err
	}
	if _, err := s.writer.Write(bs); err != nil {
		return err
	}
	return flush(s.writer)
}
