package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"reposync/internal/health"
)

// Format is the encoding of a structured output stream.
type Format string

const (
	// FormatJSON collects repository health and writes one array on Close.
	FormatJSON Format = "json"
	// FormatNDJSON writes every Event as one JSON object per line.
	FormatNDJSON Format = "ndjson"
)

// ParseFormat accepts json or ndjson, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatNDJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// FormatForPath infers the format from the file extension of path.
func FormatForPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return FormatJSON, nil
	case ".ndjson", ".jsonl":
		return FormatNDJSON, nil
	case "":
		return "", fmt.Errorf("cannot infer output format from file extension (missing extension)")
	default:
		return "", fmt.Errorf("cannot infer output format from file extension %q", ext)
	}
}

// stream holds the state shared by the structured sinks. It is not safe for
// concurrent use; sinks guard it with their own mutex.
type stream struct {
	format Format
	// health by repository id; the aggregator finishes each repository once.
	results map[string]health.RepositoryHealth
}

func newStream(format Format) *stream {
	return &stream{format: format, results: make(map[string]health.RepositoryHealth)}
}

// write encodes e to w in NDJSON mode, or records its health in JSON mode.
func (s *stream) write(w io.Writer, e Event) error {
	switch s.format {
	case FormatJSON:
		if e.Type == EventRepoFinished && e.Health != nil {
			s.results[e.Health.RepositoryID] = *e.Health
		}
		return nil
	case FormatNDJSON:
		if err := json.NewEncoder(w).Encode(e); err != nil {
			return err
		}
		return flush(w)
	default:
		return fmt.Errorf("unsupported output format: %s", s.format)
	}
}

// aggregate returns the collected health as an indented JSON array ordered
// by repository id, so unchanged runs produce the same bytes.
func (s *stream) aggregate() ([]byte, error) {
	ids := make([]string, 0, len(s.results))
	for id := range s.results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	list := make([]health.RepositoryHealth, 0, len(ids))
	for _, id := range ids {
		list = append(list, s.results[id])
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(list); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// flush pushes buffered output through so NDJSON consumers see each line as
// soon as it is written.
func flush(w io.Writer) error {
	f, ok := w.(interface{ Flush() error })
	if !ok {
		return nil
	}
	return f.Flush()
}
