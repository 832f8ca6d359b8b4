package output

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Consumers tail the event stream while repositories are still syncing, so
// every NDJSON sink must push each line through a buffered writer at once.
func TestNDJSONSinks_FlushEachEvent(t *testing.T) {
	sinks := map[string]func(w io.Writer) (Sink, error){
		"emit": func(w io.Writer) (Sink, error) { return NewEmitSink(w, "ndjson") },
		"console": func(w io.Writer) (Sink, error) {
			return NewConsoleSink(w, "ndjson", nil), nil
		},
	}
	for name, newSink := range sinks {
		t.Run(name, func(t *testing.T) {
			pr, pw := io.Pipe()
			defer pr.Close()
			defer pw.Close()

			s, err := newSink(bufio.NewWriterSize(pw, 64*1024))
			require.NoError(t, err)

			lines := make(chan string, 1)
			go func() {
				line, err := bufio.NewReader(pr).ReadString('\n')
				if err == nil {
					lines <- line
				}
			}()

			require.NoError(t, s.Write(Event{Type: EventRepoStarted, Repo: "lib-a", Action: "clone"}))

			select {
			case line := <-lines:
				assert.Contains(t, line, `"type":"repo.started"`)
				assert.Contains(t, line, `"repo":"lib-a"`)
				assert.Contains(t, line, `"action":"clone"`)
			case <-time.After(time.Second):
				t.Fatal("timed out waiting for the ndjson line; the sink did not flush")
			}
		})
	}
}

func TestFileSink_NDJSON_WritesIncrementally(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")

	s, err := NewFileSink(path, "")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Write(Event{Type: EventRunStarted, Repos: 3}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"type":"run.started"`)
	assert.True(t, strings.HasSuffix(string(b), "\n"))

	require.NoError(t, s.Write(Event{Type: EventRunFinished, ExitCode: 1}))
	b, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(b)), "\n"), 2)
}
