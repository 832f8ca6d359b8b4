package output

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reposync/internal/health"
)

// recordingSink keeps every value written to it. It is deliberately not
// goroutine-safe: the Manager serializes writes.
type recordingSink struct {
	name     string
	events   []Event
	writeErr error
	closeErr error
	closed   bool
}

func (s *recordingSink) Write(v any) error {
	if e, ok := v.(Event); ok {
		s.events = append(s.events, e)
	}
	return s.writeErr
}

func (s *recordingSink) Close() error {
	s.closed = true
	return s.closeErr
}

func (s *recordingSink) String() string { return s.name }

func newManager(t *testing.T, sinks ...Sink) *Manager {
	t.Helper()
	mgr := NewManager()
	for _, s := range sinks {
		require.NoError(t, mgr.AddSink(s))
	}
	return mgr
}

func TestManager_FansOutRepositoryLifecycle(t *testing.T) {
	console, stream := &recordingSink{name: "console"}, &recordingSink{name: "stream"}
	mgr := newManager(t, console, stream)

	lifecycle := []Event{
		{Type: EventRunStarted, RunID: "run-1", Repos: 1},
		{Type: EventRepoStarted, Repo: "lib-a", Action: "fetch"},
		finished("lib-a", health.StatusSynced),
		{Type: EventRunFinished, RunID: "run-1"},
	}
	for _, e := range lifecycle {
		require.NoError(t, mgr.Emit(e))
	}
	require.NoError(t, mgr.Close())

	for _, s := range []*recordingSink{console, stream} {
		require.Len(t, s.events, len(lifecycle), s.name)
		assert.Equal(t, EventRepoFinished, s.events[2].Type)
		assert.Equal(t, health.StatusSynced, s.events[2].Status())
		assert.True(t, s.closed)
	}
}

func TestManager_AddSinkRejectsNil(t *testing.T) {
	assert.Error(t, NewManager().AddSink(nil))

	var nilMgr *Manager
	assert.Error(t, nilMgr.AddSink(&recordingSink{}))
}

func TestManager_SinkErrorsAreJoined(t *testing.T) {
	broken := &recordingSink{name: "file", writeErr: errors.New("disk full"), closeErr: errors.New("close failed")}
	healthy := &recordingSink{name: "console"}
	mgr := newManager(t, broken, healthy)

	err := mgr.Emit(Event{Type: EventRepoStarted, Repo: "lib-a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "errors writing to sinks")
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, healthy.events, 1, "one failing sink does not starve the others")

	err = mgr.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "errors closing sinks")
	assert.Contains(t, err.Error(), "close failed")
	assert.True(t, healthy.closed)
}

func TestManager_EmitStampsTime(t *testing.T) {
	sink := &recordingSink{}
	mgr := newManager(t, sink)
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	mgr.now = func() time.Time { return fixed }

	require.NoError(t, mgr.Emit(Event{Type: EventRunStarted}))
	preset := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, mgr.Emit(Event{Type: EventRunFinished, Time: preset}))

	require.Len(t, sink.events, 2)
	assert.True(t, sink.events[0].Time.Equal(fixed))
	assert.Equal(t, time.UTC, sink.events[0].Time.Location())
	assert.True(t, sink.events[1].Time.Equal(preset), "a preset time is kept")
}

func TestManager_ConcurrentEmitsSeeOneOrder(t *testing.T) {
	a, b := &recordingSink{name: "a"}, &recordingSink{name: "b"}
	mgr := newManager(t, a, b)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 25 {
				_ = mgr.Emit(Event{Type: EventAttemptFinished, Repo: fmt.Sprintf("repo-%d-%d", i, j)})
			}
		}()
	}
	wg.Wait()

	require.Len(t, a.events, 200)
	for i := range a.events {
		assert.Equal(t, a.events[i].Repo, b.events[i].Repo)
	}
}

func TestManager_NilEmitIsNoop(t *testing.T) {
	var mgr *Manager
	assert.NoError(t, mgr.Emit(Event{Type: EventRunStarted}))
}
