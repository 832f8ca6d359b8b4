package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reposync/internal/health"
)

func TestEmitSink_JSON(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewEmitSink(&buf, "JSON")
	require.NoError(t, err)

	require.NoError(t, s.Write(Event{Type: EventRunStarted, Repos: 2}))
	require.NoError(t, s.Write(finished("mirror", health.StatusFailed)))
	require.NoError(t, s.Write(finished("lib-a", health.StatusSynced)))
	assert.Zero(t, buf.Len(), "json output is written on Close")
	require.NoError(t, s.Close())

	var got []health.RepositoryHealth
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "lib-a", got[0].RepositoryID)
	assert.Equal(t, health.StatusFailed, got[1].FinalStatus)
	require.NotNil(t, got[1].Reason)
	assert.Equal(t, "network", got[1].Reason.Kind)
}

func TestEmitSink_JSON_EmptyRunIsEmptyArray(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewEmitSink(&buf, "json")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, "[]", strings.TrimSpace(buf.String()))
}

func TestEmitSink_NDJSON(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewEmitSink(&buf, "ndjson")
	require.NoError(t, err)

	require.NoError(t, s.Write(Event{Type: EventRunStarted, Repos: 1}))
	require.NoError(t, s.Write(finished("lib-a", health.StatusSynced)))
	require.NoError(t, s.Write("not an event"))
	require.NoError(t, s.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var e Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &e))
	assert.Equal(t, EventRepoFinished, e.Type)
	require.NotNil(t, e.Health)
	assert.Equal(t, "lib-a", e.Health.RepositoryID)
	require.Len(t, e.Health.Attempts, 1)
	assert.Equal(t, health.OpClone, e.Health.Attempts[0].Operation)
}

func TestEmitSink_RejectsBadInput(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewEmitSink(&buf, "text")
	assert.ErrorContains(t, err, "unsupported output format")

	_, err = NewEmitSink(nil, "json")
	assert.Error(t, err)
}
