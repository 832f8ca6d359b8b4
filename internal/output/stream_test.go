package output

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reposync/internal/health"
)

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr string
	}{
		{path: "out/report.json", want: FormatJSON},
		{path: "events.NDJSON", want: FormatNDJSON},
		{path: "events.jsonl", want: FormatNDJSON},
		{path: "events", wantErr: "missing extension"},
		{path: "events.txt", wantErr: `".txt"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatForPath(tt.path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" NDJSON ")
	require.NoError(t, err)
	assert.Equal(t, FormatNDJSON, f)

	_, err = ParseFormat("text")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestStream_AggregateIsOrderedByRepositoryID(t *testing.T) {
	s := newStream(FormatJSON)
	for _, id := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.write(nil, finished(id, health.StatusSynced)))
	}
	// A repeated repo.finished replaces the earlier entry.
	require.NoError(t, s.write(nil, finished("mid", health.StatusFailed)))

	bs, err := s.aggregate()
	require.NoError(t, err)

	var got []health.RepositoryHealth
	require.NoError(t, json.Unmarshal(bs, &got))
	require.Len(t, got, 3)
	assert.Equal(t, "alpha", got[0].RepositoryID)
	assert.Equal(t, "mid", got[1].RepositoryID)
	assert.Equal(t, health.StatusFailed, got[1].FinalStatus)
	assert.Equal(t, "zeta", got[2].RepositoryID)

	again, err := s.aggregate()
	require.NoError(t, err)
	assert.Equal(t, string(bs), string(again))
}
