package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := NewSync()
	m.ObserveAttempt("clone", "success", "", 2*time.Second)
	m.ObserveAttempt("clone", "transient_failure", "rate_limited", time.Second)
	m.ObserveAttempt("clone", "transient_failure", "rate_limited", time.Second)
	m.ObserveRepository("synced")
	m.ObserveBackoff()
	m.ObserveBackoff()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attempts.WithLabelValues("clone", "success", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Attempts.WithLabelValues("clone", "transient_failure", "rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Repositories.WithLabelValues("synced")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Backoffs))
}

func TestNilIsNoop(t *testing.T) {
	var m *Sync
	m.ObserveAttempt("fetch", "success", "", time.Second)
	m.ObserveRepository("failed")
	m.ObserveBackoff()
	m.RunStarted(time.Now())
	assert.Error(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := NewSync(), NewSync()
	a.ObserveBackoff()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Backoffs))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Backoffs))
}

func TestWriteTextfile(t *testing.T) {
	m := NewSync()
	m.ObserveRepository("drifted")
	m.RunStarted(time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "metrics", "reposync.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `reposync_repositories_total{status="drifted"} 1`)
	assert.Contains(t, string(data), "reposync_last_run_start_timestamp ")
}
