package output

import (
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// ProgressSink draws a progress bar advanced by repo.finished events. It
// belongs on stderr next to the logs.
type ProgressSink struct {
	mu  sync.Mutex
	w   io.Writer
	bar *progressbar.ProgressBar
}

func NewProgressSink(w io.Writer) *ProgressSink {
	if w == nil {
		w = os.Stderr
	}
	return &ProgressSink{w: w}
}

func (s *ProgressSink) Write(v any) error {
	e, ok := v.(Event)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Type {
	case EventRunStarted:
		s.bar = progressbar.NewOptions(e.Repos,
			progressbar.OptionSetWriter(s.w),
			progressbar.OptionSetDescription("syncing"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionClearOnFinish(),
		)
	case EventRepoFinished:
		if s.bar == nil {
			return nil
		}
		s.bar.Describe(e.Repo)
		return s.bar.Add(1)
	case EventRunFinished:
		if s.bar == nil {
			return nil
		}
		return s.bar.Finish()
	}
	return nil
}

// Current reports how many repositories have finished.
func (s *ProgressSink) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar == nil {
		return 0
	}
	return s.bar.State().CurrentNum
}

func (s *ProgressSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar == nil || s.bar.IsFinished() {
		return nil
	}
	return s.bar.Finish()
}
