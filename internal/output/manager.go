package output

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Sink defines a destination for run events.
type Sink interface {
	Write(v any) error
	Close() error
}

// Manager coordinates writing results to multiple sinks.
//
// Writes are serialized so sinks see events in one global order even when
// several workers report at once.
type Manager struct {
	mu    sync.Mutex
	sinks []Sink
	now   func() time.Time
}

func NewManager() *Manager {
	return &Manager{now: time.Now}
}

// Emit stamps e with the current time (unless already set) and writes it to
// every sink. A nil Manager discards the event.
func (m *Manager) Emit(e Event) error {
	if m == nil {
		return nil
	}
	if e.Time.IsZero() {
		now := m.now
		if now == nil {
			now = time.Now
		}
		e.Time = now().UTC()
	}
	return m.Write(e)
}

func (m *Manager) AddSink(s Sink) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	if s == nil {
		return fmt.Errorf("sink must not be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
	return nil
}

func (m *Manager) Write(v any) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(v); err != nil {
			errs = append(errs, fmt.Errorf("write %T: %w", s, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors writing to sinks: %w", errors.Join(errs...))
	}
	return nil
}

func (m *Manager) Close() error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %T: %w", s, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing sinks: %w", errors.Join(errs...))
	}
	return nil
}
