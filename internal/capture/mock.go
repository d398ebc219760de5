package capture

import (
	"context"
	"sync"
	"time"
)

// MockSource replays scripted segments. Used by tests and by the mock
// capture mode for development without a microphone.
type MockSource struct {
	Segments []Segment
	// Interval between deliveries; zero delivers as fast as possible.
	Interval time.Duration
	// CalibrateErr, when set, is returned by Calibrate.
	CalibrateErr error

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.Mutex
}

func (m *MockSource) Calibrate(_ context.Context) error {
	return m.CalibrateErr
}

func (m *MockSource) Start(ctx context.Context, onSegment func(Segment)) error {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for _, seg := range m.Segments {
			if ctx.Err() != nil {
				return
			}
			onSegment(seg)
			if m.Interval > 0 {
				select {
				case <-time.After(m.Interval):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return nil
}

func (m *MockSource) Close() error {
	m.once.Do(func() {
		m.mu.Lock()
		cancel := m.cancel
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		m.wg.Wait()
	})
	return nil
}
