package budget

import (
	"fmt"
	"sync"
	"time"
)

// Monitor tracks committed value and gas against configured limits while a
// plan executes.
type Monitor struct {
	config    Config
	valueUsed float64
	gasUsed   int64
	startTime time.Time
	mu        sync.Mutex
}

// NewMonitor clones the provided config and starts tracking usage.
func NewMonitor(cfg Config) *Monitor {
	return &Monitor{
		config:    cfg.Clone(),
		startTime: time.Now(),
	}
}

// Add records incremental value and gas, returning an error if any limit is
// breached.
func (m *Monitor) Add(value float64, gas int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.valueUsed += value
	m.gasUsed += gas
	if m.config.MaxValue != nil && m.valueUsed > *m.config.MaxValue {
		return ErrExceeded{
			Kind:  "value",
			Usage: fmt.Sprintf("$%.2f", m.valueUsed),
			Limit: fmt.Sprintf("$%.2f", *m.config.MaxValue),
		}
	}
	if m.config.MaxGas != nil && m.gasUsed > *m.config.MaxGas {
		return ErrExceeded{
			Kind:  "gas",
			Usage: fmt.Sprintf("%d gas", m.gasUsed),
			Limit: fmt.Sprintf("%d gas", *m.config.MaxGas),
		}
	}
	return nil
}

// CheckDaily verifies a user's accumulated daily value against the cap.
// The caller supplies the total already spent today.
func (m *Monitor) CheckDaily(spentToday float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config.DailyValueCap == nil || *m.config.DailyValueCap <= 0 {
		return nil
	}
	if spentToday+m.valueUsed > *m.config.DailyValueCap {
		return ErrExceeded{
			Kind:  "daily value",
			Usage: fmt.Sprintf("$%.2f", spentToday+m.valueUsed),
			Limit: fmt.Sprintf("$%.2f", *m.config.DailyValueCap),
		}
	}
	return nil
}

// Usage returns the accumulated metrics.
func (m *Monitor) Usage() (value float64, gas int64, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valueUsed, m.gasUsed, time.Since(m.startTime)
}

// Config returns a clone of the underlying budget config.
func (m *Monitor) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config.Clone()
}
