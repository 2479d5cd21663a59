package monitor

import (
	"sort"
	"time"
)

// AlertLevel orders alert severity.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertError    AlertLevel = "error"
	AlertCritical AlertLevel = "critical"
)

var alertRank = map[AlertLevel]int{
	AlertInfo:     0,
	AlertWarning:  1,
	AlertError:    2,
	AlertCritical: 3,
}

// Alert is one raised condition.
type Alert struct {
	Level        AlertLevel     `json:"level"`
	Code         string         `json:"code"`
	Message      string         `json:"message"`
	Meta         map[string]any `json:"meta,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Acknowledged bool           `json:"acknowledged"`
}

// AlertListener observes every raised alert.
type AlertListener func(Alert)

// Raise records an alert and notifies listeners outside the lock.
func (m *Monitor) Raise(level AlertLevel, code, message string, meta map[string]any) {
	alert := Alert{
		Level:     level,
		Code:      code,
		Message:   message,
		Meta:      meta,
		Timestamp: time.Now().UTC(),
	}
	m.mu.Lock()
	m.alerts = append(m.alerts, alert)
	listeners := append([]AlertListener(nil), m.listeners...)
	m.mu.Unlock()

	m.logger.Warn("alert [%s] %s: %s", level, code, message)
	if m.metrics != nil {
		m.metrics.ObserveAlert(string(level))
	}
	for _, listener := range listeners {
		listener(alert)
	}
}

// AddAlertListener subscribes to future alerts.
func (m *Monitor) AddAlertListener(listener AlertListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// Unacknowledged returns the indexes and copies of unacknowledged alerts.
// Indexes are positions in the full alert log, usable with Acknowledge.
func (m *Monitor) Unacknowledged() map[int]Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]Alert)
	for i, alert := range m.alerts {
		if !alert.Acknowledged {
			out[i] = alert
		}
	}
	return out
}

// Acknowledge marks one alert handled. Out-of-range indexes are ignored.
func (m *Monitor) Acknowledge(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index >= 0 && index < len(m.alerts) {
		m.alerts[index].Acknowledged = true
	}
}

// topAlertsLocked returns up to n alerts ordered most severe then newest.
func (m *Monitor) topAlertsLocked(n int) []Alert {
	sorted := append([]Alert(nil), m.alerts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if alertRank[sorted[i].Level] != alertRank[sorted[j].Level] {
			return alertRank[sorted[i].Level] > alertRank[sorted[j].Level]
		}
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
