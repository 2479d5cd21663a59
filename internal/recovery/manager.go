// Package recovery pattern-matches step failures against an ordered strategy
// list and yields the machine-chosen reaction: retry, substitute, skip or
// abort. Retry budgets are tracked per step so exhaustion degrades into a
// later skip/abort strategy instead of looping forever.
package recovery

import (
	"regexp"
	"sort"
	"sync"

	"gridpilot/internal/shared/logging"
	"gridpilot/internal/types"
)

// DefaultMaxRetries caps retry actions per step.
const DefaultMaxRetries = 3

// Strategy is one recovery rule. Recover returns nil when the strategy
// declines to handle the failure despite matching.
type Strategy struct {
	ID                string
	ErrorPattern      *regexp.Regexp
	ApplicableActions map[string]bool // nil matches every action
	Priority          int
	Recover           func(errMsg string, step *types.Step) *types.RecoveryAction
}

// Manager holds the ordered strategies and per-step retry counters.
type Manager struct {
	strategies []Strategy
	maxRetries int
	logger     logging.Logger

	mu      sync.Mutex
	retries map[string]int
}

// NewManager builds a manager with the built-in strategies.
func NewManager(logger logging.Logger) *Manager {
	m := &Manager{
		maxRetries: DefaultMaxRetries,
		logger:     logging.OrNop(logger),
		retries:    make(map[string]int),
	}
	m.strategies = builtinStrategies()
	m.sortStrategies()
	return m
}

// SetMaxRetries overrides the per-step retry budget.
func (m *Manager) SetMaxRetries(n int) {
	if n >= 0 {
		m.maxRetries = n
	}
}

// AddStrategy registers a custom strategy, keeping priority order.
func (m *Manager) AddStrategy(s Strategy) {
	m.strategies = append(m.strategies, s)
	m.sortStrategies()
}

func (m *Manager) sortStrategies() {
	sort.SliceStable(m.strategies, func(i, j int) bool {
		return m.strategies[i].Priority < m.strategies[j].Priority
	})
}

// Recover consults the strategies in priority order and returns the first
// non-nil action. A strategy returning Retry for a step whose budget is
// exhausted is skipped so the search continues into skip/abort territory.
// Returns nil when no strategy applies.
func (m *Manager) Recover(errMsg string, step *types.Step) *types.RecoveryAction {
	if step == nil {
		return nil
	}
	for _, strategy := range m.strategies {
		if !strategy.ErrorPattern.MatchString(errMsg) {
			continue
		}
		if strategy.ApplicableActions != nil && !strategy.ApplicableActions[step.Action] {
			continue
		}
		action := strategy.Recover(errMsg, step)
		if action == nil {
			continue
		}
		if action.Kind == types.RecoveryRetry {
			if !m.consumeRetry(step.ID) {
				m.logger.Debug("retry budget exhausted for %s, continuing strategy search", step.ID)
				continue
			}
		}
		m.logger.Info("recovery strategy %s chose %s for step %s", strategy.ID, action.Kind, step.ID)
		return action
	}
	return nil
}

// consumeRetry reports whether the step still has retry budget, spending one
// when it does.
func (m *Manager) consumeRetry(stepID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retries[stepID] >= m.maxRetries {
		return false
	}
	m.retries[stepID]++
	return true
}

// RetryCount returns how many retries a step has consumed.
func (m *Manager) RetryCount(stepID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries[stepID]
}

// ResetRetryCount clears one step's counter, or every counter when stepID is
// empty. The executor calls this at the start of each run.
func (m *Manager) ResetRetryCount(stepID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stepID == "" {
		m.retries = make(map[string]int)
		return
	}
	delete(m.retries, stepID)
}
