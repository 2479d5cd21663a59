package id

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// Strategy identifies the identifier generation algorithm to use.
type Strategy int

const (
	// StrategyKSUID generates lexicographically sortable identifiers using KSUID.
	StrategyKSUID Strategy = iota
	// StrategyUUIDv7 generates time-ordered identifiers using UUID version 7.
	StrategyUUIDv7
)

var defaultGenerator = &Generator{strategy: StrategyKSUID}

// Generator produces identifiers for plans, traces, spans and tasks.
type Generator struct {
	mu       sync.RWMutex
	strategy Strategy
}

// SetStrategy configures the generation strategy for the default generator.
func SetStrategy(strategy Strategy) {
	defaultGenerator.setStrategy(strategy)
}

func (g *Generator) setStrategy(strategy Strategy) {
	g.mu.Lock()
	g.strategy = strategy
	g.mu.Unlock()
}

// NewPlanID generates an execution plan identifier with a stable prefix for display.
func NewPlanID() string {
	return defaultGenerator.newIdentifier("plan")
}

// NewTaskID generates a monitor task identifier.
func NewTaskID() string {
	return defaultGenerator.newIdentifier("task")
}

// NewTraceID generates a trace identifier.
func NewTraceID() string {
	return defaultGenerator.newIdentifier("trace")
}

// NewSpanID generates a span identifier.
func NewSpanID() string {
	return defaultGenerator.newIdentifier("span")
}

// NewEventID generates an event identifier.
func NewEventID() string {
	return defaultGenerator.newIdentifier("evt")
}

func (g *Generator) newIdentifier(prefix string) string {
	g.mu.RLock()
	strategy := g.strategy
	g.mu.RUnlock()

	var body string
	switch strategy {
	case StrategyUUIDv7:
		uuidv7, err := uuid.NewV7()
		if err == nil {
			body = uuidv7.String()
			break
		}
		fallthrough
	default:
		body = ksuid.New().String()
	}
	return fmt.Sprintf("%s-%s", prefix, body)
}

// NewStepID generates a compiler step identifier. Step ids embed the plan
// compilation timestamp and a plan-local counter so they stay unique within a
// plan and testable against the pattern step_<digits>_<digits>.
func NewStepID(compiledAt time.Time, counter int) string {
	return fmt.Sprintf("step_%d_%d", compiledAt.UnixMilli(), counter)
}
