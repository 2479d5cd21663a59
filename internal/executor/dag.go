package executor

import (
	"fmt"
	"time"

	"gridpilot/internal/types"
)

// DAGNode tracks one step through execution. Status is the only field
// mutated after graph construction, and only by the executor.
type DAGNode struct {
	Step         *types.Step
	Status       types.StepStatus
	Dependencies []string
	Dependents   []string
	Result       *types.StepResult
	StartTime    time.Time
	EndTime      time.Time
}

// CycleError reports a dependency cycle; no step executes.
type CycleError struct {
	StepID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected at step %s", e.StepID)
}

// dag is the executor's working graph: nodes by id plus the plan order.
type dag struct {
	nodes map[string]*DAGNode
	order []string
}

// buildDAG creates one node per step and the dependents reverse index, and
// rejects unknown dependencies and cycles.
func buildDAG(steps []*types.Step) (*dag, error) {
	g := &dag{nodes: make(map[string]*DAGNode, len(steps))}
	for _, step := range steps {
		if _, dup := g.nodes[step.ID]; dup {
			return nil, fmt.Errorf("duplicate step id: %s", step.ID)
		}
		g.nodes[step.ID] = &DAGNode{
			Step:         step,
			Status:       types.StepPending,
			Dependencies: append([]string(nil), step.DependsOn...),
		}
		g.order = append(g.order, step.ID)
	}
	for _, id := range g.order {
		node := g.nodes[id]
		for _, dep := range node.Dependencies {
			parent, ok := g.nodes[dep]
			if !ok {
				return nil, fmt.Errorf("step %s depends on unknown step %s", id, dep)
			}
			parent.Dependents = append(parent.Dependents, id)
		}
	}
	if cycleAt := g.findCycle(); cycleAt != "" {
		return nil, &CycleError{StepID: cycleAt}
	}
	for _, id := range g.order {
		if len(g.nodes[id].Dependencies) == 0 {
			g.nodes[id].Status = types.StepReady
		}
	}
	return g, nil
}

// findCycle runs an iterative three-color depth-first search over the
// dependents edges and returns the id where a back edge closes, or "".
func (g *dag) findCycle() string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))

	type frame struct {
		id   string
		next int
	}
	for _, start := range g.order {
		if color[start] != white {
			continue
		}
		stack := []frame{{id: start}}
		color[start] = gray
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := g.nodes[top.id].Dependents
			if top.next < len(deps) {
				child := deps[top.next]
				top.next++
				switch color[child] {
				case white:
					color[child] = gray
					stack = append(stack, frame{id: child})
				case gray:
					return child
				}
				continue
			}
			color[top.id] = black
			stack = stack[:len(stack)-1]
		}
	}
	return ""
}

// readyNodes returns pending/ready nodes whose dependencies are all
// completed or skipped with none failed, in plan order.
func (g *dag) readyNodes() []*DAGNode {
	var ready []*DAGNode
	for _, id := range g.order {
		node := g.nodes[id]
		if node.Status != types.StepPending && node.Status != types.StepReady {
			continue
		}
		eligible := true
		for _, dep := range node.Dependencies {
			switch g.nodes[dep].Status {
			case types.StepCompleted, types.StepSkipped:
			default:
				eligible = false
			}
		}
		if eligible {
			ready = append(ready, node)
		}
	}
	return ready
}

// skipDependents marks every pending transitive dependent of failedID as
// skipped via a breadth-first walk, returning the skipped ids in walk order.
func (g *dag) skipDependents(failedID string) []string {
	var skipped []string
	queue := append([]string(nil), g.nodes[failedID].Dependents...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		node := g.nodes[id]
		if node.Status != types.StepPending && node.Status != types.StepReady {
			continue
		}
		node.Status = types.StepSkipped
		skipped = append(skipped, id)
		queue = append(queue, node.Dependents...)
	}
	return skipped
}
