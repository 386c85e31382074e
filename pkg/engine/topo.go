package engine

import (
	"fmt"

	"github.com/QUSEIT/simacode-sub000/pkg/session"
)

// topoSort returns plan indices in an order that respects DependsOn.
// Tasks with no dependencies start out in ascending index order; a task
// whose last dependency has just been taken joins the back of the ready
// queue, behind tasks that were ready before it, so the result is not
// always lowest-index-first. A cycle, or a dependency on an unknown task
// id, is an error.
func topoSort(plan []session.Task) ([]int, error) {
	idToIndex := make(map[string]int, len(plan))
	for i, t := range plan {
		idToIndex[t.ID] = i
	}

	indegree := make([]int, len(plan))
	dependents := make([][]int, len(plan))
	for i, t := range plan {
		for _, dep := range t.DependsOn {
			depIdx, ok := idToIndex[dep]
			if !ok {
				return nil, fmt.Errorf("task %q depends on unknown task %q", t.ID, dep)
			}
			indegree[i]++
			dependents[depIdx] = append(dependents[depIdx], i)
		}
	}

	var queue []int
	for i := range plan {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	var order []int
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		order = append(order, idx)
		for _, dep := range dependents[idx] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(plan) {
		return nil, fmt.Errorf("dependency cycle detected among %d tasks", len(plan)-len(order))
	}
	return order, nil
}
