// Copyright 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package scheduler plans the execution of a dependsOn DAG of charts or
// steps. The planner is pure: given the declared nodes and the current
// observations it computes every node's state, the set of nodes to apply
// now and the overall phase. The reconciler executes the plan and calls
// back on the next observation change, so progress is level-triggered.
package scheduler

import (
	"fmt"
	"time"

	herdv1 "github.com/zackfeldstein/herd/api/v1"
)

// Node is one chart or step of the DAG.
type Node struct {
	Name      string
	DependsOn []string
	// Wait gates dependents on readiness across all targets rather than on apply.
	Wait bool
	// Timeout bounds the wait, measured from the node's first apply.
	Timeout time.Duration
	// Retries is the re-apply budget on failure. Zero for charts.
	Retries int32
}

// Observation is the externally observed state of one node.
type Observation struct {
	// Applied is set once the node's Bundle exists.
	Applied bool
	// FirstApplied is when the Bundle was first applied.
	FirstApplied time.Time
	// Ready is set once the node's deployments are ready on every target.
	Ready bool
	// Failed marks a terminal failure: apply error, values failure, or a
	// failed deployment reported by Fleet.
	Failed bool
	// Message is the failure or progress detail.
	Message string
	// RetryCount is the number of re-applies performed so far.
	RetryCount int32
}

// CycleError reports a dependsOn cycle.
type CycleError struct {
	Node string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected involving %q", e.Node)
}

// UnknownDependencyError reports a dependsOn edge to a name that does not exist.
type UnknownDependencyError struct {
	Node       string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("node %q depends on unknown node %q", e.Node, e.Dependency)
}

// Plan is the outcome of one planning pass.
type Plan struct {
	// States maps every node to its computed state.
	States map[string]herdv1.DeploymentState
	// Messages carries per-node detail, set at least for failed and blocked nodes.
	Messages map[string]string
	// Apply lists the nodes to apply now, in declared order.
	Apply []string
	// RetryCounts maps nodes in Apply that are re-applies to their new retry count.
	RetryCounts map[string]int32
	// Phase is the overall phase derived from the node states.
	Phase herdv1.Phase
	// RequeueAfter is the time until the earliest pending timeout, zero when
	// no deadline is outstanding.
	RequeueAfter time.Duration
}

// Validate checks the DAG for unknown dependencies and cycles without
// planning anything. Used at admission and before the first apply.
func Validate(nodes []Node) error {
	byName := make(map[string]*Node, len(nodes))
	for i := range nodes {
		byName[nodes[i].Name] = &nodes[i]
	}

	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(nodes))

	var visit func(name string) error
	visit = func(name string) error {
		switch marks[name] {
		case visiting:
			return &CycleError{Node: name}
		case done:
			return nil
		}
		marks[name] = visiting

		for _, dep := range byName[name].DependsOn {
			if _, ok := byName[dep]; !ok {
				return &UnknownDependencyError{Node: name, Dependency: dep}
			}
			if err := visit(dep); err != nil {
				return err
			}
		}

		marks[name] = done
		return nil
	}

	for _, n := range nodes {
		if err := visit(n.Name); err != nil {
			return err
		}
	}

	return nil
}

// Compute plans one pass over the DAG. It never mutates observations.
func Compute(nodes []Node, observations map[string]Observation, now time.Time) (Plan, error) {
	if err := Validate(nodes); err != nil {
		return Plan{}, err
	}

	plan := Plan{
		States:      make(map[string]herdv1.DeploymentState, len(nodes)),
		Messages:    make(map[string]string, len(nodes)),
		RetryCounts: make(map[string]int32),
	}

	byName := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byName[n.Name] = n
	}

	// First pass: terminal states from direct observations.
	for _, n := range nodes {
		obs := observations[n.Name]
		switch {
		case obs.Failed && obs.RetryCount >= n.Retries:
			plan.States[n.Name] = herdv1.DeploymentFailed
			plan.Messages[n.Name] = obs.Message
		case timedOut(n, obs, now):
			plan.States[n.Name] = herdv1.DeploymentFailed
			plan.Messages[n.Name] = fmt.Sprintf("timed out after %s waiting for readiness", n.Timeout)
		case completed(n, obs):
			plan.States[n.Name] = herdv1.DeploymentDeployed
		case obs.Applied || obs.Failed:
			// obs.Failed with remaining retries stays Deploying until re-applied.
			plan.States[n.Name] = herdv1.DeploymentDeploying
		default:
			plan.States[n.Name] = herdv1.DeploymentPending
		}
	}

	// Second pass: block every transitive dependent of a failed node.
	blocked := make(map[string]bool, len(nodes))
	var isBlocked func(name string) bool
	isBlocked = func(name string) bool {
		if b, ok := blocked[name]; ok {
			return b
		}
		blocked[name] = false // cycle guard; Validate already rejected real cycles
		for _, dep := range byName[name].DependsOn {
			if plan.States[dep] == herdv1.DeploymentFailed || isBlocked(dep) {
				blocked[name] = true
				break
			}
		}
		return blocked[name]
	}
	for _, n := range nodes {
		if plan.States[n.Name] != herdv1.DeploymentFailed && isBlocked(n.Name) {
			plan.States[n.Name] = herdv1.DeploymentBlocked
			plan.Messages[n.Name] = "not attempted: a dependency failed"
		}
	}

	// Third pass: the ready frontier, in declared order.
	for _, n := range nodes {
		obs := observations[n.Name]
		state := plan.States[n.Name]

		retryable := obs.Failed && obs.RetryCount < n.Retries
		fresh := state == herdv1.DeploymentPending && !obs.Applied
		if fresh || (retryable && state == herdv1.DeploymentDeploying) {
			if !depsSatisfied(n, plan.States) {
				continue
			}
			plan.Apply = append(plan.Apply, n.Name)
			if retryable {
				plan.RetryCounts[n.Name] = obs.RetryCount + 1
			}
		}
	}

	plan.Phase = overallPhase(plan.States)
	plan.RequeueAfter = nextDeadline(nodes, observations, plan.States, now)

	return plan, nil
}

// completed reports whether the node has reached its terminal success
// state: applied, and for wait nodes also ready on every target.
func completed(n Node, obs Observation) bool {
	if !obs.Applied {
		return false
	}
	return !n.Wait || obs.Ready
}

func timedOut(n Node, obs Observation, now time.Time) bool {
	if !n.Wait || !obs.Applied || obs.Ready || n.Timeout <= 0 || obs.FirstApplied.IsZero() {
		return false
	}
	return now.Sub(obs.FirstApplied) > n.Timeout
}

func depsSatisfied(n Node, states map[string]herdv1.DeploymentState) bool {
	for _, dep := range n.DependsOn {
		if states[dep] != herdv1.DeploymentDeployed {
			return false
		}
	}
	return true
}

func overallPhase(states map[string]herdv1.DeploymentState) herdv1.Phase {
	deployed := 0
	for _, s := range states {
		switch s {
		case herdv1.DeploymentFailed, herdv1.DeploymentBlocked:
			return herdv1.PhaseFailed
		case herdv1.DeploymentDeployed:
			deployed++
		}
	}
	if deployed == len(states) {
		return herdv1.PhaseDeployed
	}
	return herdv1.PhaseDeploying
}

// nextDeadline returns the time until the earliest outstanding wait
// timeout, so the reconciler can requeue even without an external event.
func nextDeadline(nodes []Node, observations map[string]Observation, states map[string]herdv1.DeploymentState, now time.Time) time.Duration {
	var next time.Duration
	for _, n := range nodes {
		obs := observations[n.Name]
		if states[n.Name] != herdv1.DeploymentDeploying || !n.Wait || !obs.Applied || obs.FirstApplied.IsZero() || n.Timeout <= 0 {
			continue
		}
		remaining := n.Timeout - now.Sub(obs.FirstApplied)
		if remaining <= 0 {
			remaining = time.Second
		}
		if next == 0 || remaining < next {
			next = remaining
		}
	}
	return next
}
