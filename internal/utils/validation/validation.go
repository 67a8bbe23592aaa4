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

// Package validation holds the pure spec validation shared by the
// admission webhooks and the reconcilers.
package validation

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Masterminds/semver/v3"

	herdv1 "github.com/zackfeldstein/herd/api/v1"
	"github.com/zackfeldstein/herd/internal/scheduler"
	"github.com/zackfeldstein/herd/internal/stepconfig"
)

// ValidateTargets checks that exactly one targeting form is set and that a
// selector carries at least one match label.
func ValidateTargets(targets herdv1.Targets) error {
	hasIDs := len(targets.ClusterIDs) > 0
	hasSelector := targets.Selector != nil

	switch {
	case hasIDs && hasSelector:
		return errors.New("targets must set either clusterIds or selector, not both")
	case !hasIDs && !hasSelector:
		return errors.New("targets must set one of clusterIds or selector")
	case hasSelector && len(targets.Selector.MatchLabels) == 0:
		return errors.New("targets selector must carry at least one match label")
	}

	return nil
}

// ValidateStack validates the whole Stack spec: targets, chart identity
// uniqueness, chart versions and the dependsOn DAG.
func ValidateStack(stack *herdv1.Stack) error {
	var errs error

	errs = errors.Join(errs, ValidateTargets(stack.Spec.Targets))

	if len(stack.Spec.Charts) == 0 {
		errs = errors.Join(errs, errors.New("spec.charts must not be empty"))
		return errs
	}

	seen := make(map[string]struct{}, len(stack.Spec.Charts))
	for i := range stack.Spec.Charts {
		chart := &stack.Spec.Charts[i]
		if _, dup := seen[chart.Name]; dup {
			errs = errors.Join(errs, fmt.Errorf("duplicate chart name %q", chart.Name))
		}
		seen[chart.Name] = struct{}{}

		if _, err := semver.NewVersion(chart.Version); err != nil {
			errs = errors.Join(errs, fmt.Errorf("chart %q version %q is not a valid semantic version: %w", chart.Name, chart.Version, err))
		}
	}

	errs = errors.Join(errs, scheduler.Validate(StackNodes(stack)))

	return errs
}

// ValidatePipeline validates the whole Pipeline spec: targets, step
// identity and types, the per-step chart coordinates and the dependsOn DAG.
func ValidatePipeline(pipeline *herdv1.Pipeline) error {
	var errs error

	errs = errors.Join(errs, ValidateTargets(pipeline.Spec.Targets))

	if len(pipeline.Spec.Steps) == 0 {
		errs = errors.Join(errs, errors.New("spec.steps must not be empty"))
		return errs
	}

	seen := make(map[string]struct{}, len(pipeline.Spec.Steps))
	for i := range pipeline.Spec.Steps {
		step := &pipeline.Spec.Steps[i]
		if _, dup := seen[step.Name]; dup {
			errs = errors.Join(errs, fmt.Errorf("duplicate step name %q", step.Name))
		}
		seen[step.Name] = struct{}{}

		if !slices.Contains(herdv1.KnownStepTypes, step.Type) {
			errs = errors.Join(errs, fmt.Errorf("step %q has unknown type %q", step.Name, step.Type))
		}

		if _, err := stepconfig.Parse(step); err != nil {
			errs = errors.Join(errs, err)
		}
	}

	errs = errors.Join(errs, scheduler.Validate(PipelineNodes(pipeline)))

	return errs
}

// StackNodes maps the Stack's charts onto scheduler nodes.
func StackNodes(stack *herdv1.Stack) []scheduler.Node {
	nodes := make([]scheduler.Node, len(stack.Spec.Charts))
	for i := range stack.Spec.Charts {
		chart := &stack.Spec.Charts[i]
		nodes[i] = scheduler.Node{
			Name:      chart.Name,
			DependsOn: chart.DependsOn,
			Wait:      chart.GetWait(),
			Timeout:   chart.GetTimeout().Duration,
		}
	}
	return nodes
}

// PipelineNodes maps the Pipeline's steps onto scheduler nodes. Steps
// always gate their dependents on readiness.
func PipelineNodes(pipeline *herdv1.Pipeline) []scheduler.Node {
	nodes := make([]scheduler.Node, len(pipeline.Spec.Steps))
	for i := range pipeline.Spec.Steps {
		step := &pipeline.Spec.Steps[i]
		nodes[i] = scheduler.Node{
			Name:      step.Name,
			DependsOn: step.DependsOn,
			Wait:      true,
			Timeout:   step.GetTimeout().Duration,
			Retries:   step.GetRetries(),
		}
	}
	return nodes
}

// IsCycle reports whether the validation failure is a dependency cycle.
func IsCycle(err error) bool {
	cycle := new(scheduler.CycleError)
	return errors.As(err, &cycle)
}
