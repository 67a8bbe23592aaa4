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

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apiextv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"

	herdv1 "github.com/zackfeldstein/herd/api/v1"
)

func validChart(name string) herdv1.ChartSpec {
	return herdv1.ChartSpec{
		Name:        name,
		ReleaseName: name,
		Namespace:   name,
		Repo:        "https://charts.example.com",
		Version:     "1.0.0",
	}
}

func validStack() *herdv1.Stack {
	return &herdv1.Stack{
		Spec: herdv1.StackSpec{
			Env:     herdv1.EnvironmentDev,
			Targets: herdv1.Targets{ClusterIDs: []string{"c-a"}},
			Charts:  []herdv1.ChartSpec{validChart("nginx")},
		},
	}
}

func TestValidateTargets(t *testing.T) {
	for _, tc := range []struct {
		name      string
		targets   herdv1.Targets
		expectErr bool
	}{
		{
			name:    "explicit ids",
			targets: herdv1.Targets{ClusterIDs: []string{"c-a"}},
		},
		{
			name:    "selector",
			targets: herdv1.Targets{Selector: &herdv1.TargetSelector{MatchLabels: map[string]string{"env": "prod"}}},
		},
		{
			name:      "both set",
			targets:   herdv1.Targets{ClusterIDs: []string{"c-a"}, Selector: &herdv1.TargetSelector{MatchLabels: map[string]string{"env": "prod"}}},
			expectErr: true,
		},
		{
			name:      "neither set",
			targets:   herdv1.Targets{},
			expectErr: true,
		},
		{
			name:      "empty selector",
			targets:   herdv1.Targets{Selector: &herdv1.TargetSelector{MatchLabels: map[string]string{}}},
			expectErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTargets(tc.targets)
			if tc.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateStack(t *testing.T) {
	require.NoError(t, ValidateStack(validStack()))
}

func TestValidateStackDuplicateChartNames(t *testing.T) {
	stack := validStack()
	stack.Spec.Charts = append(stack.Spec.Charts, validChart("nginx"))

	require.Error(t, ValidateStack(stack))
}

func TestValidateStackBadVersion(t *testing.T) {
	stack := validStack()
	stack.Spec.Charts[0].Version = "not-a-version"

	require.Error(t, ValidateStack(stack))
}

func TestValidateStackCycle(t *testing.T) {
	stack := validStack()
	a := validChart("a")
	a.DependsOn = []string{"b"}
	b := validChart("b")
	b.DependsOn = []string{"a"}
	stack.Spec.Charts = []herdv1.ChartSpec{a, b}

	err := ValidateStack(stack)
	require.Error(t, err)
	assert.True(t, IsCycle(err))
}

func TestValidateStackUnknownDependencyIsNotCycle(t *testing.T) {
	stack := validStack()
	stack.Spec.Charts[0].DependsOn = []string{"ghost"}

	err := ValidateStack(stack)
	require.Error(t, err)
	assert.False(t, IsCycle(err))
}

func validStep(name string) herdv1.StepSpec {
	return herdv1.StepSpec{
		Name:   name,
		Type:   herdv1.StepTypeService,
		Config: apiextv1.JSON{Raw: []byte(`{"chart":"app","repo":"https://charts.example.com","version":"1.0.0"}`)},
	}
}

func validPipeline() *herdv1.Pipeline {
	return &herdv1.Pipeline{
		Spec: herdv1.PipelineSpec{
			Env:     herdv1.EnvironmentDev,
			Targets: herdv1.Targets{ClusterIDs: []string{"c-a"}},
			Steps:   []herdv1.StepSpec{validStep("app")},
		},
	}
}

func TestValidatePipeline(t *testing.T) {
	require.NoError(t, ValidatePipeline(validPipeline()))
}

func TestValidatePipelineUnknownStepType(t *testing.T) {
	pipeline := validPipeline()
	pipeline.Spec.Steps[0].Type = "warehouse"

	require.Error(t, ValidatePipeline(pipeline))
}

func TestValidatePipelineMissingChartCoordinates(t *testing.T) {
	pipeline := validPipeline()
	pipeline.Spec.Steps[0].Config = apiextv1.JSON{Raw: []byte(`{"model":"llama3"}`)}

	require.Error(t, ValidatePipeline(pipeline))
}

func TestValidatePipelineCycle(t *testing.T) {
	pipeline := validPipeline()
	a := validStep("a")
	a.DependsOn = []string{"b"}
	b := validStep("b")
	b.DependsOn = []string{"a"}
	pipeline.Spec.Steps = []herdv1.StepSpec{a, b}

	err := ValidatePipeline(pipeline)
	require.Error(t, err)
	assert.True(t, IsCycle(err))
}
