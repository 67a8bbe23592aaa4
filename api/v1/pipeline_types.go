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

package v1

import (
	apiextv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// PipelineKind is the string representation of the Pipeline kind.
	PipelineKind = "Pipeline"
)

// +kubebuilder:validation:Enum=ingestion;vector-db;llm;service

// StepType classifies a Pipeline step.
type StepType string

const (
	StepTypeIngestion StepType = "ingestion"
	StepTypeVectorDB  StepType = "vector-db"
	StepTypeLLM       StepType = "llm"
	StepTypeService   StepType = "service"
)

// KnownStepTypes lists every valid step type.
var KnownStepTypes = []StepType{StepTypeIngestion, StepTypeVectorDB, StepTypeLLM, StepTypeService}

// StepSpec describes one step of a Pipeline.
type StepSpec struct {
	// +kubebuilder:validation:MinLength=1
	// +kubebuilder:validation:MaxLength=253

	// Name identifies the step within the Pipeline and is referenced by dependsOn.
	Name string `json:"name"`

	// Type classifies the step.
	Type StepType `json:"type"`

	// +kubebuilder:pruning:PreserveUnknownFields

	// Config carries type-specific configuration. The chart coordinates are
	// read from the well-known keys "chart", "repo", "version", "releaseName",
	// "namespace" and "values"; everything else passes through to the
	// deployed component under "stepConfig".
	Config apiextv1.JSON `json:"config"`

	// DependsOn lists steps in this Pipeline that must complete first.
	DependsOn []string `json:"dependsOn,omitempty"`

	// Timeout bounds the step execution, measured from the first apply.
	// Defaults to 10m.
	Timeout *metav1.Duration `json:"timeout,omitempty"`

	// +kubebuilder:validation:Minimum=0
	// +kubebuilder:validation:Maximum=10

	// Retries is the number of re-applies allowed on transient failure.
	// Defaults to 3.
	Retries *int32 `json:"retries,omitempty"`
}

// GetTimeout returns the step timeout, applying the default.
func (s *StepSpec) GetTimeout() metav1.Duration {
	if s.Timeout == nil {
		return DefaultTimeout
	}
	return *s.Timeout
}

// GetRetries returns the retry budget, applying the default.
func (s *StepSpec) GetRetries() int32 {
	if s.Retries == nil {
		return 3
	}
	return *s.Retries
}

// PipelineSpec defines the desired state of Pipeline.
type PipelineSpec struct {
	// Env is the environment this Pipeline deploys into.
	Env Environment `json:"env"`

	// Targets specifies the downstream clusters to deploy to.
	Targets Targets `json:"targets"`

	// +kubebuilder:validation:MinItems=1
	// +listType=map
	// +listMapKey=name

	// Steps is the ordered DAG of typed steps to execute.
	Steps []StepSpec `json:"steps"`

	// Security enables the NeuVector scan integration for this Pipeline.
	Security bool `json:"security,omitempty"`

	// Observability enables the observability integration for this Pipeline.
	Observability bool `json:"observability,omitempty"`
}

// StepDeploymentStatus reports the state of one step on one cluster.
type StepDeploymentStatus struct {
	// StepName is the step the deployment belongs to.
	StepName string `json:"stepName"`
	// StepType is the step's type.
	StepType StepType `json:"stepType,omitempty"`
	// ClusterID is the target cluster.
	ClusterID string `json:"clusterId"`
	// Status is the deployment state.
	Status DeploymentState `json:"status"`
	// Message is a human-readable summary of the last observation.
	Message string `json:"message,omitempty"`
	// RetryCount is the number of re-applies performed so far.
	RetryCount int32 `json:"retryCount,omitempty"`
	// LastUpdated is the time of the last observation.
	LastUpdated metav1.Time `json:"lastUpdated,omitempty"`
}

// PipelineStatus defines the observed state of Pipeline.
type PipelineStatus struct {
	// Phase is the lifecycle phase of the Pipeline.
	Phase Phase `json:"phase,omitempty"`
	// Message carries the most recent human-readable summary.
	Message string `json:"message,omitempty"`

	// +patchMergeKey=type
	// +patchStrategy=merge
	// +listType=map
	// +listMapKey=type

	// Conditions contains details for the current state of the Pipeline.
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// StepStatus reports per-(step, cluster) deployment state.
	StepStatus []StepDeploymentStatus `json:"stepStatus,omitempty"`
	// TargetClusters is the sorted list of resolved cluster ids.
	TargetClusters []string `json:"targetClusters,omitempty"`
	// Security is present only when spec.security is enabled.
	Security *SecurityStatus `json:"security,omitempty"`
	// Observability is present only when spec.observability is enabled.
	Observability *ObservabilityStatus `json:"observability,omitempty"`
	// LastReconcileTime is the time of the last completed reconciliation.
	LastReconcileTime *metav1.Time `json:"lastReconcileTime,omitempty"`
	// ObservedGeneration is the last observed generation.
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Env",type=string,JSONPath=`.spec.env`,description="Deployment environment",priority=0
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`,description="Pipeline phase",priority=0
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`,description="Time elapsed since object creation",priority=0

// Pipeline is the Schema for the pipelines API.
type Pipeline struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   PipelineSpec   `json:"spec,omitempty"`
	Status PipelineStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// PipelineList contains a list of Pipeline.
type PipelineList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Pipeline `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Pipeline{}, &PipelineList{})
}
