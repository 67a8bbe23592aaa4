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
	// StackKind is the string representation of the Stack kind.
	StackKind = "Stack"
)

// ChartValues is the union of values sources for one chart. Sources are
// merged lowest to highest: configMapRefs, the implicit environment overlay,
// perClusterConfigMapRef, secretRefs, inline.
type ChartValues struct {
	// ConfigMapRefs are base values, applied in declared order.
	ConfigMapRefs []ValuesRef `json:"configMapRefs,omitempty"`
	// SecretRefs are sensitive values, applied in declared order above
	// ConfigMap-sourced values. Their contents are never logged.
	SecretRefs []ValuesRef `json:"secretRefs,omitempty"`
	// PerClusterConfigMapRef references a ConfigMap whose "{clusterId}.yaml"
	// keys carry per-cluster overrides.
	PerClusterConfigMapRef *ValuesRef `json:"perClusterConfigMapRef,omitempty"`

	// +kubebuilder:pruning:PreserveUnknownFields

	// Inline values take precedence over every other source.
	Inline *apiextv1.JSON `json:"inline,omitempty"`
}

// ChartSpec describes one Helm chart of a Stack.
type ChartSpec struct {
	// +kubebuilder:validation:MinLength=1
	// +kubebuilder:validation:MaxLength=253

	// Name identifies the chart within the Stack and is referenced by dependsOn.
	Name string `json:"name"`

	// +kubebuilder:validation:MinLength=1

	// ReleaseName is the Helm release name on target clusters.
	ReleaseName string `json:"releaseName"`

	// +kubebuilder:validation:MinLength=1

	// Namespace is the namespace the release is installed in.
	Namespace string `json:"namespace"`

	// +kubebuilder:validation:MinLength=1

	// Repo is the Helm repository URL.
	Repo string `json:"repo"`

	// +kubebuilder:validation:MinLength=1

	// Version is the chart version.
	Version string `json:"version"`

	// Values configures the values sources for this chart.
	Values ChartValues `json:"values,omitempty"`

	// DependsOn lists charts in this Stack that must be deployed first.
	DependsOn []string `json:"dependsOn,omitempty"`

	// Wait gates dependents on this chart's deployments reaching Ready on
	// all target clusters rather than merely being applied. Defaults to true.
	Wait *bool `json:"wait,omitempty"`

	// Timeout bounds the wait, measured from the first apply. Defaults to 10m.
	Timeout *metav1.Duration `json:"timeout,omitempty"`

	// CreateNamespace creates the release namespace when absent. Defaults to true.
	CreateNamespace *bool `json:"createNamespace,omitempty"`
}

// GetWait returns the wait flag, applying the default.
func (c *ChartSpec) GetWait() bool {
	return c.Wait == nil || *c.Wait
}

// GetTimeout returns the chart timeout, applying the default.
func (c *ChartSpec) GetTimeout() metav1.Duration {
	if c.Timeout == nil {
		return DefaultTimeout
	}
	return *c.Timeout
}

// GetCreateNamespace returns the createNamespace flag, applying the default.
func (c *ChartSpec) GetCreateNamespace() bool {
	return c.CreateNamespace == nil || *c.CreateNamespace
}

// StackSpec defines the desired state of Stack.
type StackSpec struct {
	// Env is the environment this Stack deploys into.
	Env Environment `json:"env"`

	// Targets specifies the downstream clusters to deploy to.
	Targets Targets `json:"targets"`

	// +kubebuilder:validation:MinItems=1
	// +listType=map
	// +listMapKey=name

	// Charts is the set of Helm charts to deploy.
	Charts []ChartSpec `json:"charts"`

	// Security enables the NeuVector scan integration for this Stack.
	Security bool `json:"security,omitempty"`

	// Observability enables the observability integration for this Stack.
	Observability bool `json:"observability,omitempty"`
}

// ChartDeploymentStatus reports the state of one chart on one cluster.
type ChartDeploymentStatus struct {
	// ChartName is the chart the deployment belongs to.
	ChartName string `json:"chartName"`
	// ClusterID is the target cluster.
	ClusterID string `json:"clusterId"`
	// ReleaseName is the Helm release name.
	ReleaseName string `json:"releaseName,omitempty"`
	// Namespace is the release namespace.
	Namespace string `json:"namespace,omitempty"`
	// Version is the chart version.
	Version string `json:"version,omitempty"`
	// Status is the deployment state.
	Status DeploymentState `json:"status"`
	// Message is a human-readable summary of the last observation.
	Message string `json:"message,omitempty"`
	// LastUpdated is the time of the last observation.
	LastUpdated metav1.Time `json:"lastUpdated,omitempty"`
}

// SecurityStatus is populated only when spec.security is enabled. Its fields
// are sourced from the NeuVector scan collaborator through the scan marker.
type SecurityStatus struct {
	// ScanStatus is the collaborator-reported scan state.
	ScanStatus string `json:"scanStatus,omitempty"`
	// Vulnerabilities is the total number of findings.
	Vulnerabilities int32 `json:"vulnerabilities,omitempty"`
	// CriticalIssues is the number of critical findings.
	CriticalIssues int32 `json:"criticalIssues,omitempty"`
}

// ObservabilityStatus is populated only when spec.observability is enabled.
type ObservabilityStatus struct {
	// MetricsCollected indicates metrics collection is active.
	MetricsCollected bool `json:"metricsCollected,omitempty"`
	// DashboardsAvailable indicates dashboards have been provisioned.
	DashboardsAvailable bool `json:"dashboardsAvailable,omitempty"`
	// AlertsConfigured indicates alerting rules have been provisioned.
	AlertsConfigured bool `json:"alertsConfigured,omitempty"`
}

// StackStatus defines the observed state of Stack.
type StackStatus struct {
	// Phase is the lifecycle phase of the Stack.
	Phase Phase `json:"phase,omitempty"`
	// Message carries the most recent human-readable summary.
	Message string `json:"message,omitempty"`

	// +patchMergeKey=type
	// +patchStrategy=merge
	// +listType=map
	// +listMapKey=type

	// Conditions contains details for the current state of the Stack.
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// Deployments reports per-(chart, cluster) deployment state.
	Deployments []ChartDeploymentStatus `json:"deployments,omitempty"`
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
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`,description="Stack phase",priority=0
// +kubebuilder:printcolumn:name="Clusters",type=string,JSONPath=`.status.targetClusters`,description="Resolved target clusters",priority=1
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`,description="Time elapsed since object creation",priority=0

// Stack is the Schema for the stacks API.
type Stack struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   StackSpec   `json:"spec,omitempty"`
	Status StackStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// StackList contains a list of Stack.
type StackList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Stack `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Stack{}, &StackList{})
}
