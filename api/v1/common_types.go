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
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// HerdFinalizer is the finalizer applied to Stack and Pipeline objects.
	HerdFinalizer = "herd.suse.com/finalizer"

	// OwnerKindLabelKey identifies the kind of the owning resource on child objects.
	OwnerKindLabelKey = "herd.suse.com/owner-kind"
	// OwnerNameLabelKey identifies the name of the owning resource on child objects.
	OwnerNameLabelKey = "herd.suse.com/owner-name"
	// OwnerNamespaceLabelKey identifies the namespace of the owning resource on child objects.
	OwnerNamespaceLabelKey = "herd.suse.com/owner-namespace"
	// ChartLabelKey identifies the chart (or step) a Bundle was synthesized for.
	ChartLabelKey = "herd.suse.com/chart"

	// ContentHashAnnotation carries the hash of the last applied Bundle spec.
	ContentHashAnnotation = "herd.suse.com/content-hash"
	// FirstAppliedAnnotation carries the RFC3339 time of the first apply of a Bundle.
	// Chart timeouts are measured against it.
	FirstAppliedAnnotation = "herd.suse.com/first-applied-at"
)

const (
	// EnvOverlayConfigMapPrefix prefixes the implicit per-environment values overlay
	// ConfigMap, resolved as "herd-env-{env}" in the owner's namespace.
	EnvOverlayConfigMapPrefix = "herd-env-"

	// DefaultValuesKey is the ConfigMap/Secret key holding values payloads
	// unless a reference overrides it.
	DefaultValuesKey = "values.yaml"
)

// Condition types reported on Stack and Pipeline objects.
const (
	// ReadyCondition reports the overall deployment phase: True once every
	// chart or step is deployed, False with the failure or progress reason
	// otherwise. The marker conditions below do not feed into it.
	ReadyCondition = "Ready"
	// SecurityScannedCondition reports the NeuVector scan marker state,
	// present only when spec.security is enabled.
	SecurityScannedCondition = "SecurityScanned"
	// ObservabilityConfiguredCondition reports the observability marker state,
	// present only when spec.observability is enabled.
	ObservabilityConfiguredCondition = "ObservabilityConfigured"
)

// Reasons are provided as utility, and not part of the declarative API.
const (
	SucceededReason   = "Succeeded"
	FailedReason      = "Failed"
	ProgressingReason = "Progressing"

	// CycleDetectedReason signals that dependsOn edges form a cycle.
	CycleDetectedReason = "CycleDetected"
	// NoTargetsReason signals that target resolution produced zero valid clusters.
	NoTargetsReason = "NoTargets"
	// EmptySelectorReason signals a selector with no match labels.
	EmptySelectorReason = "EmptySelector"
	// ValidationFailedReason signals a permanently invalid spec.
	ValidationFailedReason = "ValidationFailed"
	// MissingValueSourceReason signals an absent ConfigMap or Secret values source.
	MissingValueSourceReason = "MissingValueSource"
	// ParseFailureReason signals an unparsable values payload.
	ParseFailureReason = "ParseFailure"
	// TimeoutExpiredReason signals a chart exceeded its wait timeout.
	TimeoutExpiredReason = "TimeoutExpired"
	// BlockedReason signals that a chart was not attempted because a dependency failed.
	BlockedReason = "Blocked"
	// ScanPendingReason signals the security scan has been requested but not reported back.
	ScanPendingReason = "ScanPending"
	// ScanCompletedReason signals the security scan reported back.
	ScanCompletedReason = "ScanCompleted"
	// ObservabilityPendingReason signals observability configuration has been requested.
	ObservabilityPendingReason = "ObservabilityPending"
	// ObservabilityConfiguredReason signals observability collaborators reported back.
	ObservabilityConfiguredReason = "ObservabilityConfigured"
)

// +kubebuilder:validation:Enum=dev;staging;prod

// Environment is the deployment environment label. It selects the implicit
// "herd-env-{env}" values overlay ConfigMap.
type Environment string

const (
	EnvironmentDev     Environment = "dev"
	EnvironmentStaging Environment = "staging"
	EnvironmentProd    Environment = "prod"
)

// +kubebuilder:validation:Enum=Pending;Deploying;Deployed;Failed;Deleting

// Phase is the lifecycle phase of a Stack or Pipeline.
type Phase string

const (
	PhasePending   Phase = "Pending"
	PhaseDeploying Phase = "Deploying"
	PhaseDeployed  Phase = "Deployed"
	PhaseFailed    Phase = "Failed"
	PhaseDeleting  Phase = "Deleting"
)

// +kubebuilder:validation:Enum=Pending;Deploying;Deployed;Failed;Blocked

// DeploymentState is the state of one chart or step on one cluster.
type DeploymentState string

const (
	DeploymentPending   DeploymentState = "Pending"
	DeploymentDeploying DeploymentState = "Deploying"
	DeploymentDeployed  DeploymentState = "Deployed"
	DeploymentFailed    DeploymentState = "Failed"
	// DeploymentBlocked marks a chart that was never attempted because a
	// transitive dependency failed. Distinct from Failed on purpose.
	DeploymentBlocked DeploymentState = "Blocked"
)

// TargetSelector matches clusters by labels. A cluster matches when its
// labels are a superset of MatchLabels.
type TargetSelector struct {
	// +kubebuilder:validation:MinProperties=1

	// MatchLabels is the set of labels a cluster must carry to be selected.
	MatchLabels map[string]string `json:"matchLabels"`
}

// Targets specifies the downstream clusters to deploy to. Exactly one of
// ClusterIDs or Selector must be set.
type Targets struct {
	// ClusterIDs is an explicit list of Rancher cluster ids.
	ClusterIDs []string `json:"clusterIds,omitempty"`
	// Selector matches clusters by labels.
	Selector *TargetSelector `json:"selector,omitempty"`
}

// ValuesRef references a key in a ConfigMap or Secret holding a YAML values payload.
type ValuesRef struct {
	// +kubebuilder:validation:MinLength=1
	// +kubebuilder:validation:MaxLength=253

	// Name of the referenced object.
	Name string `json:"name"`

	// Namespace of the referenced object. Defaults to the owner's namespace.
	Namespace string `json:"namespace,omitempty"`

	// +kubebuilder:default:="values.yaml"

	// Key in the referenced object's data.
	Key string `json:"key,omitempty"`
}

// GetKey returns the data key, applying the default.
func (r *ValuesRef) GetKey() string {
	if r.Key == "" {
		return DefaultValuesKey
	}
	return r.Key
}

// DefaultTimeout is applied when a chart or step omits its timeout.
var DefaultTimeout = metav1.Duration{Duration: 10 * time.Minute}
