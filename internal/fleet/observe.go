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

package fleet

import (
	"context"
	"fmt"
	"time"

	fleetv1alpha1 "github.com/rancher/fleet/pkg/apis/fleet.cattle.io/v1alpha1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"

	herdv1 "github.com/zackfeldstein/herd/api/v1"
)

// Labels Fleet puts on BundleDeployments, used to map them back to their
// Bundle and target cluster.
const (
	BundleNameLabel      = "fleet.cattle.io/bundle-name"
	BundleNamespaceLabel = "fleet.cattle.io/bundle-namespace"
	ClusterLabel         = "fleet.cattle.io/cluster"
)

// Condition types Fleet reports on BundleDeployments.
const (
	bundleDeployedCondition = "Deployed"
)

// ClusterState is the observed state of one Bundle on one cluster.
type ClusterState struct {
	State   herdv1.DeploymentState
	Message string
}

// Observation is the observed state of one Bundle across its target clusters.
type Observation struct {
	// Found is set when the Bundle exists.
	Found bool
	// FirstApplied is read back from the first-applied annotation.
	FirstApplied time.Time
	// Ready is set when every expected cluster reports a ready deployment.
	Ready bool
	// Failed is set when any cluster reports a terminal deployment error.
	Failed bool
	// Message summarizes the most relevant failure or progress detail.
	Message string
	// PerCluster maps cluster ids to their deployment state.
	PerCluster map[string]ClusterState
}

// Observe reads back the state of the named Bundle in the given workspace
// for the expected clusters. A cluster without a BundleDeployment yet is
// reported as deploying.
func Observe(ctx context.Context, cl client.Client, workspace, name string, clusterIDs []string) (Observation, error) {
	obs := Observation{PerCluster: make(map[string]ClusterState, len(clusterIDs))}

	bundle := new(fleetv1alpha1.Bundle)
	err := cl.Get(ctx, client.ObjectKey{Namespace: workspace, Name: name}, bundle)
	if apierrors.IsNotFound(err) {
		for _, id := range clusterIDs {
			obs.PerCluster[id] = ClusterState{State: herdv1.DeploymentPending}
		}
		return obs, nil
	}
	if err != nil {
		return obs, fmt.Errorf("failed to get Bundle %s/%s: %w", workspace, name, err)
	}

	obs.Found = true
	if raw, ok := bundle.Annotations[herdv1.FirstAppliedAnnotation]; ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			obs.FirstApplied = t
		}
	}

	deployments := new(fleetv1alpha1.BundleDeploymentList)
	if err := cl.List(ctx, deployments, client.MatchingLabels{
		BundleNameLabel:      name,
		BundleNamespaceLabel: workspace,
	}); err != nil {
		return obs, fmt.Errorf("failed to list BundleDeployments of Bundle %s/%s: %w", workspace, name, err)
	}

	byCluster := make(map[string]*fleetv1alpha1.BundleDeployment, len(deployments.Items))
	for i := range deployments.Items {
		bd := &deployments.Items[i]
		byCluster[bd.Labels[ClusterLabel]] = bd
	}

	ready := 0
	for _, id := range clusterIDs {
		state := clusterState(byCluster[id])
		obs.PerCluster[id] = state

		switch state.State {
		case herdv1.DeploymentDeployed:
			ready++
		case herdv1.DeploymentFailed:
			obs.Failed = true
			if obs.Message == "" {
				obs.Message = fmt.Sprintf("cluster %s: %s", id, state.Message)
			}
		}
	}

	obs.Ready = len(clusterIDs) > 0 && ready == len(clusterIDs)

	return obs, nil
}

// clusterState derives the deployment state of one cluster from its
// BundleDeployment, nil meaning the Fleet agent has not picked it up yet.
func clusterState(bd *fleetv1alpha1.BundleDeployment) ClusterState {
	if bd == nil {
		return ClusterState{State: herdv1.DeploymentDeploying, Message: "waiting for cluster agent"}
	}

	if bd.Status.Ready {
		return ClusterState{State: herdv1.DeploymentDeployed}
	}

	for _, cond := range bd.Status.Conditions {
		if cond.Type != bundleDeployedCondition {
			continue
		}
		if cond.Status == corev1.ConditionFalse && cond.Message != "" {
			return ClusterState{State: herdv1.DeploymentFailed, Message: cond.Message}
		}
	}

	return ClusterState{State: herdv1.DeploymentDeploying, Message: "deployment in progress"}
}
