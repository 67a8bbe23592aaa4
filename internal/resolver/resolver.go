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

// Package resolver turns a targets specification into a concrete, sorted
// set of downstream clusters classified by Fleet workspace.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	ctrl "sigs.k8s.io/controller-runtime"

	herdv1 "github.com/zackfeldstein/herd/api/v1"
	"github.com/zackfeldstein/herd/internal/rancher"
)

const (
	// WorkspaceLocal is the Fleet workspace of the management cluster.
	WorkspaceLocal = "fleet-local"
	// WorkspaceDefault is the Fleet workspace of every downstream cluster.
	WorkspaceDefault = "fleet-default"

	// managementClusterID is the Rancher id of the management cluster.
	managementClusterID = "local"
)

var (
	// ErrNoTargets signals that resolution produced zero valid clusters.
	ErrNoTargets = errors.New("no valid target clusters")
	// ErrEmptySelector signals a selector without match labels.
	ErrEmptySelector = errors.New("selector has no match labels")
)

// ResolvedCluster is one target cluster validated against the Rancher inventory.
type ResolvedCluster struct {
	// ID is the cluster id.
	ID string
	// Workspace is the Fleet workspace the cluster is registered in.
	Workspace string
	// Labels are the cluster labels at resolution time.
	Labels map[string]string
}

// Resolver resolves targets against a cluster inventory.
type Resolver struct {
	Lister rancher.ClusterLister
}

// Resolve translates the targets specification into a sorted set of
// resolved clusters. Unknown explicit ids are returned as warnings; they
// fail resolution only when no valid cluster remains. Clusters whose state
// is not active are excluded from the inventory.
func (r *Resolver) Resolve(ctx context.Context, targets herdv1.Targets) (clusters []ResolvedCluster, warnings []string, err error) {
	inventory, err := r.Lister.Clusters(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch cluster inventory: %w", err)
	}

	active := make(map[string]rancher.Cluster, len(inventory))
	for _, c := range inventory {
		if c.State == rancher.ClusterStateActive {
			active[c.ID] = c
		}
	}

	switch {
	case len(targets.ClusterIDs) > 0:
		clusters, warnings = resolveByIDs(targets.ClusterIDs, active)
	case targets.Selector != nil:
		if len(targets.Selector.MatchLabels) == 0 {
			return nil, nil, ErrEmptySelector
		}
		clusters = resolveBySelector(targets.Selector.MatchLabels, active)
	}

	if len(clusters) == 0 {
		return nil, warnings, ErrNoTargets
	}

	// Sorted output keeps downstream Bundle generation stable across reconciliations.
	slices.SortFunc(clusters, func(a, b ResolvedCluster) int {
		return strings.Compare(a.ID, b.ID)
	})

	ctrl.LoggerFrom(ctx).V(1).Info("resolved target clusters", "count", len(clusters), "warnings", len(warnings))

	return clusters, warnings, nil
}

func resolveByIDs(ids []string, active map[string]rancher.Cluster) (clusters []ResolvedCluster, warnings []string) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		c, ok := active[id]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("cluster %q is unknown or not active", id))
			continue
		}
		clusters = append(clusters, toResolved(c))
	}

	return clusters, warnings
}

func resolveBySelector(matchLabels map[string]string, active map[string]rancher.Cluster) []ResolvedCluster {
	var clusters []ResolvedCluster
	for _, c := range active {
		if labelsMatch(c.Labels, matchLabels) {
			clusters = append(clusters, toResolved(c))
		}
	}

	return clusters
}

// labelsMatch reports whether the cluster labels are a superset of the selector.
func labelsMatch(clusterLabels, matchLabels map[string]string) bool {
	for k, v := range matchLabels {
		if clusterLabels[k] != v {
			return false
		}
	}
	return true
}

func toResolved(c rancher.Cluster) ResolvedCluster {
	return ResolvedCluster{
		ID:        c.ID,
		Workspace: WorkspaceFor(c.ID),
		Labels:    c.Labels,
	}
}

// WorkspaceFor classifies a cluster id into its Fleet workspace.
func WorkspaceFor(clusterID string) string {
	if clusterID == managementClusterID {
		return WorkspaceLocal
	}
	return WorkspaceDefault
}

// IDs returns the ids of the given clusters, preserving order.
func IDs(clusters []ResolvedCluster) []string {
	out := make([]string, len(clusters))
	for i, c := range clusters {
		out[i] = c.ID
	}
	return out
}

// ByWorkspace groups the given clusters by their Fleet workspace,
// preserving the sorted order within each group.
func ByWorkspace(clusters []ResolvedCluster) map[string][]ResolvedCluster {
	out := make(map[string][]ResolvedCluster)
	for _, c := range clusters {
		out[c.Workspace] = append(out[c.Workspace], c)
	}
	return out
}
