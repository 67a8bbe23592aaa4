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

// Package fleet synthesizes Fleet Bundles out of chart deployments and
// observes their state. One Bundle is produced per (chart, workspace);
// every resolved cluster of the workspace becomes a Bundle target carrying
// that cluster's rendered values.
package fleet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	fleetv1alpha1 "github.com/rancher/fleet/pkg/apis/fleet.cattle.io/v1alpha1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	herdv1 "github.com/zackfeldstein/herd/api/v1"
)

// TargetValues carries the rendered values for one cluster of a Bundle.
type TargetValues struct {
	ClusterID string
	Values    map[string]any
}

// BundleInput describes one Bundle to synthesize.
type BundleInput struct {
	// Owner coordinates, recorded as labels for garbage collection.
	OwnerKind      string
	OwnerName      string
	OwnerNamespace string

	// ChartName is the chart (or step) name within the parent resource. It
	// drives the Bundle name and the chart label.
	ChartName string

	// Helm chart coordinates. Chart defaults to ChartName when empty.
	Chart       string
	Repo        string
	Version     string
	ReleaseName string
	Namespace   string

	// CreateNamespace lets Fleet create the release namespace.
	CreateNamespace bool

	// Timeout bounds the Helm operation on the agent.
	Timeout time.Duration

	// Workspace is the Fleet workspace namespace the Bundle is placed in.
	Workspace string

	// Targets is one entry per resolved cluster of the workspace, in
	// resolution order.
	Targets []TargetValues

	// DependsOn references sibling Bundles that must be ready first.
	DependsOn []string
}

// BundleName derives the deterministic Bundle name for a chart of a parent
// resource: "{kind|lower}-{parent}-{chart}", truncated to 63 characters
// with a trailing dash stripped.
func BundleName(ownerKind, ownerName, chartName string) string {
	name := strings.ToLower(ownerKind) + "-" + ownerName + "-" + chartName
	if len(name) > validation.DNS1123LabelMaxLength {
		name = name[:validation.DNS1123LabelMaxLength]
	}
	return strings.TrimRight(name, "-")
}

// OwnerLabels returns the label set identifying the parent resource on
// synthesized Bundles.
func OwnerLabels(ownerKind, ownerNamespace, ownerName string) map[string]string {
	return map[string]string{
		herdv1.OwnerKindLabelKey:      strings.ToLower(ownerKind),
		herdv1.OwnerNameLabelKey:      ownerName,
		herdv1.OwnerNamespaceLabelKey: ownerNamespace,
	}
}

// ReconcileBundle upserts the Bundle for the given input. The apply is
// idempotent: a content hash of the desired spec is kept in an annotation
// and an unchanged hash produces no write. A conflicting write is retried
// once against a fresh read before being surfaced.
func ReconcileBundle(ctx context.Context, cl client.Client, in BundleInput) (controllerutil.OperationResult, error) {
	operation, err := reconcileBundle(ctx, cl, in)
	if apierrors.IsConflict(err) {
		operation, err = reconcileBundle(ctx, cl, in)
	}
	if err != nil {
		return controllerutil.OperationResultNone, fmt.Errorf("failed to apply Bundle %s/%s: %w", in.Workspace, BundleName(in.OwnerKind, in.OwnerName, in.ChartName), err)
	}

	return operation, nil
}

func reconcileBundle(ctx context.Context, cl client.Client, in BundleInput) (controllerutil.OperationResult, error) {
	l := ctrl.LoggerFrom(ctx)

	spec := bundleSpec(in)
	hash, err := specHash(spec)
	if err != nil {
		return controllerutil.OperationResultNone, err
	}

	bundle := &fleetv1alpha1.Bundle{
		ObjectMeta: metav1.ObjectMeta{
			Name:      BundleName(in.OwnerKind, in.OwnerName, in.ChartName),
			Namespace: in.Workspace,
		},
	}

	operation, err := ctrl.CreateOrUpdate(ctx, cl, bundle, func() error {
		if bundle.Annotations[herdv1.ContentHashAnnotation] == hash {
			// Unchanged content, leave the object untouched so no write happens.
			return nil
		}

		if bundle.Labels == nil {
			bundle.Labels = make(map[string]string)
		}
		for k, v := range OwnerLabels(in.OwnerKind, in.OwnerNamespace, in.OwnerName) {
			bundle.Labels[k] = v
		}
		bundle.Labels[herdv1.ChartLabelKey] = in.ChartName

		if bundle.Annotations == nil {
			bundle.Annotations = make(map[string]string)
		}
		bundle.Annotations[herdv1.ContentHashAnnotation] = hash
		if _, ok := bundle.Annotations[herdv1.FirstAppliedAnnotation]; !ok {
			bundle.Annotations[herdv1.FirstAppliedAnnotation] = time.Now().UTC().Format(time.RFC3339)
		}

		bundle.Spec = spec
		return nil
	})
	if err != nil {
		return operation, err
	}

	if operation != controllerutil.OperationResultNone {
		l.Info("Successfully mutated Bundle", "Bundle", client.ObjectKeyFromObject(bundle), "operation_result", operation)
	}

	return operation, nil
}

func bundleSpec(in BundleInput) fleetv1alpha1.BundleSpec {
	chart := in.Chart
	if chart == "" {
		chart = in.ChartName
	}

	helm := &fleetv1alpha1.HelmOptions{
		Chart:          chart,
		Repo:           in.Repo,
		Version:        in.Version,
		ReleaseName:    in.ReleaseName,
		Atomic:         true,
		TimeoutSeconds: int(in.Timeout.Seconds()),
	}

	spec := fleetv1alpha1.BundleSpec{
		BundleDeploymentOptions: fleetv1alpha1.BundleDeploymentOptions{
			Helm: helm,
		},
	}

	// Fleet creates the default namespace on the downstream cluster; a
	// target namespace is required to pre-exist.
	if in.CreateNamespace {
		spec.DefaultNamespace = in.Namespace
	} else {
		spec.TargetNamespace = in.Namespace
	}

	for _, t := range in.Targets {
		targetHelm := *helm
		targetHelm.Values = &fleetv1alpha1.GenericMap{Data: t.Values}

		spec.Targets = append(spec.Targets, fleetv1alpha1.BundleTarget{
			Name:        t.ClusterID,
			ClusterName: t.ClusterID,
			BundleDeploymentOptions: fleetv1alpha1.BundleDeploymentOptions{
				Helm: &targetHelm,
			},
		})
	}

	for _, dep := range in.DependsOn {
		spec.DependsOn = append(spec.DependsOn, fleetv1alpha1.BundleRef{Name: dep})
	}

	return spec
}

// specHash is the content hash recorded in the Bundle annotation. JSON
// marshaling sorts map keys, so the hash is stable for equal content.
func specHash(spec fleetv1alpha1.BundleSpec) (string, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("failed to hash Bundle spec: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// OwnedBundles lists every Bundle of the given owner across all
// workspaces, through the owner field index.
func OwnedBundles(ctx context.Context, cl client.Client, ownerKind, ownerNamespace, ownerName string) ([]fleetv1alpha1.Bundle, error) {
	bundles := new(fleetv1alpha1.BundleList)
	if err := cl.List(ctx, bundles, client.MatchingFields{
		herdv1.BundleOwnerIndexKey: herdv1.BundleOwnerIndexValue(ownerKind, ownerNamespace, ownerName),
	}); err != nil {
		return nil, fmt.Errorf("failed to list Bundles owned by %s %s/%s: %w", ownerKind, ownerNamespace, ownerName, err)
	}

	return bundles.Items, nil
}

// ReapOrphans deletes every Bundle labeled for the owner whose chart label
// is not in keep. Returns the names of the deleted Bundles.
func ReapOrphans(ctx context.Context, cl client.Client, ownerKind, ownerNamespace, ownerName string, keep map[string]struct{}) ([]string, error) {
	owned, err := OwnedBundles(ctx, cl, ownerKind, ownerNamespace, ownerName)
	if err != nil {
		return nil, err
	}

	var deleted []string
	for i := range owned {
		bundle := &owned[i]
		if _, ok := keep[bundle.Labels[herdv1.ChartLabelKey]]; ok {
			continue
		}
		if err := cl.Delete(ctx, bundle); client.IgnoreNotFound(err) != nil {
			return deleted, fmt.Errorf("failed to delete orphaned Bundle %s: %w", client.ObjectKeyFromObject(bundle).String(), err)
		}
		deleted = append(deleted, bundle.Name)
	}

	return deleted, nil
}

// DeleteOwned deletes every Bundle labeled for the owner and returns how
// many it found on this pass (each one asked to delete), so callers can
// requeue until a pass finds none.
func DeleteOwned(ctx context.Context, cl client.Client, ownerKind, ownerNamespace, ownerName string) (remaining int, err error) {
	owned, err := OwnedBundles(ctx, cl, ownerKind, ownerNamespace, ownerName)
	if err != nil {
		return 0, err
	}

	for i := range owned {
		if err := cl.Delete(ctx, &owned[i]); client.IgnoreNotFound(err) != nil {
			return len(owned), fmt.Errorf("failed to delete Bundle %s: %w", client.ObjectKeyFromObject(&owned[i]).String(), err)
		}
	}

	return len(owned), nil
}
