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
	"context"
	"errors"
	"strings"

	fleetv1alpha1 "github.com/rancher/fleet/pkg/apis/fleet.cattle.io/v1alpha1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// SetupIndexers sets up all the indexers for the herd API objects.
func SetupIndexers(ctx context.Context, mgr ctrl.Manager) error {
	var merr error
	for _, f := range []func(context.Context, ctrl.Manager) error{
		setupBundleOwnerIndexer,
	} {
		merr = errors.Join(merr, f(ctx, mgr))
	}

	return merr
}

// BundleOwnerIndexKey indexer key for Fleet Bundles by their herd owner.
const BundleOwnerIndexKey = ".metadata.labels.herdOwner"

func setupBundleOwnerIndexer(ctx context.Context, mgr ctrl.Manager) error {
	return mgr.GetFieldIndexer().IndexField(ctx, &fleetv1alpha1.Bundle{}, BundleOwnerIndexKey, ExtractBundleOwner)
}

// ExtractBundleOwner returns the composite owner key of a Bundle carrying
// the herd owner labels, to be used with [BundleOwnerIndexKey].
func ExtractBundleOwner(o client.Object) []string {
	bundle, ok := o.(*fleetv1alpha1.Bundle)
	if !ok {
		return nil
	}

	key := BundleOwnerIndexValue(
		bundle.Labels[OwnerKindLabelKey],
		bundle.Labels[OwnerNamespaceLabelKey],
		bundle.Labels[OwnerNameLabelKey],
	)
	if key == "" {
		return nil
	}

	return []string{key}
}

// BundleOwnerIndexValue composes the owner index value for the given owner
// coordinates. The kind is lowercased to match the owner-kind label carried
// on Bundles. Returns an empty string if any coordinate is missing.
func BundleOwnerIndexValue(kind, namespace, name string) string {
	if kind == "" || namespace == "" || name == "" {
		return ""
	}
	return strings.ToLower(kind) + "/" + namespace + "/" + name
}
