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
	"strings"
	"testing"
	"time"

	fleetv1alpha1 "github.com/rancher/fleet/pkg/apis/fleet.cattle.io/v1alpha1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	herdv1 "github.com/zackfeldstein/herd/api/v1"
)

func newFakeClient(t *testing.T, objects ...client.Object) client.Client {
	t.Helper()

	scheme := runtime.NewScheme()
	utilruntime.Must(fleetv1alpha1.AddToScheme(scheme))

	return fake.NewClientBuilder().
		WithScheme(scheme).
		WithIndex(&fleetv1alpha1.Bundle{}, herdv1.BundleOwnerIndexKey, herdv1.ExtractBundleOwner).
		WithObjects(objects...).
		Build()
}

func TestBundleName(t *testing.T) {
	for _, tc := range []struct {
		name     string
		kind     string
		owner    string
		chart    string
		expected string
	}{
		{
			name:     "simple",
			kind:     herdv1.StackKind,
			owner:    "mystack",
			chart:    "nginx",
			expected: "stack-mystack-nginx",
		},
		{
			name:     "pipeline",
			kind:     herdv1.PipelineKind,
			owner:    "rag",
			chart:    "vector-db",
			expected: "pipeline-rag-vector-db",
		},
		{
			name:  "truncated to 63 without trailing dash",
			kind:  herdv1.StackKind,
			owner: strings.Repeat("x", 50),
			chart: "-trailing",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := BundleName(tc.kind, tc.owner, tc.chart)
			if tc.expected != "" {
				assert.Equal(t, tc.expected, got)
			}
			assert.LessOrEqual(t, len(got), 63)
			assert.False(t, strings.HasSuffix(got, "-"))
		})
	}
}

func testInput() BundleInput {
	return BundleInput{
		OwnerKind:       herdv1.StackKind,
		OwnerName:       "mystack",
		OwnerNamespace:  "default",
		ChartName:       "nginx",
		Repo:            "https://charts.example.com",
		Version:         "1.2.3",
		ReleaseName:     "nginx",
		Namespace:       "web",
		CreateNamespace: true,
		Timeout:         10 * time.Minute,
		Workspace:       "fleet-default",
		Targets: []TargetValues{
			{ClusterID: "c-a", Values: map[string]any{"a": int64(1)}},
			{ClusterID: "c-b", Values: map[string]any{"a": int64(2)}},
		},
		DependsOn: []string{"stack-mystack-db"},
	}
}

func TestReconcileBundleCreates(t *testing.T) {
	cl := newFakeClient(t)

	operation, err := ReconcileBundle(context.Background(), cl, testInput())
	require.NoError(t, err)
	assert.Equal(t, controllerutil.OperationResultCreated, operation)

	bundle := &fleetv1alpha1.Bundle{}
	require.NoError(t, cl.Get(context.Background(), client.ObjectKey{Namespace: "fleet-default", Name: "stack-mystack-nginx"}, bundle))

	assert.Equal(t, "stack", bundle.Labels[herdv1.OwnerKindLabelKey])
	assert.Equal(t, "mystack", bundle.Labels[herdv1.OwnerNameLabelKey])
	assert.Equal(t, "default", bundle.Labels[herdv1.OwnerNamespaceLabelKey])
	assert.Equal(t, "nginx", bundle.Labels[herdv1.ChartLabelKey])
	assert.NotEmpty(t, bundle.Annotations[herdv1.ContentHashAnnotation])
	assert.NotEmpty(t, bundle.Annotations[herdv1.FirstAppliedAnnotation])

	require.NotNil(t, bundle.Spec.Helm)
	assert.Equal(t, "nginx", bundle.Spec.Helm.Chart)
	assert.Equal(t, "https://charts.example.com", bundle.Spec.Helm.Repo)
	assert.Equal(t, "1.2.3", bundle.Spec.Helm.Version)
	assert.True(t, bundle.Spec.Helm.Atomic)
	assert.Equal(t, 600, bundle.Spec.Helm.TimeoutSeconds)
	assert.Equal(t, "web", bundle.Spec.DefaultNamespace)

	require.Len(t, bundle.Spec.Targets, 2)
	assert.Equal(t, "c-a", bundle.Spec.Targets[0].ClusterName)
	require.NotNil(t, bundle.Spec.Targets[0].Helm)
	require.NotNil(t, bundle.Spec.Targets[0].Helm.Values)
	assert.EqualValues(t, 1, bundle.Spec.Targets[0].Helm.Values.Data["a"])
	assert.EqualValues(t, 2, bundle.Spec.Targets[1].Helm.Values.Data["a"])

	require.Len(t, bundle.Spec.DependsOn, 1)
	assert.Equal(t, "stack-mystack-db", bundle.Spec.DependsOn[0].Name)
}

func TestReconcileBundleIdempotent(t *testing.T) {
	cl := newFakeClient(t)

	_, err := ReconcileBundle(context.Background(), cl, testInput())
	require.NoError(t, err)

	// Same content: no write on the second pass.
	operation, err := ReconcileBundle(context.Background(), cl, testInput())
	require.NoError(t, err)
	assert.Equal(t, controllerutil.OperationResultNone, operation)
}

func TestReconcileBundleUpdatesOnChange(t *testing.T) {
	cl := newFakeClient(t)

	_, err := ReconcileBundle(context.Background(), cl, testInput())
	require.NoError(t, err)

	bundle := &fleetv1alpha1.Bundle{}
	require.NoError(t, cl.Get(context.Background(), client.ObjectKey{Namespace: "fleet-default", Name: "stack-mystack-nginx"}, bundle))
	oldHash := bundle.Annotations[herdv1.ContentHashAnnotation]
	firstApplied := bundle.Annotations[herdv1.FirstAppliedAnnotation]

	in := testInput()
	in.Version = "1.2.4"
	operation, err := ReconcileBundle(context.Background(), cl, in)
	require.NoError(t, err)
	assert.Equal(t, controllerutil.OperationResultUpdated, operation)

	require.NoError(t, cl.Get(context.Background(), client.ObjectKey{Namespace: "fleet-default", Name: "stack-mystack-nginx"}, bundle))
	assert.NotEqual(t, oldHash, bundle.Annotations[herdv1.ContentHashAnnotation])
	// The first-applied time survives updates, it anchors the wait timeout.
	assert.Equal(t, firstApplied, bundle.Annotations[herdv1.FirstAppliedAnnotation])
	assert.Equal(t, "1.2.4", bundle.Spec.Helm.Version)
}

func TestReapOrphans(t *testing.T) {
	cl := newFakeClient(t)

	in := testInput()
	_, err := ReconcileBundle(context.Background(), cl, in)
	require.NoError(t, err)

	removed := testInput()
	removed.ChartName = "legacy"
	_, err = ReconcileBundle(context.Background(), cl, removed)
	require.NoError(t, err)

	deleted, err := ReapOrphans(context.Background(), cl, herdv1.StackKind, "default", "mystack", map[string]struct{}{"nginx": {}})
	require.NoError(t, err)
	assert.Equal(t, []string{"stack-mystack-legacy"}, deleted)

	bundles := &fleetv1alpha1.BundleList{}
	require.NoError(t, cl.List(context.Background(), bundles))
	require.Len(t, bundles.Items, 1)
	assert.Equal(t, "stack-mystack-nginx", bundles.Items[0].Name)
}

func TestReapOrphansIgnoresForeignOwners(t *testing.T) {
	cl := newFakeClient(t)

	in := testInput()
	_, err := ReconcileBundle(context.Background(), cl, in)
	require.NoError(t, err)

	other := testInput()
	other.OwnerName = "otherstack"
	_, err = ReconcileBundle(context.Background(), cl, other)
	require.NoError(t, err)

	deleted, err := ReapOrphans(context.Background(), cl, herdv1.StackKind, "default", "mystack", map[string]struct{}{})
	require.NoError(t, err)
	assert.Equal(t, []string{"stack-mystack-nginx"}, deleted)

	bundles := &fleetv1alpha1.BundleList{}
	require.NoError(t, cl.List(context.Background(), bundles))
	require.Len(t, bundles.Items, 1)
	assert.Equal(t, "stack-otherstack-nginx", bundles.Items[0].Name)
}

func TestDeleteOwned(t *testing.T) {
	cl := newFakeClient(t)

	for _, chart := range []string{"one", "two", "three"} {
		in := testInput()
		in.ChartName = chart
		_, err := ReconcileBundle(context.Background(), cl, in)
		require.NoError(t, err)
	}

	remaining, err := DeleteOwned(context.Background(), cl, herdv1.StackKind, "default", "mystack")
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)

	// Next pass observes the teardown finished.
	remaining, err = DeleteOwned(context.Background(), cl, herdv1.StackKind, "default", "mystack")
	require.NoError(t, err)
	assert.Zero(t, remaining)
}
