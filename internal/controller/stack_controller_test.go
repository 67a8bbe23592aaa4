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

package controller

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	fleetv1alpha1 "github.com/rancher/fleet/pkg/apis/fleet.cattle.io/v1alpha1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	apimeta "k8s.io/apimachinery/pkg/api/meta"
	apiextv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	herdv1 "github.com/zackfeldstein/herd/api/v1"
	"github.com/zackfeldstein/herd/internal/fleet"
	"github.com/zackfeldstein/herd/internal/resolver"
)

var _ = Describe("Stack Controller", func() {
	const (
		stackName      = "test-stack"
		stackNamespace = "default"
	)

	var (
		ctx        context.Context
		cl         client.Client
		reconciler *StackReconciler
		stack      *herdv1.Stack
		key        client.ObjectKey
	)

	newStack := func(charts ...herdv1.ChartSpec) *herdv1.Stack {
		return &herdv1.Stack{
			ObjectMeta: metav1.ObjectMeta{
				Name:      stackName,
				Namespace: stackNamespace,
			},
			Spec: herdv1.StackSpec{
				Env:     herdv1.EnvironmentProd,
				Targets: herdv1.Targets{ClusterIDs: []string{"c-a"}},
				Charts:  charts,
			},
		}
	}

	chart := func(name string, mutate ...func(*herdv1.ChartSpec)) herdv1.ChartSpec {
		c := herdv1.ChartSpec{
			Name:        name,
			ReleaseName: name,
			Namespace:   name,
			Repo:        "https://charts.example.com",
			Version:     "1.0.0",
			Values: herdv1.ChartValues{
				Inline: &apiextv1.JSON{Raw: []byte(`{"a":1}`)},
			},
		}
		for _, m := range mutate {
			m(&c)
		}
		return c
	}

	setup := func(s *herdv1.Stack, extra ...client.Object) {
		ctx = context.Background()
		stack = s
		key = client.ObjectKeyFromObject(stack)
		objects := append([]client.Object{stack}, extra...)
		cl = newTestClient(objects...)
		reconciler = &StackReconciler{
			Client:   cl,
			Resolver: &resolver.Resolver{Lister: &staticLister{clusters: testInventory()}},
		}
	}

	reconcileTwice := func() (ctrl.Result, error) {
		// First pass only adds the finalizer and requeues.
		result, err := reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Requeue).To(BeTrue())
		return reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: key})
	}

	getStack := func() *herdv1.Stack {
		out := &herdv1.Stack{}
		Expect(cl.Get(ctx, key, out)).To(Succeed())
		return out
	}

	getBundle := func(workspace, name string) *fleetv1alpha1.Bundle {
		bundle := &fleetv1alpha1.Bundle{}
		Expect(cl.Get(ctx, client.ObjectKey{Namespace: workspace, Name: name}, bundle)).To(Succeed())
		return bundle
	}

	markReady := func(workspace, bundleName, cluster string) {
		bd := &fleetv1alpha1.BundleDeployment{
			ObjectMeta: metav1.ObjectMeta{
				Name:      bundleName,
				Namespace: "cluster-" + workspace + "-" + cluster,
				Labels: map[string]string{
					fleet.BundleNameLabel:      bundleName,
					fleet.BundleNamespaceLabel: workspace,
					fleet.ClusterLabel:         cluster,
				},
			},
		}
		bd.Status.Ready = true
		Expect(cl.Create(ctx, bd)).To(Succeed())
	}

	Context("deploying a single chart to a single cluster", func() {
		BeforeEach(func() {
			setup(newStack(chart("x")))
		})

		It("synthesizes one Bundle and progresses to Deployed once ready", func() {
			_, err := reconcileTwice()
			Expect(err).NotTo(HaveOccurred())

			bundle := getBundle("fleet-default", "stack-test-stack-x")
			Expect(bundle.Spec.Targets).To(HaveLen(1))
			Expect(bundle.Spec.Targets[0].ClusterName).To(Equal("c-a"))

			values := bundle.Spec.Targets[0].Helm.Values.Data
			Expect(values["a"]).To(BeEquivalentTo(1))
			herd := values["herd"].(map[string]any)
			Expect(herd["security"].(map[string]any)["enabled"]).To(Equal(false))
			Expect(herd["observability"].(map[string]any)["enabled"]).To(Equal(false))

			updated := getStack()
			Expect(updated.Status.Phase).To(Equal(herdv1.PhaseDeploying))
			Expect(updated.Status.TargetClusters).To(Equal([]string{"c-a"}))

			markReady("fleet-default", "stack-test-stack-x", "c-a")
			_, err = reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: key})
			Expect(err).NotTo(HaveOccurred())

			updated = getStack()
			Expect(updated.Status.Phase).To(Equal(herdv1.PhaseDeployed))

			ready := apimeta.FindStatusCondition(updated.Status.Conditions, herdv1.ReadyCondition)
			Expect(ready).NotTo(BeNil())
			Expect(ready.Status).To(Equal(metav1.ConditionTrue))

			Expect(updated.Status.Deployments).To(HaveLen(1))
			Expect(updated.Status.Deployments[0].Status).To(Equal(herdv1.DeploymentDeployed))
		})

		It("performs zero Bundle writes on a second unchanged reconciliation", func() {
			_, err := reconcileTwice()
			Expect(err).NotTo(HaveOccurred())

			before := getBundle("fleet-default", "stack-test-stack-x").ResourceVersion

			_, err = reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: key})
			Expect(err).NotTo(HaveOccurred())

			after := getBundle("fleet-default", "stack-test-stack-x").ResourceVersion
			Expect(after).To(Equal(before))
		})
	})

	Context("with a dependency cycle", func() {
		BeforeEach(func() {
			a := chart("a", func(c *herdv1.ChartSpec) { c.DependsOn = []string{"b"} })
			b := chart("b", func(c *herdv1.ChartSpec) { c.DependsOn = []string{"a"} })
			setup(newStack(a, b))
		})

		It("fails with CycleDetected and writes no Bundles", func() {
			_, err := reconcileTwice()
			Expect(err).NotTo(HaveOccurred())

			updated := getStack()
			Expect(updated.Status.Phase).To(Equal(herdv1.PhaseFailed))

			ready := apimeta.FindStatusCondition(updated.Status.Conditions, herdv1.ReadyCondition)
			Expect(ready).NotTo(BeNil())
			Expect(ready.Status).To(Equal(metav1.ConditionFalse))
			Expect(ready.Reason).To(Equal(herdv1.CycleDetectedReason))

			bundles := &fleetv1alpha1.BundleList{}
			Expect(cl.List(ctx, bundles)).To(Succeed())
			Expect(bundles.Items).To(BeEmpty())
		})
	})

	Context("with dependsOn and wait semantics", func() {
		BeforeEach(func() {
			a := chart("a")
			b := chart("b", func(c *herdv1.ChartSpec) { c.DependsOn = []string{"a"} })
			setup(newStack(a, b))
		})

		It("does not apply the dependent until the dependency is ready everywhere", func() {
			_, err := reconcileTwice()
			Expect(err).NotTo(HaveOccurred())

			Expect(cl.Get(ctx, client.ObjectKey{Namespace: "fleet-default", Name: "stack-test-stack-a"}, &fleetv1alpha1.Bundle{})).To(Succeed())
			err = cl.Get(ctx, client.ObjectKey{Namespace: "fleet-default", Name: "stack-test-stack-b"}, &fleetv1alpha1.Bundle{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())

			markReady("fleet-default", "stack-test-stack-a", "c-a")
			_, err = reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: key})
			Expect(err).NotTo(HaveOccurred())

			Expect(cl.Get(ctx, client.ObjectKey{Namespace: "fleet-default", Name: "stack-test-stack-b"}, &fleetv1alpha1.Bundle{})).To(Succeed())
		})
	})

	Context("with a missing values source", func() {
		BeforeEach(func() {
			a := chart("a", func(c *herdv1.ChartSpec) {
				c.Values = herdv1.ChartValues{ConfigMapRefs: []herdv1.ValuesRef{{Name: "absent"}}}
			})
			b := chart("b", func(c *herdv1.ChartSpec) { c.DependsOn = []string{"a"} })
			setup(newStack(a, b))
		})

		It("fails the chart and blocks its dependents", func() {
			_, err := reconcileTwice()
			Expect(err).NotTo(HaveOccurred())

			updated := getStack()
			Expect(updated.Status.Phase).To(Equal(herdv1.PhaseFailed))

			states := map[string]herdv1.DeploymentState{}
			for _, d := range updated.Status.Deployments {
				states[d.ChartName] = d.Status
			}
			Expect(states["a"]).To(Equal(herdv1.DeploymentFailed))
			Expect(states["b"]).To(Equal(herdv1.DeploymentBlocked))

			bundles := &fleetv1alpha1.BundleList{}
			Expect(cl.List(ctx, bundles)).To(Succeed())
			Expect(bundles.Items).To(BeEmpty())
		})
	})

	Context("spanning both Fleet workspaces", func() {
		BeforeEach(func() {
			s := newStack(chart("x"))
			s.Spec.Targets = herdv1.Targets{ClusterIDs: []string{"local", "c-a"}}
			setup(s)
		})

		It("emits one Bundle per workspace, each targeting its subset", func() {
			_, err := reconcileTwice()
			Expect(err).NotTo(HaveOccurred())

			def := getBundle("fleet-default", "stack-test-stack-x")
			Expect(def.Spec.Targets).To(HaveLen(1))
			Expect(def.Spec.Targets[0].ClusterName).To(Equal("c-a"))

			local := getBundle("fleet-local", "stack-test-stack-x")
			Expect(local.Spec.Targets).To(HaveLen(1))
			Expect(local.Spec.Targets[0].ClusterName).To(Equal("local"))
		})
	})

	Context("resolving by selector", func() {
		BeforeEach(func() {
			s := newStack(chart("x"))
			s.Spec.Targets = herdv1.Targets{Selector: &herdv1.TargetSelector{MatchLabels: map[string]string{"env": "prod", "gpu": "true"}}}
			setup(s)
		})

		It("targets exactly the matching clusters", func() {
			_, err := reconcileTwice()
			Expect(err).NotTo(HaveOccurred())

			Expect(getStack().Status.TargetClusters).To(Equal([]string{"c-a"}))
		})
	})

	Context("removing a chart from the spec", func() {
		BeforeEach(func() {
			setup(newStack(chart("x"), chart("y")))
		})

		It("reaps exactly the orphaned Bundle", func() {
			_, err := reconcileTwice()
			Expect(err).NotTo(HaveOccurred())

			updated := getStack()
			updated.Spec.Charts = updated.Spec.Charts[:1]
			Expect(cl.Update(ctx, updated)).To(Succeed())

			_, err = reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: key})
			Expect(err).NotTo(HaveOccurred())

			Expect(cl.Get(ctx, client.ObjectKey{Namespace: "fleet-default", Name: "stack-test-stack-x"}, &fleetv1alpha1.Bundle{})).To(Succeed())
			err = cl.Get(ctx, client.ObjectKey{Namespace: "fleet-default", Name: "stack-test-stack-y"}, &fleetv1alpha1.Bundle{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
		})
	})

	Context("with the feature toggles enabled", func() {
		BeforeEach(func() {
			s := newStack(chart("x"))
			s.Spec.Security = true
			s.Spec.Observability = true
			setup(s)
		})

		It("injects the reserved values and creates the markers", func() {
			_, err := reconcileTwice()
			Expect(err).NotTo(HaveOccurred())

			bundle := getBundle("fleet-default", "stack-test-stack-x")
			herd := bundle.Spec.Targets[0].Helm.Values.Data["herd"].(map[string]any)
			Expect(herd["security"].(map[string]any)["enabled"]).To(Equal(true))
			Expect(herd["observability"].(map[string]any)["enabled"]).To(Equal(true))

			marker := &corev1.ConfigMap{}
			Expect(cl.Get(ctx, client.ObjectKey{Namespace: stackNamespace, Name: stackName + "-neuvector-scan"}, marker)).To(Succeed())
			Expect(marker.Labels[herdv1.OwnerNameLabelKey]).To(Equal(stackName))
			Expect(cl.Get(ctx, client.ObjectKey{Namespace: stackNamespace, Name: stackName + "-observability-config"}, &corev1.ConfigMap{})).To(Succeed())

			updated := getStack()
			scanned := apimeta.FindStatusCondition(updated.Status.Conditions, herdv1.SecurityScannedCondition)
			Expect(scanned).NotTo(BeNil())
			Expect(scanned.Reason).To(Equal(herdv1.ScanPendingReason))
		})
	})

	Context("exceeding a wait timeout", func() {
		BeforeEach(func() {
			a := chart("a", func(c *herdv1.ChartSpec) {
				c.Timeout = &metav1.Duration{Duration: time.Nanosecond}
			})
			b := chart("b", func(c *herdv1.ChartSpec) { c.DependsOn = []string{"a"} })
			setup(newStack(a, b))
		})

		It("fails the chart and blocks its dependents", func() {
			_, err := reconcileTwice()
			Expect(err).NotTo(HaveOccurred())

			// A later pass observes the expired deadline.
			_, err = reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: key})
			Expect(err).NotTo(HaveOccurred())

			updated := getStack()
			Expect(updated.Status.Phase).To(Equal(herdv1.PhaseFailed))

			states := map[string]herdv1.DeploymentState{}
			for _, d := range updated.Status.Deployments {
				states[d.ChartName] = d.Status
			}
			Expect(states["a"]).To(Equal(herdv1.DeploymentFailed))
			Expect(states["b"]).To(Equal(herdv1.DeploymentBlocked))
		})
	})

	Context("deleting a Stack with owned Bundles", func() {
		BeforeEach(func() {
			setup(newStack(chart("x"), chart("y"), chart("z")))
		})

		It("reaps every Bundle and removes the finalizer", func() {
			_, err := reconcileTwice()
			Expect(err).NotTo(HaveOccurred())

			bundles := &fleetv1alpha1.BundleList{}
			Expect(cl.List(ctx, bundles)).To(Succeed())
			Expect(bundles.Items).To(HaveLen(3))

			Expect(cl.Delete(ctx, getStack())).To(Succeed())

			// First deletion pass reaps, second observes completion.
			result, err := reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: key})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RequeueAfter).To(BeNumerically(">", 0))

			_, err = reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: key})
			Expect(err).NotTo(HaveOccurred())

			Expect(cl.List(ctx, bundles)).To(Succeed())
			Expect(bundles.Items).To(BeEmpty())

			err = cl.Get(ctx, key, &herdv1.Stack{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
		})
	})
})
