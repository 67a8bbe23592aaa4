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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	fleetv1alpha1 "github.com/rancher/fleet/pkg/apis/fleet.cattle.io/v1alpha1"
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

var _ = Describe("Pipeline Controller", func() {
	const (
		pipelineName      = "rag"
		pipelineNamespace = "default"
	)

	var (
		ctx        context.Context
		cl         client.Client
		reconciler *PipelineReconciler
		pipeline   *herdv1.Pipeline
		key        client.ObjectKey
	)

	step := func(name string, stepType herdv1.StepType, config string, deps ...string) herdv1.StepSpec {
		return herdv1.StepSpec{
			Name:      name,
			Type:      stepType,
			Config:    apiextv1.JSON{Raw: []byte(config)},
			DependsOn: deps,
		}
	}

	newPipeline := func(steps ...herdv1.StepSpec) *herdv1.Pipeline {
		return &herdv1.Pipeline{
			ObjectMeta: metav1.ObjectMeta{
				Name:      pipelineName,
				Namespace: pipelineNamespace,
			},
			Spec: herdv1.PipelineSpec{
				Env:     herdv1.EnvironmentDev,
				Targets: herdv1.Targets{ClusterIDs: []string{"c-a"}},
				Steps:   steps,
			},
		}
	}

	setup := func(p *herdv1.Pipeline) {
		ctx = context.Background()
		pipeline = p
		key = client.ObjectKeyFromObject(pipeline)
		cl = newTestClient(pipeline)
		reconciler = &PipelineReconciler{
			Client:   cl,
			Resolver: &resolver.Resolver{Lister: &staticLister{clusters: testInventory()}},
		}
	}

	reconcileTwice := func() (ctrl.Result, error) {
		result, err := reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Requeue).To(BeTrue())
		return reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: key})
	}

	getPipeline := func() *herdv1.Pipeline {
		out := &herdv1.Pipeline{}
		Expect(cl.Get(ctx, key, out)).To(Succeed())
		return out
	}

	markReady := func(bundleName, cluster string) {
		bd := &fleetv1alpha1.BundleDeployment{
			ObjectMeta: metav1.ObjectMeta{
				Name:      bundleName,
				Namespace: "cluster-fleet-default-" + cluster,
				Labels: map[string]string{
					fleet.BundleNameLabel:      bundleName,
					fleet.BundleNamespaceLabel: "fleet-default",
					fleet.ClusterLabel:         cluster,
				},
			},
		}
		bd.Status.Ready = true
		Expect(cl.Create(ctx, bd)).To(Succeed())
	}

	Context("executing a typed step", func() {
		BeforeEach(func() {
			setup(newPipeline(step("vectors", herdv1.StepTypeVectorDB, `{
				"chart": "qdrant",
				"repo": "https://qdrant.github.io/qdrant-helm",
				"version": "0.9.1",
				"collection": "documents"
			}`)))
		})

		It("synthesizes a Bundle from the step config with passthrough values", func() {
			_, err := reconcileTwice()
			Expect(err).NotTo(HaveOccurred())

			bundle := &fleetv1alpha1.Bundle{}
			Expect(cl.Get(ctx, client.ObjectKey{Namespace: "fleet-default", Name: "pipeline-rag-vectors"}, bundle)).To(Succeed())

			Expect(bundle.Spec.Helm.Chart).To(Equal("qdrant"))
			Expect(bundle.Spec.Helm.Repo).To(Equal("https://qdrant.github.io/qdrant-helm"))
			Expect(bundle.Spec.Helm.Version).To(Equal("0.9.1"))
			Expect(bundle.Spec.Helm.ReleaseName).To(Equal("vectors"))
			Expect(bundle.Spec.DefaultNamespace).To(Equal("vectors"))

			values := bundle.Spec.Targets[0].Helm.Values.Data
			passthrough := values["stepConfig"].(map[string]any)
			Expect(passthrough["collection"]).To(Equal("documents"))

			Expect(getPipeline().Status.Phase).To(Equal(herdv1.PhaseDeploying))
		})

		It("completes once the step's deployments are ready", func() {
			_, err := reconcileTwice()
			Expect(err).NotTo(HaveOccurred())

			markReady("pipeline-rag-vectors", "c-a")
			_, err = reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: key})
			Expect(err).NotTo(HaveOccurred())

			updated := getPipeline()
			Expect(updated.Status.Phase).To(Equal(herdv1.PhaseDeployed))
			Expect(updated.Status.StepStatus).To(HaveLen(1))
			Expect(updated.Status.StepStatus[0].Status).To(Equal(herdv1.DeploymentDeployed))
			Expect(updated.Status.StepStatus[0].StepType).To(Equal(herdv1.StepTypeVectorDB))
		})
	})

	Context("ordering steps through dependsOn", func() {
		BeforeEach(func() {
			ingest := step("ingest", herdv1.StepTypeIngestion, `{"chart":"kafka","repo":"https://charts.bitnami.com/bitnami","version":"26.0.0"}`)
			llm := step("llm", herdv1.StepTypeLLM, `{"chart":"ollama","repo":"https://otwld.github.io/ollama-helm","version":"0.24.0"}`, "ingest")
			setup(newPipeline(ingest, llm))
		})

		It("applies dependents only after their dependencies are ready", func() {
			_, err := reconcileTwice()
			Expect(err).NotTo(HaveOccurred())

			Expect(cl.Get(ctx, client.ObjectKey{Namespace: "fleet-default", Name: "pipeline-rag-ingest"}, &fleetv1alpha1.Bundle{})).To(Succeed())
			err = cl.Get(ctx, client.ObjectKey{Namespace: "fleet-default", Name: "pipeline-rag-llm"}, &fleetv1alpha1.Bundle{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())

			markReady("pipeline-rag-ingest", "c-a")
			_, err = reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: key})
			Expect(err).NotTo(HaveOccurred())

			Expect(cl.Get(ctx, client.ObjectKey{Namespace: "fleet-default", Name: "pipeline-rag-llm"}, &fleetv1alpha1.Bundle{})).To(Succeed())
		})
	})

	Context("with an invalid spec", func() {
		BeforeEach(func() {
			bad := step("bad", herdv1.StepTypeService, `{"replicas":3}`)
			setup(newPipeline(bad))
		})

		It("fails permanently without writing Bundles", func() {
			_, err := reconcileTwice()
			Expect(err).NotTo(HaveOccurred())

			updated := getPipeline()
			Expect(updated.Status.Phase).To(Equal(herdv1.PhaseFailed))

			ready := apimeta.FindStatusCondition(updated.Status.Conditions, herdv1.ReadyCondition)
			Expect(ready).NotTo(BeNil())
			Expect(ready.Reason).To(Equal(herdv1.ValidationFailedReason))

			bundles := &fleetv1alpha1.BundleList{}
			Expect(cl.List(ctx, bundles)).To(Succeed())
			Expect(bundles.Items).To(BeEmpty())
		})
	})

	Context("deleting a Pipeline", func() {
		BeforeEach(func() {
			setup(newPipeline(step("svc", herdv1.StepTypeService, `{"chart":"app","repo":"https://charts.example.com","version":"1.0.0"}`)))
		})

		It("reaps owned Bundles before removing the finalizer", func() {
			_, err := reconcileTwice()
			Expect(err).NotTo(HaveOccurred())

			Expect(cl.Delete(ctx, getPipeline())).To(Succeed())

			result, err := reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: key})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RequeueAfter).To(BeNumerically(">", 0))

			_, err = reconciler.Reconcile(ctx, reconcile.Request{NamespacedName: key})
			Expect(err).NotTo(HaveOccurred())

			bundles := &fleetv1alpha1.BundleList{}
			Expect(cl.List(ctx, bundles)).To(Succeed())
			Expect(bundles.Items).To(BeEmpty())

			err = cl.Get(ctx, key, &herdv1.Pipeline{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
		})
	})
})
