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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	fleetv1alpha1 "github.com/rancher/fleet/pkg/apis/fleet.cattle.io/v1alpha1"
	"golang.org/x/sync/errgroup"
	apiextv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	apimeta "k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/util/retry"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/event"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	herdv1 "github.com/zackfeldstein/herd/api/v1"
	"github.com/zackfeldstein/herd/internal/fleet"
	"github.com/zackfeldstein/herd/internal/metrics"
	"github.com/zackfeldstein/herd/internal/record"
	"github.com/zackfeldstein/herd/internal/resolver"
	"github.com/zackfeldstein/herd/internal/scheduler"
	"github.com/zackfeldstein/herd/internal/stepconfig"
	"github.com/zackfeldstein/herd/internal/util/ratelimit"
	"github.com/zackfeldstein/herd/internal/utils/validation"
	"github.com/zackfeldstein/herd/internal/values"
)

// PipelineReconciler reconciles a Pipeline object into Fleet Bundles, one
// per step.
type PipelineReconciler struct {
	Client           client.Client
	Resolver         *resolver.Resolver
	Heartbeat        *Heartbeat
	WorkerCount      int
	ApplyConcurrency int
}

// Reconcile reconciles a Pipeline object.
func (r *PipelineReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	l := ctrl.LoggerFrom(ctx)
	l.Info("Reconciling Pipeline")

	if r.Heartbeat != nil {
		defer r.Heartbeat.Beat()
	}

	pipeline := &herdv1.Pipeline{}
	err := r.Client.Get(ctx, req.NamespacedName, pipeline)
	if apierrors.IsNotFound(err) {
		l.Info("Pipeline not found, ignoring since object must be deleted")
		return ctrl.Result{}, nil
	}
	if err != nil {
		l.Error(err, "Failed to get Pipeline")
		return ctrl.Result{}, err
	}

	if !pipeline.DeletionTimestamp.IsZero() {
		return r.reconcileDelete(ctx, pipeline)
	}

	return r.reconcileUpdate(ctx, pipeline)
}

func (r *PipelineReconciler) reconcileUpdate(ctx context.Context, pipeline *herdv1.Pipeline) (_ ctrl.Result, err error) {
	if controllerutil.AddFinalizer(pipeline, herdv1.HerdFinalizer) {
		if err := r.Client.Update(ctx, pipeline); err != nil {
			return ctrl.Result{}, fmt.Errorf("failed to update Pipeline %s with finalizer %s: %w", pipeline.Name, herdv1.HerdFinalizer, err)
		}
		pipeline.Status.Phase = herdv1.PhasePending
		pipeline.Status.Message = "Pipeline accepted"
		return ctrl.Result{Requeue: true}, r.updateStatus(ctx, pipeline)
	}

	defer func() {
		err = errors.Join(err, r.updateStatus(ctx, pipeline))
	}()

	if verr := validation.ValidatePipeline(pipeline); verr != nil {
		reason := herdv1.ValidationFailedReason
		if validation.IsCycle(verr) {
			reason = herdv1.CycleDetectedReason
		}
		r.failPipeline(pipeline, reason, verr.Error())
		return ctrl.Result{}, nil
	}

	clusters, warnings, err := r.Resolver.Resolve(ctx, pipeline.Spec.Targets)
	for _, w := range warnings {
		record.Warnf(pipeline, pipeline.Generation, "TargetResolution", "%s", w)
	}
	if err != nil {
		switch {
		case errors.Is(err, resolver.ErrNoTargets):
			r.failPipeline(pipeline, herdv1.NoTargetsReason, "no valid target clusters resolved")
			return ctrl.Result{}, nil
		case errors.Is(err, resolver.ErrEmptySelector):
			r.failPipeline(pipeline, herdv1.EmptySelectorReason, "targets selector has no match labels")
			return ctrl.Result{}, nil
		default:
			return ctrl.Result{}, err
		}
	}

	pipeline.Status.TargetClusters = resolver.IDs(clusters)
	byWorkspace := resolver.ByWorkspace(clusters)
	nodes := validation.PipelineNodes(pipeline)

	retries := make(map[string]int32, len(pipeline.Status.StepStatus))
	for _, s := range pipeline.Status.StepStatus {
		if s.RetryCount > retries[s.StepName] {
			retries[s.StepName] = s.RetryCount
		}
	}

	observations, perCluster, err := r.observeSteps(ctx, pipeline, byWorkspace, retries)
	if err != nil {
		return ctrl.Result{}, err
	}

	plan, err := scheduler.Compute(nodes, observations, time.Now())
	if err != nil {
		r.failPipeline(pipeline, herdv1.CycleDetectedReason, err.Error())
		return ctrl.Result{}, nil
	}

	r.applySteps(ctx, pipeline, plan, clusters, byWorkspace, observations, perCluster, retries)

	keep := make(map[string]struct{}, len(pipeline.Spec.Steps))
	for i := range pipeline.Spec.Steps {
		keep[pipeline.Spec.Steps[i].Name] = struct{}{}
	}
	reaped, err := fleet.ReapOrphans(ctx, r.Client, herdv1.PipelineKind, pipeline.Namespace, pipeline.Name, keep)
	if err != nil {
		return ctrl.Result{}, err
	}
	for _, name := range reaped {
		record.Eventf(pipeline, pipeline.Generation, "BundleReaped", "deleted Bundle %s for removed step", name)
	}

	if err := r.reconcileToggles(ctx, pipeline); err != nil {
		return ctrl.Result{}, err
	}

	final, err := scheduler.Compute(nodes, observations, time.Now())
	if err != nil {
		r.failPipeline(pipeline, herdv1.CycleDetectedReason, err.Error())
		return ctrl.Result{}, nil
	}

	r.projectPlan(pipeline, final, clusters, perCluster, retries)

	result := ctrl.Result{}
	if final.Phase == herdv1.PhaseDeploying && final.RequeueAfter > 0 {
		result.RequeueAfter = final.RequeueAfter
	}
	return result, nil
}

func (r *PipelineReconciler) observeSteps(
	ctx context.Context,
	pipeline *herdv1.Pipeline,
	byWorkspace map[string][]resolver.ResolvedCluster,
	retries map[string]int32,
) (map[string]scheduler.Observation, map[string]map[string]fleet.ClusterState, error) {
	observations := make(map[string]scheduler.Observation, len(pipeline.Spec.Steps))
	perCluster := make(map[string]map[string]fleet.ClusterState, len(pipeline.Spec.Steps))

	for i := range pipeline.Spec.Steps {
		step := &pipeline.Spec.Steps[i]
		name := fleet.BundleName(herdv1.PipelineKind, pipeline.Name, step.Name)

		merged := scheduler.Observation{Applied: true, Ready: true, RetryCount: retries[step.Name]}
		states := make(map[string]fleet.ClusterState)

		for workspace, wsClusters := range byWorkspace {
			obs, err := fleet.Observe(ctx, r.Client, workspace, name, resolver.IDs(wsClusters))
			if err != nil {
				return nil, nil, err
			}

			if !obs.Found {
				merged.Applied = false
			}
			merged.Ready = merged.Ready && obs.Ready
			if obs.Failed {
				merged.Failed = true
				if merged.Message == "" {
					merged.Message = obs.Message
				}
			}
			if !obs.FirstApplied.IsZero() && (merged.FirstApplied.IsZero() || obs.FirstApplied.Before(merged.FirstApplied)) {
				merged.FirstApplied = obs.FirstApplied
			}
			for id, state := range obs.PerCluster {
				states[id] = state
			}
		}

		if !merged.Applied {
			merged.Ready = false
		}

		observations[step.Name] = merged
		perCluster[step.Name] = states
	}

	return observations, perCluster, nil
}

func (r *PipelineReconciler) applySteps(
	ctx context.Context,
	pipeline *herdv1.Pipeline,
	plan scheduler.Plan,
	clusters []resolver.ResolvedCluster,
	byWorkspace map[string][]resolver.ResolvedCluster,
	observations map[string]scheduler.Observation,
	perCluster map[string]map[string]fleet.ClusterState,
	retries map[string]int32,
) {
	if len(plan.Apply) == 0 {
		return
	}

	steps := make(map[string]*herdv1.StepSpec, len(pipeline.Spec.Steps))
	for i := range pipeline.Spec.Steps {
		steps[pipeline.Spec.Steps[i].Name] = &pipeline.Spec.Steps[i]
	}

	concurrency := r.ApplyConcurrency
	if concurrency <= 0 {
		concurrency = DefaultApplyConcurrency
	}

	type outcome struct {
		err  error
		step string
	}
	outcomes := make([]outcome, len(plan.Apply))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, name := range plan.Apply {
		g.Go(func() error {
			outcomes[i] = outcome{step: name, err: r.applyStep(gctx, pipeline, steps[name], clusters, byWorkspace)}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // outcomes carry the per-step errors

	now := time.Now()
	for _, o := range outcomes {
		if count, ok := plan.RetryCounts[o.step]; ok {
			retries[o.step] = count
			record.Eventf(pipeline, pipeline.Generation, "StepRetried", "step %s re-applied, attempt %d of %d", o.step, count, steps[o.step].GetRetries())
		}

		obs := observations[o.step]
		obs.RetryCount = retries[o.step]
		if o.err != nil {
			obs.Failed = true
			obs.Message = o.err.Error()
			record.Warnf(pipeline, pipeline.Generation, "StepApplyFailed", "step %s: %s", o.step, o.err.Error())
		} else {
			obs.Applied = true
			obs.Failed = false
			if obs.FirstApplied.IsZero() {
				obs.FirstApplied = now
			}
			for _, c := range clusters {
				if existing, ok := perCluster[o.step][c.ID]; !ok || existing.State == herdv1.DeploymentPending {
					perCluster[o.step][c.ID] = fleet.ClusterState{State: herdv1.DeploymentDeploying, Message: "bundle applied"}
				}
			}
			record.Eventf(pipeline, pipeline.Generation, "StepApplied", "applied Bundle(s) for step %s to %d cluster(s)", o.step, len(clusters))
		}
		observations[o.step] = obs
	}
}

// applyStep renders the step's values and upserts one Bundle per workspace.
func (r *PipelineReconciler) applyStep(
	ctx context.Context,
	pipeline *herdv1.Pipeline,
	step *herdv1.StepSpec,
	clusters []resolver.ResolvedCluster,
	byWorkspace map[string][]resolver.ResolvedCluster,
) error {
	coords, err := stepconfig.Parse(step)
	if err != nil {
		return err
	}

	inline, err := json.Marshal(coords.Values)
	if err != nil {
		return fmt.Errorf("failed to encode values of step %q: %w", step.Name, err)
	}

	merger := &values.Merger{Client: r.Client}

	rendered := make(map[string]map[string]any, len(clusters))
	for _, cluster := range clusters {
		merged, err := merger.Render(ctx, values.Input{
			Values:        herdv1.ChartValues{Inline: &apiextv1.JSON{Raw: inline}},
			Env:           pipeline.Spec.Env,
			Namespace:     pipeline.Namespace,
			ClusterID:     cluster.ID,
			Security:      pipeline.Spec.Security,
			Observability: pipeline.Spec.Observability,
		})
		if err != nil {
			return err
		}
		rendered[cluster.ID] = merged
	}

	dependsOn := make([]string, 0, len(step.DependsOn))
	for _, dep := range step.DependsOn {
		dependsOn = append(dependsOn, fleet.BundleName(herdv1.PipelineKind, pipeline.Name, dep))
	}

	for workspace, wsClusters := range byWorkspace {
		targets := make([]fleet.TargetValues, 0, len(wsClusters))
		for _, cluster := range wsClusters {
			targets = append(targets, fleet.TargetValues{ClusterID: cluster.ID, Values: rendered[cluster.ID]})
		}

		operation, err := fleet.ReconcileBundle(ctx, r.Client, fleet.BundleInput{
			OwnerKind:       herdv1.PipelineKind,
			OwnerName:       pipeline.Name,
			OwnerNamespace:  pipeline.Namespace,
			ChartName:       step.Name,
			Chart:           coords.Chart,
			Repo:            coords.Repo,
			Version:         coords.Version,
			ReleaseName:     coords.ReleaseName,
			Namespace:       coords.Namespace,
			CreateNamespace: true,
			Timeout:         step.GetTimeout().Duration,
			Workspace:       workspace,
			Targets:         targets,
			DependsOn:       dependsOn,
		})
		if err != nil {
			return err
		}
		if operation != controllerutil.OperationResultNone {
			metrics.TrackBundleApply(ctx, herdv1.PipelineKind, pipeline.Namespace, pipeline.Name, step.Name, string(operation))
		}
	}

	return nil
}

func (r *PipelineReconciler) reconcileToggles(ctx context.Context, pipeline *herdv1.Pipeline) error {
	if pipeline.Spec.Security {
		status, err := ensureSecurityMarker(ctx, r.Client, herdv1.PipelineKind, pipeline)
		if err != nil {
			return err
		}
		pipeline.Status.Security = status
		apimeta.SetStatusCondition(&pipeline.Status.Conditions, securityCondition(status))
	} else {
		pipeline.Status.Security = nil
		apimeta.RemoveStatusCondition(&pipeline.Status.Conditions, herdv1.SecurityScannedCondition)
	}

	if pipeline.Spec.Observability {
		status, err := ensureObservabilityMarker(ctx, r.Client, herdv1.PipelineKind, pipeline)
		if err != nil {
			return err
		}
		pipeline.Status.Observability = status
		apimeta.SetStatusCondition(&pipeline.Status.Conditions, observabilityCondition(status))
	} else {
		pipeline.Status.Observability = nil
		apimeta.RemoveStatusCondition(&pipeline.Status.Conditions, herdv1.ObservabilityConfiguredCondition)
	}

	return nil
}

func (r *PipelineReconciler) projectPlan(
	pipeline *herdv1.Pipeline,
	plan scheduler.Plan,
	clusters []resolver.ResolvedCluster,
	perCluster map[string]map[string]fleet.ClusterState,
	retries map[string]int32,
) {
	previous := make(map[string]herdv1.StepDeploymentStatus, len(pipeline.Status.StepStatus))
	for _, s := range pipeline.Status.StepStatus {
		previous[s.StepName+"/"+s.ClusterID] = s
	}

	now := metav1.Now()
	stepStatus := make([]herdv1.StepDeploymentStatus, 0, len(pipeline.Spec.Steps)*len(clusters))
	for i := range pipeline.Spec.Steps {
		step := &pipeline.Spec.Steps[i]
		for _, cluster := range clusters {
			state, message := deploymentState(plan, step.Name, perCluster[step.Name][cluster.ID])

			entry := herdv1.StepDeploymentStatus{
				StepName:   step.Name,
				StepType:   step.Type,
				ClusterID:  cluster.ID,
				Status:     state,
				Message:    message,
				RetryCount: retries[step.Name],
				LastUpdated: now,
			}
			if prev, ok := previous[step.Name+"/"+cluster.ID]; ok && prev.Status == state && prev.Message == message && prev.RetryCount == entry.RetryCount {
				entry.LastUpdated = prev.LastUpdated
			}
			stepStatus = append(stepStatus, entry)
		}
	}
	pipeline.Status.StepStatus = stepStatus

	oldPhase := pipeline.Status.Phase
	pipeline.Status.Phase = plan.Phase

	ready := metav1.Condition{
		Type:    herdv1.ReadyCondition,
		Status:  metav1.ConditionFalse,
		Reason:  herdv1.ProgressingReason,
		Message: "execution in progress",
	}
	switch plan.Phase {
	case herdv1.PhaseDeployed:
		ready.Status = metav1.ConditionTrue
		ready.Reason = herdv1.SucceededReason
		ready.Message = "all steps completed"
		pipeline.Status.Message = "All steps executed successfully"
	case herdv1.PhaseFailed:
		ready.Reason = herdv1.FailedReason
		ready.Message = failureSummary(plan)
		pipeline.Status.Message = ready.Message
	default:
		pipeline.Status.Message = fmt.Sprintf("Executing %d step(s) on %d cluster(s)", len(pipeline.Spec.Steps), len(clusters))
	}
	apimeta.SetStatusCondition(&pipeline.Status.Conditions, ready)

	if oldPhase != pipeline.Status.Phase {
		record.Eventf(pipeline, pipeline.Generation, "PhaseChanged", "phase %s -> %s", oldPhase, pipeline.Status.Phase)
	}
}

func (r *PipelineReconciler) failPipeline(pipeline *herdv1.Pipeline, reason, message string) {
	pipeline.Status.Phase = herdv1.PhaseFailed
	pipeline.Status.Message = message

	apimeta.SetStatusCondition(&pipeline.Status.Conditions, metav1.Condition{
		Type:    herdv1.ReadyCondition,
		Status:  metav1.ConditionFalse,
		Reason:  reason,
		Message: message,
	})

	record.Warnf(pipeline, pipeline.Generation, reason, "%s", message)
}

func (r *PipelineReconciler) updateStatus(ctx context.Context, pipeline *herdv1.Pipeline) error {
	pipeline.Status.ObservedGeneration = pipeline.Generation
	now := metav1.Now()
	pipeline.Status.LastReconcileTime = &now

	metrics.TrackResourcePhase(herdv1.PipelineKind, pipeline.Namespace, pipeline.Name, string(pipeline.Status.Phase), knownPhases)

	status := pipeline.Status
	key := client.ObjectKeyFromObject(pipeline)

	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		latest := &herdv1.Pipeline{}
		if err := r.Client.Get(ctx, key, latest); err != nil {
			return err
		}
		latest.Status = status
		return r.Client.Status().Update(ctx, latest)
	})
	if err != nil {
		return fmt.Errorf("failed to update status for Pipeline %s: %w", key.String(), err)
	}

	return nil
}

func (r *PipelineReconciler) reconcileDelete(ctx context.Context, pipeline *herdv1.Pipeline) (ctrl.Result, error) {
	l := ctrl.LoggerFrom(ctx)
	l.Info("Deleting Pipeline")

	if !controllerutil.ContainsFinalizer(pipeline, herdv1.HerdFinalizer) {
		return ctrl.Result{}, nil
	}

	if pipeline.Status.Phase != herdv1.PhaseDeleting {
		pipeline.Status.Phase = herdv1.PhaseDeleting
		pipeline.Status.Message = "Reaping owned Bundles"
		if err := r.updateStatus(ctx, pipeline); err != nil {
			return ctrl.Result{}, err
		}
	}

	remaining, err := fleet.DeleteOwned(ctx, r.Client, herdv1.PipelineKind, pipeline.Namespace, pipeline.Name)
	if err != nil {
		return ctrl.Result{}, err
	}
	if remaining > 0 {
		l.Info("Waiting for owned Bundles to be removed", "remaining", remaining)
		return ctrl.Result{RequeueAfter: deletionRequeueInterval}, nil
	}

	if controllerutil.RemoveFinalizer(pipeline, herdv1.HerdFinalizer) {
		if err := r.Client.Update(ctx, pipeline); err != nil {
			return ctrl.Result{}, fmt.Errorf("failed to remove finalizer %s from Pipeline %s: %w", herdv1.HerdFinalizer, pipeline.Name, err)
		}
	}

	return ctrl.Result{}, nil
}

// SetupWithManager sets up the controller with the Manager.
func (r *PipelineReconciler) SetupWithManager(mgr ctrl.Manager) error {
	r.Client = mgr.GetClient()
	if r.Resolver == nil {
		return errors.New("a cluster resolver is required")
	}
	if r.WorkerCount <= 0 {
		r.WorkerCount = DefaultWorkerCount
	}

	return ctrl.NewControllerManagedBy(mgr).
		WithOptions(controller.TypedOptions[ctrl.Request]{
			RateLimiter:             ratelimit.DefaultExponential(),
			MaxConcurrentReconciles: r.WorkerCount,
		}).
		For(&herdv1.Pipeline{}).
		Watches(&fleetv1alpha1.Bundle{},
			handler.EnqueueRequestsFromMapFunc(requeueOwnerForBundle(herdv1.PipelineKind)),
			builder.WithPredicates(predicate.Funcs{
				GenericFunc: func(event.GenericEvent) bool { return false },
			}),
		).
		Complete(r)
}
