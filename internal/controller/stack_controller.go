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
	"errors"
	"fmt"
	"strings"
	"time"

	fleetv1alpha1 "github.com/rancher/fleet/pkg/apis/fleet.cattle.io/v1alpha1"
	"golang.org/x/sync/errgroup"
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
	"github.com/zackfeldstein/herd/internal/util/ratelimit"
	"github.com/zackfeldstein/herd/internal/utils/validation"
	"github.com/zackfeldstein/herd/internal/values"
)

const (
	// DefaultWorkerCount is the reconcile queue worker pool size.
	DefaultWorkerCount = 4
	// DefaultApplyConcurrency bounds parallel Bundle applies within one reconciliation.
	DefaultApplyConcurrency = 8

	// deletionRequeueInterval is how often Bundle teardown is re-checked during deletion.
	deletionRequeueInterval = 5 * time.Second
)

var knownPhases = []string{
	string(herdv1.PhasePending), string(herdv1.PhaseDeploying), string(herdv1.PhaseDeployed),
	string(herdv1.PhaseFailed), string(herdv1.PhaseDeleting),
}

// StackReconciler reconciles a Stack object into Fleet Bundles.
type StackReconciler struct {
	Client           client.Client
	Resolver         *resolver.Resolver
	Heartbeat        *Heartbeat
	WorkerCount      int
	ApplyConcurrency int
}

// Reconcile reconciles a Stack object.
func (r *StackReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	l := ctrl.LoggerFrom(ctx)
	l.Info("Reconciling Stack")

	if r.Heartbeat != nil {
		defer r.Heartbeat.Beat()
	}

	stack := &herdv1.Stack{}
	err := r.Client.Get(ctx, req.NamespacedName, stack)
	if apierrors.IsNotFound(err) {
		l.Info("Stack not found, ignoring since object must be deleted")
		return ctrl.Result{}, nil
	}
	if err != nil {
		l.Error(err, "Failed to get Stack")
		return ctrl.Result{}, err
	}

	if !stack.DeletionTimestamp.IsZero() {
		return r.reconcileDelete(ctx, stack)
	}

	return r.reconcileUpdate(ctx, stack)
}

func (r *StackReconciler) reconcileUpdate(ctx context.Context, stack *herdv1.Stack) (_ ctrl.Result, err error) {
	if controllerutil.AddFinalizer(stack, herdv1.HerdFinalizer) {
		if err := r.Client.Update(ctx, stack); err != nil {
			return ctrl.Result{}, fmt.Errorf("failed to update Stack %s with finalizer %s: %w", stack.Name, herdv1.HerdFinalizer, err)
		}
		stack.Status.Phase = herdv1.PhasePending
		stack.Status.Message = "Stack accepted"
		// Requeuing so the first full pass runs against the finalized object.
		return ctrl.Result{Requeue: true}, r.updateStatus(ctx, stack)
	}

	defer func() {
		err = errors.Join(err, r.updateStatus(ctx, stack))
	}()

	if verr := validation.ValidateStack(stack); verr != nil {
		reason := herdv1.ValidationFailedReason
		if validation.IsCycle(verr) {
			reason = herdv1.CycleDetectedReason
		}
		r.failStack(stack, reason, verr.Error())
		return ctrl.Result{}, nil
	}

	clusters, warnings, err := r.Resolver.Resolve(ctx, stack.Spec.Targets)
	for _, w := range warnings {
		record.Warnf(stack, stack.Generation, "TargetResolution", "%s", w)
	}
	if err != nil {
		switch {
		case errors.Is(err, resolver.ErrNoTargets):
			r.failStack(stack, herdv1.NoTargetsReason, "no valid target clusters resolved")
			return ctrl.Result{}, nil
		case errors.Is(err, resolver.ErrEmptySelector):
			r.failStack(stack, herdv1.EmptySelectorReason, "targets selector has no match labels")
			return ctrl.Result{}, nil
		default:
			return ctrl.Result{}, err
		}
	}

	// The cluster set resolved here is used for the whole reconciliation.
	stack.Status.TargetClusters = resolver.IDs(clusters)
	byWorkspace := resolver.ByWorkspace(clusters)
	nodes := validation.StackNodes(stack)

	observations, perCluster, err := r.observeCharts(ctx, stack, byWorkspace)
	if err != nil {
		return ctrl.Result{}, err
	}

	plan, err := scheduler.Compute(nodes, observations, time.Now())
	if err != nil {
		r.failStack(stack, herdv1.CycleDetectedReason, err.Error())
		return ctrl.Result{}, nil
	}

	r.applyCharts(ctx, stack, plan.Apply, clusters, byWorkspace, observations, perCluster)

	keep := make(map[string]struct{}, len(stack.Spec.Charts))
	for i := range stack.Spec.Charts {
		keep[stack.Spec.Charts[i].Name] = struct{}{}
	}
	reaped, err := fleet.ReapOrphans(ctx, r.Client, herdv1.StackKind, stack.Namespace, stack.Name, keep)
	if err != nil {
		return ctrl.Result{}, err
	}
	for _, name := range reaped {
		record.Eventf(stack, stack.Generation, "BundleReaped", "deleted Bundle %s for removed chart", name)
	}

	if err := r.reconcileToggles(ctx, stack); err != nil {
		return ctrl.Result{}, err
	}

	final, err := scheduler.Compute(nodes, observations, time.Now())
	if err != nil {
		r.failStack(stack, herdv1.CycleDetectedReason, err.Error())
		return ctrl.Result{}, nil
	}

	r.projectPlan(stack, final, clusters, perCluster)

	result := ctrl.Result{}
	if final.Phase == herdv1.PhaseDeploying && final.RequeueAfter > 0 {
		result.RequeueAfter = final.RequeueAfter
	}
	return result, nil
}

// observeCharts gathers the per-chart observations across every workspace
// the resolved clusters span.
func (r *StackReconciler) observeCharts(
	ctx context.Context,
	stack *herdv1.Stack,
	byWorkspace map[string][]resolver.ResolvedCluster,
) (map[string]scheduler.Observation, map[string]map[string]fleet.ClusterState, error) {
	observations := make(map[string]scheduler.Observation, len(stack.Spec.Charts))
	perCluster := make(map[string]map[string]fleet.ClusterState, len(stack.Spec.Charts))

	for i := range stack.Spec.Charts {
		chart := &stack.Spec.Charts[i]
		name := fleet.BundleName(herdv1.StackKind, stack.Name, chart.Name)

		merged := scheduler.Observation{Applied: true, Ready: true}
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

		observations[chart.Name] = merged
		perCluster[chart.Name] = states
	}

	return observations, perCluster, nil
}

// applyCharts renders values and applies Bundles for the ready frontier.
// Apply calls run in parallel bounded by the per-parent concurrency limit;
// failures are folded back into the observations so the final plan blocks
// dependents.
func (r *StackReconciler) applyCharts(
	ctx context.Context,
	stack *herdv1.Stack,
	frontier []string,
	clusters []resolver.ResolvedCluster,
	byWorkspace map[string][]resolver.ResolvedCluster,
	observations map[string]scheduler.Observation,
	perCluster map[string]map[string]fleet.ClusterState,
) {
	if len(frontier) == 0 {
		return
	}

	charts := make(map[string]*herdv1.ChartSpec, len(stack.Spec.Charts))
	for i := range stack.Spec.Charts {
		charts[stack.Spec.Charts[i].Name] = &stack.Spec.Charts[i]
	}

	concurrency := r.ApplyConcurrency
	if concurrency <= 0 {
		concurrency = DefaultApplyConcurrency
	}

	type outcome struct {
		err   error
		chart string
	}
	outcomes := make([]outcome, len(frontier))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, name := range frontier {
		g.Go(func() error {
			outcomes[i] = outcome{chart: name, err: r.applyChart(gctx, stack, charts[name], clusters, byWorkspace)}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // outcomes carry the per-chart errors

	now := time.Now()
	for _, o := range outcomes {
		obs := observations[o.chart]
		if o.err != nil {
			obs.Failed = true
			obs.Message = o.err.Error()
			record.Warnf(stack, stack.Generation, "ChartApplyFailed", "chart %s: %s", o.chart, o.err.Error())
		} else {
			obs.Applied = true
			if obs.FirstApplied.IsZero() {
				obs.FirstApplied = now
			}
			for _, c := range clusters {
				if existing, ok := perCluster[o.chart][c.ID]; !ok || existing.State == herdv1.DeploymentPending {
					perCluster[o.chart][c.ID] = fleet.ClusterState{State: herdv1.DeploymentDeploying, Message: "bundle applied"}
				}
			}
			record.Eventf(stack, stack.Generation, "ChartApplied", "applied Bundle(s) for chart %s to %d cluster(s)", o.chart, len(clusters))
		}
		observations[o.chart] = obs
	}
}

// applyChart merges values for every target cluster and upserts one Bundle
// per workspace the clusters span.
func (r *StackReconciler) applyChart(
	ctx context.Context,
	stack *herdv1.Stack,
	chart *herdv1.ChartSpec,
	clusters []resolver.ResolvedCluster,
	byWorkspace map[string][]resolver.ResolvedCluster,
) error {
	merger := &values.Merger{Client: r.Client}

	rendered := make(map[string]map[string]any, len(clusters))
	for _, cluster := range clusters {
		merged, err := merger.Render(ctx, values.Input{
			Values:        chart.Values,
			Env:           stack.Spec.Env,
			Namespace:     stack.Namespace,
			ClusterID:     cluster.ID,
			Security:      stack.Spec.Security,
			Observability: stack.Spec.Observability,
		})
		if err != nil {
			return err
		}
		rendered[cluster.ID] = merged
	}

	dependsOn := make([]string, 0, len(chart.DependsOn))
	for _, dep := range chart.DependsOn {
		dependsOn = append(dependsOn, fleet.BundleName(herdv1.StackKind, stack.Name, dep))
	}

	for workspace, wsClusters := range byWorkspace {
		targets := make([]fleet.TargetValues, 0, len(wsClusters))
		for _, cluster := range wsClusters {
			targets = append(targets, fleet.TargetValues{ClusterID: cluster.ID, Values: rendered[cluster.ID]})
		}

		operation, err := fleet.ReconcileBundle(ctx, r.Client, fleet.BundleInput{
			OwnerKind:       herdv1.StackKind,
			OwnerName:       stack.Name,
			OwnerNamespace:  stack.Namespace,
			ChartName:       chart.Name,
			Repo:            chart.Repo,
			Version:         chart.Version,
			ReleaseName:     chart.ReleaseName,
			Namespace:       chart.Namespace,
			CreateNamespace: chart.GetCreateNamespace(),
			Timeout:         chart.GetTimeout().Duration,
			Workspace:       workspace,
			Targets:         targets,
			DependsOn:       dependsOn,
		})
		if err != nil {
			return err
		}
		if operation != controllerutil.OperationResultNone {
			metrics.TrackBundleApply(ctx, herdv1.StackKind, stack.Namespace, stack.Name, chart.Name, string(operation))
		}
	}

	return nil
}

// reconcileToggles maintains the security and observability markers and
// their status subtrees.
func (r *StackReconciler) reconcileToggles(ctx context.Context, stack *herdv1.Stack) error {
	if stack.Spec.Security {
		status, err := ensureSecurityMarker(ctx, r.Client, herdv1.StackKind, stack)
		if err != nil {
			return err
		}
		stack.Status.Security = status
		apimeta.SetStatusCondition(&stack.Status.Conditions, securityCondition(status))
	} else {
		stack.Status.Security = nil
		apimeta.RemoveStatusCondition(&stack.Status.Conditions, herdv1.SecurityScannedCondition)
	}

	if stack.Spec.Observability {
		status, err := ensureObservabilityMarker(ctx, r.Client, herdv1.StackKind, stack)
		if err != nil {
			return err
		}
		stack.Status.Observability = status
		apimeta.SetStatusCondition(&stack.Status.Conditions, observabilityCondition(status))
	} else {
		stack.Status.Observability = nil
		apimeta.RemoveStatusCondition(&stack.Status.Conditions, herdv1.ObservabilityConfiguredCondition)
	}

	return nil
}

// projectPlan folds the final plan into the Stack status: per-deployment
// entries, phase, message and the Ready condition.
func (r *StackReconciler) projectPlan(stack *herdv1.Stack, plan scheduler.Plan, clusters []resolver.ResolvedCluster, perCluster map[string]map[string]fleet.ClusterState) {
	previous := make(map[string]herdv1.ChartDeploymentStatus, len(stack.Status.Deployments))
	for _, d := range stack.Status.Deployments {
		previous[d.ChartName+"/"+d.ClusterID] = d
	}

	now := metav1.Now()
	deployments := make([]herdv1.ChartDeploymentStatus, 0, len(stack.Spec.Charts)*len(clusters))
	for i := range stack.Spec.Charts {
		chart := &stack.Spec.Charts[i]
		for _, cluster := range clusters {
			state, message := deploymentState(plan, chart.Name, perCluster[chart.Name][cluster.ID])

			entry := herdv1.ChartDeploymentStatus{
				ChartName:   chart.Name,
				ClusterID:   cluster.ID,
				ReleaseName: chart.ReleaseName,
				Namespace:   chart.Namespace,
				Version:     chart.Version,
				Status:      state,
				Message:     message,
				LastUpdated: now,
			}
			if prev, ok := previous[chart.Name+"/"+cluster.ID]; ok && prev.Status == state && prev.Message == message {
				entry.LastUpdated = prev.LastUpdated
			}
			deployments = append(deployments, entry)
		}
	}
	stack.Status.Deployments = deployments

	oldPhase := stack.Status.Phase
	stack.Status.Phase = plan.Phase

	ready := metav1.Condition{
		Type:    herdv1.ReadyCondition,
		Status:  metav1.ConditionFalse,
		Reason:  herdv1.ProgressingReason,
		Message: "deployment in progress",
	}
	switch plan.Phase {
	case herdv1.PhaseDeployed:
		ready.Status = metav1.ConditionTrue
		ready.Reason = herdv1.SucceededReason
		ready.Message = "all charts deployed"
		stack.Status.Message = "All charts deployed successfully"
	case herdv1.PhaseFailed:
		ready.Reason = herdv1.FailedReason
		ready.Message = failureSummary(plan)
		stack.Status.Message = ready.Message
	default:
		stack.Status.Message = fmt.Sprintf("Deploying %d chart(s) to %d cluster(s)", len(stack.Spec.Charts), len(clusters))
	}
	apimeta.SetStatusCondition(&stack.Status.Conditions, ready)

	if oldPhase != stack.Status.Phase {
		record.Eventf(stack, stack.Generation, "PhaseChanged", "phase %s -> %s", oldPhase, stack.Status.Phase)
	}
}

// deploymentState picks the per-cluster state, letting the node-level
// Failed, Blocked and Pending states take precedence over the per-cluster
// observation.
func deploymentState(plan scheduler.Plan, node string, observed fleet.ClusterState) (herdv1.DeploymentState, string) {
	switch plan.States[node] {
	case herdv1.DeploymentFailed, herdv1.DeploymentBlocked, herdv1.DeploymentPending:
		return plan.States[node], plan.Messages[node]
	}

	if observed.State == "" {
		return herdv1.DeploymentPending, ""
	}
	return observed.State, observed.Message
}

func failureSummary(plan scheduler.Plan) string {
	failed, blocked := 0, 0
	message := ""
	for node, state := range plan.States {
		switch state {
		case herdv1.DeploymentFailed:
			failed++
			if message == "" {
				message = fmt.Sprintf("%s: %s", node, plan.Messages[node])
			}
		case herdv1.DeploymentBlocked:
			blocked++
		}
	}
	return fmt.Sprintf("%d failed, %d blocked; %s", failed, blocked, message)
}

// failStack marks the Stack permanently failed for this generation.
func (r *StackReconciler) failStack(stack *herdv1.Stack, reason, message string) {
	stack.Status.Phase = herdv1.PhaseFailed
	stack.Status.Message = message

	apimeta.SetStatusCondition(&stack.Status.Conditions, metav1.Condition{
		Type:    herdv1.ReadyCondition,
		Status:  metav1.ConditionFalse,
		Reason:  reason,
		Message: message,
	})

	record.Warnf(stack, stack.Generation, reason, "%s", message)
}

// updateStatus writes the Stack status, retrying on conflicts against the
// latest observed resource version.
func (r *StackReconciler) updateStatus(ctx context.Context, stack *herdv1.Stack) error {
	stack.Status.ObservedGeneration = stack.Generation
	now := metav1.Now()
	stack.Status.LastReconcileTime = &now

	metrics.TrackResourcePhase(herdv1.StackKind, stack.Namespace, stack.Name, string(stack.Status.Phase), knownPhases)

	status := stack.Status
	key := client.ObjectKeyFromObject(stack)

	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		latest := &herdv1.Stack{}
		if err := r.Client.Get(ctx, key, latest); err != nil {
			return err
		}
		latest.Status = status
		return r.Client.Status().Update(ctx, latest)
	})
	if err != nil {
		return fmt.Errorf("failed to update status for Stack %s: %w", key.String(), err)
	}

	return nil
}

func (r *StackReconciler) reconcileDelete(ctx context.Context, stack *herdv1.Stack) (ctrl.Result, error) {
	l := ctrl.LoggerFrom(ctx)
	l.Info("Deleting Stack")

	if !controllerutil.ContainsFinalizer(stack, herdv1.HerdFinalizer) {
		return ctrl.Result{}, nil
	}

	if stack.Status.Phase != herdv1.PhaseDeleting {
		stack.Status.Phase = herdv1.PhaseDeleting
		stack.Status.Message = "Reaping owned Bundles"
		if err := r.updateStatus(ctx, stack); err != nil {
			return ctrl.Result{}, err
		}
	}

	remaining, err := fleet.DeleteOwned(ctx, r.Client, herdv1.StackKind, stack.Namespace, stack.Name)
	if err != nil {
		return ctrl.Result{}, err
	}
	if remaining > 0 {
		l.Info("Waiting for owned Bundles to be removed", "remaining", remaining)
		return ctrl.Result{RequeueAfter: deletionRequeueInterval}, nil
	}

	if controllerutil.RemoveFinalizer(stack, herdv1.HerdFinalizer) {
		if err := r.Client.Update(ctx, stack); err != nil {
			return ctrl.Result{}, fmt.Errorf("failed to remove finalizer %s from Stack %s: %w", herdv1.HerdFinalizer, stack.Name, err)
		}
	}

	return ctrl.Result{}, nil
}

// requeueOwnerForBundle maps Bundle events back onto the owning resource
// of the given kind using the owner labels.
func requeueOwnerForBundle(ownerKind string) handler.MapFunc {
	return func(_ context.Context, obj client.Object) []ctrl.Request {
		labels := obj.GetLabels()
		if labels[herdv1.OwnerKindLabelKey] != strings.ToLower(ownerKind) {
			return nil
		}
		name, namespace := labels[herdv1.OwnerNameLabelKey], labels[herdv1.OwnerNamespaceLabelKey]
		if name == "" || namespace == "" {
			return nil
		}
		return []ctrl.Request{{NamespacedName: client.ObjectKey{Namespace: namespace, Name: name}}}
	}
}

// SetupWithManager sets up the controller with the Manager.
func (r *StackReconciler) SetupWithManager(mgr ctrl.Manager) error {
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
		For(&herdv1.Stack{}).
		Watches(&fleetv1alpha1.Bundle{},
			handler.EnqueueRequestsFromMapFunc(requeueOwnerForBundle(herdv1.StackKind)),
			builder.WithPredicates(predicate.Funcs{
				GenericFunc: func(event.GenericEvent) bool { return false },
			}),
		).
		Complete(r)
}
