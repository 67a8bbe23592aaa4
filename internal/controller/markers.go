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
	"fmt"
	"strconv"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	herdv1 "github.com/zackfeldstein/herd/api/v1"
	"github.com/zackfeldstein/herd/internal/fleet"
)

// Marker ConfigMap name suffixes. The markers are the hand-off points to
// the external NeuVector and observability collaborators: the controller
// creates them keyed on the owner, the collaborators report back into
// their data.
const (
	securityMarkerSuffix      = "-neuvector-scan"
	observabilityMarkerSuffix = "-observability-config"
)

// ownerRef builds the owner reference for auxiliary objects living in the
// owner's namespace.
func ownerRef(kind string, obj client.Object) metav1.OwnerReference {
	return metav1.OwnerReference{
		APIVersion: herdv1.GroupVersion.String(),
		Kind:       kind,
		Name:       obj.GetName(),
		UID:        obj.GetUID(),
	}
}

// ensureMarker upserts an auxiliary marker ConfigMap keyed on the owner.
func ensureMarker(ctx context.Context, cl client.Client, kind string, owner client.Object, name string) (*corev1.ConfigMap, error) {
	marker := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: owner.GetNamespace(),
		},
	}

	operation, err := ctrl.CreateOrUpdate(ctx, cl, marker, func() error {
		if marker.Labels == nil {
			marker.Labels = make(map[string]string)
		}
		for k, v := range fleet.OwnerLabels(kind, owner.GetNamespace(), owner.GetName()) {
			marker.Labels[k] = v
		}
		marker.OwnerReferences = []metav1.OwnerReference{ownerRef(kind, owner)}

		if marker.Data == nil {
			marker.Data = make(map[string]string)
		}
		marker.Data["owner"] = fmt.Sprintf("%s/%s/%s", kind, owner.GetNamespace(), owner.GetName())

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply marker ConfigMap %s/%s: %w", owner.GetNamespace(), name, err)
	}

	if operation != controllerutil.OperationResultNone {
		ctrl.LoggerFrom(ctx).V(1).Info("mutated marker ConfigMap", "configmap", name, "operation_result", operation)
	}

	return marker, nil
}

// ensureSecurityMarker creates the NeuVector scan marker and reads back
// the collaborator-reported scan results.
func ensureSecurityMarker(ctx context.Context, cl client.Client, kind string, owner client.Object) (*herdv1.SecurityStatus, error) {
	marker, err := ensureMarker(ctx, cl, kind, owner, owner.GetName()+securityMarkerSuffix)
	if err != nil {
		return nil, err
	}

	status := &herdv1.SecurityStatus{
		ScanStatus: marker.Data["scanStatus"],
	}
	if v, err := strconv.ParseInt(marker.Data["vulnerabilities"], 10, 32); err == nil {
		status.Vulnerabilities = int32(v)
	}
	if v, err := strconv.ParseInt(marker.Data["criticalIssues"], 10, 32); err == nil {
		status.CriticalIssues = int32(v)
	}

	return status, nil
}

// ensureObservabilityMarker creates the observability marker and reads
// back the collaborator-reported configuration state.
func ensureObservabilityMarker(ctx context.Context, cl client.Client, kind string, owner client.Object) (*herdv1.ObservabilityStatus, error) {
	marker, err := ensureMarker(ctx, cl, kind, owner, owner.GetName()+observabilityMarkerSuffix)
	if err != nil {
		return nil, err
	}

	status := &herdv1.ObservabilityStatus{}
	status.MetricsCollected, _ = strconv.ParseBool(marker.Data["metricsCollected"])
	status.DashboardsAvailable, _ = strconv.ParseBool(marker.Data["dashboardsAvailable"])
	status.AlertsConfigured, _ = strconv.ParseBool(marker.Data["alertsConfigured"])

	return status, nil
}

// securityCondition derives the SecurityScanned condition from the marker state.
func securityCondition(status *herdv1.SecurityStatus) metav1.Condition {
	c := metav1.Condition{
		Type:    herdv1.SecurityScannedCondition,
		Status:  metav1.ConditionFalse,
		Reason:  herdv1.ScanPendingReason,
		Message: "waiting for scan results",
	}
	if status != nil && status.ScanStatus != "" {
		c.Status = metav1.ConditionTrue
		c.Reason = herdv1.ScanCompletedReason
		c.Message = "scan status: " + status.ScanStatus
	}
	return c
}

// observabilityCondition derives the ObservabilityConfigured condition
// from the marker state.
func observabilityCondition(status *herdv1.ObservabilityStatus) metav1.Condition {
	c := metav1.Condition{
		Type:    herdv1.ObservabilityConfiguredCondition,
		Status:  metav1.ConditionFalse,
		Reason:  herdv1.ObservabilityPendingReason,
		Message: "waiting for observability configuration",
	}
	if status != nil && status.MetricsCollected {
		c.Status = metav1.ConditionTrue
		c.Reason = herdv1.ObservabilityConfiguredReason
		c.Message = "observability configured"
	}
	return c
}
