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

package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	metricsNamespace = "herd"

	metricLabelOwnerKind      = "owner_kind"
	metricLabelOwnerNamespace = "owner_namespace"
	metricLabelOwnerName      = "owner_name"
	metricLabelChart          = "chart"
	metricLabelOperation      = "operation"
	metricLabelPhase          = "phase"
)

var (
	metricBundleApplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bundle_applies_total",
			Help:      "Number of Fleet Bundle writes, by owner, chart and operation",
		},
		[]string{metricLabelOwnerKind, metricLabelOwnerNamespace, metricLabelOwnerName, metricLabelChart, metricLabelOperation},
	)

	metricResourcePhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "resource_phase",
			Help:      "Current phase of a Stack or Pipeline, 1 for the active phase",
		},
		[]string{metricLabelOwnerKind, metricLabelOwnerNamespace, metricLabelOwnerName, metricLabelPhase},
	)
)

func init() {
	metrics.Registry.MustRegister(
		metricBundleApplies,
		metricResourcePhase,
	)
}

// TrackBundleApply counts one Bundle write.
func TrackBundleApply(ctx context.Context, ownerKind, ownerNamespace, ownerName, chart, operation string) {
	metricBundleApplies.With(prometheus.Labels{
		metricLabelOwnerKind:      ownerKind,
		metricLabelOwnerNamespace: ownerNamespace,
		metricLabelOwnerName:      ownerName,
		metricLabelChart:          chart,
		metricLabelOperation:      operation,
	}).Inc()

	l := ctrl.LoggerFrom(ctx)
	if l.V(1).Enabled() {
		l.V(1).Info("bundle applied", "owner_kind", ownerKind, "owner", ownerNamespace+"/"+ownerName, "chart", chart, "operation", operation)
	}
}

// TrackResourcePhase records the current phase of a Stack or Pipeline. The
// previously active phase gauge is reset by exporting all known phases.
func TrackResourcePhase(ownerKind, ownerNamespace, ownerName, phase string, phases []string) {
	for _, p := range phases {
		value := 0.0
		if p == phase {
			value = 1
		}
		metricResourcePhase.With(prometheus.Labels{
			metricLabelOwnerKind:      ownerKind,
			metricLabelOwnerNamespace: ownerNamespace,
			metricLabelOwnerName:      ownerName,
			metricLabelPhase:          p,
		}).Set(value)
	}
}
