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

// Package values renders the final Helm values for one chart on one
// cluster, merging every configured source under a fixed precedence.
package values

import (
	"context"
	"encoding/json"
	"fmt"

	"helm.sh/helm/v3/pkg/chartutil"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	herdv1 "github.com/zackfeldstein/herd/api/v1"
)

// SourceErrorReason classifies a values source failure.
type SourceErrorReason string

const (
	// ReasonMissingSource marks a named ConfigMap or Secret that does not exist.
	ReasonMissingSource SourceErrorReason = "MissingValueSource"
	// ReasonParseFailure marks a payload that is not valid YAML.
	ReasonParseFailure SourceErrorReason = "ParseFailure"
)

// SourceError is a permanent failure of one values source. The affected
// chart is skipped for this reconciliation and its dependents are blocked.
type SourceError struct {
	Reason SourceErrorReason
	Kind   string
	Name   string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s %s: %v", e.Reason, e.Kind, e.Name, e.Err)
	}
	return fmt.Sprintf("%s: %s %s", e.Reason, e.Kind, e.Name)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Input describes one merge invocation.
type Input struct {
	// Values are the chart's configured sources.
	Values herdv1.ChartValues
	// Env selects the implicit environment overlay ConfigMap.
	Env herdv1.Environment
	// Namespace is the owner's namespace, the default for all references.
	Namespace string
	// ClusterID selects the per-cluster override key.
	ClusterID string
	// Security and Observability toggles are injected after the merge so
	// user values cannot suppress them.
	Security      bool
	Observability bool
}

// Merger fetches and merges values sources.
type Merger struct {
	Client client.Client
}

// Render merges all values sources for one (chart, cluster) pair. The
// result is a pure function of the input and the referenced ConfigMap and
// Secret contents at call time. Precedence, lowest to highest:
// configMapRefs in declared order, the "herd-env-{env}" overlay, the
// per-cluster override, secretRefs in declared order, inline.
func (m *Merger) Render(ctx context.Context, in Input) (map[string]any, error) {
	merged := map[string]any{}

	for _, ref := range in.Values.ConfigMapRefs {
		layer, err := m.configMapLayer(ctx, ref, in.Namespace, ref.GetKey(), true)
		if err != nil {
			return nil, err
		}
		merged = chartutil.CoalesceTables(layer, merged)
	}

	envRef := herdv1.ValuesRef{Name: herdv1.EnvOverlayConfigMapPrefix + string(in.Env)}
	envLayer, err := m.configMapLayer(ctx, envRef, in.Namespace, herdv1.DefaultValuesKey, false)
	if err != nil {
		return nil, err
	}
	merged = chartutil.CoalesceTables(envLayer, merged)

	if ref := in.Values.PerClusterConfigMapRef; ref != nil {
		layer, err := m.configMapLayer(ctx, *ref, in.Namespace, in.ClusterID+".yaml", true)
		if err != nil {
			return nil, err
		}
		merged = chartutil.CoalesceTables(layer, merged)
	}

	for _, ref := range in.Values.SecretRefs {
		layer, err := m.secretLayer(ctx, ref, in.Namespace)
		if err != nil {
			return nil, err
		}
		merged = chartutil.CoalesceTables(layer, merged)
	}

	if in.Values.Inline != nil {
		layer, err := inlineLayer(in.Values.Inline.Raw)
		if err != nil {
			return nil, err
		}
		merged = chartutil.CoalesceTables(layer, merged)
	}

	return injectToggles(merged, in.Security, in.Observability), nil
}

// injectToggles sets the reserved herd.* keys after the merge.
func injectToggles(merged map[string]any, security, observability bool) map[string]any {
	reserved := map[string]any{
		"herd": map[string]any{
			"security":      map[string]any{"enabled": security},
			"observability": map[string]any{"enabled": observability},
		},
	}
	return chartutil.CoalesceTables(reserved, merged)
}

// configMapLayer loads and parses one ConfigMap-sourced layer. A missing
// object is an error only when required; a missing key is always a no-op.
func (m *Merger) configMapLayer(ctx context.Context, ref herdv1.ValuesRef, defaultNamespace, key string, required bool) (map[string]any, error) {
	namespace := ref.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}

	cm := new(corev1.ConfigMap)
	objKey := client.ObjectKey{Namespace: namespace, Name: ref.Name}
	if err := m.Client.Get(ctx, objKey, cm); err != nil {
		if apierrors.IsNotFound(err) {
			if !required {
				ctrl.LoggerFrom(ctx).V(1).Info("values ConfigMap not found, skipping", "configmap", objKey.String())
				return nil, nil
			}
			return nil, &SourceError{Reason: ReasonMissingSource, Kind: "ConfigMap", Name: objKey.String()}
		}
		return nil, fmt.Errorf("failed to get ConfigMap %s: %w", objKey.String(), err)
	}

	payload, ok := cm.Data[key]
	if !ok {
		ctrl.LoggerFrom(ctx).V(1).Info("values key not found in ConfigMap, skipping", "configmap", objKey.String(), "key", key)
		return nil, nil
	}

	parsed, err := chartutil.ReadValues([]byte(payload))
	if err != nil {
		return nil, &SourceError{Reason: ReasonParseFailure, Kind: "ConfigMap", Name: objKey.String(), Err: err}
	}

	return parsed, nil
}

// secretLayer loads and parses one Secret-sourced layer. Secret payloads
// never reach logs or events.
func (m *Merger) secretLayer(ctx context.Context, ref herdv1.ValuesRef, defaultNamespace string) (map[string]any, error) {
	namespace := ref.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}

	secret := new(corev1.Secret)
	objKey := client.ObjectKey{Namespace: namespace, Name: ref.Name}
	if err := m.Client.Get(ctx, objKey, secret); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, &SourceError{Reason: ReasonMissingSource, Kind: "Secret", Name: objKey.String()}
		}
		return nil, fmt.Errorf("failed to get Secret %s: %w", objKey.String(), err)
	}

	payload, ok := secret.Data[ref.GetKey()]
	if !ok {
		return nil, nil
	}

	parsed, err := chartutil.ReadValues(payload)
	if err != nil {
		// Deliberately not wrapping the parser error: it may echo payload content.
		return nil, &SourceError{Reason: ReasonParseFailure, Kind: "Secret", Name: objKey.String()}
	}

	return parsed, nil
}

func inlineLayer(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &SourceError{Reason: ReasonParseFailure, Kind: "inline", Name: "values", Err: err}
	}

	return parsed, nil
}
