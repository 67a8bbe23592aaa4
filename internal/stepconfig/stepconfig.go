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

// Package stepconfig extracts the Helm coordinates out of a Pipeline
// step's opaque config. The chart coordinates live under the well-known
// keys "chart", "repo", "version", "releaseName", "namespace" and
// "values"; every remaining key passes through to the deployed component
// under "stepConfig".
package stepconfig

import (
	"encoding/json"
	"fmt"

	herdv1 "github.com/zackfeldstein/herd/api/v1"
)

// Well-known config keys.
const (
	keyChart       = "chart"
	keyRepo        = "repo"
	keyVersion     = "version"
	keyReleaseName = "releaseName"
	keyNamespace   = "namespace"
	keyValues      = "values"

	// PassthroughKey is the values key the remaining config is nested under.
	PassthroughKey = "stepConfig"
)

// Coordinates are the Helm deployment coordinates of one step.
type Coordinates struct {
	Chart       string
	Repo        string
	Version     string
	ReleaseName string
	Namespace   string
	// Values is the step's inline values layer, including the passthrough
	// of unrecognized config keys under "stepConfig".
	Values map[string]any
}

// Parse extracts the coordinates from the step's config, applying the
// step-name defaults for releaseName and namespace.
func Parse(step *herdv1.StepSpec) (Coordinates, error) {
	var config map[string]any
	if len(step.Config.Raw) > 0 {
		if err := json.Unmarshal(step.Config.Raw, &config); err != nil {
			return Coordinates{}, fmt.Errorf("config of step %q is not an object: %w", step.Name, err)
		}
	}

	coords := Coordinates{
		Chart:       stringKey(config, keyChart),
		Repo:        stringKey(config, keyRepo),
		Version:     stringKey(config, keyVersion),
		ReleaseName: stringKey(config, keyReleaseName),
		Namespace:   stringKey(config, keyNamespace),
	}

	if coords.Chart == "" || coords.Repo == "" || coords.Version == "" {
		return Coordinates{}, fmt.Errorf("config of step %q must carry %q, %q and %q", step.Name, keyChart, keyRepo, keyVersion)
	}

	if coords.ReleaseName == "" {
		coords.ReleaseName = step.Name
	}
	if coords.Namespace == "" {
		coords.Namespace = step.Name
	}

	coords.Values = map[string]any{}
	if values, ok := config[keyValues].(map[string]any); ok {
		for k, v := range values {
			coords.Values[k] = v
		}
	}

	passthrough := map[string]any{}
	for k, v := range config {
		switch k {
		case keyChart, keyRepo, keyVersion, keyReleaseName, keyNamespace, keyValues:
		default:
			passthrough[k] = v
		}
	}
	if len(passthrough) > 0 {
		coords.Values[PassthroughKey] = passthrough
	}

	return coords, nil
}

func stringKey(config map[string]any, key string) string {
	s, _ := config[key].(string)
	return s
}
