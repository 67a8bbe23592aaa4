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
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/healthz"
)

// Heartbeat records when a reconcile loop last completed. The health
// endpoint reports unhealthy when the last beat is older than twice the
// resync interval.
type Heartbeat struct {
	last atomic.Int64
}

// Beat records a completed reconcile pass.
func (h *Heartbeat) Beat() {
	h.last.Store(time.Now().UnixNano())
}

// Checker returns a healthz checker failing when no reconcile completed
// within maxAge. A heartbeat that never beat yet is healthy: the periodic
// resync guarantees a first pass.
func (h *Heartbeat) Checker(maxAge time.Duration) healthz.Checker {
	return func(*http.Request) error {
		last := h.last.Load()
		if last == 0 {
			return nil
		}
		if age := time.Since(time.Unix(0, last)); age > maxAge {
			return fmt.Errorf("last reconcile pass was %s ago, exceeding %s", age.Round(time.Second), maxAge)
		}
		return nil
	}
}
