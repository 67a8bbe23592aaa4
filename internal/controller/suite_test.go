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
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	fleetv1alpha1 "github.com/rancher/fleet/pkg/apis/fleet.cattle.io/v1alpha1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	herdv1 "github.com/zackfeldstein/herd/api/v1"
	"github.com/zackfeldstein/herd/internal/rancher"
)

func TestControllers(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Controller Suite")
}

func newTestScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(fleetv1alpha1.AddToScheme(scheme))
	utilruntime.Must(herdv1.AddToScheme(scheme))
	return scheme
}

func newTestClient(objects ...client.Object) client.Client {
	return fake.NewClientBuilder().
		WithScheme(newTestScheme()).
		WithIndex(&fleetv1alpha1.Bundle{}, herdv1.BundleOwnerIndexKey, herdv1.ExtractBundleOwner).
		WithObjects(objects...).
		WithStatusSubresource(&herdv1.Stack{}, &herdv1.Pipeline{}).
		Build()
}

type staticLister struct {
	clusters []rancher.Cluster
}

func (s *staticLister) Clusters(context.Context) ([]rancher.Cluster, error) {
	return s.clusters, nil
}

func testInventory() []rancher.Cluster {
	return []rancher.Cluster{
		{ID: "c-a", Name: "alpha", State: "active", Labels: map[string]string{"env": "prod", "gpu": "true"}},
		{ID: "c-b", Name: "bravo", State: "active", Labels: map[string]string{"env": "prod"}},
		{ID: "local", Name: "local", State: "active", Labels: map[string]string{"mgmt": "true"}},
	}
}
