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

package webhook

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/webhook"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	herdv1 "github.com/zackfeldstein/herd/api/v1"
	"github.com/zackfeldstein/herd/internal/utils/validation"
)

// PipelineValidator validates Pipeline objects at admission.
type PipelineValidator struct {
	client.Client
}

const invalidPipelineMsg = "the Pipeline is invalid"

// SetupWebhookWithManager will setup the manager to manage the webhooks
func (v *PipelineValidator) SetupWebhookWithManager(mgr ctrl.Manager) error {
	v.Client = mgr.GetClient()
	return ctrl.NewWebhookManagedBy(mgr).
		For(&herdv1.Pipeline{}).
		WithValidator(v).
		Complete()
}

var _ webhook.CustomValidator = &PipelineValidator{}

// ValidateCreate implements webhook.Validator so a webhook will be registered for the type.
func (*PipelineValidator) ValidateCreate(_ context.Context, obj runtime.Object) (admission.Warnings, error) {
	pipeline, ok := obj.(*herdv1.Pipeline)
	if !ok {
		return nil, apierrors.NewBadRequest(fmt.Sprintf("expected Pipeline but got a %T", obj))
	}

	if err := validation.ValidatePipeline(pipeline); err != nil {
		return nil, fmt.Errorf("%s: %w", invalidPipelineMsg, err)
	}

	return nil, nil
}

// ValidateUpdate implements webhook.Validator so a webhook will be registered for the type.
func (*PipelineValidator) ValidateUpdate(_ context.Context, _, newObj runtime.Object) (admission.Warnings, error) {
	pipeline, ok := newObj.(*herdv1.Pipeline)
	if !ok {
		return nil, apierrors.NewBadRequest(fmt.Sprintf("expected Pipeline but got a %T", newObj))
	}

	if err := validation.ValidatePipeline(pipeline); err != nil {
		return nil, fmt.Errorf("%s: %w", invalidPipelineMsg, err)
	}

	return nil, nil
}

// ValidateDelete implements webhook.Validator so a webhook will be registered for the type.
func (*PipelineValidator) ValidateDelete(_ context.Context, _ runtime.Object) (admission.Warnings, error) {
	return nil, nil
}
