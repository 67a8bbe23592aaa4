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

// StackValidator validates Stack objects at admission.
type StackValidator struct {
	client.Client
}

const invalidStackMsg = "the Stack is invalid"

// SetupWebhookWithManager will setup the manager to manage the webhooks
func (v *StackValidator) SetupWebhookWithManager(mgr ctrl.Manager) error {
	v.Client = mgr.GetClient()
	return ctrl.NewWebhookManagedBy(mgr).
		For(&herdv1.Stack{}).
		WithValidator(v).
		Complete()
}

var _ webhook.CustomValidator = &StackValidator{}

// ValidateCreate implements webhook.Validator so a webhook will be registered for the type.
func (*StackValidator) ValidateCreate(_ context.Context, obj runtime.Object) (admission.Warnings, error) {
	stack, ok := obj.(*herdv1.Stack)
	if !ok {
		return nil, apierrors.NewBadRequest(fmt.Sprintf("expected Stack but got a %T", obj))
	}

	if err := validation.ValidateStack(stack); err != nil {
		return nil, fmt.Errorf("%s: %w", invalidStackMsg, err)
	}

	return nil, nil
}

// ValidateUpdate implements webhook.Validator so a webhook will be registered for the type.
func (*StackValidator) ValidateUpdate(_ context.Context, _, newObj runtime.Object) (admission.Warnings, error) {
	stack, ok := newObj.(*herdv1.Stack)
	if !ok {
		return nil, apierrors.NewBadRequest(fmt.Sprintf("expected Stack but got a %T", newObj))
	}

	if err := validation.ValidateStack(stack); err != nil {
		return nil, fmt.Errorf("%s: %w", invalidStackMsg, err)
	}

	return nil, nil
}

// ValidateDelete implements webhook.Validator so a webhook will be registered for the type.
func (*StackValidator) ValidateDelete(_ context.Context, _ runtime.Object) (admission.Warnings, error) {
	return nil, nil
}
