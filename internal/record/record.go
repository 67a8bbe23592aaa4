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

// Package record is a thin wrapper over the controller-runtime event
// recorder, annotating every event with the object generation it was
// produced for.
package record

import (
	"fmt"
	"strconv"
	"sync"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
)

const generationAnnotation = "herd.suse.com/generation"

var (
	initOnce sync.Once
	recorder record.EventRecorder
)

// InitFromRecorder initializes the package with the given recorder,
// typically mgr.GetEventRecorderFor. Subsequent calls are no-ops.
func InitFromRecorder(rec record.EventRecorder) {
	initOnce.Do(func() {
		recorder = rec
	})
}

// Event emits a normal event on the object.
func Event(object runtime.Object, generation int64, reason, message string) {
	event(object, corev1.EventTypeNormal, generation, reason, message)
}

// Eventf emits a normal event on the object with a formatted message.
func Eventf(object runtime.Object, generation int64, reason, messageFmt string, args ...any) {
	Event(object, generation, reason, fmt.Sprintf(messageFmt, args...))
}

// Warn emits a warning event on the object.
func Warn(object runtime.Object, generation int64, reason, message string) {
	event(object, corev1.EventTypeWarning, generation, reason, message)
}

// Warnf emits a warning event on the object with a formatted message.
func Warnf(object runtime.Object, generation int64, reason, messageFmt string, args ...any) {
	Warn(object, generation, reason, fmt.Sprintf(messageFmt, args...))
}

func event(object runtime.Object, eventType string, generation int64, reason, message string) {
	if recorder == nil {
		return
	}

	annotations := map[string]string{generationAnnotation: strconv.FormatInt(generation, 10)}
	recorder.AnnotatedEventf(object, annotations, eventType, reason, "%s", message)
}
