// Copyright 2024 Google Inc. All Rights Reserved.
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

package monitor

import (
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// NewRunID mints a fresh correlation ID for one recovery run, threaded
// through both the structured logs and the trace spans of that run.
func NewRunID() string {
	return uuid.NewString()
}

func runIDAttr(runID string) attribute.KeyValue {
	return attribute.String("rollforward.run_id", runID)
}
