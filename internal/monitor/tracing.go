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
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/rollforward/rollforward/cfg"
)

const tracerName = "github.com/rollforward/rollforward/internal/monitor"

// ShutdownFunc flushes and releases tracing resources. SetupTracing
// returns a nil ShutdownFunc when tracing is not enabled.
type ShutdownFunc func(context.Context) error

// SetupTracing installs the global tracer provider according to
// c.TracingMode; runID is not used here. An empty mode disables tracing
// entirely and SetupTracing returns a nil shutdown func. "stdout", like
// any other non-empty mode, writes spans to stdout — there is no cloud
// project in scope for a remote exporter.
func SetupTracing(ctx context.Context, c cfg.MonitoringConfig, runID string) ShutdownFunc {
	if c.TracingMode == "" {
		return nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown
}

// Tracer returns the tracer recovery phases should start spans from.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartPhase starts a span for one recovery phase (discovery,
// data-repair, checkpoint), tagging it with the run's correlation ID.
func StartPhase(ctx context.Context, runID, phase string) (context.Context, trace.Span) {
	ctx, span := Tracer().Start(ctx, phase)
	span.SetAttributes(runIDAttr(runID))
	return ctx, span
}
