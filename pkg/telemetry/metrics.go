// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/noema-ai/noema/pkg/errors"
)

// EngineMetrics tracks execution runs, steps, tool calls and errors for
// production monitoring.
type EngineMetrics struct {
	runCounter      metric.Int64Counter
	stepCounter     metric.Int64Counter
	toolCallCounter metric.Int64Counter
	errorCounter    metric.Int64Counter
	runLatencyMs    metric.Float64Histogram
	toolLatencyMs   metric.Float64Histogram
}

// NewEngineMetrics creates the execution-core meters.
func NewEngineMetrics() (*EngineMetrics, error) {
	meter := otel.Meter("noema/engine")

	runCounter, err := meter.Int64Counter(
		"noema.runs.total",
		metric.WithDescription("Total execution runs by terminal status"),
	)
	if err != nil {
		return nil, err
	}

	stepCounter, err := meter.Int64Counter(
		"noema.steps.total",
		metric.WithDescription("Total finalized agent steps"),
	)
	if err != nil {
		return nil, err
	}

	toolCallCounter, err := meter.Int64Counter(
		"noema.tool_calls.total",
		metric.WithDescription("Total tool invocations by tool name and outcome"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"noema.errors.total",
		metric.WithDescription("Total errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	runLatencyMs, err := meter.Float64Histogram(
		"noema.run.latency_ms",
		metric.WithDescription("End-to-end execution latency in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	toolLatencyMs, err := meter.Float64Histogram(
		"noema.tool.latency_ms",
		metric.WithDescription("Tool invocation latency in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	return &EngineMetrics{
		runCounter:      runCounter,
		stepCounter:     stepCounter,
		toolCallCounter: toolCallCounter,
		errorCounter:    errorCounter,
		runLatencyMs:    runLatencyMs,
		toolLatencyMs:   toolLatencyMs,
	}, nil
}

// RecordRun records a finished run with its terminal status.
func (em *EngineMetrics) RecordRun(ctx context.Context, status string, latencyMs float64) {
	if em == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrTerminalStatus, status))
	em.runCounter.Add(ctx, 1, attrs)
	em.runLatencyMs.Record(ctx, latencyMs, attrs)
}

// RecordStep records one finalized step.
func (em *EngineMetrics) RecordStep(ctx context.Context, toolCalls int) {
	if em == nil {
		return
	}
	em.stepCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.Int(AttrToolCallCount, toolCalls),
	))
}

// RecordToolCall records one tool invocation outcome.
func (em *EngineMetrics) RecordToolCall(ctx context.Context, tool string, success bool, latencyMs float64) {
	if em == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrToolName, tool),
		attribute.Bool(AttrToolSuccess, success),
	)
	em.toolCallCounter.Add(ctx, 1, attrs)
	em.toolLatencyMs.Record(ctx, latencyMs, attrs)
}

// RecordError increments the error counter for the given error and component.
func (em *EngineMetrics) RecordError(ctx context.Context, err error, component string) {
	if em == nil || err == nil {
		return
	}
	em.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.code", string(errors.CodeOf(err))),
		attribute.String("component", component),
	))
}
