package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/onchainos/steward/config"
)

// sumFor digs an int64 counter total out of a collected snapshot.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not an int64 sum: %T", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not collected", name)
	return 0
}

func TestCountersTrackExecutionsAndTokens(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	tele := NewTelemetry(config.TelemetryConfig{Enabled: true})
	ctx := context.Background()

	tele.RecordAgentEvent(ctx, AgentEvent{
		AgentID:   "trade",
		Operation: "execute",
		Duration:  5 * time.Millisecond,
		Success:   true,
	})
	tele.RecordAgentEvent(ctx, AgentEvent{
		AgentID:   "research",
		Operation: "simulate",
		Duration:  2 * time.Millisecond,
		Success:   true,
	})
	tele.RecordLLMEvent(ctx, LLMEvent{
		Model:        "fast",
		Operation:    "classification",
		InputTokens:  10,
		OutputTokens: 5,
		Success:      true,
	})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if got := sumFor(t, rm, "steward.agent.executions"); got != 2 {
		t.Fatalf("agent executions counter = %d, want 2", got)
	}
	if got := sumFor(t, rm, "steward.llm.tokens"); got != 15 {
		t.Fatalf("llm tokens counter = %d, want 15", got)
	}
}

func TestDisabledTelemetrySkipsRecording(t *testing.T) {
	tele := NewTelemetry(config.TelemetryConfig{})
	ctx := context.Background()

	tele.RecordAgentEvent(ctx, AgentEvent{AgentID: "trade", Operation: "execute", Success: true})
	tele.RecordLLMEvent(ctx, LLMEvent{Model: "fast", InputTokens: 10})

	metrics := tele.GetMetrics()
	if metrics.AgentExecutions["trade"] != 0 || metrics.LLMTokensUsed["fast"] != 0 {
		t.Fatalf("disabled telemetry recorded metrics: %+v", metrics)
	}
}
