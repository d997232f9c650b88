// This file defines the unified metrics contract that enables consistent
// observability across all orchestrator components (worker, lifecycle,
// broker, dbtask, statusbus, llm, pipeline). Using these unified metrics
// ensures that dashboards and queries work regardless of which component
// emitted them.
//
// Usage:
//
//	telemetry.RecordTaskAttempt(telemetry.ComponentWorker, "transcribe_audio_file_task", durationMs, "success")
//	telemetry.RecordLLMCall("anthropic", durationMs, "success")
package telemetry

// Component label values for identifying metric sources.
// These are used as the "component" label value in unified metrics.
const (
	ComponentWorker    = "worker"
	ComponentLifecycle = "lifecycle"
	ComponentBroker    = "broker"
	ComponentDBTask    = "dbtask"
	ComponentStatusBus = "statusbus"
	ComponentPipeline  = "pipeline"
	ComponentLLM       = "llm"
	ComponentMessaging = "messaging"
)

// Unified metric names - use these constants to ensure consistent naming
// across components. Component-specific metrics live in metrics.go/modules.go;
// these are the cross-cutting ones every component shares.
const (
	UnifiedTaskDuration = "task.duration_ms"
	UnifiedTaskTotal    = "task.total"
	UnifiedTaskErrors   = "task.errors"

	UnifiedLLMCallDuration = "llm.call.duration_ms"
	UnifiedLLMCallTotal    = "llm.call.total"
	UnifiedLLMTokensUsed   = "llm.tokens.used"

	UnifiedPipelineFanoutSize = "pipeline.fanout.size"
	UnifiedPipelineCallbacks  = "pipeline.callbacks.total"
)

// RecordTaskAttempt records unified task-attempt metrics with component
// labeling. Called once per task attempt, at terminal status.
func RecordTaskAttempt(component string, taskName string, durationMs float64, status string) {
	Histogram(UnifiedTaskDuration, durationMs,
		"component", component,
		"task_name", taskName,
		"status", status,
	)
	Counter(UnifiedTaskTotal,
		"component", component,
		"task_name", taskName,
		"status", status,
	)
}

// RecordTaskError records a task error with error-kind classification.
func RecordTaskError(component string, taskName string, errorKind string) {
	Counter(UnifiedTaskErrors,
		"component", component,
		"task_name", taskName,
		"error_kind", errorKind,
	)
}

// RecordLLMCall records an LLM provider call's outcome.
func RecordLLMCall(provider string, durationMs float64, status string) {
	Histogram(UnifiedLLMCallDuration, durationMs,
		"provider", provider,
		"status", status,
	)
	Counter(UnifiedLLMCallTotal,
		"provider", provider,
		"status", status,
	)
}

// RecordLLMTokens records LLM token usage.
func RecordLLMTokens(provider string, tokenType string, count int64) {
	Emit(UnifiedLLMTokensUsed, float64(count),
		"provider", provider,
		"type", tokenType,
	)
}

// RecordPipelineFanout records the size of a group/chord fan-out.
func RecordPipelineFanout(kind string, size int) {
	Histogram(UnifiedPipelineFanoutSize, float64(size),
		"kind", kind,
	)
}

// RecordPipelineCallback records a chord callback invocation.
func RecordPipelineCallback(status string) {
	Counter(UnifiedPipelineCallbacks,
		"status", status,
	)
}

// init declares the unified metrics with appropriate types and buckets.
func init() {
	DeclareMetrics("unified", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:    UnifiedTaskDuration,
				Type:    "histogram",
				Help:    "Task attempt duration in milliseconds",
				Labels:  []string{"component", "task_name", "status"},
				Unit:    "ms",
				Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000},
			},
			{
				Name:   UnifiedTaskTotal,
				Type:   "counter",
				Help:   "Total task attempts processed",
				Labels: []string{"component", "task_name", "status"},
			},
			{
				Name:   UnifiedTaskErrors,
				Type:   "counter",
				Help:   "Task errors by kind",
				Labels: []string{"component", "task_name", "error_kind"},
			},
			{
				Name:    UnifiedLLMCallDuration,
				Type:    "histogram",
				Help:    "LLM provider call duration in milliseconds",
				Labels:  []string{"provider", "status"},
				Unit:    "ms",
				Buckets: []float64{100, 500, 1000, 2000, 5000, 10000, 30000},
			},
			{
				Name:   UnifiedLLMCallTotal,
				Type:   "counter",
				Help:   "Total LLM provider calls",
				Labels: []string{"provider", "status"},
			},
			{
				Name:   UnifiedLLMTokensUsed,
				Type:   "counter",
				Help:   "LLM tokens used (input/output)",
				Labels: []string{"provider", "type"},
			},
			{
				Name:    UnifiedPipelineFanoutSize,
				Type:    "histogram",
				Help:    "Group/chord fan-out size",
				Labels:  []string{"kind"},
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
			},
			{
				Name:   UnifiedPipelineCallbacks,
				Type:   "counter",
				Help:   "Chord callback invocations",
				Labels: []string{"status"},
			},
		},
	})
}
