package telemetry

// This file contains metric declarations for all orchestration modules.
// It's in the telemetry package to avoid import cycles.

func init() {
	// Worker runtime metrics
	DeclareMetrics("worker", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:    "worker.task.duration_ms",
				Type:    "histogram",
				Help:    "Task attempt duration in milliseconds",
				Labels:  []string{"task_name", "queue", "status"},
				Unit:    "ms",
				Buckets: []float64{10, 50, 100, 500, 1000, 5000, 30000},
			},
			{
				Name:   "worker.task.executions",
				Type:   "counter",
				Help:   "Task attempt count",
				Labels: []string{"task_name", "queue", "status"},
			},
			{
				Name:   "worker.task.panics",
				Type:   "counter",
				Help:   "Task bodies that panicked",
				Labels: []string{"task_name"},
			},
			{
				Name:   "worker.pool.active",
				Type:   "gauge",
				Help:   "Active worker goroutines per queue",
				Labels: []string{"queue"},
			},
		},
	})

	// Lifecycle manager metrics
	DeclareMetrics("lifecycle", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:   "lifecycle.transitions",
				Type:   "counter",
				Help:   "Task lifecycle state transitions",
				Labels: []string{"task_name", "from_status", "to_status"},
			},
			{
				Name:   "lifecycle.retries",
				Type:   "counter",
				Help:   "Retry decisions",
				Labels: []string{"task_name", "error_kind", "decision"},
			},
			{
				Name:    "lifecycle.retry.delay_s",
				Type:    "histogram",
				Help:    "Computed retry delay in seconds",
				Labels:  []string{"task_name"},
				Unit:    "s",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60},
			},
		},
	})

	// Queue broker adapter metrics
	DeclareMetrics("broker", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:   "broker.enqueued",
				Type:   "counter",
				Help:   "Tasks enqueued",
				Labels: []string{"queue", "task_name"},
			},
			{
				Name:   "broker.dequeued",
				Type:   "counter",
				Help:   "Tasks dequeued by a worker",
				Labels: []string{"queue"},
			},
			{
				Name:   "broker.queue.depth",
				Type:   "gauge",
				Help:   "Approximate queue depth",
				Labels: []string{"queue"},
			},
			{
				Name:   "broker.group.members",
				Type:   "gauge",
				Help:   "Outstanding group/chord members",
				Labels: []string{"group_id"},
			},
		},
	})

	// Database task manager metrics
	DeclareMetrics("dbtask", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:    "dbtask.upsert.duration_ms",
				Type:    "histogram",
				Help:    "Entity upsert duration in milliseconds",
				Labels:  []string{"entity_key"},
				Unit:    "ms",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
			},
			{
				Name:   "dbtask.upsert.errors",
				Type:   "counter",
				Help:   "Entity upsert failures",
				Labels: []string{"entity_key"},
			},
			{
				Name:   "dbtask.task_rows.created",
				Type:   "counter",
				Help:   "Retroactive task rows created",
				Labels: []string{"entity_key"},
			},
		},
	})

	// Status bus metrics
	DeclareMetrics("statusbus", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:   "statusbus.published",
				Type:   "counter",
				Help:   "Status frames published",
				Labels: []string{"channel", "source"},
			},
			{
				Name:   "statusbus.bridge.requests",
				Type:   "counter",
				Help:   "HTTP bridge requests to the web tier",
				Labels: []string{"status_class"},
			},
			{
				Name:    "statusbus.bridge.duration_ms",
				Type:    "histogram",
				Help:    "HTTP bridge round-trip duration in milliseconds",
				Labels:  []string{"status_class"},
				Unit:    "ms",
				Buckets: []float64{5, 10, 50, 100, 500, 1000, 10000},
			},
		},
	})
}
