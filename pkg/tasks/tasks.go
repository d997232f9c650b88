// Package tasks wires the grievance pipeline's concrete task bodies
// (spec §4.7's chain and batch-upload pipelines) into the Task Registry.
// Each body is a thin adapter between the broker's untyped args/kwargs and
// the domain services (pkg/llm, pkg/messaging, pkg/dbtask, pkg/pipeline)
// that do the actual work — nothing here talks to Redis, Postgres, or a
// vendor SDK directly.
package tasks

import (
	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/pkg/dbtask"
	"github.com/grievanceplatform/orchestrator/pkg/llm"
	"github.com/grievanceplatform/orchestrator/pkg/messaging"
	"github.com/grievanceplatform/orchestrator/pkg/pipeline"
	"github.com/grievanceplatform/orchestrator/pkg/registry"
)

// Task names not already declared as shared constants in pkg/pipeline
// (process_file_upload_task, aggregate_batch_results_task,
// store_result_to_db_task).
const (
	TaskTranscribe = "transcribe_audio_file_task"
	TaskClassify   = "classify_and_summarize_grievance_task"
	TaskTranslate  = "translate_grievance_task"
	TaskNotify     = "notify_office_task"
)

// defaultTargetLanguage is used when a translate_grievance_task enqueue
// doesn't specify one — the platform's baseline output language for
// office-facing records.
const defaultTargetLanguage = "en"

// Deps collects every domain service a registered task body may need.
// Offices may be nil if office-routed notification isn't wired; a nil
// OfficeDirectory makes notify_office_task fail closed with a descriptive
// error instead of panicking.
type Deps struct {
	LLM      *llm.Service
	DB       *dbtask.Manager
	Offices  *dbtask.OfficeDirectory
	Notifier *messaging.Notifier
	Pipeline *pipeline.Composer
	Logger   core.ComponentAwareLogger
}

// QueueNames binds each task kind to the broker queue its tasks are
// enqueued on. Defaults match the queue names spec.md's illustrative
// configuration table uses.
type QueueNames struct {
	LLM        string
	FileUpload string
	Messaging  string
	Database   string
}

// DefaultQueueNames returns the illustrative per-kind queue names.
func DefaultQueueNames() QueueNames {
	return QueueNames{
		LLM:        "llm_queue",
		FileUpload: "fileupload_queue",
		Messaging:  "messaging_queue",
		Database:   "db_queue",
	}
}

// serviceForKind follows the "orchestrator/<component>" naming convention
// core.ComponentAwareLogger documents, naming the domain service each kind's
// tasks are dispatched to rather than the dispatcher itself.
var serviceForKind = map[core.TaskKind]string{
	core.TaskKindFileUpload: "orchestrator/fileupload",
	core.TaskKindDatabase:   "orchestrator/dbtask",
	core.TaskKindLLM:        "orchestrator/llm",
	core.TaskKindMessaging:  "orchestrator/messaging",
}

func kindConfig(kind core.TaskKind, queue string) core.KindConfig {
	return core.KindConfig{
		Kind:        kind,
		Queue:       queue,
		Service:     serviceForKind[kind],
		Priority:    core.DefaultPriority()[kind],
		RetryPolicy: core.DefaultRetryTable()[kind],
	}
}

// Register attaches every task body this package implements to reg, using
// queues to resolve each kind's queue name. Call once at startup before any
// worker pool begins consuming.
func Register(reg *registry.Registry, deps Deps, queues QueueNames) error {
	registrations := []struct {
		name string
		kind core.TaskKind
		body registry.Body
	}{
		{pipeline.TaskProcessFileUpload, core.TaskKindFileUpload, deps.processFileUpload},
		{pipeline.TaskAggregateBatch, core.TaskKindDatabase, deps.aggregateBatchResults},
		{pipeline.TaskStoreResultToDB, core.TaskKindDatabase, deps.storeResultToDB},
		{TaskTranscribe, core.TaskKindLLM, deps.transcribeAudioFile},
		{TaskClassify, core.TaskKindLLM, deps.classifyAndSummarize},
		{TaskTranslate, core.TaskKindLLM, deps.translateGrievance},
		{TaskNotify, core.TaskKindMessaging, deps.notifyOffice},
	}

	queueForKind := map[core.TaskKind]string{
		core.TaskKindFileUpload: queues.FileUpload,
		core.TaskKindDatabase:   queues.Database,
		core.TaskKindLLM:        queues.LLM,
		core.TaskKindMessaging:  queues.Messaging,
	}

	for _, r := range registrations {
		cfg := kindConfig(r.kind, queueForKind[r.kind])
		if err := reg.Register(r.name, r.kind, cfg, r.body); err != nil {
			return err
		}
	}
	return nil
}
