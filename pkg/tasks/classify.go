package tasks

import (
	"fmt"
	"strings"

	"github.com/grievanceplatform/orchestrator/core"
)

// defaultTranslationTarget is used when a classification enqueue doesn't
// carry an explicit target for the following translate_grievance_task —
// office staff read grievances in the platform's administrative language.
const defaultTranslationTarget = defaultTargetLanguage

// classifyAndSummarize implements classify_and_summarize_grievance_task,
// the second chain link (spec §4.7, §8 S1 description; §4.7's "classify_and_
// summarize_grievance_task" folding classification and summarization into
// one LLM operation). Persists its own result, enqueues the next chain link
// (translate_grievance_task), and — once the grievance's category is known —
// enqueues notify_office_task so the routed office hears about it without
// waiting on translation.
func (d Deps) classifyAndSummarize(tc *core.TaskContext, args []interface{}, kwargs map[string]interface{}) (*core.ResultEnvelope, error) {
	grievanceID := stringKwarg(kwargs, "grievance_id")
	complainantID := stringKwarg(kwargs, "complainant_id")
	text := stringKwarg(kwargs, "text")
	languageCode := stringKwarg(kwargs, "language_code")

	resp, err := d.LLM.Classify(tc.Context, text)
	if err != nil {
		return nil, fmt.Errorf("classify_and_summarize_grievance_task: %w", err)
	}

	summary, category := splitSummaryAndCategory(resp.Content)

	env := &core.ResultEnvelope{
		Status:        core.TaskStatusSuccess,
		Operation:     "classification",
		EntityKey:     core.EntityKeyGrievance,
		ID:            grievanceID,
		TaskID:        tc.TaskID,
		TaskName:      tc.TaskName,
		GrievanceID:   grievanceID,
		ComplainantID: complainantID,
		LanguageCode:  languageCode,
		Values: map[string]interface{}{
			"grievance_description": summary,
			"category":              category,
		},
	}

	if err := tc.EmitStatus(core.TaskStatusSuccess, map[string]interface{}{
		"category": category,
		"summary":  summary,
	}); err != nil && d.Logger != nil {
		d.Logger.Error("emit status failed", map[string]interface{}{"operation": "classification", "error": err.Error()})
	}

	if _, err := d.Pipeline.EnqueueNext(tc.Context, TaskStoreResultToDB, nil, envelopeToKwargs(*env, tc.Attempt)); err != nil {
		return nil, fmt.Errorf("classify_and_summarize_grievance_task: enqueue store_result_to_db_task: %w", err)
	}

	if _, err := d.Pipeline.EnqueueNext(tc.Context, TaskTranslate, nil, map[string]interface{}{
		"grievance_id":    grievanceID,
		"complainant_id":  complainantID,
		"text":            summary,
		"language_code":   languageCode,
		"target_language": defaultTranslationTarget,
	}); err != nil {
		return nil, fmt.Errorf("classify_and_summarize_grievance_task: enqueue translate_grievance_task: %w", err)
	}

	if _, err := d.Pipeline.EnqueueNext(tc.Context, TaskNotify, nil, map[string]interface{}{
		"grievance_id":   grievanceID,
		"complainant_id": complainantID,
		"category":       category,
		"summary":        summary,
	}); err != nil {
		return nil, fmt.Errorf("classify_and_summarize_grievance_task: enqueue notify_office_task: %w", err)
	}

	return env, nil
}

// splitSummaryAndCategory implements the Service.Classify contract's
// caller-side convention (pkg/llm's systemPrompts["classification"] doc
// comment): the category, if the model supplied one, is the first line;
// everything else is the summary.
func splitSummaryAndCategory(content string) (summary, category string) {
	lines := strings.SplitN(strings.TrimSpace(content), "\n", 2)
	if len(lines) == 2 && looksLikeCategoryLine(lines[0]) {
		return strings.TrimSpace(lines[1]), strings.TrimSpace(lines[0])
	}
	return strings.TrimSpace(content), ""
}

// looksLikeCategoryLine reports whether line is short enough to plausibly be
// a category label rather than the start of the summary prose.
func looksLikeCategoryLine(line string) bool {
	return len(strings.TrimSpace(line)) > 0 && len(line) < 40
}
