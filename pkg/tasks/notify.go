package tasks

import (
	"fmt"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/pkg/entity"
	"github.com/grievanceplatform/orchestrator/pkg/messaging"
)

// notifyOffice implements notify_office_task (spec §3's Messaging task
// kind; §1's "notification (email/SMS)"; supplemented beyond spec.md's
// distillation per pkg/dbtask.Office's doc comment). Resolves the target
// office from the grievance id's embedded office segment and fans the
// notification out over every configured channel.
func (d Deps) notifyOffice(tc *core.TaskContext, args []interface{}, kwargs map[string]interface{}) (*core.ResultEnvelope, error) {
	grievanceID := stringKwarg(kwargs, "grievance_id")
	category := stringKwarg(kwargs, "category")
	summary := stringKwarg(kwargs, "summary")

	if d.Offices == nil {
		return nil, fmt.Errorf("notify_office_task: no office directory configured")
	}

	parsed, err := entity.Parse(grievanceID)
	if err != nil {
		return nil, fmt.Errorf("notify_office_task: %w", err)
	}

	office, ok := d.Offices.Lookup(parsed.Office)
	if !ok {
		return nil, fmt.Errorf("notify_office_task: no office registered for segment %q", parsed.Office)
	}

	notification := messaging.Notification{
		GrievanceID: grievanceID,
		OfficeName:  office.Name,
		OfficeEmail: office.Email,
		OfficePhone: office.Phone,
		Subject:     fmt.Sprintf("New grievance: %s", category),
		Body:        summary,
	}

	if err := d.Notifier.Send(tc.Context, notification); err != nil {
		return nil, fmt.Errorf("notify_office_task: %w", err)
	}

	env := &core.ResultEnvelope{
		Status:      core.TaskStatusSuccess,
		Operation:   "notification",
		EntityKey:   core.EntityKeyGrievance,
		ID:          grievanceID,
		TaskID:      tc.TaskID,
		GrievanceID: grievanceID,
		Values: map[string]interface{}{
			"office_code": parsed.Office,
			"category":    category,
		},
	}

	if err := tc.EmitStatus(env.Status, map[string]interface{}{"office_code": parsed.Office}); err != nil && d.Logger != nil {
		d.Logger.Error("emit status failed", map[string]interface{}{"operation": "notification", "error": err.Error()})
	}

	return env, nil
}
