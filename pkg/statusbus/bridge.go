package statusbus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/telemetry"
)

// bridgeTimeout bounds how long a worker waits for the web tier to accept a
// status frame (spec §6: "Workers must not block the task on delivery
// confirmation beyond a short timeout (10s)").
const bridgeTimeout = 10 * time.Second

// bridgePayload is the task-status HTTP bridge's wire shape (spec §6):
// POST {web_base}/task-status with {status, data, grievance_id, flask_session_id}.
type bridgePayload struct {
	Status         core.TaskStatusCode    `json:"status"`
	Data           map[string]interface{} `json:"data,omitempty"`
	GrievanceID    string                 `json:"grievance_id"`
	FlaskSessionID string                 `json:"flask_session_id"`
}

// BridgeClient implements core.StatusPublisher over the task-status HTTP
// bridge, letting a worker process emit status frames without holding a
// direct Redis connection to the Status Bus — the decoupling spec §4.6
// calls out ("allows any worker language/process to participate").
type BridgeClient struct {
	baseURL string
	http    *http.Client
	logger  core.ComponentAwareLogger
}

// NewBridgeClient returns a client posting to baseURL + "/task-status".
func NewBridgeClient(baseURL string, logger core.ComponentAwareLogger) *BridgeClient {
	client := telemetry.NewTracedHTTPClient(nil)
	client.Timeout = bridgeTimeout
	return &BridgeClient{
		baseURL: baseURL,
		http:    client,
		logger:  logger,
	}
}

// Publish implements core.StatusPublisher. A non-200 response is logged and
// swallowed, never returned as an error — spec §6: "non-200 logged but
// non-fatal". A delivery failure must not fail the task whose status it
// describes.
func (c *BridgeClient) Publish(ctx context.Context, frame core.StatusFrame) error {
	start := time.Now()
	outcome := "ok"
	defer func() {
		telemetry.Histogram(telemetry.MetricStatusBusBridgeDuration, float64(time.Since(start).Milliseconds()), "outcome", outcome)
		telemetry.Counter(telemetry.MetricStatusBusBridgeRequests, "outcome", outcome)
	}()

	payload := bridgePayload{
		Status:         frame.Status,
		Data:           frame.Data,
		GrievanceID:    frame.GrievanceID,
		FlaskSessionID: frame.SessionID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		outcome = "encode_error"
		return fmt.Errorf("statusbus: marshal bridge payload: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, bridgeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/task-status", bytes.NewReader(body))
	if err != nil {
		outcome = "request_error"
		return fmt.Errorf("statusbus: build bridge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		outcome = "unreachable"
		if c.logger != nil {
			c.logger.Warn("task-status bridge request failed", map[string]interface{}{
				"operation": "statusbus_bridge_publish",
				"error":     err.Error(),
			})
		}
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		outcome = "non_200"
		if c.logger != nil {
			c.logger.Warn("task-status bridge returned non-200", map[string]interface{}{
				"operation":   "statusbus_bridge_publish",
				"status_code": resp.StatusCode,
			})
		}
	}
	return nil
}

// HandleTaskStatus is the web tier's side of the bridge: it decodes a
// bridgePayload and republishes it on bus. Wire this at POST /task-status.
func HandleTaskStatus(bus *Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload bridgePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid task-status payload", http.StatusBadRequest)
			return
		}

		frame := core.StatusFrame{
			Status:      payload.Status,
			GrievanceID: payload.GrievanceID,
			SessionID:   payload.FlaskSessionID,
			Data:        payload.Data,
			Timestamp:   time.Now(),
		}

		if err := bus.Publish(r.Context(), frame); err != nil {
			http.Error(w, "failed to publish status frame", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
