// Command api serves the chatbot-facing intake HTTP surface, the
// worker-to-web task-status bridge (spec §6), and the websocket endpoint
// that streams a grievance's status frames to a connected browser
// (spec §4.6). It never touches a broker queue's task body directly — it
// only enqueues the first link of a chain and lets the worker process run
// it (spec §4.7's chain pattern).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/pkg/broker"
	"github.com/grievanceplatform/orchestrator/pkg/entity"
	"github.com/grievanceplatform/orchestrator/pkg/pipeline"
	"github.com/grievanceplatform/orchestrator/pkg/realtime"
	"github.com/grievanceplatform/orchestrator/pkg/registry"
	"github.com/grievanceplatform/orchestrator/pkg/statusbus"
	"github.com/grievanceplatform/orchestrator/pkg/tasks"
	"github.com/grievanceplatform/orchestrator/telemetry"
)

func main() {
	cfg, err := core.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "api: config: %v\n", err)
		os.Exit(1)
	}
	logger := core.ScopedLogger(cfg.Logger(), "orchestrator/api")

	if cfg.Telemetry.Enabled {
		if err := telemetry.Initialize(telemetry.Config{
			Enabled:      cfg.Telemetry.Enabled,
			ServiceName:  cfg.Name,
			Endpoint:     cfg.Telemetry.Endpoint,
			Provider:     cfg.Telemetry.Provider,
			SamplingRate: cfg.Telemetry.SamplingRate,
		}); err != nil {
			logger.Error("telemetry initialization failed, continuing without it", map[string]interface{}{"error": err.Error()})
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api server exited with error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *core.Config, logger core.ComponentAwareLogger) error {
	brokerRedis, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL: cfg.Broker.URL,
		DB:       core.RedisDBBroker,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("broker redis: %w", err)
	}
	statusRedis, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL: cfg.StatusBus.URL,
		DB:       core.RedisDBStatusBus,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("status bus redis: %w", err)
	}

	// The intake API needs the registry so the broker can resolve each task
	// name to its queue at enqueue time (spec §4.1) — it never dispatches a
	// task body itself, so it registers the same bodies' names and kinds
	// without wiring any Deps.
	reg := registry.New(core.ScopedLogger(logger, "orchestrator/registry"))
	if err := tasks.Register(reg, tasks.Deps{}, tasks.DefaultQueueNames()); err != nil {
		return fmt.Errorf("register task names: %w", err)
	}

	brk := broker.New(brokerRedis, reg, core.ScopedLogger(logger, "orchestrator/broker"), core.NewCircuitBreaker(core.CircuitBreakerParams{
		Name:   "broker.redis",
		Config: cfg.Resilience.CircuitBreaker,
		Logger: core.ScopedLogger(logger, "orchestrator/broker"),
	}))
	statusBus := statusbus.New(statusRedis, core.ScopedLogger(logger, "orchestrator/statusbus"))
	pipelineComposer := pipeline.New(brk, core.ScopedLogger(logger, "orchestrator/pipeline"))
	hub := realtime.New(statusBus, realtime.Config{
		AllowedOrigins: cfg.HTTP.CORS.AllowedOrigins,
	}, core.ScopedLogger(logger, "orchestrator/realtime"))

	srv := &apiServer{
		broker:    brk,
		pipeline:  pipelineComposer,
		statusBus: statusBus,
		hub:       hub,
		locale:    cfg.Locale,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+cfg.HTTP.HealthCheckPath, srv.handleHealth)
	mux.HandleFunc("GET /internal/telemetry/health", telemetry.HealthHandler)
	mux.HandleFunc("POST /v1/grievances", srv.handleIntake)
	mux.HandleFunc("POST /v1/grievances/{grievance_id}/attachments", srv.handleAttachments)
	mux.HandleFunc("POST /task-status", statusbus.HandleTaskStatus(statusBus))
	mux.HandleFunc("GET /ws/status/{grievance_id}", srv.handleStatusSocket)

	var handler http.Handler = mux
	handler = core.CORSMiddleware(&cfg.HTTP.CORS)(handler)
	handler = core.LoggingMiddleware(logger, cfg.Development.Enabled)(handler)
	handler = telemetry.TracingMiddlewareWithConfig(cfg.Name, &telemetry.TracingMiddlewareConfig{
		ExcludedPaths: []string{cfg.HTTP.HealthCheckPath, "/internal/telemetry/health"},
	})(handler)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		MaxHeaderBytes:    cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api server listening", map[string]interface{}{"addr": httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return hub.Shutdown(shutdownCtx)
}

type apiServer struct {
	broker    *broker.Broker
	pipeline  *pipeline.Composer
	statusBus *statusbus.Bus
	hub       *realtime.Hub
	locale    core.LocaleConfig
	logger    core.ComponentAwareLogger
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// intakeRequest is the chatbot runtime's submission payload: either Text
// (already-transcribed or typed input) or AudioFilePath (spec §8 S1's
// voice-to-structured chain), never both.
type intakeRequest struct {
	ComplainantName string `json:"complainant_name"`
	Text            string `json:"text,omitempty"`
	AudioFilePath   string `json:"audio_file_path,omitempty"`
	LanguageCode    string `json:"language_code,omitempty"`
	Province        string `json:"province,omitempty"`
	District        string `json:"district,omitempty"`
	Accessible      bool   `json:"accessible,omitempty"`
}

type intakeResponse struct {
	GrievanceID   string `json:"grievance_id"`
	ComplainantID string `json:"complainant_id"`
	TaskID        string `json:"task_id"`
}

// handleIntake accepts one grievance submission from the chatbot runtime
// and enqueues the first link of the voice-to-structured or
// text-to-structured chain (spec §4.7, §8 S1): transcribe_audio_file_task
// when AudioFilePath is set, classify_and_summarize_grievance_task
// otherwise. The actual grievance row is created later by
// store_result_to_db_task once the chain reaches it — this handler only
// mints the entity ids the chain will carry through.
func (s *apiServer) handleIntake(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Text == "" && req.AudioFilePath == "" {
		http.Error(w, "one of text or audio_file_path is required", http.StatusBadRequest)
		return
	}

	source := entity.SourceBot
	if req.Accessible {
		source = entity.SourceAccessible
	}
	opts := entity.GenerateOptions{
		Province: firstNonEmpty(req.Province, s.locale.DefaultProvince),
		District: firstNonEmpty(req.District, s.locale.DefaultDistrict),
		Source:   source,
	}

	grievanceID, err := entity.Generate(core.EntityKeyGrievance, opts)
	if err != nil {
		http.Error(w, fmt.Sprintf("generate grievance id: %v", err), http.StatusInternalServerError)
		return
	}
	complainantID, err := entity.Generate(core.EntityKeyComplainant, opts)
	if err != nil {
		http.Error(w, fmt.Sprintf("generate complainant id: %v", err), http.StatusInternalServerError)
		return
	}

	kwargs := map[string]interface{}{
		"grievance_id":   grievanceID,
		"complainant_id": complainantID,
		"language_code":  req.LanguageCode,
		"session_id":     complainantID,
	}

	var taskID string
	if req.AudioFilePath != "" {
		kwargs["file_path"] = req.AudioFilePath
		kwargs["field_name"] = "grievance_description"
		taskID, err = s.broker.Enqueue(r.Context(), tasks.TaskTranscribe, nil, kwargs)
	} else {
		kwargs["text"] = req.Text
		taskID, err = s.broker.Enqueue(r.Context(), tasks.TaskClassify, nil, kwargs)
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("enqueue intake: %v", err), http.StatusInternalServerError)
		return
	}

	s.logger.Info("grievance intake accepted", map[string]interface{}{
		"operation":      "intake_accept",
		"grievance_id":   grievanceID,
		"complainant_id": complainantID,
		"task_id":        taskID,
	})

	writeJSON(w, http.StatusAccepted, intakeResponse{
		GrievanceID:   grievanceID,
		ComplainantID: complainantID,
		TaskID:        taskID,
	})
}

type attachmentsRequest struct {
	ComplainantID string   `json:"complainant_id"`
	FilePaths     []string `json:"file_paths"`
}

type attachmentsResponse struct {
	ChordID string `json:"chord_id"`
}

// handleAttachments launches the batch-upload pipeline for an existing
// grievance (spec §4.7, §8 S2): one process_file_upload_task per file,
// aggregated once every upload has terminated.
func (s *apiServer) handleAttachments(w http.ResponseWriter, r *http.Request) {
	grievanceID := r.PathValue("grievance_id")
	if grievanceID == "" {
		http.Error(w, "grievance_id path parameter is required", http.StatusBadRequest)
		return
	}

	var req attachmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	chord, err := s.pipeline.BatchFileUpload(r.Context(), grievanceID, req.ComplainantID, req.FilePaths)
	if err != nil {
		http.Error(w, fmt.Sprintf("batch file upload: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, attachmentsResponse{ChordID: chord.ChordID})
}

// handleStatusSocket upgrades the connection to a websocket and streams
// every status frame published for grievance_id until the client
// disconnects (spec §4.6's realtime push).
func (s *apiServer) handleStatusSocket(w http.ResponseWriter, r *http.Request) {
	grievanceID := r.PathValue("grievance_id")
	if grievanceID == "" {
		http.Error(w, "grievance_id path parameter is required", http.StatusBadRequest)
		return
	}
	if err := s.hub.ServeRoom(w, r, grievanceID); err != nil {
		s.logger.Error("status websocket failed", map[string]interface{}{
			"grievance_id": grievanceID,
			"error":        err.Error(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
