// Command worker runs the orchestrator's worker runtime: one Pool per
// configured broker queue, consuming envelopes and dispatching them to the
// task bodies pkg/tasks registers (spec §4.3, §4.7). It also owns the
// maintenance sweeper that recovers tasks a crashed worker left stuck in
// RETRYING (pkg/maintenance) when that module is enabled.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/pkg/broker"
	"github.com/grievanceplatform/orchestrator/pkg/dbtask"
	"github.com/grievanceplatform/orchestrator/pkg/lifecycle"
	"github.com/grievanceplatform/orchestrator/pkg/llm"
	"github.com/grievanceplatform/orchestrator/pkg/maintenance"
	"github.com/grievanceplatform/orchestrator/pkg/messaging"
	"github.com/grievanceplatform/orchestrator/pkg/pipeline"
	"github.com/grievanceplatform/orchestrator/pkg/registry"
	"github.com/grievanceplatform/orchestrator/pkg/statusbus"
	"github.com/grievanceplatform/orchestrator/pkg/tasks"
	"github.com/grievanceplatform/orchestrator/pkg/worker"
	"github.com/grievanceplatform/orchestrator/telemetry"
)

func main() {
	cfg, err := core.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: config: %v\n", err)
		os.Exit(1)
	}
	logger := core.ScopedLogger(cfg.Logger(), "orchestrator/worker")

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
		logger.Error("worker exited with error", map[string]interface{}{"error": err.Error()})
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

	pgPool, err := dbtask.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("database pool: %w", err)
	}
	defer pgPool.Close()

	encryptor, err := dbtask.NewEncryptor([]byte(cfg.Database.EncryptionKey))
	if err != nil {
		return fmt.Errorf("field encryptor: %w", err)
	}
	dbBreaker := core.NewCircuitBreaker(core.CircuitBreakerParams{
		Name:   "dbtask.postgres",
		Config: cfg.Resilience.CircuitBreaker,
		Logger: core.ScopedLogger(logger, "orchestrator/dbtask"),
	})
	dbManager := dbtask.New(pgPool, encryptor, core.ScopedLogger(logger, "orchestrator/dbtask"), dbBreaker)

	offices := dbtask.NewOfficeDirectory(pgPool)
	if err := offices.Load(ctx); err != nil {
		logger.Error("initial office directory load failed, notifications will fail closed until a reload succeeds", map[string]interface{}{"error": err.Error()})
	}

	reg := registry.New(core.ScopedLogger(logger, "orchestrator/registry"))
	brokerBreaker := core.NewCircuitBreaker(core.CircuitBreakerParams{
		Name:   "broker.redis",
		Config: cfg.Resilience.CircuitBreaker,
		Logger: core.ScopedLogger(logger, "orchestrator/broker"),
	})
	brk := broker.New(brokerRedis, reg, core.ScopedLogger(logger, "orchestrator/broker"), brokerBreaker)
	statusBus := statusbus.New(statusRedis, core.ScopedLogger(logger, "orchestrator/statusbus"))

	lifecycleMgr := lifecycle.New(brk, core.ScopedLogger(logger, "orchestrator/lifecycle"),
		lifecycle.WithRetryRecorder(dbManager),
	)

	pipelineComposer := pipeline.New(brk, core.ScopedLogger(logger, "orchestrator/pipeline"))

	llmService, err := buildLLMService(cfg.LLM, cfg.Resilience.CircuitBreaker, logger)
	if err != nil {
		return fmt.Errorf("llm service: %w", err)
	}

	notifier, err := buildNotifier(cfg.Messaging, logger)
	if err != nil {
		return fmt.Errorf("messaging notifier: %w", err)
	}

	if err := tasks.Register(reg, tasks.Deps{
		LLM:      llmService,
		DB:       dbManager,
		Offices:  offices,
		Notifier: notifier,
		Pipeline: pipelineComposer,
		Logger:   core.ScopedLogger(logger, "orchestrator/tasks"),
	}, tasks.DefaultQueueNames()); err != nil {
		return fmt.Errorf("register task bodies: %w", err)
	}

	var sweeper *maintenance.Sweeper
	if cfg.Maintenance.Enabled {
		sweeper, err = maintenance.New(maintenance.Config{
			DB:         dbManager,
			Broker:     brk,
			Logger:     core.ScopedLogger(logger, "orchestrator/maintenance"),
			Schedule:   cfg.Maintenance.SweepSchedule,
			StuckGrace: cfg.Maintenance.StuckGrace,
			ResultTTL:  cfg.Maintenance.ResultTTL,
		})
		if err != nil {
			return fmt.Errorf("maintenance sweeper: %w", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	queues := []string{
		cfg.Broker.QueueLLM,
		cfg.Broker.QueueFileUpload,
		cfg.Broker.QueueMessaging,
		cfg.Broker.QueueDatabase,
		cfg.Broker.QueueDefault,
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(queues))
	for _, queue := range queues {
		pool := worker.New(queue, brk, reg, lifecycleMgr, statusBus, core.ScopedLogger(logger, "orchestrator/worker"), worker.DefaultPoolConfig())
		pool.SetChordNotifier(brk)

		wg.Add(1)
		go func(q string, p *worker.Pool) {
			defer wg.Done()
			if err := p.Start(ctx); err != nil {
				errs <- fmt.Errorf("worker pool %q: %w", q, err)
			}
		}(queue, pool)
	}

	logger.Info("worker runtime started", map[string]interface{}{"queues": queues})

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func buildLLMService(cfg core.LLMConfig, cbConfig core.CircuitBreakerConfig, logger core.ComponentAwareLogger) (*llm.Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var provider llm.Provider
	switch cfg.Provider {
	case "openai":
		provider = llm.NewOpenAIProvider(cfg.APIKey, cfg.Model, core.ScopedLogger(logger, "orchestrator/llm"))
	case "anthropic", "":
		provider = llm.NewAnthropicProvider(cfg.APIKey, cfg.Model, core.ScopedLogger(logger, "orchestrator/llm"))
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	breaker := core.NewCircuitBreaker(core.CircuitBreakerParams{
		Name:   "llm." + cfg.Provider,
		Config: cbConfig,
		Logger: core.ScopedLogger(logger, "orchestrator/llm"),
	})

	service := llm.New(provider).WithCircuitBreaker(breaker)
	if transcriber, ok := provider.(llm.Transcriber); ok {
		service = service.WithTranscriber(transcriber)
	}
	return service, nil
}

func buildNotifier(cfg core.MessagingConfig, logger core.ComponentAwareLogger) (*messaging.Notifier, error) {
	var channels []messaging.Channel

	if cfg.SMTP.Enabled {
		channels = append(channels, messaging.NewEmailChannel(
			cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From,
			core.ScopedLogger(logger, "orchestrator/messaging"),
		))
	}

	if cfg.Telegram.Enabled {
		tg, err := messaging.NewTelegramChannel(cfg.Telegram.Token, cfg.Telegram.ChatID, core.ScopedLogger(logger, "orchestrator/messaging"))
		if err != nil {
			return nil, fmt.Errorf("telegram channel: %w", err)
		}
		channels = append(channels, tg)
	}

	return messaging.New(core.ScopedLogger(logger, "orchestrator/messaging"), channels...), nil
}
