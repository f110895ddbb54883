// InsightLoop core engine - drives natural-language analysis over pooled
// datastores and runs the monitoring/diagnosis loop.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/insightloop/core/pkg/adapter"
	"github.com/insightloop/core/pkg/agent"
	"github.com/insightloop/core/pkg/agent/prompt"
	"github.com/insightloop/core/pkg/cleanup"
	"github.com/insightloop/core/pkg/config"
	"github.com/insightloop/core/pkg/database"
	"github.com/insightloop/core/pkg/execution"
	"github.com/insightloop/core/pkg/memo"
	"github.com/insightloop/core/pkg/models"
	"github.com/insightloop/core/pkg/monitor"
	"github.com/insightloop/core/pkg/notify"
	"github.com/insightloop/core/pkg/pipeline"
	"github.com/insightloop/core/pkg/planning"
	"github.com/insightloop/core/pkg/services"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	log.Printf("Starting InsightLoop core")
	log.Printf("Config Directory: %s", *configDir)

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}

	// Database is optional: without DB_PASSWORD the engine runs with
	// in-memory stores and config-declared datasources only.
	var dbClient *database.Client
	if os.Getenv("DB_PASSWORD") != "" {
		dbConfig, err := database.LoadConfigFromEnv()
		if err != nil {
			log.Fatalf("Failed to load database config: %v", err)
		}
		dbClient, err = database.NewClient(ctx, dbConfig)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				log.Printf("Error closing database client: %v", err)
			}
		}()
		log.Println("Connected to PostgreSQL, schema initialized")
	} else {
		log.Println("DB_PASSWORD not set; running with in-memory stores")
	}

	// Adapter registry and process-wide pool.
	registry := adapter.NewRegistry()
	pool := adapter.NewPool(adapter.PoolConfig{
		MaxTotal:         cfg.Defaults.Pool.MaxTotal,
		MaxPerDatasource: cfg.Defaults.Pool.MaxPerDatasource,
		AcquireTimeout:   cfg.Defaults.AcquireTimeout(),
		HealthInterval:   cfg.Defaults.HealthInterval(),
		HealthCheckRetry: 3,
	}, registry)

	// Persistence-backed or config-backed repositories.
	var (
		datasourceRepo services.DatasourceRepository
		dsResolver     pipeline.DatasourceResolver
		queryRecorder  pipeline.QueryRecorder
		alertStore     monitor.AlertStore
		logSink        agent.LogSink = agent.NopLogSink{}
		docStore       services.DocStore
		execPersister  services.ExecutionPersister
	)
	if dbClient != nil {
		store := database.NewDatasourceStore(dbClient)
		datasourceRepo = store
		dsResolver = store
		queryRecorder = database.NewQueryHistoryStore(dbClient)
		alertStore = database.NewAlertStore(dbClient)
		logSink = database.NewExecutionLogStore(dbClient)
		docStore = database.NewConfigStore(dbClient)
		execPersister = database.NewExecutionStore(dbClient)
	} else {
		repo := services.NewConfigDatasourceRepository(cfg.Datasources)
		datasourceRepo = repo
		dsResolver = repo
		alertStore = monitor.NewMemoryAlertStore(10000)
	}

	// LLM bindings and the agent runtimes.
	bindings := services.NewBindingService(cfg.LLMBindings)
	defer bindings.Close()
	factory := agent.NewFactory(bindings, logSink)

	defaultBindingID, err := bindings.ResolveBindingID("", "")
	if err != nil {
		log.Fatalf("No usable LLM binding: %v", err)
	}
	analystProfile := agent.Profile{
		ID:           "sql-analyst",
		Name:         "SQL analyst",
		LLMBindingID: defaultBindingID,
		Features:     agent.FeatureMask{SQLTool: true},
	}
	if p, ok := cfg.AgentProfiles["sql-analyst"]; ok {
		analystProfile = p
	}
	runtime, err := factory.RuntimeFor(analystProfile)
	if err != nil {
		log.Fatalf("Failed to build agent runtime: %v", err)
	}

	builder := prompt.NewBuilder()
	schemaAgent := agent.NewSchemaAgent(runtime, pool, builder)
	sqlAgent := agent.NewSqlAgent(runtime, builder)
	vizAgent := agent.NewVisualizeAgent(runtime, builder)

	// Analysis pipeline.
	cache := memo.NewCache()
	memoryStore := memo.NewMemoryStore(cfg.Defaults.Memory.MaxEvents)
	sceneDefaults := make(map[models.Scene]pipeline.SceneDefaults, len(cfg.Scenes))
	for scene, sc := range cfg.Scenes {
		sceneDefaults[scene] = pipeline.SceneDefaults{
			MaxRows:  sc.MaxRows,
			Timeout:  time.Duration(sc.TimeoutMS) * time.Millisecond,
			ReadOnly: sc.ReadOnly,
		}
	}
	pipe := pipeline.New(dsResolver, pool, schemaAgent, sqlAgent, vizAgent,
		cache, memoryStore, queryRecorder, sceneDefaults)

	// Planning engine and execution state machine.
	planner := planning.NewEngine(cfg.PlanningRuleRegistry, cfg.ChainRegistry)
	execStore := execution.NewStore()
	invoker := execution.NewRuntimeInvoker(map[string]*agent.Runtime{
		"sql-analyst":    runtime,
		"insight-writer": runtime,
	})
	machine := execution.New(execStore, invoker, cfg.Defaults.Execution.MaxAttemptsPerTask, slog.Default())

	orphans := execution.NewOrphanRecoverer(execStore, machine, 10*time.Minute, time.Minute, slog.Default())
	orphanCtx, stopOrphans := context.WithCancel(ctx)
	go orphans.Run(orphanCtx)

	// Notification channels.
	notifiers := map[string]notify.Notifier{
		"email": notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "insightloop@localhost"),
		}),
	}
	if token := os.Getenv("SLACK_BOT_TOKEN"); token != "" {
		notifiers["slack"] = notify.NewSlackNotifier(token, os.Getenv("SLACK_CHANNEL"))
	}

	// Monitoring loop.
	metrics := make(map[string]services.MetricQuery, len(cfg.Metrics))
	for key, mq := range cfg.Metrics {
		metrics[key] = services.MetricQuery{DatasourceID: mq.DatasourceID, SQL: mq.SQL}
	}
	metricSource := services.NewMetricQuerySource(datasourceRepo, pool, metrics)
	loop := monitor.NewLoop(
		metricSource,
		cfg.MonitorRuleRegistry,
		cfg.DiagnosisRegistry,
		cfg.Email,
		notify.NewRegistry(notifiers),
		alertStore,
		monitor.Config{
			TickInterval:      cfg.Defaults.TickInterval(),
			SuppressionWindow: cfg.Defaults.SuppressionWindow(),
		},
	)
	loop.Start(ctx)

	// Metrics registry for scraping by an external collector.
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(pool.Collectors()...)
	promRegistry.MustRegister(loop.Collectors()...)

	// Retention.
	var cleanupSvc *cleanup.Service
	if dbClient != nil {
		cleanupSvc = cleanup.NewService(cleanup.DefaultRetentionConfig(),
			database.NewQueryHistoryStore(dbClient),
			database.NewExecutionLogStore(dbClient),
			database.NewAlertStore(dbClient),
			database.NewMemoryEventStore(dbClient),
		)
		cleanupSvc.Start(ctx)
	}

	// The explicit wiring aggregate handed to the API layer.
	svcs := &services.Services{
		Datasources: services.NewDatasourceService(datasourceRepo, pool, registry),
		Analysis:    services.NewAnalysisService(pipe, bindings, cfg.Defaults.EndToEndTimeout()),
		Executions:  services.NewExecutionService(planner, machine, execPersister, cfg.Defaults.Execution.StepCap),
		Config: services.NewConfigService(cfg.MonitorRuleRegistry, cfg.ChainRegistry,
			cfg.DiagnosisRegistry, cfg.Email, docStore),
		Bindings: bindings,
		Monitor:  loop,
	}
	_ = svcs // handed to the API server, which lives outside this binary

	log.Println("Core services initialized")

	// Block until shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %s, shutting down", sig)

	loop.Stop()
	stopOrphans()
	if cleanupSvc != nil {
		cleanupSvc.Stop()
	}
	log.Println("Shutdown complete")
}
