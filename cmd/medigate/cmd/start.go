package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/medicos-health/medigate/internal/adapter/inbound/httpapi"
	"github.com/medicos-health/medigate/internal/adapter/inbound/stdio"
	"github.com/medicos-health/medigate/internal/adapter/outbound/armoriq"
	"github.com/medicos-health/medigate/internal/adapter/outbound/auditfile"
	"github.com/medicos-health/medigate/internal/adapter/outbound/fcm"
	"github.com/medicos-health/medigate/internal/adapter/outbound/firestore"
	"github.com/medicos-health/medigate/internal/adapter/outbound/localblob"
	"github.com/medicos-health/medigate/internal/adapter/outbound/memory"
	"github.com/medicos-health/medigate/internal/adapter/outbound/openai"
	"github.com/medicos-health/medigate/internal/adapter/outbound/sqlitestore"
	"github.com/medicos-health/medigate/internal/config"
	"github.com/medicos-health/medigate/internal/domain/auth"
	"github.com/medicos-health/medigate/internal/domain/call"
	"github.com/medicos-health/medigate/internal/domain/tool"
	"github.com/medicos-health/medigate/internal/port/outbound"
	"github.com/medicos-health/medigate/internal/service"
	"github.com/medicos-health/medigate/internal/telemetry"
	"github.com/medicos-health/medigate/internal/tools"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway",
	Long: `Start the MediGate gateway.

The gateway can serve MCP clients over two transports:

1. Stdio mode: the client spawns medigate as a subprocess and speaks
   newline-delimited JSON-RPC on stdin/stdout. Configure
   server.transport: stdio (the default).

2. HTTP mode: clients POST JSON-RPC to /mcp with an X-API-Key header.
   Configure server.transport: http and auth.api_keys.

Examples:
  # Start with config file settings
  medigate start

  # Start in development mode (in-memory storage, allow-all policy)
  medigate start --dev

  # Start with a specific config file
  medigate --config /path/to/config.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (in-memory backends, allow-all policy)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load configuration without validation so the CLI flag can
	// override DevMode first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Create signal context for graceful shutdown. stop() restores
	// default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	// Logger goes to stderr; stdout is reserved for JSON-RPC traffic
	// in stdio mode.
	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}
	if cfg.DevMode {
		logger.Warn("development mode enabled: in-memory backends and permissive policy defaults are NOT safe for patient data")
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}
	logger.Info("medigate stopped")
	return nil
}

// run wires all components together and serves the configured transport.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Storage backends.
	store, blobs, notifier, storeClose, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer storeClose()

	// LLM provider.
	var llmOpts []openai.Option
	if cfg.LLM.BaseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(cfg.LLM.BaseURL))
	}
	llmOpts = append(llmOpts, openai.WithModel(cfg.LLM.Model))
	completer := openai.NewClient(cfg.LLM.APIKey, llmOpts...)

	// Tool registry.
	registry := tool.NewRegistry()
	if err := tools.RegisterAll(registry, tools.Deps{
		Store:       store,
		Blobs:       blobs,
		Notifier:    notifier,
		Completer:   completer,
		VisionModel: cfg.LLM.VisionModel,
		Guards:      cfg.Guards,
	}); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}
	logger.Info("tool registry ready", "tools", registry.Len())

	// Policy client.
	var policyClient outbound.PolicyClient
	var armoriqClient *armoriq.Client
	switch cfg.Policy.Backend {
	case "armoriq":
		armoriqClient = armoriq.NewClient(cfg.Policy.URL, cfg.Policy.APIKey, logger)
		defer armoriqClient.Close()
		policyClient = armoriqClient
		logger.Info("policy engine configured", "url", cfg.Policy.URL)
	case "static":
		decision := call.DecisionDeny
		if cfg.Policy.StaticDecision == "allow" {
			decision = call.DecisionAllow
		}
		policyClient = &memory.PolicyClient{Decision: decision}
		logger.Info("static policy configured", "decision", decision)
	default:
		return fmt.Errorf("unknown policy backend: %q", cfg.Policy.Backend)
	}

	// Audit pipeline.
	sink, err := buildAuditSink(cfg, armoriqClient, logger)
	if err != nil {
		return err
	}
	flushInterval := parseDurationOr(cfg.Audit.FlushInterval, time.Second)
	sendTimeout := parseDurationOr(cfg.Audit.SendTimeout, 100*time.Millisecond)
	auditSvc := service.NewAuditService(sink, logger,
		service.WithAuditBuffer(cfg.Audit.ChannelSize),
		service.WithAuditBatchSize(cfg.Audit.BatchSize),
		service.WithAuditFlushInterval(flushInterval),
		service.WithAuditSendTimeout(sendTimeout),
	)
	defer func() {
		if err := auditSvc.Close(); err != nil {
			logger.Error("audit shutdown", "error", err)
		}
	}()

	// Tracing.
	tracing, err := telemetry.NewProvider("medigate", Version, cfg.DevMode)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Error("tracing shutdown", "error", err)
		}
	}()

	dispatcherOpts := []service.DispatcherOption{
		service.WithPolicyTimeout(parseDurationOr(cfg.Server.PolicyTimeout, 5*time.Second)),
		service.WithHandlerTimeout(parseDurationOr(cfg.Server.HandlerTimeout, 60*time.Second)),
		service.WithTracer(tracing.Tracer()),
	}

	switch cfg.Server.Transport {
	case "stdio":
		dispatcher := service.NewDispatcher(registry, policyClient, auditSvc, logger, dispatcherOpts...)
		gateway := service.NewGateway(dispatcher, registry, logger, "medigate", Version)
		transport := stdio.NewTransport(gateway, cfg.Server.StdioCaller, logger)
		logger.Info("serving on stdio", "caller", cfg.Server.StdioCaller)
		return transport.Run(ctx, os.Stdin, os.Stdout)

	case "http":
		resolver, err := buildResolver(cfg)
		if err != nil {
			return err
		}
		// Metrics must exist before the dispatcher so outcomes reach them.
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics := httpapi.NewMetrics(promReg, auditSvc.Dropped)
		dispatcher := service.NewDispatcher(registry, policyClient, auditSvc, logger,
			append(dispatcherOpts, service.WithStats(metrics))...)
		gateway := service.NewGateway(dispatcher, registry, logger, "medigate", Version)
		server := httpapi.NewServer(gateway, resolver, logger,
			httpapi.WithAddr(cfg.Server.HTTPAddr),
			httpapi.WithMetricsRegistry(promReg),
		)
		return server.Start(ctx)

	default:
		return fmt.Errorf("unknown transport: %q", cfg.Server.Transport)
	}
}

// buildStorage constructs the document store, blob store, and notifier
// for the configured backend, plus a cleanup function.
func buildStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (outbound.DocumentStore, outbound.BlobStore, outbound.Notifier, func(), error) {
	switch cfg.Storage.Backend {
	case "firestore":
		app, err := firestore.NewApp(ctx, firestore.Config{
			ProjectID:       cfg.Storage.ProjectID,
			StorageBucket:   cfg.Storage.StorageBucket,
			CredentialsFile: cfg.Storage.CredentialsFile,
		})
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to initialize firebase: %w", err)
		}
		store, err := firestore.NewStore(ctx, app)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to connect to firestore: %w", err)
		}
		notifier, err := fcm.NewNotifier(ctx, app, logger)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to initialize messaging: %w", err)
		}
		blobs := firestore.NewBlobStore(app, cfg.Storage.StorageBucket)
		cleanup := func() {
			if err := store.Close(); err != nil {
				logger.Error("firestore shutdown", "error", err)
			}
		}
		return store, blobs, notifier, cleanup, nil

	case "sqlite":
		store, err := sqlitestore.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		blobs, err := localblob.New(cfg.Storage.SQLitePath + ".blobs")
		if err != nil {
			store.Close()
			return nil, nil, nil, nil, err
		}
		// Push delivery needs the firestore backend; sqlite deployments
		// record notifications without sending them.
		logger.Warn("sqlite backend: push notifications are recorded but not delivered")
		cleanup := func() {
			if err := store.Close(); err != nil {
				logger.Error("sqlite shutdown", "error", err)
			}
		}
		return store, blobs, memory.NewNotifier(), cleanup, nil

	case "memory":
		return memory.NewDocumentStore(), memory.NewBlobStore(), memory.NewNotifier(), func() {}, nil

	default:
		return nil, nil, nil, nil, fmt.Errorf("unknown storage backend: %q", cfg.Storage.Backend)
	}
}

// buildAuditSink constructs the audit sink for the configured output.
func buildAuditSink(cfg *config.Config, armoriqClient *armoriq.Client, logger *slog.Logger) (outbound.AuditSink, error) {
	output := cfg.Audit.Output
	switch {
	case output == "armoriq":
		if armoriqClient == nil {
			return nil, fmt.Errorf("audit output 'armoriq' requires the armoriq policy backend")
		}
		return armoriqClient, nil
	case output == "stderr":
		return auditfile.NewWriterSink(os.Stderr), nil
	case strings.HasPrefix(output, "file://"):
		dir := strings.TrimPrefix(output, "file://")
		sink, err := auditfile.NewSink(auditfile.Config{
			Dir:           dir,
			RetentionDays: cfg.Audit.RetentionDays,
			MaxFileSizeMB: cfg.Audit.MaxFileSizeMB,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit dir: %w", err)
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown audit output: %q", output)
	}
}

// buildResolver constructs the API key resolver from the auth config.
func buildResolver(cfg *config.Config) (*auth.Resolver, error) {
	identities := make(map[string]auth.Identity, len(cfg.Auth.Identities))
	for _, id := range cfg.Auth.Identities {
		identities[id.ID] = auth.Identity{ID: id.ID, Name: id.Name}
	}

	entries := make([]auth.KeyEntry, 0, len(cfg.Auth.APIKeys))
	for _, key := range cfg.Auth.APIKeys {
		identity, ok := identities[key.IdentityID]
		if !ok {
			return nil, fmt.Errorf("api key references unknown identity: %s", key.IdentityID)
		}
		entries = append(entries, auth.KeyEntry{Hash: key.KeyHash, Identity: identity})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("http transport requires at least one auth.api_keys entry")
	}
	return auth.NewResolver(entries), nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
