package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Yoav-S/legal-analyzer-backend/internal/ai"
	"github.com/Yoav-S/legal-analyzer-backend/internal/analyzer"
	"github.com/Yoav-S/legal-analyzer-backend/internal/chunker"
	"github.com/Yoav-S/legal-analyzer-backend/internal/config"
	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
	"github.com/Yoav-S/legal-analyzer-backend/internal/extract"
	"github.com/Yoav-S/legal-analyzer-backend/internal/notify"
	"github.com/Yoav-S/legal-analyzer-backend/internal/pipeline"
	"github.com/Yoav-S/legal-analyzer-backend/internal/queue"
	"github.com/Yoav-S/legal-analyzer-backend/internal/repositories"
	"github.com/Yoav-S/legal-analyzer-backend/internal/resultcache"
	"github.com/Yoav-S/legal-analyzer-backend/internal/risk"
	"github.com/Yoav-S/legal-analyzer-backend/internal/storage"
	"github.com/Yoav-S/legal-analyzer-backend/internal/tokenizer"
	"github.com/Yoav-S/legal-analyzer-backend/pkg/logger"
)

const (
	// The database may wake up slower than we do; retry before giving up.
	storeConnectRetries    = 5
	storeConnectRetryDelay = 2 * time.Second

	shutdownTimeout = 30 * time.Second
)

// App holds all components and their lifecycle. Dependencies are assembled
// once in Initialize and torn down in reverse order in Shutdown.
type App struct {
	config *config.Config
	logger *zap.Logger

	store  *repositories.DocumentStore
	cache  *resultcache.Cache
	blobs  *storage.MinioStore
	runner *queue.Runner
	server *http.Server

	initOnce sync.Once
	initErr  error

	shutdownOnce sync.Once
}

func NewApp() *App {
	return &App{}
}

func (a *App) Initialize() error {
	a.initOnce.Do(func() {
		a.initErr = a.doInitialize()
	})
	return a.initErr
}

// doInitialize wires the application bottom-up: logger and config first,
// then storage, then the analysis pipeline, then the HTTP surface.
func (a *App) doInitialize() error {
	// .env is optional; real deployments use actual environment variables
	_ = godotenv.Load()

	if err := logger.Init("info", true); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger.Get()

	configPath := os.Getenv("APP_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	if err := config.Load(configPath); err != nil {
		a.logger.Warn("config file unavailable, falling back to defaults and env",
			zap.Error(err),
		)
		if err := config.Load(""); err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
	}
	a.config = config.Get()
	a.logger.Info("configuration loaded",
		zap.String("server_host", a.config.Server.Host),
		zap.Int("server_port", a.config.Server.Port),
		zap.String("default_model", a.config.AI.DefaultModel),
	)

	a.cache = resultcache.New(a.config.Cache.Shards, a.config.Cache.TTL)
	a.cache.StartSweeper()

	if err := a.initializeStore(); err != nil {
		return fmt.Errorf("document store init failed: %w", err)
	}

	blobs, err := storage.NewMinioStore(storage.Config{
		Endpoint:  a.config.Storage.Endpoint,
		AccessKey: a.config.Storage.AccessKey,
		SecretKey: a.config.Storage.SecretKey,
		Bucket:    a.config.Storage.Bucket,
		UseSSL:    a.config.Storage.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("object storage init failed: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = blobs.EnsureBucket(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("object storage bucket check failed: %w", err)
	}
	a.blobs = blobs

	controller, err := a.buildPipeline()
	if err != nil {
		return err
	}

	a.runner = queue.NewRunner(controller, a.store, queue.Config{
		Workers:      a.config.Queue.Workers,
		QueueSize:    a.config.Queue.QueueSize,
		MaxAttempts:  a.config.Queue.MaxAttempts,
		RetryBackoff: time.Duration(a.config.Queue.RetryBackoffSeconds) * time.Second,
	}, a.logger)
	a.runner.Start()

	a.initializeServer()

	a.logger.Info("application ready")
	return nil
}

// buildPipeline assembles the analysis chain: tokenizer, chunker, model
// clients, orchestrator, summarizer, risk engine, controller.
func (a *App) buildPipeline() (*pipeline.Controller, error) {
	codec, err := tokenizer.NewCounter(a.config.AI.DefaultModel)
	if err != nil {
		return nil, fmt.Errorf("tokenizer init failed: %w", err)
	}

	split := chunker.New(codec, a.config.Chunker.MaxTokens, a.config.Chunker.OverlapTokens, a.logger)

	// one shared limiter: both providers count against the same budget
	limiter := rate.NewLimiter(rate.Limit(a.config.AI.RequestsPerSecond), 1)

	openaiClient := ai.NewOpenAIClient(
		a.config.AI.OpenAIBaseURL,
		a.config.AI.OpenAIAPIKey,
		a.config.AI.MaxOutputTokens,
		limiter,
		a.logger,
	)

	var anthropicClient domain.ModelClient
	if a.config.AI.AnthropicAPIKey != "" {
		anthropicClient = ai.NewAnthropicClient(
			a.config.AI.AnthropicBaseURL,
			a.config.AI.AnthropicAPIKey,
			a.config.AI.MaxOutputTokens,
			limiter,
			a.logger,
		)
	}
	client := ai.NewRouter(openaiClient, anthropicClient)

	orchestrator := analyzer.NewOrchestrator(client, a.config.AI.Workers, a.config.AI.Temperature, a.logger)
	summarizer := analyzer.NewSummarizer(client, a.config.AI.DefaultModel, a.logger)

	var notifier domain.NotificationSender = notify.Nop{}
	if a.config.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(a.config.Notify.WebhookURL, a.logger)
	}

	return pipeline.NewController(
		a.store,
		a.blobs,
		extract.NewPlainTextExtractor(a.logger),
		split,
		orchestrator,
		summarizer,
		analyzer.Merge,
		risk.NewEngine(),
		notifier,
		pipeline.Config{
			PrimaryModel:  a.config.AI.DefaultModel,
			FallbackModel: a.config.AI.FallbackModel,
		},
		a.logger,
	), nil
}

// initializeStore connects to Reindexer with startup retries.
func (a *App) initializeStore() error {
	var err error
	for attempt := 0; attempt < storeConnectRetries; attempt++ {
		if attempt > 0 {
			a.logger.Info("retrying database connection",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", storeConnectRetryDelay),
			)
			time.Sleep(storeConnectRetryDelay)
		}

		store, initErr := repositories.NewDocumentStore(a.config.Reindexer.DSN, a.cache, a.logger)
		if initErr != nil {
			err = initErr
			a.logger.Warn("database connection failed",
				zap.Int("attempt", attempt+1),
				zap.Error(initErr),
			)
			continue
		}

		a.store = store
		a.logger.Info("document store ready", zap.String("dsn", a.config.Reindexer.DSN))
		return nil
	}
	return fmt.Errorf("no database connection after %d attempts: %w", storeConnectRetries, err)
}

// initializeServer sets up the HTTP surface: liveness plus the analysis
// intake. Document CRUD routing lives in the user-facing backend, which
// triggers runs through POST /analyze after an upload lands.
func (a *App) initializeServer() {
	r := chi.NewRouter()
	r.Get("/health", a.healthCheckHandler)
	r.Post("/analyze", a.analyzeHandler)

	addr := fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)
	a.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// healthCheckHandler reports liveness plus database reachability. Used by
// Docker and orchestrators to restart a wedged container.
func (a *App) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")

	if a.store != nil {
		if err := a.store.CheckConnection(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			health["status"] = "unhealthy"
			health["error"] = err.Error()
			json.NewEncoder(w).Encode(health)
			return
		}
		health["database"] = "connected"
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(health)
}

type analyzeRequest struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
}

// analyzeHandler hands a document to the analysis queue. 202 means queued,
// not analyzed; callers poll the document status for the outcome.
func (a *App) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentID == "" || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document_id and user_id are required"})
		return
	}

	err := a.runner.Enqueue(r.Context(), req.DocumentID, req.UserID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":      "queued",
			"document_id": req.DocumentID,
		})
	case errors.Is(err, queue.ErrQueueFull):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "analysis queue is full, retry later"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "document not found"})
	case errors.Is(err, domain.ErrTerminalStatus):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "document analysis already finished"})
	default:
		a.logger.Error("enqueue failed", zap.String("document_id", req.DocumentID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Start begins serving; it does not block.
func (a *App) Start() error {
	if err := a.Initialize(); err != nil {
		return err
	}

	go func() {
		a.logger.Info("starting HTTP server", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Fatal("server failed", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown stops the application in reverse dependency order, draining
// in-flight analysis jobs before closing the database.
func (a *App) Shutdown() error {
	var shutdownErr error

	a.shutdownOnce.Do(func() {
		a.logger.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				a.logger.Error("server shutdown failed", zap.Error(err))
				shutdownErr = err
			}
		}

		if a.runner != nil {
			if err := a.runner.Shutdown(ctx); err != nil {
				a.logger.Error("queue shutdown failed", zap.Error(err))
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}

		if a.cache != nil {
			a.cache.StopSweeper()
		}

		if a.store != nil {
			if err := a.store.Close(); err != nil {
				a.logger.Error("database close failed", zap.Error(err))
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}

		if a.logger != nil {
			_ = a.logger.Sync()
		}
	})

	return shutdownErr
}

func main() {
	app := NewApp()

	if err := app.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := app.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
}
