package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"crm-backend/internal/ai"
	"crm-backend/internal/ai/gemini"
	"crm-backend/internal/ai/openai"
	"crm-backend/internal/conversations"
	"crm-backend/internal/gateway"
	"crm-backend/internal/jobqueue"
	"crm-backend/internal/messages"
	"crm-backend/internal/relay"
	"crm-backend/internal/shared/config"
	"crm-backend/internal/shared/retry"
	"crm-backend/internal/shared/server"
	"crm-backend/internal/shared/storage/db"
	"crm-backend/internal/tenants"
)

// App holds shared dependencies for the API and worker processes.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB

	TenantsRepo       tenants.Repo
	ConversationsRepo conversations.Repo
	MessagesRepo      messages.Repo

	Queue    jobqueue.Queue
	RelayPub relay.Publisher
	RelaySub relay.Subscriber

	Providers       *ai.Registry
	AIService       *ai.Service
	MessagesService *messages.Service
	TenantsService  *tenants.Service

	Hub *gateway.Hub

	TenantsHandler       *tenants.Handler
	ConversationsHandler *conversations.Handler
	MessagesHandler      *messages.Handler
}

// Build prepares shared dependencies for the API process. With no
// DATABASE_URL in a dev-like env everything runs in memory, which keeps the
// pipeline exercisable without Postgres; in that mode the relay only reaches
// the local process.
func Build(cfg config.Config) (*App, error) {
	return build(cfg, db.OptionsFromEnv(db.DefaultServerOptions()))
}

// BuildWorker is Build with a pool sized for the worker's concurrency.
func BuildWorker(cfg config.Config) (*App, error) {
	return build(cfg, db.OptionsFromEnv(db.DefaultWorkerOptions(cfg.WorkerConcurrency)))
}

func build(cfg config.Config, dbOpts db.Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg, dbOpts)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, DB: sqlDB}

	queueOpts := jobqueue.DefaultOptions()
	queueOpts.MaxAttempts = cfg.QueueMaxAttempts
	queueOpts.RetryBaseDelay = cfg.QueueRetryBaseDelay

	if sqlDB != nil {
		app.TenantsRepo = &tenants.PGRepo{DB: sqlDB}
		app.ConversationsRepo = &conversations.PGRepo{DB: sqlDB}
		app.MessagesRepo = &messages.PGRepo{DB: sqlDB}
		app.Queue = jobqueue.NewPGQueue(sqlDB, queueOpts)
		pgRelay := relay.NewPGRelay(sqlDB, cfg.DatabaseURL)
		app.RelayPub = pgRelay
		app.RelaySub = pgRelay
	} else {
		app.TenantsRepo = tenants.NewMemoryRepo()
		app.ConversationsRepo = conversations.NewMemoryRepo()
		app.MessagesRepo = messages.NewMemoryRepo()
		app.Queue = jobqueue.NewMemoryQueue(queueOpts)
		memRelay := relay.NewMemoryRelay()
		app.RelayPub = memRelay
		app.RelaySub = memRelay
	}

	app.Providers = ai.NewRegistry()
	app.Providers.Register("openai", openai.New)
	app.Providers.Register("gemini", gemini.New)

	app.AIService = ai.NewService(
		&conversationStoreAdapter{convs: app.ConversationsRepo, msgs: app.MessagesRepo},
		&tenantConfigAdapter{repo: app.TenantsRepo},
		app.Providers,
		app.RelayPub,
		globalAIConfig(cfg),
		cfg.AIMessageWindow,
		retry.Policy{
			MaxAttempts: cfg.AIMaxAttempts,
			BaseDelay:   cfg.AIRetryBaseDelay,
			Multiplier:  2,
		},
	)

	app.MessagesService = messages.NewService(app.MessagesRepo, app.ConversationsRepo, app.Queue, app.RelayPub, cfg.AIDebounce)
	app.TenantsService = tenants.NewService(app.TenantsRepo, app.Providers)

	app.Hub = gateway.NewHub()

	app.TenantsHandler = tenants.NewHandler(app.TenantsService)
	app.ConversationsHandler = conversations.NewHandler(app.ConversationsRepo)
	app.MessagesHandler = messages.NewHandler(app.MessagesService, app.MessagesRepo, cfg.WebhookSecret)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:               cfg,
		TenantsHandler:       app.TenantsHandler,
		ConversationsHandler: app.ConversationsHandler,
		MessagesHandler:      app.MessagesHandler,
		GatewayHandler:       gateway.Handler(app.Hub),
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config, opts db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, errors.New("DATABASE_URL is required outside dev")
	}
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return db.Connect(dbCtx, cfg.DatabaseURL, opts)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "":
		return true
	default:
		return false
	}
}

func globalAIConfig(cfg config.Config) *ai.ProviderConfig {
	if cfg.AIProvider == "" || cfg.AIAPIKey == "" {
		return nil
	}
	return &ai.ProviderConfig{
		Provider: cfg.AIProvider,
		APIKey:   cfg.AIAPIKey,
		Model:    cfg.AIModel,
	}
}
