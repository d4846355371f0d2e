package bootstrap

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"

	"mailminer/adapter/out/board"
	"mailminer/adapter/out/llm"
	"mailminer/adapter/out/persistence"
	"mailminer/adapter/out/provider"
	"mailminer/config"
	"mailminer/core/port/out"
	"mailminer/core/service/extract"
	"mailminer/core/service/pipeline"
	"mailminer/infra/database"
	"mailminer/pkg/apperr"
	"mailminer/pkg/logger"
	"mailminer/pkg/runlock"
	"mailminer/pkg/snowflake"
)

// Dependencies is the explicit wiring of every adapter and service.
type Dependencies struct {
	Config *config.Config
	DB     *sqlx.DB
	Redis  *redis.Client

	Emails  out.EmailRepository
	Items   out.ActionItemRepository
	Configs out.RunConfigurationRepository
	Reports out.ExecutionReportRepository

	Orchestrator *pipeline.Orchestrator
}

// NewDependencies builds the dependency graph. The returned cleanup
// closes every connection it opened.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	if err := snowflake.Init(workerID()); err != nil {
		return nil, nil, fmt.Errorf("init id generator: %w", err)
	}

	db, err := database.NewSQLx(cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	var redisClient *redis.Client
	var lock out.RunLock
	if cfg.Redis.URL != "" {
		redisClient, err = database.NewRedis(cfg.Redis.URL)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		lock = runlock.New(redisClient, cfg.LockTTL())
	} else {
		// Single-process fallback; still serializes runs locally
		lock = runlock.NewLocal()
		logger.Warn("redis not configured, using in-process run lock")
	}

	deps := &Dependencies{Config: cfg, DB: db, Redis: redisClient}
	deps.Emails = persistence.NewEmailRepository(db)
	deps.Items = persistence.NewActionItemRepository(db)
	deps.Configs = persistence.NewRunConfigurationRepository(db)
	deps.Reports = persistence.NewExecutionReportRepository(db)

	llmClient := llm.NewClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})
	engine := extract.NewEngine(llmClient, extract.Options{
		MaxRetries:     cfg.LLM.MaxRetries,
		RequireDueDate: cfg.Extraction.RequireDueDate,
	})

	mailProvider, err := newMailProvider(cfg)
	if err != nil {
		cleanup(db, redisClient)
		return nil, nil, err
	}

	var boardSync out.BoardSyncPort
	if cfg.Trello.Enabled {
		boardSync = board.NewTrelloClient(board.TrelloConfig{
			APIKey: cfg.Trello.APIKey,
			Token:  cfg.Trello.Token,
			ListID: cfg.Trello.ListID,
		})
	}

	deps.Orchestrator = pipeline.NewOrchestrator(
		mailProvider,
		deps.Emails,
		deps.Configs,
		deps.Reports,
		boardSync,
		lock,
		engine,
		pipeline.Options{
			DefaultThreshold: cfg.Extraction.ConfidenceThreshold,
			Lookback:         cfg.Lookback(),
			Recipients:       cfg.Filters.Recipients,
		},
	)

	return deps, func() { cleanup(db, redisClient) }, nil
}

// workerID derives the snowflake worker id from WORKER_ID, falling
// back to a hostname hash so replicas get distinct ids.
func workerID() int64 {
	if raw := os.Getenv("WORKER_ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return id & 1023
		}
	}
	host, err := os.Hostname()
	if err != nil {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(host))
	return int64(h.Sum32()) & 1023
}

func cleanup(db *sqlx.DB, redisClient *redis.Client) {
	if db != nil {
		db.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
}

func newMailProvider(cfg *config.Config) (out.MailProvider, error) {
	if cfg.Gmail.ClientID == "" || cfg.Gmail.RefreshToken == "" {
		logger.Warn("gmail not configured, runs will fail at fetch")
		return unconfiguredProvider{}, nil
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.Gmail.ClientID,
		ClientSecret: cfg.Gmail.ClientSecret,
		RedirectURL:  cfg.Gmail.RedirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmailapi.GmailReadonlyScope},
	}
	token := &oauth2.Token{
		RefreshToken: cfg.Gmail.RefreshToken,
		Expiry:       time.Now().Add(-time.Hour),
	}

	gmailProvider, err := provider.NewGmailProvider(context.Background(), oauthCfg, token)
	if err != nil {
		return nil, fmt.Errorf("init gmail provider: %w", err)
	}
	return gmailProvider, nil
}

// unconfiguredProvider lets the API half of the binary run without
// mail credentials; any triggered run reports a fetch failure.
type unconfiguredProvider struct{}

func (unconfiguredProvider) Fetch(ctx context.Context, since time.Time, filters out.FetchFilters) ([]out.RawMessage, error) {
	return nil, apperr.FetchFailed(fmt.Errorf("mail provider not configured"))
}
