package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"civicreport-be/config"
	"civicreport-be/logging"
	"civicreport-be/models"
	"civicreport-be/services"
	"civicreport-be/store"

	"github.com/redis/go-redis/v9"
)

// app is the set of long-lived resources opened at startup.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   store.Store
	redis   *redis.Client
	credits services.CreditQueue
}

func openApp(ctx context.Context, configPath string, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.SetupWriter(logOut, cfg.LogLevel)

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	client, err := config.ConnectRedis(ctx, cfg)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	var credits services.CreditQueue = services.NewMemoryCreditQueue()
	if client != nil {
		credits = services.NewRedisCreditQueue(client, cfg.CreditQueueKey)
	}

	return &app{cfg: cfg, logger: logger, store: st, redis: client, credits: credits}, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		return store.NewMemoryStore(), nil
	case config.DriverMongo:
		client, err := config.ConnectDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		st := store.NewMongoStore(client, cfg.MongoDatabase, cfg.MongoTransactions, cfg.RequestTimeout)
		if err := models.EnsureIndexes(ctx, st.Database()); err != nil {
			_ = st.Close(ctx)
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func (a *app) issueService() *services.IssueService {
	return services.NewIssueService(a.store, a.credits, a.logger, services.WithSolveReward(a.cfg.SolveReward))
}

func (a *app) reconciler() *services.Reconciler {
	return services.NewReconciler(a.credits, a.store.Ledger(), a.logger)
}

func (a *app) Close(ctx context.Context) {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", "error", err)
		}
	}
	if err := a.store.Close(ctx); err != nil {
		a.logger.Error("store close error", "error", err)
	}
}
