package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"e2e_messaging/internal/config"
	"e2e_messaging/internal/protocol/ratchet"
	accountrepo "e2e_messaging/internal/repository/account"
	"e2e_messaging/internal/repository/session"
	"e2e_messaging/internal/repository/snapshot"
	"e2e_messaging/internal/service/account"
	"e2e_messaging/internal/service/directory"
	"e2e_messaging/internal/service/handshake"
	"e2e_messaging/internal/service/messaging"
	redisSvc "e2e_messaging/internal/service/redis"
	"e2e_messaging/internal/utils/log"
)

type (
	// Deps are the external connections an App is built on.
	Deps struct {
		Accounts accountrepo.Repository
		Redis    *redis.Client // required for the redis storage backend
	}

	// App is one local user's messaging stack.
	App struct {
		Accounts  *account.Service
		Messaging *messaging.Service

		closers []func(ctx context.Context) error
	}
)

// New connects to mongo (and redis when configured) and builds the stack for localID.
func New(ctx context.Context, cfg *config.Config, localID string) (*App, error) {
	mongoClient, err := InitMongo(ctx, cfg.Mongo)
	if err != nil {
		return nil, fmt.Errorf("init mongo: %w", err)
	}

	deps := Deps{
		Accounts: accountrepo.NewAccountRepo(mongoClient.Database(cfg.Mongo.Database)),
	}
	closers := []func(context.Context) error{mongoClient.Disconnect}

	if cfg.Storage.Backend == config.BackendRedis {
		deps.Redis = InitRedis(cfg.Redis)
		closers = append(closers, func(context.Context) error { return deps.Redis.Close() })
	}

	a, err := Build(ctx, cfg, localID, deps)
	if err != nil {
		for _, c := range closers {
			_ = c(ctx)
		}
		return nil, err
	}
	a.closers = append(a.closers, closers...)
	return a, nil
}

// Build wires the stack on top of already established connections and loads
// the persisted snapshot.
func Build(ctx context.Context, cfg *config.Config, localID string, deps Deps) (*App, error) {
	if localID == "" {
		return nil, errors.New("local user id is required")
	}

	accounts := account.NewService(deps.Accounts, cfg.Messaging.OneTimePreKeys)
	if _, err := accounts.GetOrCreate(ctx, localID); err != nil {
		return nil, err
	}

	var (
		sessions session.Store
		kv       snapshot.KV
	)
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		if deps.Redis == nil {
			return nil, errors.New("redis backend selected without a redis client")
		}
		rs := redisSvc.NewRedis(deps.Redis)
		sessions = session.NewRedisStore(rs, localID, cfg.Storage.SessionTTL)
		kv = snapshot.NewRedisKV(rs, localID)
	default:
		sessions = session.NewFileStore(cfg.Storage.Dir, localID, cfg.Storage.Passphrase)
		kv = snapshot.NewFileKV(filepath.Join(cfg.Storage.Dir, localID))
	}

	var dir directory.Directory = directory.NewLocal(accounts)
	if cfg.Messaging.DirectoryURL != "" {
		c, err := directory.NewHTTPClient(cfg.Messaging.DirectoryURL, nil)
		if err != nil {
			return nil, err
		}
		dir = c
	}

	engine := ratchet.NewEngine()
	svc := messaging.NewService(messaging.Config{
		LocalID:       localID,
		SnapshotKey:   cfg.Messaging.SnapshotKey,
		FlushInterval: cfg.Messaging.FlushInterval,
	}, engine, sessions, handshake.NewService(localID, accounts, dir, engine), kv)

	if err := svc.Load(ctx); err != nil {
		return nil, err
	}

	log.Info("messaging ready",
		zap.String("user", localID),
		zap.String("backend", cfg.Storage.Backend),
		zap.Bool("remote_directory", cfg.Messaging.DirectoryURL != ""),
	)

	return &App{
		Accounts:  accounts,
		Messaging: svc,
		closers:   []func(context.Context) error{svc.Close},
	}, nil
}

// Close flushes messaging state and releases connections in order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for _, c := range a.closers {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func InitMongo(ctx context.Context, cfg config.Mongo) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}

func InitRedis(cfg config.Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
