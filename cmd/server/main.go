package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"e2e_messaging/internal/app"
	"e2e_messaging/internal/config"
	accountrepo "e2e_messaging/internal/repository/account"
	"e2e_messaging/internal/service/account"
	"e2e_messaging/internal/service/server"
	"e2e_messaging/internal/utils/log"
)

func main() {
	configPath := flag.String("config", os.Getenv("MESSAGING_CONFIG"), "path to a yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	if err := log.Init(log.Config{Development: cfg.Logger.Development, Level: cfg.Logger.Level}); err != nil {
		log.Fatal("init logger", zap.Error(err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoClient, err := app.InitMongo(ctx, cfg.Mongo)
	if err != nil {
		log.Fatal("init mongo", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(ctx)
	}()

	accounts := account.NewService(
		accountrepo.NewAccountRepo(mongoClient.Database(cfg.Mongo.Database)),
		cfg.Messaging.OneTimePreKeys,
	)
	ping := func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.NewHttpServer(cfg.Server.Addr, accounts, ping).Run(ctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("key directory stopped", zap.Error(err))
	}
}
