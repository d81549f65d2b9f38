package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"

	"adherence-agent/handler"
	"adherence-agent/internal/app"
	"adherence-agent/internal/config"
	"adherence-agent/internal/integrations/paramstore"
	"adherence-agent/internal/repository"
	"adherence-agent/internal/usecase"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}

	// ---- Configuration: file + env first, then SSM overlay under the prefix ----
	cfg, err := config.Load(config.FilePath())
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if cfg.ParamPrefix != "" {
		cfg, err = config.Load(config.FilePath(), paramstore.NewProvider(ctx, ssmClient, cfg.ConfigParameterPath()))
		if err != nil {
			slog.Error("failed to load config overlay", "err", err)
			os.Exit(1)
		}
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	careClient, err := app.NewCareClient(cfg, ssmClient)
	if err != nil {
		slog.Error("failed to create care API client", "err", err)
		os.Exit(1)
	}
	machine, err := app.NewMachine(cfg, careClient, logger)
	if err != nil {
		slog.Error("failed to create dialog", "err", err)
		os.Exit(1)
	}

	storeOpts := []repository.StoreOption{repository.WithTTL(cfg.ContextTTL)}
	switch cfg.ContextStore {
	case config.StoreDynamoDB:
		storeOpts = append(storeOpts, repository.WithDynamoDB(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable))
	case config.StoreRedis:
		storeOpts = append(storeOpts, repository.WithRedisClient(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})))
	}
	store, err := repository.NewStore(cfg.ContextStore, storeOpts...)
	if err != nil {
		slog.Error("failed to create context store", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	persister, err := app.NewPersister(cfg, careClient, logger)
	if err != nil {
		slog.Error("failed to create session persister", "err", err)
		os.Exit(1)
	}
	turns, err := usecase.NewTurnService(store, machine, logger, usecase.WithPersister(persister))
	if err != nil {
		slog.Error("failed to create turn service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(turns)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
