package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/wholesale/modules/wholesale"
	"github.com/iota-uz/wholesale/modules/wholesale/catalog"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/policy"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/registry"
	"github.com/iota-uz/wholesale/modules/wholesale/infrastructure/storage"
	"github.com/iota-uz/wholesale/modules/wholesale/services"
	"github.com/iota-uz/wholesale/pkg/composables"
	"github.com/iota-uz/wholesale/pkg/configuration"
)

// catalogEnv is what the commands that never touch the database need.
type catalogEnv struct {
	conf   *configuration.Configuration
	logger *logrus.Entry
	reg    *registry.Registry
	policy *policy.Policy
	meta   *services.Metadata
}

func loadCatalog() (*catalogEnv, error) {
	conf := configuration.Use()
	reg, err := catalog.Registry()
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	pol, err := policy.Load(policy.ResolvePath(conf.Wholesale.PolicyPath))
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	return &catalogEnv{
		conf:   conf,
		logger: logrus.NewEntry(conf.Logger()).WithField("app", "wholesale"),
		reg:    reg,
		policy: pol,
		meta:   services.NewMetadata(reg, conf.Wholesale.ModelGroup),
	}, nil
}

type app struct {
	*catalogEnv
	pool *pgxpool.Pool
	mod  *wholesale.Module
}

// setup connects to the database and returns ctx carrying the pool and
// logger the repositories and services read.
func setup(ctx context.Context) (context.Context, *app, error) {
	env, err := loadCatalog()
	if err != nil {
		return ctx, nil, err
	}
	artifacts, err := storage.New(&env.conf.Storage)
	if err != nil {
		return ctx, nil, withCode(exitStorage, err)
	}
	pool, err := connectDB(ctx, env.conf.Database.Opts)
	if err != nil {
		return ctx, nil, withCode(exitDB, err)
	}
	mod := wholesale.New(wholesale.Deps{
		Registry:     env.reg,
		Group:        env.conf.Wholesale.ModelGroup,
		Policy:       env.policy,
		M2MDelimiter: env.conf.Wholesale.M2MDelimiter,
		Artifacts:    artifacts,
		OutboxTable:  env.conf.Outbox.Identifier,
	})
	ctx = composables.WithPool(ctx, pool)
	ctx = composables.WithLogger(ctx, env.logger)
	return ctx, &app{catalogEnv: env, pool: pool, mod: mod}, nil
}

func (a *app) Close() {
	if path := a.conf.Wholesale.MetricsTextfile; path != "" {
		if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
			a.logger.WithError(err).Warn("failed to write metrics textfile")
		}
	}
	a.pool.Close()
	a.conf.Unload()
}

func connectDB(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	return pool, nil
}
