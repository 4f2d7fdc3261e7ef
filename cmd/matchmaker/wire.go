//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/cory-johannsen/matchmaker/internal/config"
	"github.com/cory-johannsen/matchmaker/internal/matchmaking"
	"github.com/cory-johannsen/matchmaker/internal/storage/postgres"
)

var storageSet = wire.NewSet(
	providePool,
	provideRepository,
	wire.Bind(new(matchmaking.TxStore), new(*postgres.Repository)),
	provideLocker,
)

var matcherSet = wire.NewSet(
	provideRegistry,
	provideMetrics,
	provideRunner,
	provideScheduler,
	provideBuckets,
)

var httpSet = wire.NewSet(
	provideHealth,
	provideAPI,
	provideHTTPService,
)

// InitializeApp assembles the matcher, its scheduler and the HTTP API.
func InitializeApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, func(), error) {
	wire.Build(storageSet, matcherSet, httpSet, wire.Struct(new(App), "*"))
	return nil, nil, nil
}
