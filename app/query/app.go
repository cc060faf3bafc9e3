package query

import (
	"context"

	"go.uber.org/zap"

	"github.com/gramscope/gramscope/app/query/types"
	activitydb "github.com/gramscope/gramscope/pkg/db/activity"
	geodb "github.com/gramscope/gramscope/pkg/db/geo"
	reportsdb "github.com/gramscope/gramscope/pkg/db/reports"
	"github.com/gramscope/gramscope/pkg/logging"
	"github.com/gramscope/gramscope/pkg/redis"
	"github.com/gramscope/gramscope/pkg/utils"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	geoDb, err := geodb.New(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to initialize geo database", zap.Error(err))
	}
	activityDb, err := activitydb.New(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to initialize activity database", zap.Error(err))
	}
	reportsDb, err := reportsdb.New(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to initialize reports database", zap.Error(err))
	}

	// Initialize Redis client for real-time WebSocket events (optional)
	var redisClient *redis.Client
	if utils.Env("REDIS_ENABLED", "false") == "true" {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - WebSocket real-time events will be disabled",
				zap.Error(err))
			redisClient = nil
		} else {
			logger.Info("Redis client initialized for WebSocket real-time events")
		}
	} else {
		logger.Info("Redis disabled - WebSocket real-time events will not be available")
	}

	return &types.App{
		GeoDB:       geoDb,
		ActivityDB:  activityDb,
		ReportsDB:   reportsDb,
		RedisClient: redisClient,
		Logger:      logger,
	}
}
