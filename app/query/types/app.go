package types

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	activitydb "github.com/gramscope/gramscope/pkg/db/activity"
	geodb "github.com/gramscope/gramscope/pkg/db/geo"
	reportsdb "github.com/gramscope/gramscope/pkg/db/reports"
	"github.com/gramscope/gramscope/pkg/redis"
)

type App struct {
	GeoDB      *geodb.DB
	ActivityDB *activitydb.DB
	ReportsDB  *reportsdb.DB
	// RedisClient is nil when real-time events are disabled.
	RedisClient *redis.Client
	// Zap Logger
	Logger *zap.Logger
	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// Start starts the application.
func (a *App) Start(ctx context.Context) {
	go func() { _ = a.Server.ListenAndServe() }()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.ReportsDB.Close(); err != nil {
		a.Logger.Error("Failed to close database connection", zap.Error(err))
	}
	if err := a.ActivityDB.Close(); err != nil {
		a.Logger.Error("Failed to close database connection", zap.Error(err))
	}
	if err := a.GeoDB.Close(); err != nil {
		a.Logger.Error("Failed to close database connection", zap.Error(err))
	}
	if a.RedisClient != nil {
		_ = a.RedisClient.Close()
	}

	_ = a.Server.Shutdown(shutdownCtx)
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
