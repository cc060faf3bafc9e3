package activity

import (
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	activitydb "github.com/gramscope/gramscope/pkg/db/activity"
	geodb "github.com/gramscope/gramscope/pkg/db/geo"
	reportsdb "github.com/gramscope/gramscope/pkg/db/reports"
	"github.com/gramscope/gramscope/pkg/redis"
	"github.com/gramscope/gramscope/pkg/rollup"
	"github.com/gramscope/gramscope/pkg/temporal"
	"github.com/gramscope/gramscope/pkg/utils"
)

type Context struct {
	Logger         *zap.Logger
	ActivityDB     activitydb.Store
	GeoDB          geodb.Store
	ReportsDB      reportsdb.Store
	Redis          *redis.Client
	TemporalClient *temporal.Client
}

// Engine builds a fresh rollup engine over the context's stores. Engines are
// cheap; each activity invocation gets its own.
func (c *Context) Engine() *rollup.Engine {
	return &rollup.Engine{
		Logger:         c.Logger,
		Activity:       c.ActivityDB,
		Geo:            c.GeoDB,
		Reports:        c.ReportsDB,
		Events:         c.Redis,
		Clock:          clockwork.NewRealClock(),
		BatchSize:      utils.EnvInt("ROLLUP_BATCH_SIZE", 0),
		MaxParallelism: utils.EnvInt("ROLLUP_MAX_PARALLELISM", 0),
	}
}
