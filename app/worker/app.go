package workerrollups

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	activitydb "github.com/gramscope/gramscope/pkg/db/activity"
	geodb "github.com/gramscope/gramscope/pkg/db/geo"
	reportsdb "github.com/gramscope/gramscope/pkg/db/reports"
	"github.com/gramscope/gramscope/pkg/logging"
	"github.com/gramscope/gramscope/pkg/redis"
	"github.com/gramscope/gramscope/pkg/rollup/activity"
	"github.com/gramscope/gramscope/pkg/rollup/workflow"
	"github.com/gramscope/gramscope/pkg/temporal"
	"github.com/gramscope/gramscope/pkg/utils"
)

// Workflow names as registered on the rollups task queue; schedules reference
// workflows by name.
const (
	GenerateDailyWorkflowName      = "GenerateDailyWorkflow"
	GenerateWeeklyWorkflowName     = "GenerateWeeklyWorkflow"
	GenerateMonthlyWorkflowName    = "GenerateMonthlyWorkflow"
	MaintainCumulativeWorkflowName = "MaintainCumulativeWorkflow"
)

type App struct {
	Worker          worker.Worker
	TemporalClient  *temporal.Client
	ActivityContext *activity.Context
	Cron            *cron.Cron
	Logger          *zap.Logger
}

// Start starts the worker and the local cron loop, ensures the generation
// schedules exist, and blocks until the context is canceled.
func (a *App) Start(ctx context.Context) {
	if err := a.Worker.Start(); err != nil {
		a.Logger.Fatal("Unable to start worker", zap.Error(err))
	}
	if err := a.EnsureSchedules(ctx); err != nil {
		a.Logger.Fatal("Unable to reconcile schedules", zap.Error(err))
	}
	a.Cron.Start()
	<-ctx.Done()
	a.Stop()
}

// Stop stops the worker and waits for the in-flight cron job, if any.
func (a *App) Stop() {
	a.Worker.Stop()
	<-a.Cron.Stop().Done()
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}

// Initialize initializes the application.
func Initialize(ctx context.Context) *App {
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

	redisClient, err := redis.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to establish redis connection", zap.Error(err))
	}

	temporalClient, err := temporal.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to establish temporal connection", zap.Error(err))
	}

	activityContext := &activity.Context{
		Logger:         logger,
		ActivityDB:     activityDb,
		GeoDB:          geoDb,
		ReportsDB:      reportsDb,
		Redis:          redisClient,
		TemporalClient: temporalClient,
	}
	workflowContext := &workflow.Context{
		TemporalClient:  temporalClient,
		ActivityContext: activityContext,
	}

	wkr := worker.New(
		temporalClient.TClient,
		temporalClient.RollupsQueue,
		worker.Options{},
	)

	// Register the workflows
	wkr.RegisterWorkflow(workflowContext.GenerateDailyWorkflow)
	wkr.RegisterWorkflow(workflowContext.GenerateWeeklyWorkflow)
	wkr.RegisterWorkflow(workflowContext.GenerateMonthlyWorkflow)
	wkr.RegisterWorkflow(workflowContext.MaintainCumulativeWorkflow)
	// Register all the activities
	wkr.RegisterActivity(activityContext.GenerateDaily)
	wkr.RegisterActivity(activityContext.GenerateWeekly)
	wkr.RegisterActivity(activityContext.GenerateMonthly)
	wkr.RegisterActivity(activityContext.MaintainCumulative)

	app := &App{
		Worker:          wkr,
		TemporalClient:  temporalClient,
		ActivityContext: activityContext,
		Logger:          logger,
	}
	app.Cron = app.newRebuildCron(ctx)
	return app
}

// newRebuildCron schedules the roster/parent rebuild pass of the cumulative
// reports. It runs outside temporal so the derived shape heals even while the
// cluster is unreachable.
func (a *App) newRebuildCron(ctx context.Context) *cron.Cron {
	spec := utils.Env("REBUILD_CRON", "0 * * * *")
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		jobCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
		defer cancel()
		if err := a.ActivityContext.Engine().RebuildOverall(jobCtx); err != nil {
			a.Logger.Error("Cumulative rebuild failed", zap.Error(err))
		}
	})
	if err != nil {
		a.Logger.Fatal("Invalid REBUILD_CRON expression", zap.String("spec", spec), zap.Error(err))
	}
	return c
}

// EnsureSchedules creates the four generation schedules when missing. An
// existing schedule is left untouched.
func (a *App) EnsureSchedules(ctx context.Context) error {
	schedules := []struct {
		id       string
		spec     client.ScheduleSpec
		workflow string
	}{
		{a.TemporalClient.DailyScheduleID, a.TemporalClient.DailySpec(), GenerateDailyWorkflowName},
		{a.TemporalClient.WeeklyScheduleID, a.TemporalClient.WeeklySpec(), GenerateWeeklyWorkflowName},
		{a.TemporalClient.MonthlyScheduleID, a.TemporalClient.MonthlySpec(), GenerateMonthlyWorkflowName},
		{a.TemporalClient.OverallScheduleID, a.TemporalClient.OverallSpec(), MaintainCumulativeWorkflowName},
	}
	for _, s := range schedules {
		if err := a.ensureSchedule(ctx, s.id, s.spec, s.workflow); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) ensureSchedule(ctx context.Context, id string, spec client.ScheduleSpec, workflowName string) error {
	h := a.TemporalClient.TSClient.GetHandle(ctx, id)
	_, err := h.Describe(ctx)
	if err == nil {
		a.Logger.Info("Schedule already exists", zap.String("id", id))
		return nil
	}

	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		a.Logger.Info("Creating schedule",
			zap.String("id", id),
			zap.String("workflow", workflowName))
		_, scheduleErr := a.TemporalClient.TSClient.Create(
			ctx, client.ScheduleOptions{
				ID:   id,
				Spec: spec,
				Action: &client.ScheduleWorkflowAction{
					Workflow:                 workflowName,
					TaskQueue:                a.TemporalClient.RollupsQueue,
					WorkflowExecutionTimeout: 45 * time.Minute,
					WorkflowTaskTimeout:      2 * time.Minute,
				},
			},
		)
		return scheduleErr
	}
	return err
}
