package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/gramscope/gramscope/pkg/rollup/activity"
)

func (c *Context) activityOptions(timeout time.Duration) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
		TaskQueue: c.TemporalClient.RollupsQueue,
	}
}

func (c *Context) GenerateDailyWorkflow(ctx workflow.Context) error {
	ctx = workflow.WithActivityOptions(ctx, c.activityOptions(10*time.Minute))
	return workflow.ExecuteActivity(ctx, (*activity.Context).GenerateDaily, nil).Get(ctx, nil)
}

func (c *Context) GenerateWeeklyWorkflow(ctx workflow.Context) error {
	ctx = workflow.WithActivityOptions(ctx, c.activityOptions(10*time.Minute))
	return workflow.ExecuteActivity(ctx, (*activity.Context).GenerateWeekly, nil).Get(ctx, nil)
}

func (c *Context) GenerateMonthlyWorkflow(ctx workflow.Context) error {
	ctx = workflow.WithActivityOptions(ctx, c.activityOptions(15*time.Minute))
	return workflow.ExecuteActivity(ctx, (*activity.Context).GenerateMonthly, nil).Get(ctx, nil)
}

func (c *Context) MaintainCumulativeWorkflow(ctx workflow.Context) error {
	ctx = workflow.WithActivityOptions(ctx, c.activityOptions(30*time.Minute))
	return workflow.ExecuteActivity(ctx, (*activity.Context).MaintainCumulative, nil).Get(ctx, nil)
}
