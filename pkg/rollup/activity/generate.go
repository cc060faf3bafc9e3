package activity

import (
	"context"

	"go.temporal.io/sdk/temporal"

	"github.com/gramscope/gramscope/pkg/db/models/reports"
	"github.com/gramscope/gramscope/pkg/rollup"
)

// GenerateDaily builds the report set for the most recently completed day.
// Already-generated windows are skipped, so a re-fired schedule is harmless.
func (c *Context) GenerateDaily(ctx context.Context) error {
	return c.generateLatest(ctx, reports.Daily)
}

// GenerateWeekly builds the report set for the last complete ISO week.
func (c *Context) GenerateWeekly(ctx context.Context) error {
	return c.generateLatest(ctx, reports.Weekly)
}

// GenerateMonthly builds the report set for the last complete calendar month.
func (c *Context) GenerateMonthly(ctx context.Context) error {
	return c.generateLatest(ctx, reports.Monthly)
}

func (c *Context) generateLatest(ctx context.Context, g reports.Granularity) error {
	engine := c.Engine()
	latest := rollup.LastCompleted(engine.Clock.Now(), g)

	summary, err := engine.RunRange(ctx, g, &latest, &latest, false)
	if err != nil {
		return temporal.NewApplicationErrorWithCause("rollup generation failed", "rollup_error", err)
	}
	if summary.Failed > 0 {
		for _, res := range summary.Results {
			if res.Err != nil {
				return temporal.NewApplicationError("window build failed", "window_error", res.Err.Error())
			}
		}
	}
	return nil
}

// MaintainCumulative advances the forward-only cumulative reports through
// every day not yet absorbed.
func (c *Context) MaintainCumulative(ctx context.Context) error {
	if _, err := c.Engine().RunOverall(ctx); err != nil {
		return temporal.NewApplicationErrorWithCause("cumulative maintenance failed", "overall_error", err)
	}
	return nil
}
