package workflow

import (
	"github.com/gramscope/gramscope/pkg/rollup/activity"
	"github.com/gramscope/gramscope/pkg/temporal"
)

type Context struct {
	TemporalClient  *temporal.Client
	ActivityContext *activity.Context
}
