package temporal

import (
	"context"
	"time"

	"github.com/gramscope/gramscope/pkg/utils"
	"go.uber.org/zap"

	"go.temporal.io/api/enums/v1"
	taskqueuepb "go.temporal.io/api/taskqueue/v1"
	workflowservicepb "go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
)

type Client struct {
	TClient   client.Client
	TSClient  client.ScheduleClient
	Namespace string

	// Task Queues
	RollupsQueue string // rollups - windowed generation and cumulative maintenance

	// Schedule IDs
	DailyScheduleID   string
	WeeklyScheduleID  string
	MonthlyScheduleID string
	OverallScheduleID string
}

type Health struct {
	ConnectionOK bool                      `json:"connection_ok"`
	RollupsQueue []*taskqueuepb.PollerInfo `json:"rollups_queue"`
}

func NewClient(ctx context.Context, logger *zap.Logger) (*Client, error) {
	host := utils.Env("TEMPORAL_HOSTPORT", "localhost:7233")
	ns := utils.Env("TEMPORAL_NAMESPACE", "gramscope")
	loggerWrapper := NewZapAdapter(logger)

	logger.Info("Connecting to Temporal", zap.String("host", host), zap.String("namespace", ns))
	tClient, err := Dial(ctx, host, ns, loggerWrapper)
	if err != nil {
		return nil, err
	}

	if _, err = tClient.CheckHealth(ctx, nil); err != nil {
		return nil, err
	}

	return &Client{
		TClient:   tClient,
		TSClient:  tClient.ScheduleClient(),
		Namespace: ns,
		// fixed for now, could become configurable if a second queue shows up
		RollupsQueue: "rollups",
		// schedule IDs
		DailyScheduleID:   "rollup:daily",
		WeeklyScheduleID:  "rollup:weekly",
		MonthlyScheduleID: "rollup:monthly",
		OverallScheduleID: "rollup:overall",
	}, nil
}

// Dial connects to Temporal using the provided hostPort and namespace.
func Dial(ctx context.Context, hostPort, namespace string, logger log.Logger) (client.Client, error) {
	return client.DialContext(
		ctx,
		client.Options{
			HostPort:  hostPort,
			Namespace: namespace,
			Logger:    logger,
		},
	)
}

// DailySpec fires shortly after midnight UTC, once yesterday is complete.
func (c *Client) DailySpec() client.ScheduleSpec {
	return client.ScheduleSpec{CronExpressions: []string{"30 0 * * *"}}
}

// WeeklySpec fires on Monday mornings, once the previous ISO week is complete.
func (c *Client) WeeklySpec() client.ScheduleSpec {
	return client.ScheduleSpec{CronExpressions: []string{"0 1 * * 1"}}
}

// MonthlySpec fires on the first of the month, once the previous month is complete.
func (c *Client) MonthlySpec() client.ScheduleSpec {
	return client.ScheduleSpec{CronExpressions: []string{"0 2 1 * *"}}
}

// OverallSpec fires daily for the cumulative maintenance step.
func (c *Client) OverallSpec() client.ScheduleSpec {
	return client.ScheduleSpec{CronExpressions: []string{"0 3 * * *"}}
}

// Health returns the health of the Temporal client.
func (c *Client) Health(ctx context.Context) (Health, error) {
	h := Health{ConnectionOK: true}
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	svc := c.TClient.WorkflowService()
	if svc != nil {
		if rep, err := svc.DescribeTaskQueue(ctx, &workflowservicepb.DescribeTaskQueueRequest{
			Namespace:     c.Namespace,
			TaskQueue:     &taskqueuepb.TaskQueue{Name: c.RollupsQueue},
			TaskQueueType: enums.TASK_QUEUE_TYPE_WORKFLOW,
		}); err == nil {
			h.RollupsQueue = rep.GetPollers()
		}
	}
	return h, nil
}
