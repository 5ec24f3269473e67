package db

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var commandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "annatar_redis_command_duration_seconds",
	Help:    "Duration of Redis commands by command name",
	Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
}, []string{"command"})

type startTimeKey struct{}

// metricsHook records a duration histogram per Redis command.
type metricsHook struct{}

var _ redis.Hook = metricsHook{}

func newMetricsHook() metricsHook {
	return metricsHook{}
}

func (metricsHook) BeforeProcess(ctx context.Context, cmd redis.Cmder) (context.Context, error) {
	return context.WithValue(ctx, startTimeKey{}, time.Now()), nil
}

func (metricsHook) AfterProcess(ctx context.Context, cmd redis.Cmder) error {
	if start, ok := ctx.Value(startTimeKey{}).(time.Time); ok {
		commandDuration.WithLabelValues(cmd.Name()).Observe(time.Since(start).Seconds())
	}
	return nil
}

func (metricsHook) BeforeProcessPipeline(ctx context.Context, cmds []redis.Cmder) (context.Context, error) {
	return context.WithValue(ctx, startTimeKey{}, time.Now()), nil
}

func (metricsHook) AfterProcessPipeline(ctx context.Context, cmds []redis.Cmder) error {
	if start, ok := ctx.Value(startTimeKey{}).(time.Time); ok {
		commandDuration.WithLabelValues("pipeline").Observe(time.Since(start).Seconds())
	}
	return nil
}
