package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	logx "immowatch/pkg/logx"
)

// Run ticks once immediately, then every poll interval until ctx is done.
// Ticks never overlap: a slow group delays the next tick instead.
func (s *Scheduler) Run(ctx context.Context) error {
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(cron.Every(s.poll), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		s.Tick(ctx, s.now())
	}))

	s.log.Info("scheduler started",
		logx.String("tz", s.loc.String()),
		logx.Duration("poll", s.poll),
		logx.Int("rules", len(s.rules)),
	)
	s.Tick(ctx, s.now())
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

// cronLogger routes cron's own messages into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
