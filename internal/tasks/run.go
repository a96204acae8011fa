package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"immowatch/internal/eventbus"
	"immowatch/internal/storage"
	logx "immowatch/pkg/logx"
)

// Groups fired by the scheduler.
const (
	GroupWatch  = "watch"
	GroupReport = "report"
)

// Single tasks, runnable from the dashboard and the CLI.
const (
	TaskCollect = "collect"
	TaskVerify  = "verify"
	TaskMarket  = "market"
	TaskReport  = "send-report"
)

// Who asked for a run.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
)

var ErrUnknownTask = errors.New("unknown task")

// Names lists every group and task Run accepts.
func Names() []string {
	return []string{GroupWatch, GroupReport, TaskCollect, TaskVerify, TaskMarket, TaskReport}
}

// IsGroup reports whether name is a schedulable group.
func IsGroup(name string) bool { return name == GroupWatch || name == GroupReport }

// Run executes a group or single task. It publishes start and finish
// events; a panic inside the task is returned as an error.
func (c *Catalog) Run(ctx context.Context, name, trigger string) (err error) {
	fn, ok := c.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	rec := storage.RunRecord{RunID: uuid.NewString(), Task: name, Trigger: trigger, At: c.Now()}
	log := c.log.With(logx.String("task", name), logx.String("run_id", rec.RunID), logx.String("trigger", trigger))
	c.publish(eventbus.TaskStarted, rec)
	log.Debug("task started")

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("%s: panic: %v", name, r)
		}
		rec.TookMS = time.Since(start).Milliseconds()
		rec.OK = err == nil
		if err != nil {
			rec.Error = err.Error()
			log.Warn("task failed", logx.Int64("took_ms", rec.TookMS), logx.Err(err))
		} else {
			log.Info("task finished", logx.Int64("took_ms", rec.TookMS))
		}
		c.publish(eventbus.TaskFinished, rec)
	}()
	return fn(ctx)
}

func (c *Catalog) lookup(name string) (func(ctx context.Context) error, bool) {
	switch name {
	case GroupWatch:
		return func(ctx context.Context) error {
			_, err := c.CollectListings(ctx)
			c.VerifyPresence(ctx)
			return err
		}, true
	case GroupReport:
		return func(ctx context.Context) error {
			c.AnalyzeMarket(ctx)
			_, err := c.SendDailyReport(ctx)
			return err
		}, true
	case TaskCollect:
		return func(ctx context.Context) error {
			_, err := c.CollectListings(ctx)
			return err
		}, true
	case TaskVerify:
		return func(ctx context.Context) error { c.VerifyPresence(ctx); return nil }, true
	case TaskMarket:
		return func(ctx context.Context) error { c.AnalyzeMarket(ctx); return nil }, true
	case TaskReport:
		return func(ctx context.Context) error {
			_, err := c.SendDailyReport(ctx)
			return err
		}, true
	}
	return nil, false
}

func (c *Catalog) publish(typ string, rec storage.RunRecord) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventbus.Event{Type: typ, Time: c.Now(), Data: rec})
}
