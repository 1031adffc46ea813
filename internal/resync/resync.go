// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package resync runs the periodic anti-entropy pass of the manager
package resync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reugn/go-quartz/job"
	quartzlogger "github.com/reugn/go-quartz/logger"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/atomic"

	"github.com/tochemey/cellar/log"
)

const jobKey = "cellar.resync"

// Task is the unit of work executed at every tick
type Task func(ctx context.Context) error

// Scheduler executes a Task at a fixed interval
type Scheduler struct {
	mu sync.Mutex
	// underlying scheduler
	quartzScheduler quartz.Scheduler
	started         *atomic.Bool
	interval        time.Duration
	stopTimeout     time.Duration
	task            Task
	logger          log.Logger
}

// New creates a stopped Scheduler
func New(interval, stopTimeout time.Duration, task Task, logger log.Logger) *Scheduler {
	// create an instance of quartz scheduler with logger off
	quartzScheduler, _ := quartz.NewStdScheduler(quartz.WithLogger(quartzlogger.NewSimpleLogger(nil, quartzlogger.LevelOff)))
	if logger == nil {
		logger = log.DiscardLogger
	}
	return &Scheduler{
		quartzScheduler: quartzScheduler,
		started:         atomic.NewBool(false),
		interval:        interval,
		stopTimeout:     stopTimeout,
		task:            task,
		logger:          logger,
	}
}

// Start starts the scheduler and registers the task.
// Calling Start on a running scheduler is a no-op.
func (x *Scheduler) Start(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.started.Load() {
		return nil
	}

	if x.interval <= 0 {
		return fmt.Errorf("resync: invalid interval %s", x.interval)
	}

	x.quartzScheduler.Start(ctx)
	functionJob := job.NewFunctionJob[bool](
		func(ctx context.Context) (bool, error) {
			if err := x.task(ctx); err != nil {
				x.logger.Warnf("resync: periodic pass failed: %v", err)
				return false, err
			}
			return true, nil
		},
	)

	detail := quartz.NewJobDetail(functionJob, quartz.NewJobKey(jobKey))
	if err := x.quartzScheduler.ScheduleJob(detail, quartz.NewSimpleTrigger(x.interval)); err != nil {
		x.quartzScheduler.Stop()
		return fmt.Errorf("resync: failed to schedule task: %w", err)
	}

	x.started.Store(x.quartzScheduler.IsStarted())
	x.logger.Debugf("resync: periodic pass scheduled every %s", x.interval)
	return nil
}

// Stop clears the scheduled task and waits for an in-flight run
func (x *Scheduler) Stop(ctx context.Context) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.started.Load() {
		return
	}

	_ = x.quartzScheduler.Clear()
	x.quartzScheduler.Stop()
	x.started.Store(false)

	ctx, cancel := context.WithTimeout(ctx, x.stopTimeout)
	defer cancel()
	x.quartzScheduler.Wait(ctx)
}

// IsRunning reports whether the task is scheduled
func (x *Scheduler) IsRunning() bool {
	return x.started.Load()
}
