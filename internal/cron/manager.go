// Package cron schedules the daily emission bookkeeping pass. Rewards are
// issued inline per admitted activity; this job only reconciles and reports.
package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/vcoin-labs/vcoin/pkg/vcoin"
	"go.uber.org/zap"
)

const dailySchedule = "@daily"

// Manager owns the cron engine and the registered jobs.
type Manager struct {
	engine *cron.Cron
	job    *EmissionJob
}

// NewManager wires the engine and the emission job.
func NewManager(job *EmissionJob) *Manager {
	return &Manager{
		engine: cron.New(),
		job:    job,
	}
}

// Start registers the jobs and starts the scheduler.
func (manager *Manager) Start() error {
	if _, err := manager.engine.AddJob(dailySchedule, manager.job); err != nil {
		return err
	}
	manager.engine.Start()
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (manager *Manager) Stop() {
	<-manager.engine.Stop().Done()
}

// EmissionJob logs the previous day's pool usage against the configured daily
// pool, plus the cumulative burned supply.
type EmissionJob struct {
	store  vcoin.Store
	config vcoin.Config
	nowFn  vcoin.Clock
	logger *zap.Logger
}

// NewEmissionJob wires the job.
func NewEmissionJob(store vcoin.Store, config vcoin.Config, now vcoin.Clock, logger *zap.Logger) *EmissionJob {
	return &EmissionJob{store: store, config: config, nowFn: now, logger: logger}
}

// Run implements cron.Job.
func (job *EmissionJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	previousDay := vcoin.DayKey(job.nowFn().UTC().AddDate(0, 0, -1))
	used, err := job.store.PoolUsage(ctx, previousDay)
	if err != nil {
		job.logger.Warn("emission bookkeeping: pool read failed", zap.Error(err))
		return
	}
	burned, err := job.store.BurnedTotal(ctx)
	if err != nil {
		job.logger.Warn("emission bookkeeping: burned total read failed", zap.Error(err))
		return
	}
	job.logger.Info("emission bookkeeping",
		zap.String("day", previousDay),
		zap.Int64("pool_used_micro", used.Int64()),
		zap.Int64("daily_pool_micro", job.config.DailyRewardPoolMicro().Int64()),
		zap.Int64("burned_total_micro", burned.Int64()),
	)
}
