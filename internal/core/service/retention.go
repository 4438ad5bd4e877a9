package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RetentionJob remove periodicamente execuções terminais antigas
type RetentionJob struct {
	engine  *Engine
	maxAge  time.Duration
	timeout time.Duration
	cron    *cron.Cron
	logger  *zap.Logger
}

// NewRetentionJob schedule no formato do robfig/cron ("@every 1h", "0 3 * * *")
func NewRetentionJob(engine *Engine, schedule string, maxAge time.Duration, logger *zap.Logger) (*RetentionJob, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention max age must be positive, got %s", maxAge)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	j := &RetentionJob{
		engine:  engine,
		maxAge:  maxAge,
		timeout: time.Minute,
		cron:    cron.New(),
		logger:  logger.With(zap.String("component", "retention")),
	}
	if _, err := j.cron.AddFunc(schedule, j.tick); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Run executa uma limpeza agora
func (j *RetentionJob) Run(ctx context.Context) (int, error) {
	return j.engine.CleanupCompleted(ctx, j.maxAge)
}

func (j *RetentionJob) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if _, err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup failed", zap.Error(err))
	}
}

func (j *RetentionJob) Start() {
	j.cron.Start()
	j.logger.Info("retention job started", zap.Duration("max_age", j.maxAge))
}

// Stop espera a limpeza em andamento terminar
func (j *RetentionJob) Stop() {
	<-j.cron.Stop().Done()
}
