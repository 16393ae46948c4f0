package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/teranga-edu/gesco-api/pkg/jobs"
)

type warmRequest struct {
	ClassID string
	Term    int
}

// RankingWarmer recomputes class rankings in the background after grade
// writes, so the next read lands on a warm cache instead of paying the full
// computation. Warm-up is best-effort; a dropped task only costs latency.
type RankingWarmer struct {
	averages   *AverageService
	schoolYear string
	runner     *jobs.Runner
	logger     *zap.Logger
}

// NewRankingWarmer constructs a RankingWarmer backed by a task runner.
func NewRankingWarmer(averages *AverageService, schoolYear string, cfg jobs.RunnerConfig, logger *zap.Logger) *RankingWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &RankingWarmer{
		averages:   averages,
		schoolYear: schoolYear,
		logger:     logger,
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	w.runner = jobs.NewRunner("ranking-warmup", w.handle, cfg)
	return w
}

// Start launches the background workers.
func (w *RankingWarmer) Start(ctx context.Context) {
	w.runner.Start(ctx)
}

// Stop drains the workers.
func (w *RankingWarmer) Stop() {
	w.runner.Stop()
}

// WarmClass enqueues a ranking recomputation for every term of the class.
func (w *RankingWarmer) WarmClass(classID string) {
	if classID == "" {
		return
	}
	for term := 1; term <= 3; term++ {
		task := jobs.Task{
			ID:      fmt.Sprintf("%s-T%d", classID, term),
			Kind:    "class-ranking",
			Payload: warmRequest{ClassID: classID, Term: term},
		}
		if err := w.runner.Enqueue(task); err != nil {
			w.logger.Debug("ranking warm-up skipped", zap.String("class_id", classID), zap.Int("term", term), zap.Error(err))
		}
	}
}

func (w *RankingWarmer) handle(ctx context.Context, task jobs.Task) error {
	req, ok := task.Payload.(warmRequest)
	if !ok {
		w.logger.Warn("ranking warm-up task carried unexpected payload", zap.String("task_id", task.ID))
		return nil
	}
	_, err := w.averages.ClassRanking(ctx, req.ClassID, req.Term, w.schoolYear)
	return err
}
