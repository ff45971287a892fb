// Package worker wraps asynq's mux for the pipeline's task handlers, the
// video generation run and its delayed artifact cleanup.
package worker

import (
	"context"

	"github.com/hibiken/asynq"

	"reelforge/internal/logger"
)

type Mux struct {
	mux *asynq.ServeMux
	log *logger.Logger
}

func NewMux() *Mux {
	m := &Mux{mux: asynq.NewServeMux(), log: logger.New("Worker")}
	m.mux.Use(m.logFailures)
	return m
}

func (m *Mux) HandleFunc(taskType string, h func(ctx context.Context, task *asynq.Task) error) {
	m.mux.HandleFunc(taskType, h)
}

func (m *Mux) Mux() *asynq.ServeMux { return m.mux }

// logFailures surfaces handler errors before asynq schedules the retry.
func (m *Mux) logFailures(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		err := next.ProcessTask(ctx, t)
		if err != nil {
			m.log.LogErrorf("task %s failed: %v", t.Type(), err)
		}
		return err
	})
}
