package scheduler

import (
	"context"
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Job is a periodic task run by the Manager.
type Job interface {
	Name() string
	Schedule() gocron.JobDefinition
	Run(ctx context.Context)
}

// Manager 包装 gocron 调度器，每个任务单例运行
type Manager struct {
	scheduler gocron.Scheduler
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewManager(logger *zap.Logger) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{scheduler: s, logger: logger, ctx: ctx, cancel: cancel}, nil
}

// Register adds jobs. A slow run is rescheduled rather than overlapped.
func (m *Manager) Register(jobs ...Job) error {
	for _, job := range jobs {
		job := job // per-iteration copy; go.mod targets go1.21 loop semantics
		_, err := m.scheduler.NewJob(
			job.Schedule(),
			gocron.NewTask(func() { job.Run(m.ctx) }),
			gocron.WithName(job.Name()),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("register job %s: %w", job.Name(), err)
		}
		m.logger.Info("Scheduled job registered", zap.String("job", job.Name()))
	}
	return nil
}

func (m *Manager) Start() {
	m.scheduler.Start()
}

// Stop cancels running jobs and waits for the scheduler to drain.
func (m *Manager) Stop() {
	m.cancel()
	if err := m.scheduler.Shutdown(); err != nil {
		m.logger.Error("Failed to shutdown scheduler", zap.Error(err))
	}
}
