package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const defaultJobTimeout = 30 * time.Second

// Job - периодическая задача. Контекст отменяется по таймауту задачи.
type Job func(ctx context.Context) error

// Scheduler запускает фоновые задачи по расписанию cron
type Scheduler struct {
	cron    *cron.Cron
	logger  *logrus.Logger
	timeout time.Duration
}

func NewScheduler(logger *logrus.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		timeout: defaultJobTimeout,
	}
}

// Register добавляет задачу. schedule принимает стандартный формат cron и дескрипторы вида "@every 1m".
func (s *Scheduler) Register(name, schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		log := s.logger.WithField("job", name)
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			log.WithError(err).Error("Scheduled job failed")
			return
		}
		log.WithField("duration", time.Since(start).String()).Debug("Scheduled job finished")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s with schedule %q: %w", name, schedule, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.logger.WithField("jobs", len(s.cron.Entries())).Info("Starting job scheduler...")
	s.cron.Start()
}

// Stop останавливает планировщик и ждет завершения запущенных задач, но не дольше ctx
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Job scheduler stopped.")
	case <-ctx.Done():
		s.logger.Warn("Job scheduler stop timed out, running jobs abandoned")
	}
}

// cronLogger передает сообщения cron в logrus
type cronLogger struct {
	logger *logrus.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}
