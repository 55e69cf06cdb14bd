package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/resqlink/internal/metrics"
	"github.com/shenikar/resqlink/internal/ratelimit"
	"github.com/shenikar/resqlink/internal/service"
	"github.com/sirupsen/logrus"
)

// StatsRefresh обновляет метрики инцидентов по сводке сервиса
func StatsRefresh(svc service.IncidentService, m *metrics.Metrics) Job {
	return func(ctx context.Context) error {
		stats, err := svc.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to refresh incident stats: %w", err)
		}
		m.RecordIncidentStats(stats)
		return nil
	}
}

// LimiterPrune забывает клиентов, которые не обращались к API дольше idle
func LimiterPrune(l *ratelimit.ClientLimiter, idle time.Duration, logger *logrus.Logger) Job {
	return func(ctx context.Context) error {
		if removed := l.Prune(idle); removed > 0 {
			logger.WithFields(logrus.Fields{
				"removed":   removed,
				"remaining": l.Len(),
			}).Debug("Pruned idle rate limiter clients")
		}
		return nil
	}
}

// PoolStats снимает статистику пула соединений postgres
func PoolStats(pool *pgxpool.Pool, m *metrics.Metrics) Job {
	return func(ctx context.Context) error {
		stat := pool.Stat()
		m.RecordPoolStats(stat.TotalConns(), stat.AcquiredConns(), stat.IdleConns())
		return nil
	}
}
