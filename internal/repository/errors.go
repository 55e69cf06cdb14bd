package repository

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/resqlink/internal/apperr"
	"go.mongodb.org/mongo-driver/mongo"
)

// storeErr переводит ошибку драйвера в ошибку приложения.
// Таймауты и обрывы соединения становятся CodeUnavailable, остальное оборачивается как есть.
func storeErr(op string, err error) error {
	if isUnavailable(err) {
		return apperr.Unavailable(fmt.Sprintf("failed to %s: store unavailable", op), err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.SafeToRetry(err) {
		return true
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}
	if errors.Is(err, mongo.ErrClientDisconnected) || errors.Is(err, redis.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
