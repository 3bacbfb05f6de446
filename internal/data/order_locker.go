package data

import (
	"context"
	"time"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/constants"
	"order-payment-service/internal/metrics"

	paymentErrors "order-payment-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
)

type orderLocker struct {
	sync    *redsync.Redsync
	log     *log.Helper
	metrics *metrics.PaymentMetrics
}

// NewOrderLocker 基于 redsync 的订单锁；sync 为 nil 时不加锁
func NewOrderLocker(sync *redsync.Redsync, logger log.Logger) biz.OrderLocker {
	return &orderLocker{
		sync:    sync,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// Lock 只尝试一次，锁被占用时返回 Locked 错误
func (l *orderLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l.sync == nil {
		return func() {}, nil
	}
	lockStartTime := time.Now()
	mutex := l.sync.NewMutex(key, redsync.WithExpiry(ttl), redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		l.log.Warnf("Failed to acquire order lock: key=%s, error=%v", key, err)
		if l.metrics != nil {
			l.metrics.LockAcquireTotal.WithLabelValues(constants.ResultFailed).Inc()
			l.metrics.LockAcquireDuration.Observe(time.Since(lockStartTime).Seconds())
		}
		return nil, paymentErrors.Locked("order is being processed: %s", key)
	}
	if l.metrics != nil {
		l.metrics.LockAcquireTotal.WithLabelValues(constants.ResultSuccess).Inc()
		l.metrics.LockAcquireDuration.Observe(time.Since(lockStartTime).Seconds())
	}
	return func() {
		if ok, err := mutex.Unlock(); !ok || err != nil {
			l.log.Warnf("Failed to release order lock: key=%s, error=%v", key, err)
		}
	}, nil
}
