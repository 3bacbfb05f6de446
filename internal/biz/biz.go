package biz

import (
	"context"
	"time"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewPaymentConfig,
	NewPaymentFlow,
	NewProductOrderUseCase,
	NewBookingUseCase,
	NewTicketOrderUseCase,
	NewPaymentCallbackUseCase,
	NewRefundUseCase,
	NewSweepUseCase,
)

// Transaction 数据层事务，fn 内的 ctx 携带事务
type Transaction interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderLocker 订单级分布式锁
type OrderLocker interface {
	// Lock 获取锁，返回的 unlock 必须被调用
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// OrderEventPublisher 订单事件发布（best effort）
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event *OrderEvent) error
	PublishRefundRetry(ctx context.Context, event *RefundRetryEvent) error
}
