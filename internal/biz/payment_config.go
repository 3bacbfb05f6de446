package biz

import (
	"time"

	"order-payment-service/internal/conf"
)

// refundLockMargin 退款锁在外部调用耗时之外预留的时间（数据库读写、调度抖动）
const refundLockMargin = 10 * time.Second

// PaymentConfig 订单/支付业务配置
type PaymentConfig struct {
	PaymentWindow    time.Duration // 商品订单/场地预约的支付期限
	RefundLockTTL    time.Duration // 退款锁过期时间，不小于 RefundCallBudget + refundLockMargin
	RefundCallBudget time.Duration // 退款临界区内外部调用的最坏耗时
	SweepBatchSize   int           // 单次清理的订单数上限
}

// NewPaymentConfig 从配置创建 PaymentConfig
func NewPaymentConfig(c *conf.Bootstrap) *PaymentConfig {
	config := &PaymentConfig{
		PaymentWindow:  24 * time.Hour,   // 默认值
		RefundLockTTL:  30 * time.Second, // 默认值
		SweepBatchSize: 100,              // 默认值
	}
	if c.Payment != nil && c.Payment.Order != nil {
		// 从配置读取，如果未配置则使用默认值
		if d := c.Payment.Order.PaymentWindow.AsDuration(); d > 0 {
			config.PaymentWindow = d
		}
		if d := c.Payment.Order.RefundLockTTL.AsDuration(); d > 0 {
			config.RefundLockTTL = d
		}
		if c.Payment.Order.SweepBatchSize > 0 {
			config.SweepBatchSize = int(c.Payment.Order.SweepBatchSize)
		}
	}

	// 锁不续期，TTL 必须覆盖整个退款临界区
	config.RefundCallBudget = refundCallBudget(c)
	if floor := config.RefundCallBudget + refundLockMargin; config.RefundLockTTL < floor {
		config.RefundLockTTL = floor
	}
	return config
}

// refundCallBudget 票务 CheckOrder + 退票/取消占座，网关状态查询 + 退款请求
func refundCallBudget(c *conf.Bootstrap) time.Duration {
	var p conf.Payment
	if c.Payment != nil {
		p = *c.Payment
	}
	return 2*p.Ticketon.ClientTimeout() + 2*p.AlatauPay.ClientTimeout()
}
