package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PaymentMetrics 支付/订单指标
type PaymentMetrics struct {
	// 订单创建
	OrderCreateTotal    *prometheus.CounterVec   // 订单创建总数（按订单类型、结果）
	OrderCreateDuration *prometheus.HistogramVec // 订单创建耗时（含支付腿）

	// 支付回调
	CallbackTotal    *prometheus.CounterVec // 回调总数（按订单类型、结果）
	LatePaymentTotal *prometheus.CounterVec // 订单已离开待支付状态后收到的支付成功回调

	// 退款
	RefundTotal *prometheus.CounterVec // 退款总数（按订单类型、结果）

	// 超时清理
	SweepCancelledTotal *prometheus.CounterVec   // 超时取消订单数
	SweepDuration       *prometheus.HistogramVec // 单次清理耗时

	// 外部系统
	GatewayRequestDuration *prometheus.HistogramVec // 网关请求耗时（按网关、操作）
	GatewayErrorTotal      *prometheus.CounterVec   // 网关错误总数（按网关、操作）

	// 分布式锁相关指标
	LockAcquireTotal    *prometheus.CounterVec // 锁获取总数（按结果）
	LockAcquireDuration prometheus.Histogram   // 锁获取耗时
}

// NewPaymentMetrics 创建指标
func NewPaymentMetrics() *PaymentMetrics {
	return &PaymentMetrics{
		OrderCreateTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_payment_order_create_total",
				Help: "Total number of order creations",
			},
			[]string{"kind", "result"}, // result: success/failed
		),
		OrderCreateDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "order_payment_order_create_duration_seconds",
				Help:    "Duration of order creation including the payment leg",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		CallbackTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_payment_callback_total",
				Help: "Total number of gateway callbacks",
			},
			[]string{"kind", "result"}, // result: success/failed/duplicate/rejected
		),
		LatePaymentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_payment_late_payment_total",
				Help: "Paid callbacks received after the order left the awaiting state",
			},
			[]string{"kind"},
		),

		RefundTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_payment_refund_total",
				Help: "Total number of refund attempts",
			},
			[]string{"kind", "result"}, // result: success/queued/failed
		),

		SweepCancelledTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_payment_sweep_cancelled_total",
				Help: "Orders cancelled by the expiry sweep",
			},
			[]string{"kind"},
		),
		SweepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "order_payment_sweep_duration_seconds",
				Help:    "Duration of one sweep tick",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		GatewayRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "order_payment_gateway_request_duration_seconds",
				Help:    "Duration of outbound gateway requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"gateway", "operation"},
		),
		GatewayErrorTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_payment_gateway_error_total",
				Help: "Total number of failed outbound gateway requests",
			},
			[]string{"gateway", "operation"},
		),

		LockAcquireTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_payment_lock_acquire_total",
				Help: "Total number of lock acquisition attempts",
			},
			[]string{"result"}, // result: success/failed
		),
		LockAcquireDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "order_payment_lock_acquire_duration_seconds",
				Help:    "Duration of lock acquisition",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0}, // 毫秒级
			},
		),
	}
}

// 全局指标实例
var defaultMetrics *PaymentMetrics

// InitMetrics 初始化全局指标
func InitMetrics() {
	defaultMetrics = NewPaymentMetrics()
}

// GetMetrics 获取全局指标实例
func GetMetrics() *PaymentMetrics {
	if defaultMetrics == nil {
		InitMetrics()
	}
	return defaultMetrics
}
