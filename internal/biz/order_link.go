package biz

import (
	"context"
	"time"
)

// OrderPaymentLink 订单与支付流水的关联
type OrderPaymentLink struct {
	ID                   string
	OrderID              string
	PaymentTransactionID string
	IsActive             bool
	IsPrimary            bool
	LinkType             string // initial/recreated/refund
	LinkReason           string
	CreatedAt            time.Time
}

// OrderLinkRepo 关联数据层接口（定义在 biz 层）
//
// 同一订单任意时刻至多一条 active+primary 关联。关联被替换时只做失效处理，不删除。
type OrderLinkRepo interface {
	CreateLink(ctx context.Context, link *OrderPaymentLink) error
	// SetPrimaryTransaction 清除订单其余 active 关联的 primary 标记后设置目标关联；目标不存在返回错误
	SetPrimaryTransaction(ctx context.Context, orderID, transactionID string) error
	// DeactivateLinksForOrder 失效订单全部 active 关联（可排除一条流水），返回失效数量
	DeactivateLinksForOrder(ctx context.Context, orderID, excludeTransactionID string) (int64, error)
	GetPrimaryTransactionForOrder(ctx context.Context, orderID string) (*OrderPaymentLink, error)
	GetActiveLinkByTransaction(ctx context.Context, transactionID string) (*OrderPaymentLink, error)
	ListTransactionIDs(ctx context.Context, orderID string, activeOnly bool) ([]string, error)
	DeleteLinksForTransaction(ctx context.Context, transactionID string) error
}
