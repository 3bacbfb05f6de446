package data

import (
	"context"
	"errors"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/data/model"

	paymentErrors "order-payment-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

type orderLinkRepo struct {
	data *Data
	log  *log.Helper
}

// NewOrderLinkRepo 创建订单-流水关联 repo
func NewOrderLinkRepo(data *Data, logger log.Logger) biz.OrderLinkRepo {
	return &orderLinkRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreateLink 新建 active+primary 关联时同时清除该订单其余关联的 primary 标记
func (r *orderLinkRepo) CreateLink(ctx context.Context, link *biz.OrderPaymentLink) error {
	return r.data.InTx(ctx, func(ctx context.Context) error {
		db := r.data.DB(ctx)
		if link.IsPrimary && link.IsActive {
			if err := db.Model(&model.OrderPaymentLink{}).
				Where("order_id = ? AND is_active = ? AND is_primary = ?", link.OrderID, true, true).
				Update("is_primary", false).Error; err != nil {
				return err
			}
		}
		m := &model.OrderPaymentLink{
			ID:                   link.ID,
			OrderID:              link.OrderID,
			PaymentTransactionID: link.PaymentTransactionID,
			IsActive:             link.IsActive,
			IsPrimary:            link.IsPrimary,
			LinkType:             link.LinkType,
			LinkReason:           link.LinkReason,
		}
		if err := db.Create(m).Error; err != nil {
			return err
		}
		link.CreatedAt = m.CreatedAt
		return nil
	})
}

// SetPrimaryTransaction 目标关联必须存在且 active
func (r *orderLinkRepo) SetPrimaryTransaction(ctx context.Context, orderID, transactionID string) error {
	return r.data.InTx(ctx, func(ctx context.Context) error {
		db := r.data.DB(ctx)
		var target model.OrderPaymentLink
		if err := db.Where("order_id = ? AND payment_transaction_id = ? AND is_active = ?", orderID, transactionID, true).
			First(&target).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return paymentErrors.Validation("no active link for order %s and transaction %s", orderID, transactionID)
			}
			return err
		}
		if err := db.Model(&model.OrderPaymentLink{}).
			Where("order_id = ? AND is_active = ? AND id <> ?", orderID, true, target.ID).
			Update("is_primary", false).Error; err != nil {
			return err
		}
		return db.Model(&target).Update("is_primary", true).Error
	})
}

// DeactivateLinksForOrder 只失效不删除，保留历史
func (r *orderLinkRepo) DeactivateLinksForOrder(ctx context.Context, orderID, excludeTransactionID string) (int64, error) {
	q := r.data.DB(ctx).Model(&model.OrderPaymentLink{}).
		Where("order_id = ? AND is_active = ?", orderID, true)
	if excludeTransactionID != "" {
		q = q.Where("payment_transaction_id <> ?", excludeTransactionID)
	}
	result := q.Update("is_active", false)
	return result.RowsAffected, result.Error
}

func (r *orderLinkRepo) GetPrimaryTransactionForOrder(ctx context.Context, orderID string) (*biz.OrderPaymentLink, error) {
	return r.first(ctx, "order_id = ? AND is_active = ? AND is_primary = ?", orderID, true, true)
}

func (r *orderLinkRepo) GetActiveLinkByTransaction(ctx context.Context, transactionID string) (*biz.OrderPaymentLink, error) {
	return r.first(ctx, "payment_transaction_id = ? AND is_active = ?", transactionID, true)
}

func (r *orderLinkRepo) first(ctx context.Context, query string, args ...interface{}) (*biz.OrderPaymentLink, error) {
	var m model.OrderPaymentLink
	if err := r.data.DB(ctx).Where(query, args...).Order("created_at DESC").First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toBizLink(&m), nil
}

func (r *orderLinkRepo) ListTransactionIDs(ctx context.Context, orderID string, activeOnly bool) ([]string, error) {
	q := r.data.DB(ctx).Model(&model.OrderPaymentLink{}).Where("order_id = ?", orderID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var ids []string
	if err := q.Pluck("payment_transaction_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteLinksForTransaction 硬删除，仅用于出错回滚
func (r *orderLinkRepo) DeleteLinksForTransaction(ctx context.Context, transactionID string) error {
	return r.data.DB(ctx).Unscoped().Delete(&model.OrderPaymentLink{}, "payment_transaction_id = ?", transactionID).Error
}

func toBizLink(m *model.OrderPaymentLink) *biz.OrderPaymentLink {
	return &biz.OrderPaymentLink{
		ID:                   m.ID,
		OrderID:              m.OrderID,
		PaymentTransactionID: m.PaymentTransactionID,
		IsActive:             m.IsActive,
		IsPrimary:            m.IsPrimary,
		LinkType:             m.LinkType,
		LinkReason:           m.LinkReason,
		CreatedAt:            m.CreatedAt,
	}
}
