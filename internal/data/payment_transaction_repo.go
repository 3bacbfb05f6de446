package data

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jaevor/go-nanoid"
	"gorm.io/gorm"
)

const (
	digitAlphabet = "0123456789"
	nonceAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

type paymentTransactionRepo struct {
	data *Data
	log  *log.Helper
	// draw 生成指定字母表与长度的随机串
	draw func(alphabet string, length int) (string, error)
}

// NewPaymentTransactionRepo 创建支付流水 repo
func NewPaymentTransactionRepo(data *Data, logger log.Logger) biz.PaymentTransactionRepo {
	return &paymentTransactionRepo{
		data: data,
		log:  log.NewHelper(logger),
		draw: drawNanoid,
	}
}

func drawNanoid(alphabet string, length int) (string, error) {
	gen, err := nanoid.CustomASCII(alphabet, length)
	if err != nil {
		return "", err
	}
	return gen(), nil
}

func (r *paymentTransactionRepo) CreateTransaction(ctx context.Context, pt *biz.PaymentTransaction) error {
	m := &model.PaymentTransaction{
		ID:              pt.ID,
		UserID:          nullString(pt.UserID),
		Status:          string(pt.Status),
		TransactionType: string(pt.TransactionType),
		OrderNumber:     pt.Order,
		Nonce:           pt.Nonce,
		Amount:          pt.Amount,
		Currency:        pt.Currency,
		Merchant:        pt.Merchant,
		ExpiredAt:       pt.ExpiredAt,
		PrePSign:        pt.PrePSign,
		OrderFullInfo:   []byte(pt.OrderFullInfo),
	}
	m.IsActive, m.IsPaid, m.IsCanceled = pt.Status.Flags()
	if err := r.data.DB(ctx).Create(m).Error; err != nil {
		return err
	}
	pt.IsActive, pt.IsPaid, pt.IsCanceled = m.IsActive, m.IsPaid, m.IsCanceled
	pt.CreatedAt, pt.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return nil
}

func (r *paymentTransactionRepo) GetTransaction(ctx context.Context, id string) (*biz.PaymentTransaction, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *paymentTransactionRepo) GetTransactionByOrder(ctx context.Context, order string) (*biz.PaymentTransaction, error) {
	return r.first(ctx, "order_number = ?", order)
}

func (r *paymentTransactionRepo) first(ctx context.Context, query string, args ...interface{}) (*biz.PaymentTransaction, error) {
	var m model.PaymentTransaction
	if err := r.data.DB(ctx).Where(query, args...).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toBizTransaction(&m), nil
}

// GenerateUniqueOrder 随机长度的数字串，直到找到未被占用的值
func (r *paymentTransactionRepo) GenerateUniqueOrder(ctx context.Context, minLen, maxLen int) (string, error) {
	return r.generateUnique(ctx, "order_number", digitAlphabet, minLen, maxLen)
}

func (r *paymentTransactionRepo) GenerateUniqueNonce(ctx context.Context, minLen, maxLen int) (string, error) {
	return r.generateUnique(ctx, "nonce", nonceAlphabet, minLen, maxLen)
}

func (r *paymentTransactionRepo) generateUnique(ctx context.Context, column, alphabet string, minLen, maxLen int) (string, error) {
	if minLen <= 0 || maxLen < minLen {
		return "", fmt.Errorf("invalid length range [%d, %d]", minLen, maxLen)
	}
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		value, err := r.draw(alphabet, minLen+rand.IntN(maxLen-minLen+1))
		if err != nil {
			return "", err
		}
		var count int64
		// 软删除的记录仍占用唯一索引
		if err := r.data.DB(ctx).Unscoped().Model(&model.PaymentTransaction{}).
			Where(column+" = ?", value).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return value, nil
		}
		r.log.Warnf("Generated %s collided, retrying: attempt=%d", column, attempt)
	}
}

// ApplyGatewayResult 写入回调结果，仅 awaiting_payment 时生效
func (r *paymentTransactionRepo) ApplyGatewayResult(ctx context.Context, id string, status biz.TransactionStatus, res *biz.GatewayResult) (bool, error) {
	if !biz.TransactionStatusAwaitingPayment.CanTransition(status) || status == biz.TransactionStatusCancelled {
		return false, fmt.Errorf("gateway result cannot move transaction to %s", status)
	}
	isActive, isPaid, isCanceled := status.Flags()
	updates := map[string]interface{}{
		"status":      string(status),
		"is_active":   isActive,
		"is_paid":     isPaid,
		"is_canceled": isCanceled,
		"mpi_order":   res.MpiOrder,
		"rrn":         res.Rrn,
		"res_code":    res.ResCode,
		"res_desc":    res.ResDesc,
	}
	if status == biz.TransactionStatusPaid {
		updates["paid_p_sign"] = res.Sign
	} else {
		updates["cancel_p_sign"] = res.Sign
	}
	result := r.data.DB(ctx).Model(&model.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, string(biz.TransactionStatusAwaitingPayment)).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// TransitionTransaction 条件状态变更
func (r *paymentTransactionRepo) TransitionTransaction(ctx context.Context, id string, from, to biz.TransactionStatus, patch *biz.TransactionPatch) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("invalid transaction transition %s -> %s", from, to)
	}
	isActive, isPaid, isCanceled := to.Flags()
	updates := map[string]interface{}{
		"status":      string(to),
		"is_active":   isActive,
		"is_paid":     isPaid,
		"is_canceled": isCanceled,
	}
	if patch != nil {
		if patch.RevAmount != nil {
			updates["rev_amount"] = *patch.RevAmount
		}
		if patch.RevDesc != nil {
			updates["rev_desc"] = *patch.RevDesc
		}
		if patch.CancelPSign != nil {
			updates["cancel_p_sign"] = *patch.CancelPSign
		}
	}
	result := r.data.DB(ctx).Model(&model.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CancelAwaitingTransactions 批量取消，已有终态的流水不受影响
func (r *paymentTransactionRepo) CancelAwaitingTransactions(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	isActive, isPaid, isCanceled := biz.TransactionStatusCancelled.Flags()
	result := r.data.DB(ctx).Model(&model.PaymentTransaction{}).
		Where("id IN ? AND status = ?", ids, string(biz.TransactionStatusAwaitingPayment)).
		Updates(map[string]interface{}{
			"status":      string(biz.TransactionStatusCancelled),
			"is_active":   isActive,
			"is_paid":     isPaid,
			"is_canceled": isCanceled,
		})
	return result.RowsAffected, result.Error
}

// DeleteTransaction 硬删除，仅用于出错回滚
func (r *paymentTransactionRepo) DeleteTransaction(ctx context.Context, id string) error {
	return r.data.DB(ctx).Unscoped().Delete(&model.PaymentTransaction{}, "id = ?", id).Error
}

func toBizTransaction(m *model.PaymentTransaction) *biz.PaymentTransaction {
	return &biz.PaymentTransaction{
		ID:              m.ID,
		UserID:          derefString(m.UserID),
		Status:          biz.TransactionStatus(m.Status),
		TransactionType: biz.OrderKind(m.TransactionType),
		Order:           m.OrderNumber,
		Nonce:           m.Nonce,
		MpiOrder:        m.MpiOrder,
		Rrn:             m.Rrn,
		Amount:          m.Amount,
		Currency:        m.Currency,
		Merchant:        m.Merchant,
		IsActive:        m.IsActive,
		IsPaid:          m.IsPaid,
		IsCanceled:      m.IsCanceled,
		ExpiredAt:       m.ExpiredAt,
		ResCode:         m.ResCode,
		ResDesc:         m.ResDesc,
		RevAmount:       m.RevAmount,
		RevDesc:         m.RevDesc,
		PrePSign:        m.PrePSign,
		PaidPSign:       m.PaidPSign,
		CancelPSign:     m.CancelPSign,
		OrderFullInfo:   []byte(m.OrderFullInfo),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
