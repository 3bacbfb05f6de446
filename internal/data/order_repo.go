package data

import (
	"errors"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/data/model"

	"gorm.io/gorm"
)

// transitionOrder 三类订单共用的条件状态更新：WHERE id = ? AND status IN (from)
func transitionOrder(db *gorm.DB, table interface{}, id string, t *biz.OrderTransition) (bool, error) {
	if len(t.From) == 0 {
		return false, errors.New("order transition requires at least one source status")
	}
	from := make([]string, 0, len(t.From))
	for _, s := range t.From {
		from = append(from, string(s))
	}
	isActive, isPaid, isCanceled, isRefunded := t.To.Flags()
	updates := map[string]interface{}{
		"status":      string(t.To),
		"is_active":   isActive,
		"is_paid":     isPaid,
		"is_canceled": isCanceled,
		"is_refunded": isRefunded,
	}
	if t.PaidAt != nil {
		updates["paid_at"] = *t.PaidAt
	}
	if t.PaidOrder != "" {
		updates["paid_order"] = t.PaidOrder
	}
	if t.CancelReason != "" {
		updates["cancel_reason"] = t.CancelReason
	}
	result := db.Model(table).Where("id = ? AND status IN ?", id, from).Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func toOrderBase(o *biz.Order) model.OrderBase {
	b := model.OrderBase{
		ID:           o.ID,
		UserID:       nullString(o.UserID),
		Status:       string(o.Status),
		Total:        o.Total,
		Email:        o.Email,
		Phone:        o.Phone,
		PaidAt:       o.PaidAt,
		PaidOrder:    o.PaidOrder,
		CancelReason: o.CancelReason,
	}
	b.IsActive, b.IsPaid, b.IsCanceled, b.IsRefunded = o.Status.Flags()
	return b
}

func fromOrderBase(b *model.OrderBase, kind biz.OrderKind) *biz.Order {
	return &biz.Order{
		ID:           b.ID,
		UserID:       derefString(b.UserID),
		Kind:         kind,
		Status:       biz.OrderStatus(b.Status),
		IsActive:     b.IsActive,
		IsPaid:       b.IsPaid,
		IsCanceled:   b.IsCanceled,
		IsRefunded:   b.IsRefunded,
		Total:        b.Total,
		Email:        b.Email,
		Phone:        b.Phone,
		PaidAt:       b.PaidAt,
		PaidOrder:    b.PaidOrder,
		CancelReason: b.CancelReason,
		CreatedAt:    b.CreatedAt,
	}
}

func firstOrNil(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
