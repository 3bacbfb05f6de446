package data

import (
	"context"
	"time"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
)

type bookingRepo struct {
	data *Data
	log  *log.Helper
}

// NewBookingRepo 创建场地预订 repo
func NewBookingRepo(data *Data, logger log.Logger) biz.BookingRepo {
	return &bookingRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

func (r *bookingRepo) CreateBooking(ctx context.Context, o *biz.Order) error {
	m := &model.BookingFieldPartyRequest{
		OrderBase:  toOrderBase(o),
		ScheduleID: o.Booking.ScheduleID,
		StartAt:    o.Booking.StartAt,
		PaidUntil:  o.PaidUntil,
	}
	return r.data.DB(ctx).Create(m).Error
}

func (r *bookingRepo) GetOrder(ctx context.Context, id string) (*biz.Order, error) {
	var m model.BookingFieldPartyRequest
	if err := r.data.DB(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, firstOrNil(err)
	}
	return r.toBiz(&m), nil
}

func (r *bookingRepo) TransitionOrder(ctx context.Context, id string, t *biz.OrderTransition) (bool, error) {
	return transitionOrder(r.data.DB(ctx), &model.BookingFieldPartyRequest{}, id, t)
}

// ListExpiredOrders 支付期限已过或已开场
func (r *bookingRepo) ListExpiredOrders(ctx context.Context, now time.Time, limit int) ([]*biz.Order, error) {
	var ms []*model.BookingFieldPartyRequest
	if err := r.data.DB(ctx).
		Where("status = ?", string(biz.OrderStatusCreatedAwaitingPayment)).
		Where("paid_until < ? OR start_at < ?", now, now).
		Order("created_at").Limit(limit).Find(&ms).Error; err != nil {
		return nil, err
	}
	orders := make([]*biz.Order, 0, len(ms))
	for _, m := range ms {
		orders = append(orders, r.toBiz(m))
	}
	return orders, nil
}

func (r *bookingRepo) DeleteOrder(ctx context.Context, id string) error {
	return r.data.DB(ctx).Unscoped().Delete(&model.BookingFieldPartyRequest{}, "id = ?", id).Error
}

func (r *bookingRepo) GetScheduleSlot(ctx context.Context, id string) (*biz.ScheduleSlot, error) {
	var m model.FieldPartySchedule
	if err := r.data.DB(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, firstOrNil(err)
	}
	return &biz.ScheduleSlot{
		ID:       m.ID,
		StartAt:  m.StartAt,
		Price:    m.Price,
		IsActive: m.IsActive,
	}, nil
}

// HasLiveBooking 排期上是否存在待支付或已支付的预订
func (r *bookingRepo) HasLiveBooking(ctx context.Context, scheduleID string) (bool, error) {
	var count int64
	err := r.data.DB(ctx).Model(&model.BookingFieldPartyRequest{}).
		Where("schedule_id = ? AND status IN ?", scheduleID, []string{
			string(biz.OrderStatusCreatedAwaitingPayment),
			string(biz.OrderStatusPaid),
		}).
		Count(&count).Error
	return count > 0, err
}

func (r *bookingRepo) toBiz(m *model.BookingFieldPartyRequest) *biz.Order {
	o := fromOrderBase(&m.OrderBase, biz.OrderKindBooking)
	o.PaidUntil = m.PaidUntil
	o.Booking = &biz.BookingDetails{ScheduleID: m.ScheduleID, StartAt: m.StartAt}
	return o
}
