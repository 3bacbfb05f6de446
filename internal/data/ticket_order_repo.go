package data

import (
	"context"
	"encoding/json"
	"time"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
)

type ticketOrderRepo struct {
	data *Data
	log  *log.Helper
}

// NewTicketOrderRepo 创建票务订单 repo
func NewTicketOrderRepo(data *Data, logger log.Logger) biz.TicketOrderRepo {
	return &ticketOrderRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

func (r *ticketOrderRepo) CreateTicketOrder(ctx context.Context, o *biz.Order) error {
	seats, err := json.Marshal(o.Ticket.Seats)
	if err != nil {
		return err
	}
	m := &model.TicketonOrder{
		OrderBase:      toOrderBase(o),
		Sale:           o.Ticket.Sale,
		Show:           o.Ticket.Show,
		Seats:          seats,
		ReservationID:  o.Ticket.ReservationID,
		Lang:           o.Ticket.Lang,
		Expire:         o.Ticket.Expire,
		ExpiredAt:      o.PaidUntil,
		IsConfirmed:    o.Ticket.IsConfirmed,
		BrokerRefunded: o.Ticket.BrokerRefunded,
	}
	if len(o.Ticket.Tickets) > 0 {
		m.Tickets = []byte(o.Ticket.Tickets)
	}
	return r.data.DB(ctx).Create(m).Error
}

func (r *ticketOrderRepo) GetOrder(ctx context.Context, id string) (*biz.Order, error) {
	var m model.TicketonOrder
	if err := r.data.DB(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, firstOrNil(err)
	}
	return r.toBiz(&m), nil
}

func (r *ticketOrderRepo) TransitionOrder(ctx context.Context, id string, t *biz.OrderTransition) (bool, error) {
	return transitionOrder(r.data.DB(ctx), &model.TicketonOrder{}, id, t)
}

// ListExpiredOrders 票务系统保留时间已过的待支付订单
func (r *ticketOrderRepo) ListExpiredOrders(ctx context.Context, now time.Time, limit int) ([]*biz.Order, error) {
	var ms []*model.TicketonOrder
	if err := r.data.DB(ctx).
		Where("status = ? AND expired_at < ?", string(biz.OrderStatusBookingCreated), now).
		Order("expired_at").Limit(limit).Find(&ms).Error; err != nil {
		return nil, err
	}
	return r.toBizList(ms), nil
}

func (r *ticketOrderRepo) DeleteOrder(ctx context.Context, id string) error {
	return r.data.DB(ctx).Unscoped().Delete(&model.TicketonOrder{}, "id = ?", id).Error
}

func (r *ticketOrderRepo) ConfirmTicketOrder(ctx context.Context, id string, tickets json.RawMessage) (bool, error) {
	isActive, isPaid, isCanceled, isRefunded := biz.OrderStatusPaidConfirmed.Flags()
	updates := map[string]interface{}{
		"status":       string(biz.OrderStatusPaidConfirmed),
		"is_active":    isActive,
		"is_paid":      isPaid,
		"is_canceled":  isCanceled,
		"is_refunded":  isRefunded,
		"is_confirmed": true,
	}
	if len(tickets) > 0 {
		updates["tickets"] = []byte(tickets)
	}
	result := r.data.DB(ctx).Model(&model.TicketonOrder{}).
		Where("id = ? AND status = ?", id, string(biz.OrderStatusPaidAwaitingConfirmation)).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *ticketOrderRepo) MarkBrokerRefunded(ctx context.Context, id string) error {
	return r.data.DB(ctx).Model(&model.TicketonOrder{}).
		Where("id = ?", id).
		Update("broker_refunded", true).Error
}

func (r *ticketOrderRepo) ListAwaitingConfirmation(ctx context.Context, limit int) ([]*biz.Order, error) {
	var ms []*model.TicketonOrder
	if err := r.data.DB(ctx).
		Where("status = ?", string(biz.OrderStatusPaidAwaitingConfirmation)).
		Order("paid_at").Limit(limit).Find(&ms).Error; err != nil {
		return nil, err
	}
	return r.toBizList(ms), nil
}

func (r *ticketOrderRepo) toBizList(ms []*model.TicketonOrder) []*biz.Order {
	orders := make([]*biz.Order, 0, len(ms))
	for _, m := range ms {
		orders = append(orders, r.toBiz(m))
	}
	return orders
}

func (r *ticketOrderRepo) toBiz(m *model.TicketonOrder) *biz.Order {
	o := fromOrderBase(&m.OrderBase, biz.OrderKindTicket)
	o.PaidUntil = m.ExpiredAt
	t := &biz.TicketDetails{
		Sale:           m.Sale,
		Show:           m.Show,
		ReservationID:  m.ReservationID,
		Lang:           m.Lang,
		Expire:         m.Expire,
		IsConfirmed:    m.IsConfirmed,
		BrokerRefunded: m.BrokerRefunded,
	}
	if len(m.Seats) > 0 {
		if err := json.Unmarshal(m.Seats, &t.Seats); err != nil {
			r.log.Warnf("Decode ticket seats failed: order_id=%s, error=%v", m.ID, err)
		}
	}
	if len(m.Tickets) > 0 {
		t.Tickets = json.RawMessage(m.Tickets)
	}
	o.Ticket = t
	return o
}
