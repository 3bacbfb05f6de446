package data

import (
	"context"
	"errors"
	"time"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

type productOrderRepo struct {
	data *Data
	log  *log.Helper
}

// NewProductOrderRepo 创建商品订单 repo
func NewProductOrderRepo(data *Data, logger log.Logger) biz.ProductOrderRepo {
	return &productOrderRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreateProductOrder 订单与明细在同一事务内写入
func (r *productOrderRepo) CreateProductOrder(ctx context.Context, o *biz.Order) error {
	return r.data.InTx(ctx, func(ctx context.Context) error {
		db := r.data.DB(ctx)
		m := &model.ProductOrder{OrderBase: toOrderBase(o), PaidUntil: o.PaidUntil}
		if err := db.Create(m).Error; err != nil {
			return err
		}
		if len(o.Items) == 0 {
			return nil
		}
		items := make([]*model.ProductOrderItem, 0, len(o.Items))
		for _, it := range o.Items {
			items = append(items, &model.ProductOrderItem{
				ID:        it.ID,
				OrderID:   o.ID,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				Price:     it.Price,
				Status:    string(it.Status),
				IsPaid:    it.IsPaid,
			})
		}
		return db.Create(&items).Error
	})
}

func (r *productOrderRepo) GetOrder(ctx context.Context, id string) (*biz.Order, error) {
	db := r.data.DB(ctx)
	var m model.ProductOrder
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, firstOrNil(err)
	}
	o := r.toBiz(&m)
	var items []*model.ProductOrderItem
	if err := db.Where("order_id = ?", id).Order("created_at").Find(&items).Error; err != nil {
		return nil, err
	}
	for _, it := range items {
		o.Items = append(o.Items, &biz.OrderItem{
			ID:        it.ID,
			OrderID:   it.OrderID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
			Status:    biz.OrderStatus(it.Status),
			IsPaid:    it.IsPaid,
		})
	}
	return o, nil
}

func (r *productOrderRepo) TransitionOrder(ctx context.Context, id string, t *biz.OrderTransition) (bool, error) {
	return transitionOrder(r.data.DB(ctx), &model.ProductOrder{}, id, t)
}

func (r *productOrderRepo) ListExpiredOrders(ctx context.Context, now time.Time, limit int) ([]*biz.Order, error) {
	var ms []*model.ProductOrder
	if err := r.data.DB(ctx).
		Where("status = ? AND paid_until < ?", string(biz.OrderStatusCreatedAwaitingPayment), now).
		Order("paid_until").Limit(limit).Find(&ms).Error; err != nil {
		return nil, err
	}
	orders := make([]*biz.Order, 0, len(ms))
	for _, m := range ms {
		orders = append(orders, r.toBiz(m))
	}
	return orders, nil
}

func (r *productOrderRepo) DeleteOrder(ctx context.Context, id string) error {
	return r.data.InTx(ctx, func(ctx context.Context) error {
		db := r.data.DB(ctx).Unscoped()
		if err := db.Delete(&model.ProductOrderItem{}, "order_id = ?", id).Error; err != nil {
			return err
		}
		return db.Delete(&model.ProductOrder{}, "id = ?", id).Error
	})
}

func (r *productOrderRepo) MarkItemsPaid(ctx context.Context, orderID string) error {
	return r.data.DB(ctx).Model(&model.ProductOrderItem{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{"is_paid": true, "status": string(biz.OrderStatusPaid)}).Error
}

func (r *productOrderRepo) SetItemsStatus(ctx context.Context, orderID string, status biz.OrderStatus) error {
	return r.data.DB(ctx).Model(&model.ProductOrderItem{}).
		Where("order_id = ?", orderID).
		Update("status", string(status)).Error
}

func (r *productOrderRepo) toBiz(m *model.ProductOrder) *biz.Order {
	o := fromOrderBase(&m.OrderBase, biz.OrderKindProduct)
	o.PaidUntil = m.PaidUntil
	return o
}

type cartRepo struct {
	data *Data
	log  *log.Helper
}

// NewCartRepo 创建购物车 repo
func NewCartRepo(data *Data, logger log.Logger) biz.CartRepo {
	return &cartRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

func (r *cartRepo) ListCartItems(ctx context.Context, userID string) ([]*biz.CartItem, error) {
	var ms []*model.CartItem
	if err := r.data.DB(ctx).Where("user_id = ?", userID).Order("created_at").Find(&ms).Error; err != nil {
		return nil, err
	}
	items := make([]*biz.CartItem, 0, len(ms))
	for _, m := range ms {
		items = append(items, &biz.CartItem{
			ID:        m.ID,
			UserID:    m.UserID,
			ProductID: m.ProductID,
			Quantity:  m.Quantity,
			Price:     m.Price,
		})
	}
	return items, nil
}

// ClearCart 软删除购物车条目
func (r *cartRepo) ClearCart(ctx context.Context, userID string) error {
	err := r.data.DB(ctx).Where("user_id = ?", userID).Delete(&model.CartItem{}).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
