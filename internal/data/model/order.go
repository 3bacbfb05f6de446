package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OrderBase 三类订单共有的列
type OrderBase struct {
	ID           string          `gorm:"primaryKey;type:varchar(36)"`
	UserID       *string         `gorm:"type:varchar(36);index"`
	Status       string          `gorm:"type:varchar(32);not null;index"`
	IsActive     bool            `gorm:"not null"`
	IsPaid       bool            `gorm:"not null;default:false"`
	IsCanceled   bool            `gorm:"not null;default:false"`
	IsRefunded   bool            `gorm:"not null;default:false"`
	Total        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Email        string          `gorm:"type:varchar(128)"`
	Phone        string          `gorm:"type:varchar(32)"`
	PaidAt       *time.Time
	PaidOrder    string         `gorm:"type:varchar(22)"`
	CancelReason string         `gorm:"type:varchar(255)"`
	CreatedAt    time.Time      `gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

// ProductOrder 商品订单表
type ProductOrder struct {
	OrderBase
	PaidUntil *time.Time `gorm:"index"`
}

// TableName 指定表名
func (ProductOrder) TableName() string {
	return "product_order"
}

// ProductOrderItem 商品订单明细表
type ProductOrderItem struct {
	ID        string          `gorm:"primaryKey;type:varchar(36)"`
	OrderID   string          `gorm:"type:varchar(36);not null;index"`
	ProductID string          `gorm:"type:varchar(36);not null"`
	Quantity  int             `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status    string          `gorm:"type:varchar(32);not null"`
	IsPaid    bool            `gorm:"not null;default:false"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt  `gorm:"index"`
}

// TableName 指定表名
func (ProductOrderItem) TableName() string {
	return "product_order_item"
}

// CartItem 购物车表
type CartItem struct {
	ID        string          `gorm:"primaryKey;type:varchar(36)"`
	UserID    string          `gorm:"type:varchar(36);not null;index"`
	ProductID string          `gorm:"type:varchar(36);not null"`
	Quantity  int             `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
	DeletedAt gorm.DeletedAt  `gorm:"index"`
}

// TableName 指定表名
func (CartItem) TableName() string {
	return "cart_items"
}

// FieldPartySchedule 场地排期表
type FieldPartySchedule struct {
	ID        string          `gorm:"primaryKey;type:varchar(36)"`
	StartAt   time.Time       `gorm:"not null;index"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	IsActive  bool            `gorm:"not null"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
	DeletedAt gorm.DeletedAt  `gorm:"index"`
}

// TableName 指定表名
func (FieldPartySchedule) TableName() string {
	return "field_party_schedules"
}

// BookingFieldPartyRequest 场地预订表
type BookingFieldPartyRequest struct {
	OrderBase
	ScheduleID string     `gorm:"type:varchar(36);not null;index"`
	StartAt    time.Time  `gorm:"not null"`
	PaidUntil  *time.Time `gorm:"index"`
}

// TableName 指定表名
func (BookingFieldPartyRequest) TableName() string {
	return "booking_field_party_request"
}

// TicketonOrder 票务订单表
type TicketonOrder struct {
	OrderBase
	Sale           string         `gorm:"type:varchar(64);not null;index"`
	Show           string         `gorm:"type:varchar(64);not null"`
	Seats          datatypes.JSON // []string
	Tickets        datatypes.JSON // 票务系统返回的票据
	ReservationID  string         `gorm:"type:varchar(64)"`
	Lang           string         `gorm:"type:varchar(8)"`
	Expire         int
	ExpiredAt      *time.Time `gorm:"index"`
	IsConfirmed    bool       `gorm:"not null;default:false"`
	BrokerRefunded bool       `gorm:"not null;default:false"`
}

// TableName 指定表名
func (TicketonOrder) TableName() string {
	return "ticketon_order"
}
