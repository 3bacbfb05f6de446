package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentTransaction 支付流水表
type PaymentTransaction struct {
	ID              string          `gorm:"primaryKey;type:varchar(36)"`
	UserID          *string         `gorm:"type:varchar(36);index"` // 匿名购票为 NULL
	Status          string          `gorm:"type:varchar(32);not null;index"`
	TransactionType string          `gorm:"type:varchar(16);not null"` // merchandise/booking/ticket
	OrderNumber     string          `gorm:"column:order_number;type:varchar(22);not null;uniqueIndex"`
	Nonce           string          `gorm:"type:varchar(64);not null;uniqueIndex"`
	MpiOrder        string          `gorm:"type:varchar(64)"`
	Rrn             string          `gorm:"type:varchar(64)"`
	Amount          decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency        string          `gorm:"type:varchar(8)"`
	Merchant        string          `gorm:"type:varchar(64)"`
	IsActive        bool            `gorm:"not null"`
	IsPaid          bool            `gorm:"not null;default:false"`
	IsCanceled      bool            `gorm:"not null;default:false"`
	ExpiredAt       *time.Time
	ResCode         string          `gorm:"type:varchar(16)"`
	ResDesc         string          `gorm:"type:varchar(255)"`
	RevAmount       decimal.Decimal `gorm:"type:decimal(12,2);default:0"`
	RevDesc         string          `gorm:"type:varchar(255)"`
	PrePSign        string          `gorm:"column:pre_p_sign;type:varchar(128)"`
	PaidPSign       string          `gorm:"column:paid_p_sign;type:varchar(128)"`
	CancelPSign     string          `gorm:"column:cancel_p_sign;type:varchar(128)"`
	OrderFullInfo   datatypes.JSON
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime"`
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}

// TableName 指定表名
func (PaymentTransaction) TableName() string {
	return "payment_transaction"
}

// OrderPaymentLink 订单-支付流水关联表
type OrderPaymentLink struct {
	ID                   string         `gorm:"primaryKey;type:varchar(36)"`
	OrderID              string         `gorm:"type:varchar(36);not null;index"`
	PaymentTransactionID string         `gorm:"type:varchar(36);not null;index"`
	IsActive             bool           `gorm:"not null"`
	IsPrimary            bool           `gorm:"not null;default:false"`
	LinkType             string         `gorm:"type:varchar(16);not null"` // initial/recreated/refund
	LinkReason           string         `gorm:"type:varchar(255)"`
	CreatedAt            time.Time      `gorm:"autoCreateTime"`
	UpdatedAt            time.Time      `gorm:"autoUpdateTime"`
	DeletedAt            gorm.DeletedAt `gorm:"index"`
}

// TableName 指定表名
func (OrderPaymentLink) TableName() string {
	return "order_payment_link"
}
