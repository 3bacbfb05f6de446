package biz_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/conf"
	"order-payment-service/internal/data"
	"order-payment-service/internal/data/model"
	"order-payment-service/internal/pkg/signature"

	"github.com/glebarez/sqlite"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret"

// harness 真实数据层（内存 SQLite）+ 网关/票务/消息的替身
type harness struct {
	db        *gorm.DB
	flow      *biz.PaymentFlow
	product   *biz.ProductOrderUseCase
	booking   *biz.BookingUseCase
	ticket    *biz.TicketOrderUseCase
	callback  *biz.PaymentCallbackUseCase
	refund    *biz.RefundUseCase
	sweep     *biz.SweepUseCase
	txRepo    biz.PaymentTransactionRepo
	linkRepo  biz.OrderLinkRepo
	gateway   *fakeGateway
	broker    *fakeBroker
	publisher *fakePublisher
	clock     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, data.Migrate(db))

	l := log.DefaultLogger
	d, cleanup, err := data.NewData(l, db, nil, nil)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	h := &harness{
		db:        db,
		txRepo:    data.NewPaymentTransactionRepo(d, l),
		linkRepo:  data.NewOrderLinkRepo(d, l),
		gateway:   &fakeGateway{},
		broker:    newFakeBroker(),
		publisher: &fakePublisher{},
		clock:     time.Now(),
	}
	h.flow = biz.NewPaymentFlow(h.txRepo, h.linkRepo, h.gateway, data.NewTransaction(d), h.publisher, biz.NewPaymentConfig(&conf.Bootstrap{}), l)
	h.flow.SetClock(func() time.Time { return h.clock })
	h.product = biz.NewProductOrderUseCase(h.flow, data.NewProductOrderRepo(d, l), data.NewCartRepo(d, l), l)
	h.booking = biz.NewBookingUseCase(h.flow, data.NewBookingRepo(d, l), l)
	h.ticket = biz.NewTicketOrderUseCase(h.flow, data.NewTicketOrderRepo(d, l), h.broker, l)
	h.callback = biz.NewPaymentCallbackUseCase(h.flow, h.product, h.booking, h.ticket, l)
	h.refund = biz.NewRefundUseCase(h.flow, data.NewOrderLocker(nil, l), h.product, h.booking, h.ticket, l)
	h.sweep = biz.NewSweepUseCase(h.flow, h.product, h.booking, h.ticket, l)
	return h
}

func (h *harness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

func (h *harness) seedCart(t *testing.T, userID string, quantities ...int) {
	t.Helper()
	for _, q := range quantities {
		require.NoError(t, h.db.Create(&model.CartItem{
			ID:        uuid.NewString(),
			UserID:    userID,
			ProductID: uuid.NewString(),
			Quantity:  q,
			Price:     decimal.NewFromInt(1000),
		}).Error)
	}
}

func (h *harness) seedSchedule(t *testing.T, startAt time.Time) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, h.db.Create(&model.FieldPartySchedule{
		ID:       id,
		StartAt:  startAt,
		Price:    decimal.NewFromInt(15000),
		IsActive: true,
	}).Error)
	return id
}

// pay 以已签名的 GET 回调确认支付
func (h *harness) pay(t *testing.T, order, resCode string) *biz.CallbackResult {
	t.Helper()
	p := &signature.GetCallback{
		Order:    order,
		MpiOrder: "mpi-" + order,
		Rrn:      "rrn-" + order,
		ResCode:  resCode,
		Amount:   "3000.00",
		Currency: "398",
		ResDesc:  "Approved",
	}
	p.Sign = signature.Sign(p, testSecret)
	return h.callback.AcceptGetCallback(context.Background(), p)
}

// forgedCallback 使用错误密钥签名的回调
func forgedCallback(order string) *signature.GetCallback {
	p := &signature.GetCallback{Order: order, Rrn: "rrn-" + order, ResCode: "0", Amount: "3000.00", Currency: "398"}
	p.Sign = signature.Sign(p, "wrong-secret")
	return p
}

func (h *harness) transaction(t *testing.T, id string) *biz.PaymentTransaction {
	t.Helper()
	pt, err := h.txRepo.GetTransaction(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, pt)
	return pt
}

// fakeGateway Alatau Pay 替身，签名校验使用真实算法
type fakeGateway struct {
	mu          sync.Mutex
	buildErr    error
	status      *biz.PaymentStatusResult
	refundCode  string
	queryCalls  int
	refundCalls int
}

func (g *fakeGateway) BuildOrderPayload(_ context.Context, req *biz.OrderPayloadRequest) (*biz.SignedOrderPayload, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.buildErr != nil {
		return nil, g.buildErr
	}
	return &biz.SignedOrderPayload{
		Order:     req.Order,
		Amount:    req.Amount.StringFixed(2),
		Currency:  "398",
		Merchant:  "MERCHANT1",
		Nonce:     req.Nonce,
		Email:     req.Email,
		Signature: "signed-" + req.Order,
	}, nil
}

func (g *fakeGateway) VerifyCallback(p signature.Payload, sig string) bool {
	return signature.Verify(p, testSecret, sig)
}

func (g *fakeGateway) QueryPaymentStatus(_ context.Context, order string) (*biz.PaymentStatusResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queryCalls++
	if g.status != nil {
		s := *g.status
		s.Order = order
		return &s, nil
	}
	return &biz.PaymentStatusResult{Order: order, Status: "paid", ResCode: "0"}, nil
}

func (g *fakeGateway) RequestRefund(_ context.Context, _ string, _ decimal.Decimal, _ string) (*biz.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls++
	code := g.refundCode
	if code == "" {
		code = "0"
	}
	return &biz.RefundResult{Code: code, Description: "ok"}, nil
}

func (g *fakeGateway) calls() (query, refund int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.queryCalls, g.refundCalls
}

// fakeBroker Ticketon 替身
type fakeBroker struct {
	mu           sync.Mutex
	sale         *biz.SaleBooking
	confirmErr   error
	cancelErr    error
	confirmed    bool // CheckOrder 结果
	refundOK     bool
	createCalls  int
	confirmCalls int
	cancelCalls  int
	refundCalls  int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		sale:     &biz.SaleBooking{Sale: "S-100", ReservationID: "R-1", Sum: decimal.NewFromInt(5000), Expire: 900},
		refundOK: true,
	}
}

func (b *fakeBroker) CreateSale(context.Context, *biz.CreateSaleRequest) (*biz.SaleBooking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createCalls++
	s := *b.sale
	return &s, nil
}

func (b *fakeBroker) ConfirmSale(context.Context, string, string, string) (*biz.SaleConfirmation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmCalls++
	if b.confirmErr != nil {
		return nil, b.confirmErr
	}
	return &biz.SaleConfirmation{Confirmed: true, Tickets: json.RawMessage(`[{"id":"T-1"}]`)}, nil
}

func (b *fakeBroker) CancelSale(context.Context, string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelCalls++
	return b.cancelErr
}

func (b *fakeBroker) RefundSale(context.Context, string) (*biz.SaleRefund, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refundCalls++
	if !b.refundOK {
		return &biz.SaleRefund{Refunded: false, Code: "2", Error: "show already started"}, nil
	}
	return &biz.SaleRefund{Refunded: true, Code: "1"}, nil
}

func (b *fakeBroker) CheckOrder(_ context.Context, sale string) (*biz.SaleStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.confirmed {
		return &biz.SaleStatus{Sale: sale, Status: "confirmed", Confirmed: true}, nil
	}
	return &biz.SaleStatus{Sale: sale, Status: "booked"}, nil
}

func (b *fakeBroker) CheckTicket(_ context.Context, ticketID string) (*biz.TicketStatus, error) {
	return &biz.TicketStatus{TicketID: ticketID, Status: "valid", Raw: json.RawMessage(`{"status":"valid"}`)}, nil
}

func (b *fakeBroker) counts() (confirm, cancel, refund int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.confirmCalls, b.cancelCalls, b.refundCalls
}

// fakePublisher 记录发布的事件
type fakePublisher struct {
	mu      sync.Mutex
	events  []*biz.OrderEvent
	retries []*biz.RefundRetryEvent
}

func (p *fakePublisher) PublishOrderEvent(_ context.Context, event *biz.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) PublishRefundRetry(_ context.Context, event *biz.RefundRetryEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retries = append(p.retries, event)
	return nil
}

func (p *fakePublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}
