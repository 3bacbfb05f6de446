package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/conf"
	"order-payment-service/internal/data"
	"order-payment-service/internal/data/model"
	"order-payment-service/internal/pkg/signature"
	"order-payment-service/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "merchant-secret"

type testEnv struct {
	srv *khttp.Server
	db  *gorm.DB
}

// newTestEnv 完整的 HTTP 栈：内存 SQLite，网关与票务系统由 httptest 模拟
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		switch r.URL.Path {
		case "/status":
			_, _ = w.Write([]byte(`<result><code>0</code><description>ok</description><operation><order>` +
				r.FormValue("ORDER") + `</order><status>paid</status><result_code>0</result_code><amount>3000.00</amount><currency>398</currency></operation></result>`))
		case "/refund":
			_, _ = w.Write([]byte(`<result><code>0</code><description>refunded</description></result>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(gateway.Close)
	broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/sale/create":
			_, _ = w.Write([]byte(`{"sale":"S-1","reservation_id":"R-1","sum":"5000.00","expire":900}`))
		case "/sale/cancel":
			_, _ = w.Write([]byte(`{"status":1}`))
		case "/ticket/check":
			_, _ = w.Write([]byte(`{"status":"valid","seat":"A1"}`))
		default:
			_, _ = w.Write([]byte(`{"error":"unsupported"}`))
		}
	}))
	t.Cleanup(broker.Close)

	c := &conf.Bootstrap{
		Payment: &conf.Payment{
			AlatauPay: &conf.Payment_AlatauPay{
				PaymentURL: gateway.URL + "/ecom",
				StatusURL:  gateway.URL + "/status",
				RefundURL:  gateway.URL + "/refund",
				Merchant:   "MERCHANT1",
				Terminal:   "TERMINAL1",
				Secret:     testSecret,
				Backref:    "https://api.example.kz/v1/payments/callback",
			},
			Ticketon: &conf.Payment_Ticketon{BaseURL: broker.URL, Token: "token"},
		},
	}

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
	gw, err := data.NewAlatauPayClient(c, l)
	require.NoError(t, err)
	tb, err := data.NewTicketonClient(c, l)
	require.NoError(t, err)

	flow := biz.NewPaymentFlow(
		data.NewPaymentTransactionRepo(d, l),
		data.NewOrderLinkRepo(d, l),
		gw,
		data.NewTransaction(d),
		data.NewOrderEventPublisher(d, c, l),
		biz.NewPaymentConfig(c),
		l,
	)
	product := biz.NewProductOrderUseCase(flow, data.NewProductOrderRepo(d, l), data.NewCartRepo(d, l), l)
	booking := biz.NewBookingUseCase(flow, data.NewBookingRepo(d, l), l)
	ticket := biz.NewTicketOrderUseCase(flow, data.NewTicketOrderRepo(d, l), tb, l)
	callback := biz.NewPaymentCallbackUseCase(flow, product, booking, ticket, l)
	refund := biz.NewRefundUseCase(flow, data.NewOrderLocker(nil, l), product, booking, ticket, l)

	srv := NewHTTPServer(c,
		service.NewOrderService(flow, product, booking, ticket, l),
		service.NewPaymentCallbackService(callback, l),
		service.NewOrderInternalService(refund, ticket, l),
		l,
	)
	return &testEnv{srv: srv, db: db}
}

func (e *testEnv) do(t *testing.T, method, target, userID string, body string) *httptest.ResponseRecorder {
	t.Helper()
	header := http.Header{}
	if userID != "" {
		header.Set(service.HeaderUserID, userID)
	}
	return e.doWithHeader(t, method, target, header, body)
}

func (e *testEnv) doWithHeader(t *testing.T, method, target string, header http.Header, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func guest(email string) http.Header {
	h := http.Header{}
	h.Set(service.HeaderGuestEmail, email)
	return h
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func signedCallbackQuery(order, resCode string) string {
	p := &signature.GetCallback{
		Order:    order,
		MpiOrder: "mpi-1",
		Rrn:      "rrn-1",
		ResCode:  resCode,
		Amount:   "3000.00",
		Currency: "398",
		ResDesc:  "Approved",
	}
	q := url.Values{}
	q.Set("order", p.Order)
	q.Set("mpi_order", p.MpiOrder)
	q.Set("rrn", p.Rrn)
	q.Set("res_code", p.ResCode)
	q.Set("amount", p.Amount)
	q.Set("currency", p.Currency)
	q.Set("res_desc", p.ResDesc)
	q.Set("sign", signature.Sign(p, testSecret))
	return q.Encode()
}

func TestProductOrderOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	for _, q := range []int{1, 2} {
		require.NoError(t, env.db.Create(&model.CartItem{
			ID:        uuid.NewString(),
			UserID:    "u1",
			ProductID: uuid.NewString(),
			Quantity:  q,
			Price:     decimal.NewFromInt(1000),
		}).Error)
	}

	rec := env.do(t, http.MethodPost, "/v1/product-orders", "", `{"email":"buyer@example.kz"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/product-orders", "u1", `{"email":"buyer@example.kz"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created service.PaymentReply
	decode(t, rec, &created)
	require.True(t, created.IsSuccess, created.Message)
	require.NotNil(t, created.Payment)
	assert.Equal(t, "3000.00", created.Payment.Amount)
	assert.Equal(t, "398", created.Payment.Currency)
	assert.NotEmpty(t, created.Payment.Signature)
	assert.Equal(t, "created_awaiting_payment", created.Order.Status)
	orderPath := "/v1/orders/merchandise/" + created.Order.ID

	rec = env.do(t, http.MethodGet, "/v1/payments/callback?"+signedCallbackQuery(created.Payment.Order, "0"), "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cb service.CallbackReply
	decode(t, rec, &cb)
	assert.True(t, cb.IsSuccess, cb.Message)
	assert.Equal(t, "paid", cb.Status)

	rec = env.do(t, http.MethodGet, orderPath, "u1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got service.OrderReply
	decode(t, rec, &got)
	assert.Equal(t, "paid", got.Status)
	assert.Equal(t, created.Payment.Order, got.PaidOrder)

	rec = env.do(t, http.MethodGet, orderPath, "u2", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodGet, "/v1/orders/gift/"+created.Order.ID, "u1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, orderPath+"/cancel", "u1", `{"force":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &got)
	assert.Equal(t, "cancelled_awaiting_refund", got.Status)

	refundPath := "/internal/v1/orders/merchandise/" + created.Order.ID + "/refund"
	for i := 0; i < 2; i++ {
		rec = env.do(t, http.MethodPost, refundPath, "", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var refunded service.RefundReply
		decode(t, rec, &refunded)
		assert.Equal(t, "refunded", refunded.Outcome)
		assert.Equal(t, "cancelled_refunded", refunded.Order.Status)
		assert.True(t, refunded.Order.IsRefunded)
	}
}

func TestAnonymousTicketOrderOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/ticket-orders", "", `{"show":"SHOW-1","seats":["A-1"],"email":"guest@example.kz"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created service.PaymentReply
	decode(t, rec, &created)
	require.True(t, created.IsSuccess, created.Message)
	assert.Equal(t, "booking_created", created.Order.Status)
	assert.Equal(t, "S-1", created.Order.Sale)
	assert.Equal(t, "5000.00", created.Payment.Amount)

	var stored model.TicketonOrder
	require.NoError(t, env.db.First(&stored, "id = ?", created.Order.ID).Error)
	assert.Nil(t, stored.UserID)

	orderPath := "/v1/orders/ticket/" + created.Order.ID
	rec = env.do(t, http.MethodGet, orderPath, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.doWithHeader(t, http.MethodGet, orderPath, guest("someone@example.kz"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodGet, orderPath, "u1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.doWithHeader(t, http.MethodGet, orderPath, guest("Guest@Example.kz"), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got service.OrderReply
	decode(t, rec, &got)
	assert.Equal(t, "booking_created", got.Status)

	rec = env.doWithHeader(t, http.MethodPost, orderPath+"/cancel", guest("guest@example.kz"), `{"force":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &got)
	assert.Equal(t, "cancelled", got.Status)
}

func TestPostCallbackWithBadSignatureIsAnswered(t *testing.T) {
	env := newTestEnv(t)
	form := url.Values{}
	form.Set("order", "123456")
	form.Set("res_code", "0")
	form.Set("sign", "deadbeef")
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cb service.CallbackReply
	decode(t, rec, &cb)
	assert.False(t, cb.IsSuccess)
	assert.Equal(t, "invalid signature", cb.Message)
	assert.Equal(t, "UNAUTHORIZED", cb.Reason)

	rec = env.do(t, http.MethodGet, "/v1/payments/callback?order=1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &cb)
	assert.False(t, cb.IsSuccess)
}

func TestCheckTicketOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/internal/v1/tickets/T-1", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ticket service.TicketReply
	decode(t, rec, &ticket)
	assert.Equal(t, "T-1", ticket.TicketID)
	assert.Equal(t, "valid", ticket.Status)
	assert.JSONEq(t, `{"status":"valid","seat":"A1"}`, string(ticket.Raw))

	rec = env.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
