package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/conf"
	"order-payment-service/internal/pkg/signature"

	paymentErrors "order-payment-service/internal/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cr3t"

func newTestAlatauPay(t *testing.T, handler http.HandlerFunc) biz.PaymentGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	gw, err := NewAlatauPayClient(&conf.Bootstrap{Payment: &conf.Payment{AlatauPay: &conf.Payment_AlatauPay{
		PaymentURL: srv.URL + "/pay",
		StatusURL:  srv.URL + "/status",
		RefundURL:  srv.URL + "/refund",
		Merchant:   "M1",
		Terminal:   "T1",
		Secret:     testSecret,
		Currency:   "398",
		Backref:    "https://shop.example.kz/callback",
	}}}, testLogger())
	require.NoError(t, err)
	return gw
}

func TestBuildOrderPayloadIsSigned(t *testing.T) {
	gw := newTestAlatauPay(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("building a payload must not call the gateway")
	})

	p, err := gw.BuildOrderPayload(context.Background(), &biz.OrderPayloadRequest{
		Order:       "123456",
		Amount:      decimal.RequireFromString("1500"),
		Description: "Order\n#1",
		DescOrder:   "2 items",
		Email:       "buyer@example.kz",
		Nonce:       "abcdef",
		ClientID:    "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, "1500.00", p.Amount)
	assert.Equal(t, "M1", p.Merchant)

	expected := signature.Generate(testSecret,
		"123456", "1500.00", "398", "M1", "T1", "abcdef", "u1", "Order#1", "2 items",
		"buyer@example.kz", "https://shop.example.kz/callback", "", "", "")
	assert.Equal(t, expected, p.Signature)

	_, err = gw.BuildOrderPayload(context.Background(), &biz.OrderPayloadRequest{Amount: decimal.NewFromInt(1)})
	assert.True(t, paymentErrors.IsValidation(err))
}

func TestQueryPaymentStatusParsesRefundAttempts(t *testing.T) {
	gw := newTestAlatauPay(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "/status", r.URL.Path)
		assert.Equal(t, "123456", r.PostForm.Get("ORDER"))
		assert.Equal(t, signature.Generate(testSecret, "123456", "M1"), r.PostForm.Get("P_SIGN"))
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<result>
  <code>0</code>
  <description>ok</description>
  <operation>
    <order>123456</order>
    <status>2</status>
    <result_code>0</result_code>
    <amount>1500.00</amount>
    <currency>398</currency>
    <refunds>
      <rec status="J" amount="1500.00" reverse_date="2026-01-01"/>
      <rec status="W" amount="1500.00" reverse_date="2026-01-02"/>
    </refunds>
  </operation>
</result>`))
	})

	res, err := gw.QueryPaymentStatus(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, "123456", res.Order)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("1500")))
	require.Len(t, res.Refunds, 2)
	assert.False(t, res.IsRefunded())
	assert.True(t, res.HasPendingRefund())
}

func TestRequestRefund(t *testing.T) {
	gw := newTestAlatauPay(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "1500.00", r.PostForm.Get("REV_AMOUNT"))
		assert.Equal(t, signature.Generate(testSecret, "123456", "M1", "1500.00", "cancelled", ""), r.PostForm.Get("P_SIGN"))
		_, _ = w.Write([]byte(`<result><code>0</code><description>refunded</description></result>`))
	})

	res, err := gw.RequestRefund(context.Background(), "123456", decimal.NewFromInt(1500), "cancelled")
	require.NoError(t, err)
	assert.True(t, res.Accepted())
}

func TestGatewayFailuresAreGatewayErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"non-2xx": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"malformed": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not xml`))
		},
		"error code": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<result><code>-1</code><description>unknown order</description></result>`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			gw := newTestAlatauPay(t, h)
			_, err := gw.QueryPaymentStatus(context.Background(), "123456")
			assert.True(t, paymentErrors.IsGateway(err), "got %v", err)
		})
	}
}

func TestVerifyCallback(t *testing.T) {
	gw := newTestAlatauPay(t, func(w http.ResponseWriter, r *http.Request) {})
	cb := &signature.GetCallback{Order: "123456", ResCode: "0", Amount: "1500.00", Currency: "398"}
	cb.Sign = signature.Sign(cb, testSecret)
	assert.True(t, gw.VerifyCallback(cb, cb.Sign))
	assert.False(t, gw.VerifyCallback(cb, "forged"))
}
