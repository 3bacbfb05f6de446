package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/conf"

	paymentErrors "order-payment-service/internal/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTicketon(t *testing.T, routes map[string]string) biz.TicketBroker {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "api-token", r.URL.Query().Get("token"))
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	broker, err := NewTicketonClient(&conf.Bootstrap{Payment: &conf.Payment{Ticketon: &conf.Payment_Ticketon{
		BaseURL: srv.URL + "/",
		Token:   "api-token",
	}}}, testLogger())
	require.NoError(t, err)
	return broker
}

func TestTicketonSaleLifecycle(t *testing.T) {
	broker := newTestTicketon(t, map[string]string{
		"/sale/create":  `{"sale":"sale-1","reservation_id":"r-1","sum":"7000.00","expire":900}`,
		"/sale/confirm": `{"status":1,"tickets":[{"id":"t1"}]}`,
		"/sale/cancel":  `{"status":1}`,
		"/sale/refund":  `{"status":0,"error":"already used","code":"E12"}`,
		"/sale/check":   `{"sale":"sale-1","status":"paid","confirmed":true,"tickets":[{"id":"t1"}]}`,
		"/ticket/check": `{"status":"valid","seat":"A1"}`,
	})
	ctx := context.Background()

	sale, err := broker.CreateSale(ctx, &biz.CreateSaleRequest{Show: "show-1", Seats: []string{"A1", "A2"}})
	require.NoError(t, err)
	assert.Equal(t, "sale-1", sale.Sale)
	assert.Equal(t, 900, sale.Expire)
	assert.True(t, sale.Sum.Equal(decimal.NewFromInt(7000)))

	confirmation, err := broker.ConfirmSale(ctx, "sale-1", "buyer@example.kz", "")
	require.NoError(t, err)
	assert.True(t, confirmation.Confirmed)
	assert.JSONEq(t, `[{"id":"t1"}]`, string(confirmation.Tickets))

	require.NoError(t, broker.CancelSale(ctx, "sale-1"))

	refund, err := broker.RefundSale(ctx, "sale-1")
	require.NoError(t, err)
	assert.False(t, refund.Refunded)
	assert.Equal(t, "E12", refund.Code)

	status, err := broker.CheckOrder(ctx, "sale-1")
	require.NoError(t, err)
	assert.True(t, status.Confirmed)

	ticket, err := broker.CheckTicket(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "valid", ticket.Status)
	assert.JSONEq(t, `{"status":"valid","seat":"A1"}`, string(ticket.Raw))
}

func TestTicketonErrorsAreGatewayErrors(t *testing.T) {
	broker := newTestTicketon(t, map[string]string{
		"/sale/create": `{"error":"seats taken"}`,
		"/sale/cancel": `{"error":"sale not found"}`,
		"/sale/check":  `garbage`,
	})
	ctx := context.Background()

	_, err := broker.CreateSale(ctx, &biz.CreateSaleRequest{Show: "show-1", Seats: []string{"A1"}})
	assert.True(t, paymentErrors.IsGateway(err))

	assert.True(t, paymentErrors.IsGateway(broker.CancelSale(ctx, "sale-1")))

	_, err = broker.CheckOrder(ctx, "sale-1")
	assert.True(t, paymentErrors.IsGateway(err))

	_, err = broker.ConfirmSale(ctx, "sale-1", "a@b.kz", "")
	assert.True(t, paymentErrors.IsGateway(err), "404 surfaces as gateway error")
}
