package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/conf"
	"order-payment-service/internal/metrics"

	paymentErrors "order-payment-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

const (
	gatewayTicketon   = "ticketon"
	defaultBrokerLang = "ru"
)

type ticketonClient struct {
	baseURL string
	token   string
	lang    string
	http    *http.Client
	log     *log.Helper
	metrics *metrics.PaymentMetrics
}

// NewTicketonClient 创建 Ticketon 票务客户端
func NewTicketonClient(c *conf.Bootstrap, logger log.Logger) (biz.TicketBroker, error) {
	if c.Payment == nil || c.Payment.Ticketon == nil || c.Payment.Ticketon.BaseURL == "" {
		return nil, fmt.Errorf("ticketon config is nil")
	}
	tc := c.Payment.Ticketon
	lang := tc.Lang
	if lang == "" {
		lang = defaultBrokerLang
	}
	return &ticketonClient{
		baseURL: strings.TrimRight(tc.BaseURL, "/"),
		token:   tc.Token,
		lang:    lang,
		http:    &http.Client{Timeout: tc.ClientTimeout()},
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}, nil
}

type brokerError struct {
	Error string `json:"error"`
}

type createSaleResponse struct {
	brokerError
	Sale          string          `json:"sale"`
	ReservationID string          `json:"reservation_id"`
	Sum           decimal.Decimal `json:"sum"`
	Expire        int             `json:"expire"`
}

func (c *ticketonClient) CreateSale(ctx context.Context, req *biz.CreateSaleRequest) (*biz.SaleBooking, error) {
	lang := req.Lang
	if lang == "" {
		lang = c.lang
	}
	q := url.Values{}
	q.Set("show", req.Show)
	q.Set("lang", lang)
	for _, seat := range req.Seats {
		q.Add("seats[]", seat)
	}
	var out createSaleResponse
	if err := c.get(ctx, "create_sale", "/sale/create", q, &out); err != nil {
		return nil, err
	}
	if out.Error != "" || out.Sale == "" {
		c.recordError("create_sale")
		return nil, paymentErrors.Gateway(nil, "ticketon create sale failed: %s", out.Error)
	}
	return &biz.SaleBooking{
		Sale:          out.Sale,
		ReservationID: out.ReservationID,
		Sum:           out.Sum,
		Expire:        out.Expire,
	}, nil
}

type confirmSaleResponse struct {
	brokerError
	Status  int             `json:"status"`
	Tickets json.RawMessage `json:"tickets"`
}

// ConfirmSale 票务系统拒绝出票不算传输错误，通过 Confirmed=false 返回
func (c *ticketonClient) ConfirmSale(ctx context.Context, sale, email, phone string) (*biz.SaleConfirmation, error) {
	q := url.Values{}
	q.Set("sale", sale)
	q.Set("email", email)
	if phone != "" {
		q.Set("phone", phone)
	}
	var out confirmSaleResponse
	if err := c.get(ctx, "confirm_sale", "/sale/confirm", q, &out); err != nil {
		return nil, err
	}
	return &biz.SaleConfirmation{
		Confirmed: out.Status == 1 && out.Error == "",
		Tickets:   out.Tickets,
		Error:     out.Error,
	}, nil
}

type cancelSaleResponse struct {
	brokerError
	Status int `json:"status"`
}

func (c *ticketonClient) CancelSale(ctx context.Context, sale string) error {
	q := url.Values{}
	q.Set("sale", sale)
	var out cancelSaleResponse
	if err := c.get(ctx, "cancel_sale", "/sale/cancel", q, &out); err != nil {
		return err
	}
	if out.Error != "" {
		c.recordError("cancel_sale")
		return paymentErrors.Gateway(nil, "ticketon cancel sale %s failed: %s", sale, out.Error)
	}
	return nil
}

type refundSaleResponse struct {
	brokerError
	Status int    `json:"status"`
	Code   string `json:"code"`
}

func (c *ticketonClient) RefundSale(ctx context.Context, sale string) (*biz.SaleRefund, error) {
	q := url.Values{}
	q.Set("sale", sale)
	var out refundSaleResponse
	if err := c.get(ctx, "refund_sale", "/sale/refund", q, &out); err != nil {
		return nil, err
	}
	return &biz.SaleRefund{
		Refunded: out.Status == 1,
		Code:     out.Code,
		Error:    out.Error,
	}, nil
}

type checkOrderResponse struct {
	brokerError
	Sale      string          `json:"sale"`
	Status    string          `json:"status"`
	Confirmed bool            `json:"confirmed"`
	Tickets   json.RawMessage `json:"tickets"`
}

func (c *ticketonClient) CheckOrder(ctx context.Context, sale string) (*biz.SaleStatus, error) {
	q := url.Values{}
	q.Set("sale", sale)
	var out checkOrderResponse
	if err := c.get(ctx, "check_order", "/sale/check", q, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		c.recordError("check_order")
		return nil, paymentErrors.Gateway(nil, "ticketon check order %s failed: %s", sale, out.Error)
	}
	if out.Sale == "" {
		out.Sale = sale
	}
	return &biz.SaleStatus{
		Sale:      out.Sale,
		Status:    out.Status,
		Confirmed: out.Confirmed,
		Tickets:   out.Tickets,
	}, nil
}

func (c *ticketonClient) CheckTicket(ctx context.Context, ticketID string) (*biz.TicketStatus, error) {
	q := url.Values{}
	q.Set("ticket", ticketID)
	var raw json.RawMessage
	if err := c.get(ctx, "check_ticket", "/ticket/check", q, &raw); err != nil {
		return nil, err
	}
	var out struct {
		brokerError
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		c.recordError("check_ticket")
		return nil, paymentErrors.Gateway(err, "decode ticketon check ticket response")
	}
	if out.Error != "" {
		c.recordError("check_ticket")
		return nil, paymentErrors.Gateway(nil, "ticketon check ticket %s failed: %s", ticketID, out.Error)
	}
	return &biz.TicketStatus{TicketID: ticketID, Status: out.Status, Raw: raw}, nil
}

func (c *ticketonClient) get(ctx context.Context, operation, path string, q url.Values, out interface{}) error {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.GatewayRequestDuration.WithLabelValues(gatewayTicketon, operation).Observe(time.Since(start).Seconds())
		}
	}()

	q.Set("token", c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return paymentErrors.Internal(err, "build %s request", operation)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.recordError(operation)
		c.log.Errorf("Ticketon request failed: operation=%s, error=%v", operation, err)
		return paymentErrors.Gateway(err, "ticketon %s request failed", operation)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordError(operation)
		return paymentErrors.Gateway(err, "read ticketon %s response", operation)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.recordError(operation)
		c.log.Errorf("Ticketon returned non-2xx: operation=%s, status=%d", operation, resp.StatusCode)
		return paymentErrors.Gateway(nil, "ticketon %s returned HTTP %d", operation, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.recordError(operation)
		return paymentErrors.Gateway(err, "decode ticketon %s response", operation)
	}
	return nil
}

func (c *ticketonClient) recordError(operation string) {
	if c.metrics != nil {
		c.metrics.GatewayErrorTotal.WithLabelValues(gatewayTicketon, operation).Inc()
	}
}
