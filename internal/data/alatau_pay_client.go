package data

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/conf"
	"order-payment-service/internal/metrics"
	"order-payment-service/internal/pkg/signature"

	paymentErrors "order-payment-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

const (
	gatewayAlatauPay       = "alatau_pay"
	defaultGatewayCurrency = "398" // KZT
)

type alatauPayClient struct {
	conf    *conf.Payment_AlatauPay
	http    *http.Client
	log     *log.Helper
	metrics *metrics.PaymentMetrics
}

// NewAlatauPayClient 创建 Alatau Pay 网关客户端
func NewAlatauPayClient(c *conf.Bootstrap, logger log.Logger) (biz.PaymentGateway, error) {
	if c.Payment == nil || c.Payment.AlatauPay == nil {
		return nil, fmt.Errorf("alatau pay config is nil")
	}
	ac := c.Payment.AlatauPay
	if ac.Secret == "" || ac.Merchant == "" {
		return nil, fmt.Errorf("alatau pay merchant and secret are required")
	}
	return &alatauPayClient{
		conf:    ac,
		http:    &http.Client{Timeout: ac.ClientTimeout()},
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}, nil
}

func (c *alatauPayClient) currency() string {
	if c.conf.Currency == "" {
		return defaultGatewayCurrency
	}
	return c.conf.Currency
}

// BuildOrderPayload 只签名，不发请求；浏览器直接提交到 payment_url
func (c *alatauPayClient) BuildOrderPayload(ctx context.Context, req *biz.OrderPayloadRequest) (*biz.SignedOrderPayload, error) {
	clientID := req.ClientID
	if clientID == "" {
		clientID = c.conf.ClientID
	}
	p, err := signature.NewOrderCreate(signature.OrderCreate{
		Order:     req.Order,
		Amount:    req.Amount.StringFixed(2),
		Currency:  c.currency(),
		Merchant:  c.conf.Merchant,
		Terminal:  c.conf.Terminal,
		Nonce:     req.Nonce,
		ClientID:  clientID,
		Desc:      req.Description,
		DescOrder: req.DescOrder,
		Email:     req.Email,
		Backref:   c.conf.Backref,
	})
	if err != nil {
		return nil, paymentErrors.Validation("invalid order payload: %v", err)
	}
	return &biz.SignedOrderPayload{
		PaymentURL: c.conf.PaymentURL,
		Order:      p.Order,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Merchant:   p.Merchant,
		Terminal:   p.Terminal,
		Nonce:      p.Nonce,
		ClientID:   p.ClientID,
		Desc:       p.Desc,
		DescOrder:  p.DescOrder,
		Email:      p.Email,
		Backref:    p.Backref,
		Signature:  signature.Sign(p, c.conf.Secret),
	}, nil
}

func (c *alatauPayClient) VerifyCallback(p signature.Payload, sig string) bool {
	return signature.Verify(p, c.conf.Secret, sig)
}

// statusResponse 状态查询 XML 响应
type statusResponse struct {
	XMLName     xml.Name `xml:"result"`
	Code        string   `xml:"code"`
	Description string   `xml:"description"`
	Operation   struct {
		Order      string `xml:"order"`
		Status     string `xml:"status"`
		ResultCode string `xml:"result_code"`
		Amount     string `xml:"amount"`
		Currency   string `xml:"currency"`
		Refunds    []struct {
			Status string `xml:"status,attr"`
			Amount string `xml:"amount,attr"`
			Date   string `xml:"reverse_date,attr"`
		} `xml:"refunds>rec"`
	} `xml:"operation"`
}

func (c *alatauPayClient) QueryPaymentStatus(ctx context.Context, order string) (*biz.PaymentStatusResult, error) {
	p, err := signature.NewStatusRequest(order, c.conf.Merchant)
	if err != nil {
		return nil, paymentErrors.Validation("invalid status request: %v", err)
	}
	values := url.Values{}
	values.Set("ORDER", p.Order)
	values.Set("MERCHANT", p.Merchant)
	values.Set("GETSTATUS", "1")
	values.Set("P_SIGN", signature.Sign(p, c.conf.Secret))

	var out statusResponse
	if err := c.postForm(ctx, "status", c.conf.StatusURL, values, &out); err != nil {
		return nil, err
	}
	if out.Code != "" && out.Code != "0" {
		c.recordError("status")
		return nil, paymentErrors.Gateway(nil, "status query for order %s failed: code=%s, description=%s", order, out.Code, out.Description)
	}
	res := &biz.PaymentStatusResult{
		Order:    out.Operation.Order,
		Status:   out.Operation.Status,
		ResCode:  out.Operation.ResultCode,
		Currency: out.Operation.Currency,
		Amount:   parseAmount(out.Operation.Amount),
	}
	if res.Order == "" {
		res.Order = order
	}
	for _, r := range out.Operation.Refunds {
		res.Refunds = append(res.Refunds, biz.RefundAttempt{
			Status: r.Status,
			Amount: parseAmount(r.Amount),
			Date:   r.Date,
		})
	}
	return res, nil
}

// refundResponse 退款 XML 响应
type refundResponse struct {
	XMLName     xml.Name `xml:"result"`
	Code        string   `xml:"code"`
	Description string   `xml:"description"`
}

func (c *alatauPayClient) RequestRefund(ctx context.Context, order string, amount decimal.Decimal, desc string) (*biz.RefundResult, error) {
	p, err := signature.NewRefundRequest(order, c.conf.Merchant, amount.StringFixed(2), desc)
	if err != nil {
		return nil, paymentErrors.Validation("invalid refund request: %v", err)
	}
	values := url.Values{}
	values.Set("ORDER", p.Order)
	values.Set("MERCHANT", p.Merchant)
	values.Set("REV_AMOUNT", p.RevAmount)
	values.Set("REV_DESC", signature.StripNewlines(p.RevDesc))
	values.Set("P_SIGN", signature.Sign(p, c.conf.Secret))

	var out refundResponse
	if err := c.postForm(ctx, "refund", c.conf.RefundURL, values, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Code) == "" {
		c.recordError("refund")
		return nil, paymentErrors.Gateway(nil, "refund response for order %s has no code", order)
	}
	return &biz.RefundResult{
		Code:        strings.TrimSpace(out.Code),
		Description: out.Description,
	}, nil
}

func (c *alatauPayClient) postForm(ctx context.Context, operation, endpoint string, values url.Values, out interface{}) error {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.GatewayRequestDuration.WithLabelValues(gatewayAlatauPay, operation).Observe(time.Since(start).Seconds())
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return paymentErrors.Internal(err, "build %s request", operation)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.http.Do(req)
	if err != nil {
		c.recordError(operation)
		c.log.Errorf("Alatau pay request failed: operation=%s, error=%v", operation, err)
		return paymentErrors.Gateway(err, "alatau pay %s request failed", operation)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordError(operation)
		return paymentErrors.Gateway(err, "read alatau pay %s response", operation)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.recordError(operation)
		c.log.Errorf("Alatau pay returned non-2xx: operation=%s, status=%d", operation, resp.StatusCode)
		return paymentErrors.Gateway(nil, "alatau pay %s returned HTTP %d", operation, resp.StatusCode)
	}
	if err := xml.Unmarshal(body, out); err != nil {
		c.recordError(operation)
		return paymentErrors.Gateway(err, "decode alatau pay %s response", operation)
	}
	return nil
}

func (c *alatauPayClient) recordError(operation string) {
	if c.metrics != nil {
		c.metrics.GatewayErrorTotal.WithLabelValues(gatewayAlatauPay, operation).Inc()
	}
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
