package signature

import (
	"fmt"
	"sort"
	"strings"
)

// OrderCreate 下单签名字段
type OrderCreate struct {
	Order                  string
	Amount                 string
	Currency               string
	Merchant               string
	Terminal               string
	Nonce                  string
	ClientID               string
	Desc                   string
	DescOrder              string
	Email                  string
	Backref                string
	UcafFlag               string
	UcafAuthenticationData string
}

// NewOrderCreate 校验必填字段
func NewOrderCreate(p OrderCreate) (*OrderCreate, error) {
	if err := required(map[string]string{
		"ORDER":    p.Order,
		"AMOUNT":   p.Amount,
		"CURRENCY": p.Currency,
		"MERCHANT": p.Merchant,
		"TERMINAL": p.Terminal,
		"NONCE":    p.Nonce,
		"BACKREF":  p.Backref,
	}); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *OrderCreate) SignFields() []string {
	return []string{
		p.Order,
		p.Amount,
		p.Currency,
		p.Merchant,
		p.Terminal,
		p.Nonce,
		p.ClientID,
		StripNewlines(p.Desc),
		StripNewlines(p.DescOrder),
		p.Email,
		p.Backref,
		p.UcafFlag,
		p.UcafAuthenticationData,
		"",
	}
}

// StatusRequest 查询状态签名字段: ORDER;MERCHANT
type StatusRequest struct {
	Order    string
	Merchant string
}

func NewStatusRequest(order, merchant string) (*StatusRequest, error) {
	if err := required(map[string]string{"ORDER": order, "MERCHANT": merchant}); err != nil {
		return nil, err
	}
	return &StatusRequest{Order: order, Merchant: merchant}, nil
}

func (p *StatusRequest) SignFields() []string {
	return []string{p.Order, p.Merchant}
}

// RefundRequest 退款签名字段: ORDER;MERCHANT;REV_AMOUNT;REV_DESC;
type RefundRequest struct {
	Order     string
	Merchant  string
	RevAmount string
	RevDesc   string
}

func NewRefundRequest(order, merchant, revAmount, revDesc string) (*RefundRequest, error) {
	if err := required(map[string]string{
		"ORDER":      order,
		"MERCHANT":   merchant,
		"REV_AMOUNT": revAmount,
	}); err != nil {
		return nil, err
	}
	return &RefundRequest{Order: order, Merchant: merchant, RevAmount: revAmount, RevDesc: revDesc}, nil
}

func (p *RefundRequest) SignFields() []string {
	return []string{p.Order, p.Merchant, p.RevAmount, StripNewlines(p.RevDesc), ""}
}

// GetCallback BACKREF GET 回调
type GetCallback struct {
	Order    string
	MpiOrder string
	Rrn      string
	ResCode  string
	Amount   string
	Currency string
	ResDesc  string
	Sign     string
}

func NewGetCallback(p GetCallback) (*GetCallback, error) {
	if err := required(map[string]string{"order": p.Order, "res_code": p.ResCode}); err != nil {
		return nil, err
	}
	return &p, nil
}

// SignFields res_desc is followed by its own ';' so the digest covers a trailing separator.
func (p *GetCallback) SignFields() []string {
	return []string{
		p.Order,
		p.MpiOrder,
		p.Rrn,
		p.ResCode,
		p.Amount,
		p.Currency,
		StripNewlines(p.ResDesc) + separator,
	}
}

// PostCallback BACKREF POST 回调
type PostCallback struct {
	Order    string
	MpiOrder string
	Amount   string
	Currency string
	ResCode  string
	Rc       string
	Rrn      string
	Sign     string
}

func NewPostCallback(p PostCallback) (*PostCallback, error) {
	if err := required(map[string]string{"order": p.Order, "res_code": p.ResCode}); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *PostCallback) SignFields() []string {
	return []string{p.Order, p.MpiOrder, p.Amount, p.Currency, p.ResCode, p.Rc, p.Rrn, ""}
}

func required(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
