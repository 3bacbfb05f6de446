package conf

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bootstrap 配置根节点，对应 configs/config.yaml
type Bootstrap struct {
	Server  *Server  `json:"server"`
	Data    *Data    `json:"data"`
	Payment *Payment `json:"payment"`
	Cron    *Cron    `json:"cron"`
	Log     *Log     `json:"log"`
}

type Server struct {
	Http *Server_HTTP `json:"http"`
}

type Server_HTTP struct {
	Network string    `json:"network"`
	Addr    string    `json:"addr"`
	Timeout *Duration `json:"timeout"`
}

type Data struct {
	Database *Data_Database `json:"database"`
	Redis    *Data_Redis    `json:"redis"`
	Rocketmq *Data_RocketMQ `json:"rocketmq"`
}

type Data_Database struct {
	Driver      string `json:"driver"`
	Source      string `json:"source"`
	AutoMigrate bool   `json:"auto_migrate"`
}

type Data_Redis struct {
	Addr         string    `json:"addr"`
	ReadTimeout  *Duration `json:"read_timeout"`
	WriteTimeout *Duration `json:"write_timeout"`
}

type Data_RocketMQ struct {
	Enabled     bool     `json:"enabled"`
	NameServers []string `json:"name_servers"`
	GroupName   string   `json:"group_name"`
	// EventTopic 订单状态事件
	EventTopic string `json:"event_topic"`
	// RefundRetryTopic 退款重试
	RefundRetryTopic string `json:"refund_retry_topic"`
	RetryTimes       int32  `json:"retry_times"`
}

type Payment struct {
	AlatauPay *Payment_AlatauPay `json:"alatau_pay"`
	Ticketon  *Payment_Ticketon  `json:"ticketon"`
	Order     *Payment_Order     `json:"order"`
}

type Payment_AlatauPay struct {
	PaymentURL string    `json:"payment_url"`
	StatusURL  string    `json:"status_url"`
	RefundURL  string    `json:"refund_url"`
	Merchant   string    `json:"merchant"`
	Terminal   string    `json:"terminal"`
	Secret     string    `json:"secret"`
	Currency   string    `json:"currency"`
	ClientID   string    `json:"client_id"`
	Backref    string    `json:"backref"`
	Timeout    *Duration `json:"timeout"`
}

// DefaultClientTimeout 外部 HTTP 客户端未配置 timeout 时的默认值
const DefaultClientTimeout = 15 * time.Second

// ClientTimeout 网关请求超时，未配置时为 DefaultClientTimeout
func (x *Payment_AlatauPay) ClientTimeout() time.Duration {
	if x == nil || x.Timeout.AsDuration() <= 0 {
		return DefaultClientTimeout
	}
	return x.Timeout.AsDuration()
}

type Payment_Ticketon struct {
	BaseURL string    `json:"base_url"`
	Token   string    `json:"token"`
	Lang    string    `json:"lang"`
	Timeout *Duration `json:"timeout"`
}

// ClientTimeout 票务请求超时，未配置时为 DefaultClientTimeout
func (x *Payment_Ticketon) ClientTimeout() time.Duration {
	if x == nil || x.Timeout.AsDuration() <= 0 {
		return DefaultClientTimeout
	}
	return x.Timeout.AsDuration()
}

type Payment_Order struct {
	// PaymentWindow 商品订单/场地预约的支付期限
	PaymentWindow  *Duration `json:"payment_window"`
	RefundLockTTL  *Duration `json:"refund_lock_ttl"`
	SweepBatchSize int32     `json:"sweep_batch_size"`
}

type Cron struct {
	ProductOrderSpec string    `json:"product_order_spec"`
	BookingSpec      string    `json:"booking_spec"`
	TicketonSpec     string    `json:"ticketon_spec"`
	JobTimeout       *Duration `json:"job_timeout"`
}

// Duration accepts "90s", "5m" or a plain number of seconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

// AsDuration 返回 time.Duration，nil 时为 0
func (d *Duration) AsDuration() time.Duration {
	if d == nil {
		return 0
	}
	return d.Duration
}
