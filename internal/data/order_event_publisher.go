package data

import (
	"context"
	"encoding/json"
	"fmt"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/conf"

	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultEventTopic       = "order-payment-events"
	defaultRefundRetryTopic = "order-refund-retry"
	// refundRetryDelayLevel RocketMQ 延迟级别 9 对应 5 分钟
	refundRetryDelayLevel = 9
)

type orderEventPublisher struct {
	data             *Data
	log              *log.Helper
	eventTopic       string
	refundRetryTopic string
}

// NewOrderEventPublisher 订单事件发布；RocketMQ 未启用时只记录日志
func NewOrderEventPublisher(data *Data, c *conf.Bootstrap, logger log.Logger) biz.OrderEventPublisher {
	p := &orderEventPublisher{
		data:             data,
		log:              log.NewHelper(logger),
		eventTopic:       defaultEventTopic,
		refundRetryTopic: defaultRefundRetryTopic,
	}
	if c.Data != nil && c.Data.Rocketmq != nil {
		if c.Data.Rocketmq.EventTopic != "" {
			p.eventTopic = c.Data.Rocketmq.EventTopic
		}
		if c.Data.Rocketmq.RefundRetryTopic != "" {
			p.refundRetryTopic = c.Data.Rocketmq.RefundRetryTopic
		}
	}
	return p
}

func (p *orderEventPublisher) PublishOrderEvent(ctx context.Context, event *biz.OrderEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := primitive.NewMessage(p.eventTopic, body).
		WithTag(event.Type).
		WithKeys([]string{event.OrderID})
	return p.send(ctx, msg)
}

// PublishRefundRetry 延迟投递，由 refund retry consumer 重新执行退款
func (p *orderEventPublisher) PublishRefundRetry(ctx context.Context, event *biz.RefundRetryEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := primitive.NewMessage(p.refundRetryTopic, body).
		WithTag(string(event.Kind)).
		WithKeys([]string{event.OrderID}).
		WithDelayTimeLevel(refundRetryDelayLevel)
	return p.send(ctx, msg)
}

func (p *orderEventPublisher) send(ctx context.Context, msg *primitive.Message) error {
	if p.data.mq == nil {
		p.log.Debugf("RocketMQ disabled, dropping message: topic=%s, keys=%s", msg.Topic, msg.GetKeys())
		return nil
	}
	res, err := p.data.mq.SendSync(ctx, msg)
	if err != nil {
		p.log.Errorf("Send RocketMQ failed: topic=%s, error=%v", msg.Topic, err)
		return err
	}
	if res.Status != primitive.SendOK {
		return fmt.Errorf("send to %s returned status %d", msg.Topic, res.Status)
	}
	return nil
}
