package biz_test

import (
	"testing"
	"time"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/conf"

	"github.com/stretchr/testify/assert"
)

func TestRefundLockOutlivesOutboundCalls(t *testing.T) {
	tests := []struct {
		name       string
		c          *conf.Bootstrap
		wantBudget time.Duration
		wantTTL    time.Duration
	}{
		{
			name:       "defaults",
			c:          &conf.Bootstrap{},
			wantBudget: 60 * time.Second,
			wantTTL:    70 * time.Second,
		},
		{
			name: "configured ttl shorter than calls",
			c: &conf.Bootstrap{Payment: &conf.Payment{
				AlatauPay: &conf.Payment_AlatauPay{Timeout: &conf.Duration{Duration: 15 * time.Second}},
				Ticketon:  &conf.Payment_Ticketon{Timeout: &conf.Duration{Duration: 15 * time.Second}},
				Order:     &conf.Payment_Order{RefundLockTTL: &conf.Duration{Duration: 30 * time.Second}},
			}},
			wantBudget: 60 * time.Second,
			wantTTL:    70 * time.Second,
		},
		{
			name: "configured ttl kept when long enough",
			c: &conf.Bootstrap{Payment: &conf.Payment{
				AlatauPay: &conf.Payment_AlatauPay{Timeout: &conf.Duration{Duration: 5 * time.Second}},
				Ticketon:  &conf.Payment_Ticketon{Timeout: &conf.Duration{Duration: 3 * time.Second}},
				Order:     &conf.Payment_Order{RefundLockTTL: &conf.Duration{Duration: 2 * time.Minute}},
			}},
			wantBudget: 16 * time.Second,
			wantTTL:    2 * time.Minute,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := biz.NewPaymentConfig(tt.c)
			assert.Equal(t, tt.wantBudget, pc.RefundCallBudget)
			assert.Equal(t, tt.wantTTL, pc.RefundLockTTL)
			assert.Greater(t, pc.RefundLockTTL, pc.RefundCallBudget)
		})
	}
}
