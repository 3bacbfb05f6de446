package biz

import (
	"context"
	"strings"
)

type guestEmailKey struct{}

// NewGuestContext 匿名订单（user_id 为空）以下单邮箱证明归属
func NewGuestContext(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, guestEmailKey{}, strings.TrimSpace(email))
}

// GuestEmailFromContext 返回 NewGuestContext 写入的邮箱
func GuestEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(guestEmailKey{}).(string)
	return email, ok && email != ""
}

// ownsOrder 登录用户按 user_id 匹配；匿名订单只接受邮箱一致的游客
func ownsOrder(ctx context.Context, o *Order, userID string) bool {
	if userID != "" {
		return o.UserID == userID
	}
	if o.UserID != "" {
		return false
	}
	email, ok := GuestEmailFromContext(ctx)
	return ok && strings.EqualFold(o.Email, email)
}
