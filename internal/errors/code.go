package errors

import (
	"fmt"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// Order Payment Service 错误分类
//
//	validation:   请求参数错误、订单不存在/不属于当前用户、非法状态变更 (400)
//	unauthorized: 回调签名校验失败 (401)
//	locked:       同一订单的退款正在进行 (409)
//	gateway:      支付网关/票务系统不可用或返回异常 (503)
//	internal:     其他未预期错误 (500)
const (
	ReasonValidation   = "VALIDATION"
	ReasonUnauthorized = "UNAUTHORIZED"
	ReasonLocked       = "LOCKED"
	ReasonGateway      = "GATEWAY_ERROR"
	ReasonInternal     = "INTERNAL"
)

// Validation 业务校验失败
func Validation(format string, args ...interface{}) *kerrors.Error {
	return kerrors.BadRequest(ReasonValidation, fmt.Sprintf(format, args...))
}

// Unauthorized 签名不匹配
func Unauthorized(format string, args ...interface{}) *kerrors.Error {
	return kerrors.Unauthorized(ReasonUnauthorized, fmt.Sprintf(format, args...))
}

// Locked 资源被占用
func Locked(format string, args ...interface{}) *kerrors.Error {
	return kerrors.Conflict(ReasonLocked, fmt.Sprintf(format, args...))
}

// Gateway 外部系统错误，保留原始错误
func Gateway(cause error, format string, args ...interface{}) *kerrors.Error {
	e := kerrors.ServiceUnavailable(ReasonGateway, fmt.Sprintf(format, args...))
	if cause != nil {
		return e.WithCause(cause)
	}
	return e
}

// Internal 未预期错误
func Internal(cause error, format string, args ...interface{}) *kerrors.Error {
	e := kerrors.InternalServer(ReasonInternal, fmt.Sprintf(format, args...))
	if cause != nil {
		return e.WithCause(cause)
	}
	return e
}

func IsValidation(err error) bool   { return err != nil && kerrors.Reason(err) == ReasonValidation }
func IsUnauthorized(err error) bool { return err != nil && kerrors.Reason(err) == ReasonUnauthorized }
func IsLocked(err error) bool       { return err != nil && kerrors.Reason(err) == ReasonLocked }
func IsGateway(err error) bool      { return err != nil && kerrors.Reason(err) == ReasonGateway }

// Message 返回面向调用方的错误信息
func Message(err error) string {
	if err == nil {
		return ""
	}
	if e := kerrors.FromError(err); e != nil && e.Reason != "" {
		return e.Message
	}
	return err.Error()
}
