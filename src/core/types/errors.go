package types

import (
	"errors"
	"fmt"
)

// 错误分类覆盖识别流与图片处理流的全部失败形态:
//   ValidationError   输入校验失败, 在任何网络/解码工作之前同步返回, 不可重试
//   ParseError        事件流帧格式错误或协议不一致, 不可重试
//   NetworkError      读取事件流的传输层失败, 是否重试由调用方决定
//   StructuredError   服务端通过 error 事件显式下发的业务错误, 自带重试标记
//   CancellationError 调用方主动取消, 与所有失败类错误严格区分
//   ProcessingError   图片解码/编码失败且降级尝试也失败

// ValidationError 输入校验错误
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidationError 判断是否为输入校验错误
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// ParseError 事件流解析错误
type ParseError struct {
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// IsParseError 判断是否为事件流解析错误
func IsParseError(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}

// NetworkError 传输层错误
type NetworkError struct {
	Message string
	Cause   error
}

func (e *NetworkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// IsNetworkError 判断是否为传输层错误
func IsNetworkError(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

// StructuredError 服务端下发的结构化业务错误
type StructuredError struct {
	Type       string // 错误类型标识, 如 timeout / no_match
	Message    string
	Retryable  bool   // 服务端建议是否可重试
	SupportRef string // 诊断用支持编号
}

func (e *StructuredError) Error() string {
	return fmt.Sprintf("识别服务错误[%s]: %s (support_ref=%s)", e.Type, e.Message, e.SupportRef)
}

// IsStructuredError 判断是否为服务端结构化错误
func IsStructuredError(err error) bool {
	var target *StructuredError
	return errors.As(err, &target)
}

// AsStructuredError 提取结构化错误本体
func AsStructuredError(err error) (*StructuredError, bool) {
	var target *StructuredError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CancellationError 调用方取消错误
type CancellationError struct {
	Message string
}

func (e *CancellationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "请求已被调用方取消"
}

// IsCancellationError 判断是否为调用方取消
func IsCancellationError(err error) bool {
	var target *CancellationError
	return errors.As(err, &target)
}

// ProcessingError 图片处理错误
type ProcessingError struct {
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// IsProcessingError 判断是否为图片处理错误
func IsProcessingError(err error) bool {
	var target *ProcessingError
	return errors.As(err, &target)
}
