package identify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/philhumber/wineApp-sub014/src/core/stream"
	"github.com/philhumber/wineApp-sub014/src/core/types"
	"github.com/philhumber/wineApp-sub014/src/core/utils"
)

// fieldPayload field 事件负载
type fieldPayload struct {
	Field string      `json:"field"`
	Value interface{} `json:"value"`
}

// errorPayload error 事件负载
type errorPayload struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	SupportRef string `json:"supportRef"`
}

// Dispatcher 事件派发器。
// 单goroutine协作式派发: 事件严格按字节到达顺序处理, 同一条流上
// 不存在两个事件的并发派发或重排。每个请求最多产生一个终态
// (Result 或 error), done 之前没有 result 视为协议不一致。
type Dispatcher struct {
	logger *utils.Logger
}

// NewDispatcher 创建事件派发器
func NewDispatcher(logger *utils.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

// Run 消费解析器产出的事件直到终态。
// ctx 取消后立即停止派发并返回 CancellationError, 与取消竞争到达的
// 事件不会再触发任何回调。
func (d *Dispatcher) Run(ctx context.Context, parser *stream.Parser, cb Callbacks, store *FieldStore) (*Result, error) {
	var pending *Result

	for {
		if ctx.Err() != nil {
			return nil, &types.CancellationError{Message: "识别请求已取消"}
		}

		event, err := parser.Next()
		if err != nil {
			// 取消会让底层读取失败, 此时取消语义优先于传输错误
			if ctx.Err() != nil {
				return nil, &types.CancellationError{Message: "识别请求已取消"}
			}
			if errors.Is(err, io.EOF) {
				return nil, &types.ParseError{Message: "协议不一致: 事件流在 done 之前结束"}
			}
			return nil, err
		}

		// 观察到取消后, 并发到达的事件一律不再派发
		if ctx.Err() != nil {
			return nil, &types.CancellationError{Message: "识别请求已取消"}
		}

		switch event.Kind {
		case stream.EventField:
			var payload fieldPayload
			if err := json.Unmarshal(event.Data, &payload); err != nil {
				return nil, &types.ParseError{Message: "field 事件负载解析失败", Cause: err}
			}
			if payload.Field == "" {
				return nil, &types.ParseError{Message: "field 事件缺少字段名"}
			}
			store.Apply(payload.Field, payload.Value)
			if cb.OnField != nil {
				cb.OnField(payload.Field, payload.Value)
			}

		case stream.EventResult:
			// 识别结果只写入一次, 重复下发视为协议不一致
			if pending != nil {
				return nil, &types.ParseError{Message: "协议不一致: result 事件重复下发"}
			}
			var result Result
			if err := json.Unmarshal(event.Data, &result); err != nil {
				return nil, &types.ParseError{Message: "result 事件负载解析失败", Cause: err}
			}
			// 暂存但不立即返回: 服务端可能在 result 之后继续下发
			// field 或 error 事件, 以 done 收尾
			pending = &result

		case stream.EventError:
			var payload errorPayload
			if err := json.Unmarshal(event.Data, &payload); err != nil {
				return nil, &types.ParseError{Message: "error 事件负载解析失败", Cause: err}
			}
			if d.logger != nil {
				d.logger.Warn(fmt.Sprintf("识别服务下发错误: type=%s retryable=%t support_ref=%s",
					payload.Type, payload.Retryable, payload.SupportRef))
			}
			return nil, &types.StructuredError{
				Type:       payload.Type,
				Message:    payload.Message,
				Retryable:  payload.Retryable,
				SupportRef: payload.SupportRef,
			}

		case stream.EventDone:
			if pending == nil {
				return nil, &types.ParseError{Message: "协议不一致: done 之前没有 result 或 error"}
			}
			return pending, nil
		}
	}
}
