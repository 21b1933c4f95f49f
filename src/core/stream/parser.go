package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/philhumber/wineApp-sub014/src/core/types"
	"github.com/philhumber/wineApp-sub014/src/core/utils"
)

// EventKind 事件类型
type EventKind string

const (
	EventField  EventKind = "field"  // 单个业务字段增量到达
	EventResult EventKind = "result" // 完整识别结果
	EventError  EventKind = "error"  // 服务端结构化错误
	EventDone   EventKind = "done"   // 终止信号
)

// knownKinds 协议定义的事件类型集合, 其余类型跳过不派发
var knownKinds = map[EventKind]bool{
	EventField:  true,
	EventResult: true,
	EventError:  true,
	EventDone:   true,
}

// Event 一个完整的协议帧
type Event struct {
	Kind EventKind
	Data json.RawMessage // done 帧允许为空
}

// Parser 事件流解析器。
// 协议帧为文本块: event: <kind> 行与 data: <json> 行, 以空行结束。
// 内部通过 bufio 缓冲, 网络分块在行中间或帧中间截断都不会产出半个事件,
// 只有读到完整的帧(空行终止)才返回。
type Parser struct {
	reader *bufio.Reader
	logger *utils.Logger
	failed bool
}

// NewParser 创建事件流解析器
func NewParser(r io.Reader, logger *utils.Logger) *Parser {
	return &Parser{
		reader: bufio.NewReader(r),
		logger: logger,
	}
}

// Next 返回下一个完整事件帧。
// 输入正常结束时返回 io.EOF; 帧中途断流返回 NetworkError;
// data 不是合法JSON时返回 ParseError, 此后解析器不再可用。
func (p *Parser) Next() (*Event, error) {
	if p.failed {
		return nil, &types.ParseError{Message: "事件流已因解析错误终止"}
	}

	for {
		event, err := p.readFrame()
		if err != nil {
			return nil, err
		}

		if !knownKinds[event.Kind] {
			if p.logger != nil {
				p.logger.Warn(fmt.Sprintf("跳过未知事件类型: %s", event.Kind))
			}
			continue
		}

		if err := p.checkPayload(event); err != nil {
			p.failed = true
			return nil, err
		}

		return event, nil
	}
}

// readFrame 组装一个以空行结束的文本块
func (p *Parser) readFrame() (*Event, error) {
	var kind string
	var data string
	started := false

	for {
		line, err := p.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				if !started && strings.TrimSpace(line) == "" {
					return nil, io.EOF
				}
				return nil, &types.NetworkError{Message: "事件流在帧中途中断"}
			}
			return nil, &types.NetworkError{Message: "读取事件流失败", Cause: err}
		}

		line = strings.TrimRight(line, "\r\n")

		// 空行表示帧结束
		if line == "" {
			if !started {
				continue // 帧之间的多余空行
			}
			return &Event{Kind: EventKind(kind), Data: json.RawMessage(data)}, nil
		}
		started = true

		// 不符合 key: value 形状的行直接忽略, 不视为致命错误
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimPrefix(value, " ")

		switch key {
		case "event":
			kind = value
		case "data":
			data = value
		default:
			// 未知key同样忽略
		}
	}
}

// checkPayload 校验帧负载的JSON合法性
func (p *Parser) checkPayload(event *Event) error {
	// done 帧负载为空或被忽略
	if event.Kind == EventDone {
		return nil
	}

	if len(event.Data) == 0 {
		return &types.ParseError{Message: fmt.Sprintf("%s 事件缺少 data 负载", event.Kind)}
	}
	if !json.Valid(event.Data) {
		return &types.ParseError{Message: fmt.Sprintf("%s 事件的 data 不是合法JSON", event.Kind)}
	}
	return nil
}
