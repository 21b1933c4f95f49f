package identify

import (
	"context"
	"fmt"

	"github.com/philhumber/wineApp-sub014/src/configs"
	"github.com/philhumber/wineApp-sub014/src/core/utils"
)

// Candidate 候选酒款
type Candidate struct {
	WineName   string  `json:"wine_name"`
	Producer   string  `json:"producer"`
	Vintage    string  `json:"vintage"`
	Confidence float64 `json:"confidence"`
}

// Result 识别最终结果。result 事件到达后只写入一次, 之后不再修改。
type Result struct {
	WineName     string      `json:"wine_name"`
	Producer     string      `json:"producer"`
	Vintage      string      `json:"vintage"`
	Region       string      `json:"region"`
	Country      string      `json:"country"`
	GrapeVariety string      `json:"grape_variety"`
	WineType     string      `json:"wine_type"`
	Confidence   float64     `json:"confidence"`
	Action       string      `json:"action"` // 建议的后续动作, 如 confirm / review
	Candidates   []Candidate `json:"candidates,omitempty"`
}

// Request 一次识别请求的输入
type Request struct {
	RequestID string
	ImageData []byte // 预处理后的JPEG编码字节
	MimeType  string
}

// Callbacks 调用方回调集合。
// OnField 在字段事件到达的同一轮派发中同步调用, 不做批处理,
// 以支持前端的渐进式揭示。
type Callbacks struct {
	OnField func(name string, value interface{})
}

// Provider 识别提供者接口
type Provider interface {
	Initialize() error
	Cleanup() error
	// Identify 发起一次识别, 阻塞直到产生最终结果或错误。
	// 每次调用都持有自己的 FieldStore, 并发请求之间没有共享可变状态。
	Identify(ctx context.Context, req Request, cb Callbacks, store *FieldStore) (*Result, error)
}

// Factory 识别提供者工厂函数类型
type Factory func(config *configs.IdentifyConfig, logger *utils.Logger) (Provider, error)

var (
	factories = make(map[string]Factory)
)

// Register 注册识别提供者工厂
func Register(name string, factory Factory) {
	factories[name] = factory
}

// Create 创建识别提供者实例
func Create(name string, config *configs.IdentifyConfig, logger *utils.Logger) (Provider, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("未知的识别提供者: %s", name)
	}

	provider, err := factory(config, logger)
	if err != nil {
		return nil, fmt.Errorf("创建识别提供者失败: %v", err)
	}

	if err := provider.Initialize(); err != nil {
		return nil, fmt.Errorf("初始化识别提供者失败: %v", err)
	}

	return provider, nil
}
