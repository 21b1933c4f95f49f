package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/philhumber/wineApp-sub014/src/configs"
	"github.com/philhumber/wineApp-sub014/src/core/identify"
	"github.com/philhumber/wineApp-sub014/src/core/types"
	"github.com/philhumber/wineApp-sub014/src/core/utils"

	"github.com/sashabaranov/go-openai"
)

// 注册提供者
func init() {
	identify.Register("openai", NewProvider)
}

// visionPrompt 要求模型以固定JSON结构回答, 字段与识别服务的 result 事件一致
const visionPrompt = `识别照片中的葡萄酒, 只输出一个JSON对象, 不要输出其他内容, 结构为:
{"wine_name": string, "producer": string, "vintage": string, "region": string,
"country": string, "grape_variety": string, "wine_type": string,
"confidence": number(0-1), "action": "confirm"|"review",
"candidates": [{"wine_name": string, "producer": string, "vintage": string, "confidence": number}]}
无法确定的字段填空字符串, confidence 给出总体置信度。`

// fieldOrder 解析出结果后按此顺序补发字段回调, 模拟服务端的渐进下发
var fieldOrder = []string{
	"wine_name", "producer", "vintage", "region", "country", "grape_variety", "wine_type",
}

// Provider 备用识别提供者: 不经过专用识别服务, 直接调用
// OpenAI兼容的视觉模型完成识别, 对外保持与SSE提供者相同的
// 回调与终态契约
type Provider struct {
	config *configs.IdentifyConfig
	logger *utils.Logger
	client *openai.Client
}

// NewProvider 创建OpenAI识别提供者
func NewProvider(config *configs.IdentifyConfig, logger *utils.Logger) (identify.Provider, error) {
	return &Provider{
		config: config,
		logger: logger,
	}, nil
}

// Initialize 初始化提供者
func (p *Provider) Initialize() error {
	if p.config.APIKey == "" {
		return fmt.Errorf("OpenAI API密钥未配置")
	}
	if p.config.ModelName == "" {
		return fmt.Errorf("模型名称未配置")
	}

	clientConfig := openai.DefaultConfig(p.config.APIKey)
	if p.config.BaseURL != "" {
		clientConfig.BaseURL = p.config.BaseURL
	}
	p.client = openai.NewClientWithConfig(clientConfig)
	return nil
}

// Cleanup 清理资源
func (p *Provider) Cleanup() error {
	return nil
}

// Identify 将压缩后的图片发给视觉模型, 收齐流式回复后解析为识别结果
func (p *Provider) Identify(ctx context.Context, req identify.Request, cb identify.Callbacks, store *identify.FieldStore) (*identify.Result, error) {
	if ctx.Err() != nil {
		return nil, &types.CancellationError{Message: "识别请求已取消"}
	}

	dataURI := fmt.Sprintf("data:%s;base64,%s", req.MimeType, base64.StdEncoding.EncodeToString(req.ImageData))

	visionMessage := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: visionPrompt,
			},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: dataURI,
				},
			},
		},
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    p.config.ModelName,
		Messages: []openai.ChatCompletionMessage{visionMessage},
		Stream:   true,
	}
	if p.config.Temperature > 0 {
		chatReq.Temperature = float32(p.config.Temperature)
	}
	if p.config.MaxTokens > 0 {
		chatReq.MaxTokens = p.config.MaxTokens
	}

	chatStream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &types.CancellationError{Message: "识别请求已取消"}
		}
		return nil, &types.NetworkError{Message: "视觉模型调用失败", Cause: err}
	}
	defer chatStream.Close()

	var content strings.Builder
	for {
		response, err := chatStream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return nil, &types.CancellationError{Message: "识别请求已取消"}
			}
			return nil, &types.NetworkError{Message: "读取视觉模型回复失败", Cause: err}
		}
		if len(response.Choices) > 0 {
			content.WriteString(response.Choices[0].Delta.Content)
		}
	}

	result, err := parseResult(content.String())
	if err != nil {
		return nil, err
	}

	// 与SSE提供者保持一致的字段回调顺序
	p.emitFields(ctx, result, cb, store)

	if p.logger != nil {
		p.logger.Info(fmt.Sprintf("视觉模型识别完成: %s (%s), confidence=%.2f",
			result.WineName, result.Vintage, result.Confidence))
	}
	return result, nil
}

// emitFields 对已填充的字段按固定顺序补发回调
func (p *Provider) emitFields(ctx context.Context, result *identify.Result, cb identify.Callbacks, store *identify.FieldStore) {
	values := map[string]string{
		"wine_name":     result.WineName,
		"producer":      result.Producer,
		"vintage":       result.Vintage,
		"region":        result.Region,
		"country":       result.Country,
		"grape_variety": result.GrapeVariety,
		"wine_type":     result.WineType,
	}

	for _, name := range fieldOrder {
		if ctx.Err() != nil {
			return
		}
		value := values[name]
		if value == "" {
			continue
		}
		store.Apply(name, value)
		if cb.OnField != nil {
			cb.OnField(name, value)
		}
	}
}

// parseResult 从模型回复中提取JSON并解析为识别结果
func parseResult(content string) (*identify.Result, error) {
	trimmed := strings.TrimSpace(content)

	// 容忍模型包裹的markdown代码块
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return nil, &types.ParseError{Message: "视觉模型回复中没有JSON结果"}
	}

	var result identify.Result
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &result); err != nil {
		return nil, &types.ParseError{Message: "视觉模型结果解析失败", Cause: err}
	}
	return &result, nil
}
