package sse

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/philhumber/wineApp-sub014/src/configs"
	"github.com/philhumber/wineApp-sub014/src/core/identify"
	"github.com/philhumber/wineApp-sub014/src/core/stream"
	"github.com/philhumber/wineApp-sub014/src/core/types"
	"github.com/philhumber/wineApp-sub014/src/core/utils"
)

// 注册提供者
func init() {
	identify.Register("sse", NewProvider)
}

// Provider 默认的识别提供者: 向识别服务发起流式HTTP请求,
// 响应体是 event:/data: 文本帧组成的事件流
type Provider struct {
	config     *configs.IdentifyConfig
	logger     *utils.Logger
	httpClient *http.Client
	dispatcher *identify.Dispatcher
}

// identifyRequest 识别请求体
type identifyRequest struct {
	RequestID string `json:"request_id"`
	ImageData string `json:"image_data"` // base64编码的JPEG数据
	MimeType  string `json:"mime_type"`
}

// NewProvider 创建SSE识别提供者
func NewProvider(config *configs.IdentifyConfig, logger *utils.Logger) (identify.Provider, error) {
	return &Provider{
		config: config,
		logger: logger,
		// 流式响应不设整体超时, 生命周期由请求的ctx控制
		httpClient: &http.Client{},
		dispatcher: identify.NewDispatcher(logger),
	}, nil
}

// Initialize 初始化提供者
func (p *Provider) Initialize() error {
	if p.config.BaseURL == "" {
		return fmt.Errorf("识别服务地址未配置")
	}
	return nil
}

// Cleanup 清理资源
func (p *Provider) Cleanup() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// Identify 发起流式识别请求并派发事件流。
// ctx 取消会立即中断响应体读取, 返回 CancellationError。
func (p *Provider) Identify(ctx context.Context, req identify.Request, cb identify.Callbacks, store *identify.FieldStore) (*identify.Result, error) {
	body, err := json.Marshal(identifyRequest{
		RequestID: req.RequestID,
		ImageData: base64.StdEncoding.EncodeToString(req.ImageData),
		MimeType:  req.MimeType,
	})
	if err != nil {
		return nil, &types.NetworkError{Message: "序列化识别请求失败", Cause: err}
	}

	url := strings.TrimSuffix(p.config.BaseURL, "/") + "/api/identify"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &types.NetworkError{Message: "创建识别请求失败", Cause: err}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("X-Request-Id", req.RequestID)
	if p.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &types.CancellationError{Message: "识别请求已取消"}
		}
		return nil, &types.NetworkError{Message: "识别服务请求失败", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &types.NetworkError{Message: fmt.Sprintf("识别服务返回异常状态: %d %s", resp.StatusCode, resp.Status)}
	}

	if p.logger != nil {
		p.logger.Debug("识别事件流已建立 %v", map[string]interface{}{
			"request_id": req.RequestID,
			"url":        url,
		})
	}

	parser := stream.NewParser(resp.Body, p.logger)
	return p.dispatcher.Run(ctx, parser, cb, store)
}
