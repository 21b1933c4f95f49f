package devserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/philhumber/wineApp-sub014/src/configs"
	"github.com/philhumber/wineApp-sub014/src/core/auth"
	"github.com/philhumber/wineApp-sub014/src/core/identify"
	imagepkg "github.com/philhumber/wineApp-sub014/src/core/image"
	"github.com/philhumber/wineApp-sub014/src/core/utils"

	"github.com/gin-gonic/gin"
)

const (
	// 最大请求体为16MB(base64编码后的图片)
	MAX_BODY_SIZE = 16 * 1024 * 1024
)

// fixtureResult 联调桩固定返回的识别结果
var fixtureResult = identify.Result{
	WineName:     "Château Margaux",
	Producer:     "Château Margaux",
	Vintage:      "2015",
	Region:       "Margaux, Bordeaux",
	Country:      "France",
	GrapeVariety: "Cabernet Sauvignon Blend",
	WineType:     "red",
	Confidence:   0.92,
	Action:       "confirm",
	Candidates: []identify.Candidate{
		{WineName: "Château Margaux", Producer: "Château Margaux", Vintage: "2015", Confidence: 0.92},
		{WineName: "Pavillon Rouge du Château Margaux", Producer: "Château Margaux", Vintage: "2015", Confidence: 0.41},
	},
}

// fixtureFields 渐进下发的字段顺序
var fixtureFields = []struct {
	Name  string
	Value string
}{
	{"wine_name", fixtureResult.WineName},
	{"producer", fixtureResult.Producer},
	{"vintage", fixtureResult.Vintage},
	{"region", fixtureResult.Region},
	{"country", fixtureResult.Country},
	{"grape_variety", fixtureResult.GrapeVariety},
	{"wine_type", fixtureResult.WineType},
}

// DefaultStubService 识别服务的本地联调桩。
// 以真实的线上协议(event:/data:文本帧)回放固定的识别脚本,
// 让客户端在没有线上服务时也能完整跑通流式识别链路。
type DefaultStubService struct {
	logger    *utils.Logger
	config    *configs.Config
	authToken *auth.AuthToken
}

// NewDefaultStubService 构造函数
func NewDefaultStubService(config *configs.Config, logger *utils.Logger) *DefaultStubService {
	return &DefaultStubService{
		logger:    logger,
		config:    config,
		authToken: auth.NewAuthToken(config.Server.Token),
	}
}

// Start 注册所有联调桩路由
func (s *DefaultStubService) Start(ctx context.Context, apiGroup *gin.RouterGroup) error {
	apiGroup.GET("/identify", s.handleGet)
	apiGroup.POST("/identify", s.handlePost)
	apiGroup.OPTIONS("/identify", s.handleOptions)
	apiGroup.POST("/token", s.handleToken)

	s.logger.Info("识别联调桩路由注册完成")
	return nil
}

// handleOptions 处理OPTIONS请求（CORS）
func (s *DefaultStubService) handleOptions(c *gin.Context) {
	s.addCORSHeaders(c)
	c.Status(http.StatusOK)
}

// handleGet 处理GET请求（状态检查）
func (s *DefaultStubService) handleGet(c *gin.Context) {
	s.addCORSHeaders(c)
	c.String(http.StatusOK, "识别联调桩运行正常, POST图片到本接口获取识别事件流")
}

// handleToken 签发联调用的JWT token
func (s *DefaultStubService) handleToken(c *gin.Context) {
	s.addCORSHeaders(c)

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ClientID == "" {
		s.respondError(c, http.StatusBadRequest, "缺少client_id")
		return
	}

	token, err := s.authToken.GenerateToken(req.ClientID)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, TokenResponse{Token: token})
}

// handlePost 处理识别请求, 以事件流回放识别脚本
func (s *DefaultStubService) handlePost(c *gin.Context) {
	s.addCORSHeaders(c)

	if s.config.Server.RequireAuth {
		authResult, err := s.verifyAuth(c)
		if err != nil || !authResult.IsValid {
			s.respondError(c, http.StatusUnauthorized, "无效的认证token或token已过期")
			s.logger.Warn(fmt.Sprintf("识别请求认证失败: %v", err))
			return
		}
	}

	req, imageData, err := s.parseIdentifyRequest(c)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err.Error())
		s.logger.Warn(fmt.Sprintf("识别请求解析失败: %v", err))
		return
	}

	s.logger.Debug("收到识别请求 %v", map[string]interface{}{
		"request_id": req.RequestID,
		"mime_type":  req.MimeType,
		"image_size": len(imageData),
		"scenario":   c.Query("scenario"),
	})

	s.streamScript(c, c.Query("scenario"))
}

// parseIdentifyRequest 解析并校验识别请求体
func (s *DefaultStubService) parseIdentifyRequest(c *gin.Context) (*IdentifyRequest, []byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MAX_BODY_SIZE)

	var req IdentifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, nil, fmt.Errorf("请求体解析失败: %v", err)
	}

	if req.ImageData == "" {
		return nil, nil, fmt.Errorf("缺少图片数据")
	}

	imageData, err := base64.StdEncoding.DecodeString(req.ImageData)
	if err != nil {
		return nil, nil, fmt.Errorf("图片数据base64解码失败: %v", err)
	}

	// 验证图片文件头
	if imagepkg.DetectFormat(imageData) == "" {
		return nil, nil, fmt.Errorf("不支持的文件格式, 请上传有效的图片文件")
	}

	return &req, imageData, nil
}

// streamScript 按场景回放事件脚本
func (s *DefaultStubService) streamScript(c *gin.Context, scenario string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	delay := time.Duration(s.config.Server.FieldDelay) * time.Millisecond

	switch scenario {
	case "error":
		s.writeFrame(c, "error", map[string]interface{}{
			"type":       "timeout",
			"message":    "识别服务处理超时",
			"retryable":  true,
			"supportRef": "ERR-TIMEOUT-1",
		})
		s.writeFrame(c, "done", nil)

	case "empty":
		// 协议不一致场景: done之前没有result, 客户端应报协议错误
		s.writeFrame(c, "done", nil)

	default:
		for _, field := range fixtureFields {
			if c.Request.Context().Err() != nil {
				return
			}
			s.writeFrame(c, "field", map[string]interface{}{
				"field": field.Name,
				"value": field.Value,
			})
			if delay > 0 {
				time.Sleep(delay)
			}
		}
		s.writeFrame(c, "result", fixtureResult)
		s.writeFrame(c, "done", nil)
	}
}

// writeFrame 写出一个协议帧并立即刷出
func (s *DefaultStubService) writeFrame(c *gin.Context, kind string, payload interface{}) {
	data := "{}"
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			s.logger.Error(fmt.Sprintf("事件负载序列化失败: %v", err))
			return
		}
		data = string(encoded)
	}

	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", kind, data)
	c.Writer.Flush()
}

// verifyAuth 验证认证token
func (s *DefaultStubService) verifyAuth(c *gin.Context) (*AuthVerifyResult, error) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, fmt.Errorf("缺少Bearer token")
	}

	token := authHeader[7:] // 移除"Bearer "前缀

	isValid, clientID, err := s.authToken.VerifyToken(token)
	if err != nil || !isValid {
		return nil, fmt.Errorf("token验证失败: %v", err)
	}

	return &AuthVerifyResult{
		IsValid:  true,
		ClientID: clientID,
	}, nil
}

// addCORSHeaders 添加CORS头
func (s *DefaultStubService) addCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Headers", "content-type, authorization, x-request-id")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
}

// respondError 返回错误响应
func (s *DefaultStubService) respondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, ErrorResponse{
		Success: false,
		Message: message,
	})
}
