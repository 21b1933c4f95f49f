package devserver

// IdentifyRequest 识别请求体(与客户端SSE提供者的请求结构一致)
type IdentifyRequest struct {
	RequestID string `json:"request_id"`
	ImageData string `json:"image_data"` // base64编码的图片数据
	MimeType  string `json:"mime_type"`
}

// TokenRequest 联调token签发请求
type TokenRequest struct {
	ClientID string `json:"client_id"`
}

// TokenResponse 联调token签发响应
type TokenResponse struct {
	Token string `json:"token"`
}

// ErrorResponse 标准错误响应结构
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// AuthVerifyResult 认证验证结果
type AuthVerifyResult struct {
	IsValid  bool
	ClientID string
}
