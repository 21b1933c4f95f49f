package image

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/philhumber/wineApp-sub014/src/configs"
	"github.com/philhumber/wineApp-sub014/src/core/types"
	"github.com/philhumber/wineApp-sub014/src/core/utils"

	_ "image/jpeg" // 注册JPEG解码器
	_ "image/png"  // 注册PNG解码器

	_ "golang.org/x/image/webp" // 注册WEBP解码器
)

// allowedMimeTypes 允许上传的MIME类型白名单
var allowedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

// heicExtensions 解码路径完全不支持的扩展名, 无论声明的MIME类型是什么都拦截
var heicExtensions = map[string]bool{
	".heic": true,
	".heif": true,
}

// 图片格式魔数签名
var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"webp": {0x52, 0x49, 0x46, 0x46}, // RIFF，需要进一步检查WEBP标识
}

// Validator 图片输入验证器, 全部检查在任何解码工作之前完成
type Validator struct {
	config *configs.SecurityConfig
	logger *utils.Logger
}

// NewValidator 创建图片验证器
func NewValidator(config *configs.SecurityConfig, logger *utils.Logger) *Validator {
	return &Validator{
		config: config,
		logger: logger,
	}
}

// Validate 快速校验输入文件, 失败时返回 ValidationError
func (v *Validator) Validate(file File) error {
	// HEIC/HEIF按文件名拦截: 声明的MIME类型不可信, 这类文件经常
	// 带着 image/jpeg 甚至空类型上传
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if heicExtensions[ext] {
		return &types.ValidationError{Message: "HEIC/HEIF 格式不受支持, 请在拍摄设置中切换为JPEG或先转换格式"}
	}

	mimeType := strings.ToLower(strings.TrimSpace(file.MimeType))
	if !allowedMimeTypes[mimeType] {
		return &types.ValidationError{Message: fmt.Sprintf("不支持的图片格式: %s, 仅支持JPEG/PNG/WEBP", file.MimeType)}
	}

	if len(file.Data) == 0 {
		return &types.ValidationError{Message: "图片数据为空"}
	}

	if v.config.MaxFileSize > 0 && int64(len(file.Data)) > v.config.MaxFileSize {
		return &types.ValidationError{Message: fmt.Sprintf("文件大小超限: %d bytes, 最大允许 %d bytes",
			len(file.Data), v.config.MaxFileSize)}
	}

	// 文件头与声明类型不一致只告警不拦截, 解码阶段会给出最终裁决
	if actual := DetectFormat(file.Data); actual != "" && v.logger != nil {
		declared := strings.TrimPrefix(mimeType, "image/")
		if declared == "jpg" {
			declared = "jpeg"
		}
		if actual != declared {
			v.logger.Warn(fmt.Sprintf("声明格式与文件头不一致: 声明=%s 实际=%s", declared, actual))
		}
	}

	return nil
}

// DecodeBounds 只读图片头获取尺寸, 不解码像素数据
func (v *Validator) DecodeBounds(data []byte) (width, height int, format string, err error) {
	config, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", &types.ProcessingError{Message: "图片解码失败", Cause: err}
	}

	if v.config.MaxPixels > 0 {
		totalPixels := int64(config.Width) * int64(config.Height)
		if totalPixels > v.config.MaxPixels {
			return 0, 0, "", &types.ValidationError{Message: fmt.Sprintf("像素总数超限: %d, 最大允许: %d",
				totalPixels, v.config.MaxPixels)}
		}
	}

	return config.Width, config.Height, format, nil
}

// DetectFormat 根据文件头检测图片格式, 识别不出时返回空串
func DetectFormat(data []byte) string {
	for format, signature := range imageSignatures {
		if !bytes.HasPrefix(data, signature) {
			continue
		}
		// WEBP需要额外验证RIFF容器中的标识
		if format == "webp" {
			if len(data) >= 12 && bytes.Equal(data[8:12], []byte("WEBP")) {
				return "webp"
			}
			continue
		}
		return format
	}
	return ""
}
