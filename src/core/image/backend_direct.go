package image

import (
	"bytes"
	"context"
	"image"

	"github.com/philhumber/wineApp-sub014/src/core/types"
	"github.com/philhumber/wineApp-sub014/src/core/utils"
)

// DirectBackend 在调用方goroutine内完成 解码→铺白→缩放→编码 的全过程。
// 作为后台工作池不可用或失败时的降级路径, 也可通过配置强制启用。
type DirectBackend struct {
	logger  *utils.Logger
	quality int
}

// NewDirectBackend 创建直接压缩后端
func NewDirectBackend(logger *utils.Logger, quality int) *DirectBackend {
	return &DirectBackend{
		logger:  logger,
		quality: quality,
	}
}

// Name 后端名称
func (b *DirectBackend) Name() string {
	return "direct"
}

// Compress 解码源图并输出目标尺寸的JPEG编码字节
func (b *DirectBackend) Compress(ctx context.Context, data []byte, targetWidth, targetHeight int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &types.ProcessingError{Message: "图片解码失败", Cause: err}
	}

	dst := renderScaled(src, targetWidth, targetHeight)
	return encodeJPEG(dst, b.quality)
}
