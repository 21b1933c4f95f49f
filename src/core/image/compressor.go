package image

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/philhumber/wineApp-sub014/src/configs"
	"github.com/philhumber/wineApp-sub014/src/core/types"
	"github.com/philhumber/wineApp-sub014/src/core/utils"
)

// OutputMimeType 无论输入格式如何, 输出统一重编码为JPEG
const OutputMimeType = "image/jpeg"

// workerRunner 后台压缩路径的最小接口, 便于注入失败场景
type workerRunner interface {
	Compress(ctx context.Context, data []byte, targetWidth, targetHeight int) ([]byte, error)
	Close()
}

// workerFactory 后台后端构造函数
type workerFactory func(logger *utils.Logger, quality int) (workerRunner, error)

// defaultWorkerFactory 默认使用任务工作池后端
func defaultWorkerFactory(logger *utils.Logger, quality int) (workerRunner, error) {
	return NewWorkerBackend(logger, quality)
}

// Compressor 图片压缩编排器。
// 验证→能力探测→选择后端→失败时恰好降级一次(后台→直接), 不做进一步重试。
type Compressor struct {
	config    *configs.ImageConfig
	validator *Validator
	logger    *utils.Logger
	metrics   *Metrics
	newWorker workerFactory
}

// NewCompressor 创建压缩编排器
func NewCompressor(config *configs.ImageConfig, logger *utils.Logger) *Compressor {
	return &Compressor{
		config:    config,
		validator: NewValidator(&config.Security, logger),
		logger:    logger,
		metrics:   &Metrics{},
		newWorker: defaultWorkerFactory,
	}
}

// Compress 处理一个原始图片文件, 返回归一化的压缩结果。
// 验证错误在任何解码工作之前同步返回; 后台路径的失败被捕获并
// 降级到直接路径, 只有降级本身失败才以 ProcessingError 上抛。
func (c *Compressor) Compress(ctx context.Context, file File) (*Compressed, error) {
	atomic.AddInt64(&c.metrics.TotalProcessed, 1)

	if err := c.validator.Validate(file); err != nil {
		atomic.AddInt64(&c.metrics.FailedValidations, 1)
		return nil, err
	}

	width, height, format, err := c.validator.DecodeBounds(file.Data)
	if err != nil {
		return nil, err
	}

	targetWidth, targetHeight := targetSize(width, height)

	if c.logger != nil {
		c.logger.Debug("图片预处理开始 %v", map[string]interface{}{
			"format": format,
			"source": fmt.Sprintf("%dx%d", width, height),
			"target": fmt.Sprintf("%dx%d", targetWidth, targetHeight),
		})
	}

	var encoded []byte
	if c.workerAvailable() {
		encoded, err = c.compressViaWorker(ctx, file.Data, targetWidth, targetHeight)
		if err == nil {
			atomic.AddInt64(&c.metrics.WorkerPath, 1)
			return c.finish(encoded, targetWidth, targetHeight), nil
		}
		if cancelled := ctx.Err(); cancelled != nil {
			return nil, cancelled
		}
		atomic.AddInt64(&c.metrics.Fallbacks, 1)
		if c.logger != nil {
			c.logger.Warn(fmt.Sprintf("后台压缩失败, 降级到直接处理: %v", err))
		}
	}

	direct := NewDirectBackend(c.logger, c.config.Quality)
	encoded, err = direct.Compress(ctx, file.Data, targetWidth, targetHeight)
	if err != nil {
		if types.IsProcessingError(err) {
			return nil, err
		}
		return nil, &types.ProcessingError{Message: "图片压缩失败", Cause: err}
	}

	atomic.AddInt64(&c.metrics.DirectPath, 1)
	return c.finish(encoded, targetWidth, targetHeight), nil
}

// compressViaWorker 后台路径: 构造专用工作池、提交任务、等待结果。
// 无论成功失败, 工作池在返回前都恰好销毁一次。
func (c *Compressor) compressViaWorker(ctx context.Context, data []byte, targetWidth, targetHeight int) ([]byte, error) {
	backend, err := c.newWorker(c.logger, c.config.Quality)
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	return backend.Compress(ctx, data, targetWidth, targetHeight)
}

// workerAvailable 能力探测: 后台路径未被禁用且执行器已注册
func (c *Compressor) workerAvailable() bool {
	if c.config.DisableWorker {
		return false
	}
	return true
}

// finish 统一打包压缩结果
func (c *Compressor) finish(encoded []byte, width, height int) *Compressed {
	return &Compressed{
		Data:     encoded,
		MimeType: OutputMimeType,
		Width:    width,
		Height:   height,
	}
}

// GetMetrics 获取压缩统计信息
func (c *Compressor) GetMetrics() Metrics {
	return Metrics{
		TotalProcessed:    atomic.LoadInt64(&c.metrics.TotalProcessed),
		WorkerPath:        atomic.LoadInt64(&c.metrics.WorkerPath),
		DirectPath:        atomic.LoadInt64(&c.metrics.DirectPath),
		Fallbacks:         atomic.LoadInt64(&c.metrics.Fallbacks),
		FailedValidations: atomic.LoadInt64(&c.metrics.FailedValidations),
	}
}
