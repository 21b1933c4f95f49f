package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/philhumber/wineApp-sub014/src/core/types"
	"github.com/philhumber/wineApp-sub014/src/core/utils"
	"github.com/philhumber/wineApp-sub014/src/task"
)

// CompressTaskType 图片压缩任务类型
const CompressTaskType task.TaskType = "image_compress"

// compressParams 压缩任务参数, 字节切片直接移交给工作池, 不做拷贝
type compressParams struct {
	Data         []byte
	TargetWidth  int
	TargetHeight int
	Quality      int
}

// 注册压缩任务执行器
func init() {
	task.RegisterTaskExecutor(CompressTaskType, executeCompressTask)
}

// executeCompressTask 在工作者goroutine内执行 解码→铺白→缩放→编码
func executeCompressTask(t *task.Task) error {
	params, ok := t.Params.(*compressParams)
	if !ok {
		return fmt.Errorf("压缩任务参数类型错误: %T", t.Params)
	}

	src, _, err := image.Decode(bytes.NewReader(params.Data))
	if err != nil {
		return fmt.Errorf("图片解码失败: %v", err)
	}

	dst := renderScaled(src, params.TargetWidth, params.TargetHeight)
	encoded, err := encodeJPEG(dst, params.Quality)
	if err != nil {
		return err
	}

	t.Result = encoded
	return nil
}

// WorkerBackend 把压缩任务移交给专用的后台工作池执行。
// 每次压缩调用创建自己的单工作者池, 结束时销毁, 不存在常驻工作池。
type WorkerBackend struct {
	pool      *task.WorkerPool
	logger    *utils.Logger
	quality   int
	closeOnce sync.Once
}

// NewWorkerBackend 创建后台压缩后端。能力探测失败(执行器未注册)时返回错误,
// 由编排层降级到直接后端。
func NewWorkerBackend(logger *utils.Logger, quality int) (*WorkerBackend, error) {
	if _, ok := task.GetTaskExecutor(CompressTaskType); !ok {
		return nil, fmt.Errorf("压缩任务执行器未注册")
	}

	pool := task.NewWorkerPool(task.ResourceConfig{MaxWorkers: 1})
	pool.Start()

	return &WorkerBackend{
		pool:    pool,
		logger:  logger,
		quality: quality,
	}, nil
}

// Name 后端名称
func (b *WorkerBackend) Name() string {
	return "worker"
}

// Close 销毁后台工作池。幂等, 每条退出路径都必须恰好生效一次。
func (b *WorkerBackend) Close() {
	b.closeOnce.Do(func() {
		b.pool.Stop()
	})
}

// Compress 提交压缩任务并同步等待结果
func (b *WorkerBackend) Compress(ctx context.Context, data []byte, targetWidth, targetHeight int) ([]byte, error) {
	compressTask, taskID := task.NewTask(ctx, CompressTaskType, &compressParams{
		Data:         data,
		TargetWidth:  targetWidth,
		TargetHeight: targetHeight,
		Quality:      b.quality,
	})

	callback := task.NewResultCallback()
	compressTask.Callback = callback

	if err := b.pool.Submit(compressTask); err != nil {
		return nil, &types.ProcessingError{Message: "提交压缩任务失败", Cause: err}
	}

	if b.logger != nil {
		b.logger.Debug("压缩任务已提交 %v", map[string]interface{}{
			"task_id": taskID,
			"target":  fmt.Sprintf("%dx%d", targetWidth, targetHeight),
		})
	}

	select {
	case outcome := <-callback.Done():
		if outcome.Err != nil {
			return nil, &types.ProcessingError{Message: "后台压缩任务失败", Cause: outcome.Err}
		}
		encoded, ok := outcome.Result.([]byte)
		if !ok {
			return nil, &types.ProcessingError{Message: fmt.Sprintf("压缩任务结果类型错误: %T", outcome.Result)}
		}
		return encoded, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
