package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/philhumber/wineApp-sub014/src/configs"
	"github.com/philhumber/wineApp-sub014/src/core/identify"
	imagepkg "github.com/philhumber/wineApp-sub014/src/core/image"
	"github.com/philhumber/wineApp-sub014/src/core/types"
	"github.com/philhumber/wineApp-sub014/src/core/utils"
	"github.com/philhumber/wineApp-sub014/src/devserver"

	// 导入所有识别提供者以确保init函数被调用
	_ "github.com/philhumber/wineApp-sub014/src/core/identify/openai"
	_ "github.com/philhumber/wineApp-sub014/src/core/identify/sse"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

func LoadConfigAndLogger() (*configs.Config, *utils.Logger, error) {
	// 加载配置,默认使用.config.yaml
	config, configPath, err := configs.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	// 初始化日志系统
	logger, err := utils.NewLogger(config)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(fmt.Sprintf("日志系统初始化成功, 配置文件路径: %s", configPath))

	return config, logger, nil
}

// StartStubServer 启动本地识别联调桩服务
func StartStubServer(config *configs.Config, logger *utils.Logger, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	if strings.ToUpper(config.Log.LogLevel) == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// API路由全部挂载到/api前缀下
	apiGroup := router.Group("/api")
	stubService := devserver.NewDefaultStubService(config, logger)
	if err := stubService.Start(groupCtx, apiGroup); err != nil {
		logger.Error("识别联调桩启动失败", err)
		return nil, err
	}

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(config.Server.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.Info(fmt.Sprintf("识别联调桩已启动, 访问地址: http://0.0.0.0:%d/api/identify", config.Server.Port))

		// 在单独的 goroutine 中监听关闭信号
		go func() {
			<-groupCtx.Done()
			logger.Info("收到关闭信号，开始关闭HTTP服务...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP服务关闭失败", err)
			} else {
				logger.Info("HTTP服务已优雅关闭")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP 服务启动失败", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func GracefulShutdown(cancel context.CancelFunc, logger *utils.Logger, g *errgroup.Group) {
	// 监听系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// 等待信号
	sig := <-sigChan
	logger.Info(fmt.Sprintf("接收到系统信号: %v，开始优雅关闭服务", sig))

	// 取消上下文，通知所有服务开始关闭
	cancel()

	// 等待所有服务关闭，设置超时保护
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("服务关闭过程中出现错误", err)
			os.Exit(1)
		}
		logger.Info("所有服务已优雅关闭")
	case <-time.After(15 * time.Second):
		logger.Error("服务关闭超时，强制退出")
		os.Exit(1)
	}
}

// RunIdentify 压缩指定图片并发起一次流式识别
func RunIdentify(config *configs.Config, logger *utils.Logger, imagePath string) error {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("读取图片文件失败: %v", err)
	}

	// 预处理图片
	compressor := imagepkg.NewCompressor(&config.Image, logger)
	compressed, err := compressor.Compress(context.Background(), imagepkg.File{
		Data:     data,
		MimeType: mimeTypeForPath(imagePath),
		Filename: filepath.Base(imagePath),
	})
	if err != nil {
		return fmt.Errorf("图片预处理失败: %v", err)
	}
	logger.Info(fmt.Sprintf("图片预处理完成: %dx%d, %d bytes", compressed.Width, compressed.Height, len(compressed.Data)))

	// 创建识别提供者
	providerName := config.Client.Provider
	if providerName == "" {
		providerName = "sse"
	}
	providerConfig, ok := config.Identify[providerName]
	if !ok {
		return fmt.Errorf("找不到识别提供者配置: %s", providerName)
	}
	provider, err := identify.Create(providerConfig.Type, &providerConfig, logger)
	if err != nil {
		return err
	}
	defer provider.Cleanup()

	requestID := config.Client.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	// Ctrl-C 取消本次识别
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 每次识别持有自己的字段状态表
	store := identify.NewFieldStore()
	callbacks := identify.Callbacks{
		OnField: func(name string, value interface{}) {
			fmt.Printf("  %-14s %v\n", name+":", value)
			// 命令行打印即视为揭示完成
			store.MarkRevealed(name)
		},
	}

	fmt.Println("识别中...")
	result, err := provider.Identify(ctx, identify.Request{
		RequestID: requestID,
		ImageData: compressed.Data,
		MimeType:  compressed.MimeType,
	}, callbacks, store)
	if err != nil {
		if types.IsCancellationError(err) {
			fmt.Println("已取消")
			return nil
		}
		if structured, ok := types.AsStructuredError(err); ok && structured.Retryable {
			return fmt.Errorf("%v (可重试)", structured)
		}
		return err
	}

	fmt.Printf("\n识别完成: %s %s (%s)\n", result.Producer, result.WineName, result.Vintage)
	fmt.Printf("置信度: %.0f%%, 建议动作: %s\n", result.Confidence*100, result.Action)
	for _, candidate := range result.Candidates {
		fmt.Printf("  候选: %s %s (%.0f%%)\n", candidate.WineName, candidate.Vintage, candidate.Confidence*100)
	}
	return nil
}

// mimeTypeForPath 根据扩展名推断MIME类型, HEIC留给验证器按扩展名拦截
func mimeTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return ""
	}
}

func main() {
	serve := flag.Bool("serve", false, "启动本地识别联调桩服务")
	flag.Parse()

	// 加载配置和初始化日志系统
	config, logger, err := LoadConfigAndLogger()
	if err != nil {
		fmt.Println("加载配置或初始化日志系统失败:", err)
		os.Exit(1)
	}
	defer logger.Close()

	if *serve {
		// 联调桩模式
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		g, groupCtx := errgroup.WithContext(ctx)
		if _, err := StartStubServer(config, logger, g, groupCtx); err != nil {
			logger.Error("启动服务失败:", err)
			cancel()
			os.Exit(1)
		}

		GracefulShutdown(cancel, logger, g)
		logger.Info("程序已成功退出")
		return
	}

	// 识别模式
	if flag.NArg() < 1 {
		fmt.Println("用法: wineapp [-serve] <图片路径>")
		os.Exit(1)
	}

	if err := RunIdentify(config, logger, flag.Arg(0)); err != nil {
		logger.Error(fmt.Sprintf("识别失败: %v", err))
		os.Exit(1)
	}
}
