package image

// File 待处理的原始图片文件
type File struct {
	Data     []byte // 原始字节
	MimeType string // 调用方声明的MIME类型
	Filename string // 原始文件名, HEIC/HEIF按扩展名拦截
}

// Compressed 压缩结果。Data 为JPEG原始编码字节(不带data-URI前缀),
// 两条后端路径在编排层统一为同一种表示。所有权随返回转移给调用方。
type Compressed struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
}

// Metrics 压缩统计信息
type Metrics struct {
	TotalProcessed    int64 // 总处理数量
	WorkerPath        int64 // 后台工作池路径成功次数
	DirectPath        int64 // 直接路径成功次数
	Fallbacks         int64 // 后台路径失败后降级次数
	FailedValidations int64 // 验证失败次数
}
