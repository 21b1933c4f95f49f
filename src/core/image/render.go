package image

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math"

	"github.com/philhumber/wineApp-sub014/src/core/types"

	xdraw "golang.org/x/image/draw"
)

// MaxDimension 压缩契约固定的最大边长(宽高均适用)
const MaxDimension = 800

// targetSize 计算缩放后的目标尺寸: scale = min(1, B/W, B/H)。
// 已在边界内的图片不放大, 原样通过。
func targetSize(width, height int) (int, int) {
	scale := math.Min(1, math.Min(
		float64(MaxDimension)/float64(width),
		float64(MaxDimension)/float64(height),
	))
	return int(math.Round(float64(width) * scale)), int(math.Round(float64(height) * scale))
}

// renderScaled 将源图绘制到目标尺寸的画布上。
// 画布必须先整体填充不透明白色再绘制源图, 顺序不可颠倒:
// 透明PNG直接进入JPEG有损编码时, 透明区域会变成黑色。
func renderScaled(src image.Image, targetWidth, targetHeight int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

// encodeJPEG 统一输出为JPEG编码字节
func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, &types.ProcessingError{Message: "JPEG编码失败", Cause: err}
	}
	return buf.Bytes(), nil
}
