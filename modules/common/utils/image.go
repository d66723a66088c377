package utils

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // PNG 디코더 등록
	"log"
	"strings"

	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

// 레퍼런스 이미지 규격 (카메라 캡처 기준 ideal width 1920)
const (
	MaxReferenceSide = 1920
	ReferenceQuality = 90
	// MaxDecodePixels - 디코딩 허용 최대 픽셀 수 (40MP)
	MaxDecodePixels = 40_000_000
)

var (
	// ErrEmptyImage - 이미지 데이터 없음
	ErrEmptyImage = errors.New("image data is empty")
	// ErrImageTooLarge - 디코딩 전 헤더 기준 픽셀 수 초과
	ErrImageTooLarge = errors.New("image dimensions too large")
)

// checkDimensions - 헤더의 가로x세로로 픽셀 수 제한
func checkDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}
	if int64(width)*int64(height) > MaxDecodePixels {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, width, height)
	}
	return nil
}

// FindBase64Start - data URL이면 base64 시작 위치 반환 (아니면 0)
func FindBase64Start(s string) int {
	if !strings.HasPrefix(s, "data:") {
		return 0
	}
	if idx := strings.Index(s, ","); idx >= 0 {
		return idx + 1
	}
	return 0
}

// DecodeBase64Image - base64 또는 data URL 문자열을 바이너리로 변환
func DecodeBase64Image(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = s[FindBase64Start(s):]
	if s == "" {
		return nil, ErrEmptyImage
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	return data, nil
}

// ToDataURL - 바이너리를 data URL로 변환
func ToDataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// DecodeImage - JPEG/PNG/WebP 자동 감지 디코딩 (픽셀 버퍼 할당 전에 헤더로 크기 확인)
func DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	if isWebP(data) {
		dec, err := decoder.NewDecoder(bytes.NewReader(data), &decoder.Options{})
		if err != nil {
			return nil, "", fmt.Errorf("failed to read WebP header: %w", err)
		}
		features := dec.GetFeatures()
		if err := checkDimensions(features.Width, features.Height); err != nil {
			return nil, "", err
		}
		img, err := dec.Decode()
		if err != nil {
			return nil, "", fmt.Errorf("failed to decode WebP: %w", err)
		}
		return img, "webp", nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	if err := checkDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, "", err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// NormalizeReference - 업로드/캡처 이미지를 JPEG(q90) 레퍼런스로 정규화
// mirror=true면 전면 카메라처럼 좌우 반전
func NormalizeReference(data []byte, mirror bool) ([]byte, error) {
	img, format, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	img = ScaleToFit(img, MaxReferenceSide)
	if mirror {
		img = MirrorHorizontal(img)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: ReferenceQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	log.Printf("🔄 Reference normalized: %s %dx%d → jpeg %dx%d (%d bytes, mirror=%v)",
		format, bounds.Dx(), bounds.Dy(), img.Bounds().Dx(), img.Bounds().Dy(), buf.Len(), mirror)
	return buf.Bytes(), nil
}

// MirrorHorizontal - 좌우 반전
func MirrorHorizontal(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.Set(b.Dx()-1-x, y, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// ScaleToFit - 긴 변이 maxSide를 넘으면 비율 유지하며 축소 (Nearest Neighbor)
func ScaleToFit(src image.Image, maxSide int) image.Image {
	b := src.Bounds()
	srcWidth, srcHeight := b.Dx(), b.Dy()
	longest := srcWidth
	if srcHeight > longest {
		longest = srcHeight
	}
	if maxSide <= 0 || longest <= maxSide {
		return src
	}

	scale := float64(maxSide) / float64(longest)
	newWidth := max(1, int(float64(srcWidth)*scale))
	newHeight := max(1, int(float64(srcHeight)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	for y := 0; y < newHeight; y++ {
		for x := 0; x < newWidth; x++ {
			srcX := b.Min.X + min(srcWidth-1, int(float64(x)/scale))
			srcY := b.Min.Y + min(srcHeight-1, int(float64(y)/scale))
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}
	return dst
}

// ConvertToWebP - 생성 이미지(PNG 등)를 WebP로 변환
func ConvertToWebP(data []byte, quality float32) ([]byte, error) {
	img, _, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}

	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, quality)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebP encoder options: %w", err)
	}

	var webpBuffer bytes.Buffer
	if err := webp.Encode(&webpBuffer, img, options); err != nil {
		return nil, fmt.Errorf("failed to encode WebP: %w", err)
	}

	webpData := webpBuffer.Bytes()
	log.Printf("✅ Image converted to WebP: %d bytes → %d bytes", len(data), len(webpData))
	return webpData, nil
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}
