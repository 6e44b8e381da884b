// Package imageprobe は記事画像のヘッダーのみを取得して解像度を判定する。
package imageprobe

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultTimeout は画像プローブのデフォルトタイムアウト。
	DefaultTimeout = 5 * time.Second
	// DefaultMaxBytes は画像ヘッダーとして読み込む最大バイト数（1MB）。
	DefaultMaxBytes = 1 << 20
	// DefaultMinWidth は高解像度とみなす最小の幅（px）。
	DefaultMinWidth = 800
)

// プローブ結果のメトリクスラベル。
const (
	OutcomeOK     = "ok"
	OutcomeLowRes = "low_res"
	OutcomeError  = "error"
)

var (
	errEmptyURL = errors.New("empty image URL")
	errNotImage = errors.New("response is not an image")
	// errUnsupportedFormat はimage.DecodeConfigで寸法を読めない画像形式。
	errUnsupportedFormat = errors.New("unsupported image format")
)

// SSRFValidator はSSRF防止機能のインターフェース。
// security.SSRFGuardServiceが満たす。
type SSRFValidator interface {
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
	ValidateURL(rawURL string) error
}

// ProbeRecorder はプローブ結果をメトリクスに記録するインターフェース。
type ProbeRecorder interface {
	RecordImageProbe(outcome string)
}

// Config はProberの設定。ゼロ値の項目はデフォルト値を使用する。
type Config struct {
	Timeout  time.Duration
	MaxBytes int64
	MinWidth int
}

// Prober は画像URLの解像度を判定する。
type Prober struct {
	ssrfGuard SSRFValidator
	recorder  ProbeRecorder
	client    *http.Client
	maxBytes  int64
	minWidth  int
}

// NewProber はProberの新しいインスタンスを生成する。recorderはnilでもよい。
func NewProber(ssrfGuard SSRFValidator, recorder ProbeRecorder, cfg Config) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.MinWidth <= 0 {
		cfg.MinWidth = DefaultMinWidth
	}

	p := &Prober{
		ssrfGuard: ssrfGuard,
		recorder:  recorder,
		maxBytes:  cfg.MaxBytes,
		minWidth:  cfg.MinWidth,
	}
	if ssrfGuard != nil {
		p.client = ssrfGuard.NewSafeClient(cfg.Timeout, cfg.MaxBytes)
	} else {
		p.client = &http.Client{Timeout: cfg.Timeout}
	}
	return p
}

// Probe は画像のヘッダーを読み込み、幅と高さを返す。
// 画像全体はダウンロードせず、maxBytesまでのみ読み込む。
func (p *Prober) Probe(ctx context.Context, imageURL string) (width, height int, err error) {
	if imageURL == "" {
		return 0, 0, errEmptyURL
	}

	if p.ssrfGuard != nil {
		if err := p.ssrfGuard.ValidateURL(imageURL); err != nil {
			return 0, 0, fmt.Errorf("blocked image URL: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "EpiFlipboard/1.0 Image Probe")
	req.Header.Set("Accept", "image/*")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	mimeType := extractMimeType(resp.Header.Get("Content-Type"))
	if !isProbeableMime(mimeType) {
		return 0, 0, fmt.Errorf("%w: %s", errNotImage, mimeType)
	}
	if isUndecodableMime(mimeType) {
		return 0, 0, fmt.Errorf("%w: %s", errUnsupportedFormat, mimeType)
	}

	cfg, _, err := image.DecodeConfig(io.LimitReader(resp.Body, p.maxBytes))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// MeetsMinWidth は画像の幅がminWidth以上であればtrueを返す。
// URLが空の場合や取得・デコードに失敗した場合はfalseを返す。
func (p *Prober) MeetsMinWidth(ctx context.Context, imageURL string, minWidth int) bool {
	if imageURL == "" {
		return false
	}

	width, _, err := p.Probe(ctx, imageURL)
	if errors.Is(err, errUnsupportedFormat) {
		slog.Debug("image format not measurable, treating as low resolution",
			slog.String("url", imageURL),
			slog.String("error", err.Error()),
		)
		p.record(OutcomeLowRes)
		return false
	}
	if err != nil {
		slog.Warn("image probe failed",
			slog.String("url", imageURL),
			slog.String("error", err.Error()),
		)
		p.record(OutcomeError)
		return false
	}
	if width < minWidth {
		p.record(OutcomeLowRes)
		return false
	}
	p.record(OutcomeOK)
	return true
}

// HighResolution は設定された最小幅で画像を判定する。
func (p *Prober) HighResolution(ctx context.Context, imageURL string) bool {
	return p.MeetsMinWidth(ctx, imageURL, p.minWidth)
}

func (p *Prober) record(outcome string) {
	if p.recorder != nil {
		p.recorder.RecordImageProbe(outcome)
	}
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	// セミコロンの前の部分（charset等を除去）
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

// isProbeableMime はデコードを試みるMIMEタイプかを判定する。
// Content-Type未指定とoctet-streamはデコード結果で判断する。
func isProbeableMime(mimeType string) bool {
	switch mimeType {
	case "", "application/octet-stream", "binary/octet-stream":
		return true
	}
	return strings.HasPrefix(mimeType, "image/")
}

// isUndecodableMime はデコーダーが登録されていない画像形式かを判定する。
func isUndecodableMime(mimeType string) bool {
	switch mimeType {
	case "image/svg+xml", "image/avif", "image/heic", "image/heif":
		return true
	}
	return false
}
