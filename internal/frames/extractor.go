package frames

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/studioflow/types"
)

// PublicPrefix 帧文件对外暴露的 URL 前缀
const PublicPrefix = "/frames/"

// 00:00:01、1.5、01:02:03.250 等
var timestampPattern = regexp.MustCompile(`^\d{1,3}(:\d{1,2}){0,2}(\.\d{1,3})?$`)

// Runner 执行外部命令，测试中替换为假实现
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stderr string, err error)
}

// ExecRunner 基于 os/exec 的 Runner
type ExecRunner struct{}

// Run 实现 Runner
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// Config 提取器配置
type Config struct {
	UploadDir  string
	FramesDir  string
	FFmpegPath string
	Timeout    time.Duration
}

// Extractor 视频帧提取器
type Extractor struct {
	cfg    Config
	runner Runner
	group  singleflight.Group
	logger *zap.Logger
}

// NewExtractor 创建提取器，runner 为 nil 时使用 ExecRunner
func NewExtractor(cfg Config, runner Runner, logger *zap.Logger) *Extractor {
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}
	if cfg.FramesDir == "" {
		cfg.FramesDir = "frames"
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		cfg:    cfg,
		runner: runner,
		logger: logger.With(zap.String("component", "frames")),
	}
}

// ResolveUpload 返回 uploads 目录下视频的路径，拒绝目录穿越，文件不存在时返回 404
func ResolveUpload(uploadDir, videoFilename string) (string, error) {
	videoFilename = strings.TrimSpace(videoFilename)
	if videoFilename == "" {
		return "", types.NewInvalidRequestError("videoFilename is required")
	}
	if !safeName(videoFilename) {
		return "", types.NewInvalidRequestError("invalid videoFilename")
	}
	videoPath := filepath.Join(uploadDir, videoFilename)
	info, err := os.Stat(videoPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", types.NewError(types.ErrNotFound, "Video file not found").WithHTTPStatus(http.StatusNotFound)
		}
		return "", types.NewError(types.ErrInternalError, "stat video").WithCause(err).WithHTTPStatus(http.StatusInternalServerError)
	}
	if info.IsDir() {
		return "", types.NewInvalidRequestError("invalid videoFilename")
	}
	return videoPath, nil
}

// FrameName 返回视频在给定时间戳的帧文件名
func FrameName(videoFilename, timestamp string) string {
	return fmt.Sprintf("%s_%s.jpg", videoFilename, strings.ReplaceAll(timestamp, ":", "-"))
}

// Extract 截取一帧并返回其公开 URL（/frames/<file>）
func (e *Extractor) Extract(ctx context.Context, videoFilename, timestamp string) (string, error) {
	videoFilename = strings.TrimSpace(videoFilename)
	timestamp = strings.TrimSpace(timestamp)
	if videoFilename == "" || timestamp == "" {
		return "", types.NewInvalidRequestError("videoFilename and timestamp are required")
	}
	if !timestampPattern.MatchString(timestamp) {
		return "", types.NewInvalidRequestError("invalid timestamp " + timestamp)
	}

	videoPath, err := ResolveUpload(e.cfg.UploadDir, videoFilename)
	if err != nil {
		return "", err
	}

	name := FrameName(videoFilename, timestamp)
	outPath := filepath.Join(e.cfg.FramesDir, name)
	if _, err := os.Stat(outPath); err == nil {
		e.logger.Debug("frame cache hit", zap.String("frame", name))
		return PublicPrefix + name, nil
	}

	_, err, shared := e.group.Do(name, func() (any, error) {
		return nil, e.run(ctx, videoPath, timestamp, outPath)
	})
	if err != nil {
		return "", err
	}
	e.logger.Info("frame extracted",
		zap.String("video", videoFilename),
		zap.String("timestamp", timestamp),
		zap.Bool("shared", shared))
	return PublicPrefix + name, nil
}

func (e *Extractor) run(ctx context.Context, videoPath, timestamp, outPath string) error {
	if err := os.MkdirAll(e.cfg.FramesDir, 0o755); err != nil {
		return types.NewError(types.ErrInternalError, "creating frames directory").WithCause(err).WithHTTPStatus(http.StatusInternalServerError)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	// 失败时删除残缺输出，否则下次请求会把它当作缓存命中
	ok := false
	defer func() {
		if !ok {
			_ = os.Remove(outPath)
		}
	}()

	stderr, err := e.runner.Run(ctx, e.cfg.FFmpegPath,
		"-ss", timestamp,
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		outPath,
		"-y",
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return types.NewTimeoutError("frame extraction timed out").WithCause(err)
		}
		e.logger.Warn("ffmpeg failed", zap.Error(err), zap.String("stderr", types.Excerpt([]byte(stderr), types.MaxExcerptLen)))
		return types.NewError(types.ErrInternalError, "Failed to extract frame").WithCause(err).WithHTTPStatus(http.StatusInternalServerError)
	}
	if _, err := os.Stat(outPath); err != nil {
		return types.NewError(types.ErrInternalError, "ffmpeg produced no frame").WithCause(err).WithHTTPStatus(http.StatusInternalServerError)
	}
	ok = true
	return nil
}

// safeName 只接受单层文件名
func safeName(name string) bool {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return false
	}
	return filepath.Base(name) == name && !strings.HasPrefix(name, ".")
}
