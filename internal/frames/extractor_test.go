package frames

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/studioflow/types"
)

// fakeRunner writes the output file ffmpeg would produce.
type fakeRunner struct {
	calls   atomic.Int32
	args    [][]string
	mu      sync.Mutex
	err     error
	delay   time.Duration
	skip    bool
	partial bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.args = append(f.args, append([]string{name}, args...))
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		if f.partial {
			_ = os.WriteFile(args[len(args)-2], []byte("jp"), 0o644)
		}
		return "Invalid data found when processing input", f.err
	}
	if f.skip {
		return "", nil
	}
	out := args[len(args)-2]
	return "", os.WriteFile(out, []byte("jpeg"), 0o644)
}

func newTestExtractor(t *testing.T, runner Runner) (*Extractor, Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		UploadDir:  filepath.Join(dir, "uploads"),
		FramesDir:  filepath.Join(dir, "frames"),
		FFmpegPath: "/usr/bin/ffmpeg",
		Timeout:    time.Second,
	}
	require.NoError(t, os.MkdirAll(cfg.UploadDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.UploadDir, "clip.mp4"), []byte("video"), 0o644))
	return NewExtractor(cfg, runner, zap.NewNop()), cfg
}

func TestFrameName(t *testing.T) {
	assert.Equal(t, "clip.mp4_00-00-05.jpg", FrameName("clip.mp4", "00:00:05"))
	assert.Equal(t, "clip.mp4_1.5.jpg", FrameName("clip.mp4", "1.5"))
}

func TestExtract_RunsFFmpegOnce(t *testing.T) {
	runner := &fakeRunner{}
	e, cfg := newTestExtractor(t, runner)

	url, err := e.Extract(context.Background(), "clip.mp4", "00:00:05")
	require.NoError(t, err)
	assert.Equal(t, "/frames/clip.mp4_00-00-05.jpg", url)
	assert.FileExists(t, filepath.Join(cfg.FramesDir, "clip.mp4_00-00-05.jpg"))

	require.Len(t, runner.args, 1)
	assert.Equal(t, []string{
		"/usr/bin/ffmpeg",
		"-ss", "00:00:05",
		"-i", filepath.Join(cfg.UploadDir, "clip.mp4"),
		"-frames:v", "1",
		"-q:v", "2",
		filepath.Join(cfg.FramesDir, "clip.mp4_00-00-05.jpg"),
		"-y",
	}, runner.args[0])

	// second call is served from disk
	again, err := e.Extract(context.Background(), "clip.mp4", "00:00:05")
	require.NoError(t, err)
	assert.Equal(t, url, again)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestExtract_ConcurrentCallsShareOneRun(t *testing.T) {
	runner := &fakeRunner{delay: 50 * time.Millisecond}
	e, _ := newTestExtractor(t, runner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Extract(context.Background(), "clip.mp4", "3")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, runner.calls.Load(), int32(2))
}

func TestExtract_Validation(t *testing.T) {
	e, _ := newTestExtractor(t, &fakeRunner{})

	tests := []struct {
		name     string
		video    string
		ts       string
		code     types.ErrorCode
		httpCode int
	}{
		{"missing video", "", "00:00:01", types.ErrInvalidRequest, http.StatusBadRequest},
		{"missing timestamp", "clip.mp4", " ", types.ErrInvalidRequest, http.StatusBadRequest},
		{"traversal", "../secret.mp4", "1", types.ErrInvalidRequest, http.StatusBadRequest},
		{"nested", "a/clip.mp4", "1", types.ErrInvalidRequest, http.StatusBadRequest},
		{"hidden", ".env", "1", types.ErrInvalidRequest, http.StatusBadRequest},
		{"bad timestamp", "clip.mp4", "1; rm -rf /", types.ErrInvalidRequest, http.StatusBadRequest},
		{"not uploaded", "other.mp4", "1", types.ErrNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(context.Background(), tt.video, tt.ts)
			te, ok := types.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, te.Code)
			assert.Equal(t, tt.httpCode, te.HTTPStatus)
		})
	}
}

func TestExtract_FFmpegFailure(t *testing.T) {
	e, _ := newTestExtractor(t, &fakeRunner{err: errors.New("exit status 1")})

	_, err := e.Extract(context.Background(), "clip.mp4", "00:00:01")
	assert.Equal(t, types.ErrInternalError, types.GetErrorCode(err))
}

func TestExtract_FailedRunLeavesNoCachedFrame(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1"), partial: true}
	e, cfg := newTestExtractor(t, runner)

	_, err := e.Extract(context.Background(), "clip.mp4", "00:00:01")
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(cfg.FramesDir, FrameName("clip.mp4", "00:00:01")))

	runner.err = nil
	runner.partial = false
	url, err := e.Extract(context.Background(), "clip.mp4", "00:00:01")
	require.NoError(t, err)
	assert.Equal(t, "/frames/clip.mp4_00-00-01.jpg", url)
	assert.Equal(t, int32(2), runner.calls.Load())
}

func TestResolveUpload(t *testing.T) {
	_, cfg := newTestExtractor(t, &fakeRunner{})
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.UploadDir, "dir.mp4"), 0o755))

	path, err := ResolveUpload(cfg.UploadDir, " clip.mp4 ")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.UploadDir, "clip.mp4"), path)

	_, err = ResolveUpload(cfg.UploadDir, "../clip.mp4")
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
	_, err = ResolveUpload(cfg.UploadDir, "dir.mp4")
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
	_, err = ResolveUpload(cfg.UploadDir, "gone.mp4")
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestExtract_NoOutputProduced(t *testing.T) {
	e, _ := newTestExtractor(t, &fakeRunner{skip: true})

	_, err := e.Extract(context.Background(), "clip.mp4", "00:00:01")
	assert.Equal(t, types.ErrInternalError, types.GetErrorCode(err))
}

func TestExtract_Timeout(t *testing.T) {
	runner := &fakeRunner{delay: time.Second}
	e, _ := newTestExtractor(t, runner)
	e.cfg.Timeout = 20 * time.Millisecond

	_, err := e.Extract(context.Background(), "clip.mp4", "00:00:01")
	assert.Equal(t, types.ErrTimeout, types.GetErrorCode(err))
}

func TestNewExtractor_Defaults(t *testing.T) {
	e := NewExtractor(Config{}, nil, nil)
	assert.Equal(t, "uploads", e.cfg.UploadDir)
	assert.Equal(t, "frames", e.cfg.FramesDir)
	assert.Equal(t, "ffmpeg", e.cfg.FFmpegPath)
	assert.Equal(t, 30*time.Second, e.cfg.Timeout)
	assert.IsType(t, ExecRunner{}, e.runner)
}
