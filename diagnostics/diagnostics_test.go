package diagnostics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"focusstack/imgtask"
	"focusstack/scheduler"
)

type noopLogger struct{}

func (noopLogger) Verbosef(string, ...any)  {}
func (noopLogger) Progressf(string, ...any) {}
func (noopLogger) Infof(string, ...any)     {}
func (noopLogger) Errorf(string, ...any)    {}

type instantTask struct {
	imgtask.Base
}

func (t *instantTask) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error { return nil })
}

func TestRecorderCapturesFinalTaskTotal(t *testing.T) {
	pool := scheduler.New(1, noopLogger{})
	rec := NewRecorder(pool, 10*time.Millisecond)
	rec.Start(time.Now())

	for i := 0; i < 3; i++ {
		pool.Add(&instantTask{Base: imgtask.NewBase("t", "", i, false, nil)})
		time.Sleep(20 * time.Millisecond)
	}
	ok, msg := pool.WaitAll(time.Second)
	require.True(t, ok, msg)

	samples := rec.Stop()
	require.NotEmpty(t, samples)
	require.Equal(t, 3, samples[len(samples)-1].Total)
}

func TestSavePNGWritesFile(t *testing.T) {
	samples := []Sample{
		{Elapsed: 0, Completed: 0, Total: 2},
		{Elapsed: 10 * time.Millisecond, Completed: 1, Total: 2},
		{Elapsed: 20 * time.Millisecond, Completed: 2, Total: 2},
	}
	path := filepath.Join(t.TempDir(), "throughput.png")
	require.NoError(t, SavePNG(samples, "test run", path, 4, 4))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}
