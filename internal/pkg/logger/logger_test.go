package logger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// 多个 goroutine 同时首次取 logger，必须拿到同一个实例且不触发数据竞争
func TestGetLoggerConcurrentFirstUse(t *testing.T) {
	const workers = 16

	loggers := make([]*zap.Logger, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			l := GetLogger()
			l.Info("并发初始化探测", zap.Int("worker", idx))
			loggers[idx] = l
		}(i)
	}
	wg.Wait()

	require.NotNil(t, loggers[0])
	for _, l := range loggers[1:] {
		assert.Same(t, loggers[0], l)
	}
}

func TestGetLoggerAfterInitReturnsSameInstance(t *testing.T) {
	InitLogger("stdout", "stderr", "debug")
	assert.Same(t, GetLogger(), GetLogger())
}
