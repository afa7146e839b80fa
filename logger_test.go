package automate

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-logger/glog"
	"github.com/stretchr/testify/assert"
)

func TestFmtLoggerWritesLevelMessageAndFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := WithLoggerFields(NewFmtLogger(buf), map[string]any{"worker": "w1", "attempt": 2})

	logger.Error("Error delivering %s", "boom")

	line := buf.String()
	assert.Contains(t, line, "ERROR")
	assert.Contains(t, line, "Error delivering boom")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(line), "attempt=2 worker=w1"))
}

func TestFmtLoggerCopiesShareOutputSafely(t *testing.T) {
	buf := &bytes.Buffer{}
	base := NewFmtLogger(buf)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger := WithLoggerFields(base.WithContext(context.Background()), map[string]any{"worker": fmt.Sprintf("w%d", i)})
			for j := range 25 {
				logger.Info("delivered %d", j)
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 200)
	for _, line := range lines {
		assert.Contains(t, line, "INFO")
		assert.Regexp(t, `delivered \d+ worker=w\d$`, line)
	}
}

func TestNormalizeLoggerFallsBackToFmt(t *testing.T) {
	_, ok := NormalizeLogger(nil).(*FmtLogger)
	assert.True(t, ok)
}

func TestGlogAdapterWritesStructuredOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	base := glog.NewLogger(
		glog.WithWriter(buf),
		glog.WithLoggerTypeJSON(),
		glog.WithLevel("trace"),
	)
	logger := WithLoggerFields(NewGlogLogger(base), map[string]any{"object": "Widget.42"})
	logger = logger.WithContext(context.Background())

	logger.Info("Delivering attrs")

	out := buf.String()
	assert.Contains(t, out, "Delivering attrs")
	assert.Contains(t, out, "Widget.42")
}
