package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

// captureOutput redirects logger output to a buffer and restores the
// previous writer, level and format on cleanup.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)

	mu.RLock()
	prevOutput, prevColor := output, useColor
	mu.RUnlock()
	prevLevel := GetLevel()
	prevFormat, _ := format.Load().(string)

	InitWithWriter(buf, "", "text", false)

	t.Cleanup(func() {
		InitWithWriter(prevOutput, prevLevel, prevFormat, prevColor)
	})
	return buf
}

// ============================================================================
// Level Filtering Tests
// ============================================================================

func TestLevelFiltering(t *testing.T) {
	levels := []struct {
		level   string
		visible []string
		hidden  []string
	}{
		{"DEBUG", []string{"debug message", "info message", "warn message", "error message"}, nil},
		{"INFO", []string{"info message", "warn message", "error message"}, []string{"debug message"}},
		{"WARN", []string{"warn message", "error message"}, []string{"debug message", "info message"}},
		{"ERROR", []string{"error message"}, []string{"debug message", "info message", "warn message"}},
	}

	for _, tt := range levels {
		t.Run(tt.level, func(t *testing.T) {
			buf := captureOutput(t)
			SetLevel(tt.level)

			Debug("debug message")
			Info("info message")
			Warn("warn message")
			Error("error message")

			out := buf.String()
			for _, s := range tt.visible {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.hidden {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	t.Run("CaseInsensitive", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("dEbUg")
		Debug("visible")
		assert.Contains(t, buf.String(), "visible")
		assert.Equal(t, "DEBUG", GetLevel())
	})

	t.Run("IgnoresInvalid", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("INFO")
		SetLevel("LOUD")
		Debug("hidden")
		Info("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
		assert.Equal(t, "INFO", GetLevel())
	})
}

func TestParseLevel(t *testing.T) {
	_, ok := ParseLevel("warning")
	assert.True(t, ok)
	_, ok = ParseLevel("trace")
	assert.False(t, ok)
}

// ============================================================================
// Formatting Tests
// ============================================================================

func TestTextFormat(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")

	Info("Connection dispatched", "handle", 42, "address", "127.0.0.1:5000", "note", "two words")

	out := buf.String()
	assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[INFO\] Connection dispatched`, out)
	assert.Contains(t, out, "handle=42")
	assert.Contains(t, out, "address=127.0.0.1:5000")
	assert.Contains(t, out, `note="two words"`)
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")
	SetFormat("json")

	Info("Worker finished", "handle", 7)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "Worker finished", record["msg"])
	assert.Equal(t, "INFO", record["level"])
	assert.EqualValues(t, 7, record["handle"])
}

func TestSetFormatIgnoresInvalid(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")
	SetFormat("xml")

	Info("still text")
	assert.Contains(t, buf.String(), "[INFO] still text")
}

func TestWithGroupPrefixesKeys(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")

	With("protocol", "chat").WithGroup("peer").Info("joined", "id", 3)

	out := buf.String()
	assert.Contains(t, out, "protocol=chat")
	assert.Contains(t, out, "peer.id=3")
}

func TestErrAttr(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")

	Info("with error", Err(errors.New("broken pipe")))
	Info("without error", Err(nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `error="broken pipe"`)
	assert.NotContains(t, lines[1], "error=")
}

// ============================================================================
// Context Tests
// ============================================================================

func TestContextFields(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("DEBUG")

	lc := NewLogContext("files", "10.0.0.1:4000", 12)
	lc.ConnID = "c-1"
	ctx := WithContext(context.Background(), lc.WithTrace("trace-1", "span-1"))

	DebugCtx(ctx, "Request parsed", "method", "GET")

	out := buf.String()
	assert.Contains(t, out, "trace_id=trace-1")
	assert.Contains(t, out, "span_id=span-1")
	assert.Contains(t, out, "protocol=files")
	assert.Contains(t, out, "conn_id=c-1")
	assert.Contains(t, out, "address=10.0.0.1:4000")
	assert.Contains(t, out, "handle=12")
	assert.Contains(t, out, "method=GET")

	// Context fields come before call-site fields.
	assert.Less(t, strings.Index(out, "trace_id"), strings.Index(out, "method"))
}

func TestContextFieldsAbsent(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")

	InfoCtx(context.Background(), "plain")
	assert.NotContains(t, buf.String(), "trace_id")
	assert.Nil(t, FromContext(context.Background()))
}

func TestLogContextDuration(t *testing.T) {
	var lc *LogContext
	assert.Zero(t, lc.DurationMs())
	assert.Nil(t, lc.WithTrace("a", "b"))

	lc = NewLogContext("chat", "", 1)
	assert.GreaterOrEqual(t, lc.DurationMs(), 0.0)
}

// ============================================================================
// Output Tests
// ============================================================================

func TestInitFileOutput(t *testing.T) {
	captureOutput(t)
	path := filepath.Join(t.TempDir(), "proactor.log")

	require.NoError(t, Init(Config{Level: "INFO", Format: "text", Output: path}))
	Info("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
	assert.NotContains(t, string(data), "\033[", "files are never colored")
}

func TestInitBadFile(t *testing.T) {
	err := Init(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}

func TestConcurrentLogging(t *testing.T) {
	buf := &syncBuffer{}
	InitWithWriter(buf, "INFO", "text", false)
	t.Cleanup(func() { InitWithWriter(os.Stdout, "INFO", "text", false) })

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			Info("concurrent", "n", n)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, strings.Count(buf.String(), "concurrent"))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
