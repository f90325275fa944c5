package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestLogger_ComponentAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf, Component: ComponentStorage})

	logger.Debug("opened", FieldBackend, "sqlite")
	logger.WithComponent(ComponentAuth).Warn("rejected")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "storage", lines[0][FieldComponent])
	assert.Equal(t, "sqlite", lines[0][FieldBackend])
	assert.Equal(t, "auth", lines[1][FieldComponent])
	assert.Equal(t, "WARN", lines[1]["level"])
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Format: "json", Output: &buf})

	logger.Info("dropped")
	logger.Error("kept")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["msg"])
	assert.Equal(t, ComponentApp, lines[0][FieldComponent])
}

func TestNewContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Output: &buf}).With(FieldRequestID, "req_1")

	ctx := NewContext(context.Background(), logger)
	FromContext(ctx).InfoContext(ctx, "inside")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req_1", lines[0][FieldRequestID])
}

func TestFromContext_Default(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	assert.Equal(t, ComponentApp, logger.Component())
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf}))
	r := httptest.NewRequest(http.MethodGet, "/overview?email=a@x.com", nil)

	sl.LogHTTPStart(context.Background(), r, "req_2", "10.0.0.1")
	sl.LogHTTPEnd(context.Background(), r, "req_2", http.StatusForbidden, 3, "3ms", "10.0.0.1")
	sl.LogError(context.Background(), "store failed", errors.New("boom"), ComponentStorage, OpList, NewFields().WithOwner("a@x.com"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "/overview", lines[0][FieldPath])
	assert.Equal(t, "WARN", lines[1]["level"])
	assert.Equal(t, false, lines[1][FieldSuccess])
	assert.Equal(t, "boom", lines[2][FieldError])
	assert.Equal(t, "storage", lines[2][FieldComponent])
	assert.Equal(t, "a@x.com", lines[2][FieldOwner])
}
