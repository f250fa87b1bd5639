package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestJSONLinesCarryServiceAndContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(Config{Format: "json", Level: "debug"}, &buf)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithCaller(ctx, "0x00000000000000000000000000000000000A0001")
	log := WithContext(ctx, base)
	log.Info().Uint64("loan_id", 4).Msg("pool funded")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, ServiceName, line["service"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "0x00000000000000000000000000000000000A0001", line["account"])
	assert.Equal(t, "pool funded", line["message"])
	assert.Contains(t, line["caller"], "logger_test.go")
	assert.Contains(t, line, "time")
}

func TestWithContextWithoutValues(t *testing.T) {
	var buf bytes.Buffer
	log := WithContext(context.Background(), NewWithWriter(Config{}, &buf))
	log.Info().Msg("idle")

	assert.NotContains(t, buf.String(), "request_id")
	assert.Contains(t, buf.String(), `"message":"idle"`)
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Format: "Console"}, &buf)
	log.Info().Msg("hello")

	out := strings.TrimSpace(buf.String())
	assert.False(t, strings.HasPrefix(out, "{"), "expected console output, got %q", out)
	assert.Contains(t, out, "hello")
}

func TestLevelFiltersMessages(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Format: "json", Level: "warn"}, &buf)

	log.Info().Msg("dropped")
	log.Warn().Msg("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}
