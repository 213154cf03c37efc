package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "parseLevel(%q)", in)
	}
}

func TestMultiHandler_FansOutByLevel(t *testing.T) {
	var all, warnOnly bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		newHandler(&all, "json", &slog.HandlerOptions{Level: slog.LevelDebug}),
		newHandler(&warnOnly, "text", &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	logger := slog.New(h).With("table_id", "t1").WithGroup("cascade")

	logger.Debug("tier started", "tier", 0)
	logger.Warn("header mismatch", "derived_id", "m1")

	assert.Contains(t, all.String(), `"msg":"tier started"`)
	assert.Contains(t, all.String(), `"table_id":"t1"`)
	assert.Contains(t, all.String(), `"cascade":{"derived_id":"m1"}`)

	assert.NotContains(t, warnOnly.String(), "tier started")
	assert.Contains(t, warnOnly.String(), "cascade.derived_id=m1")

	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestFromContext_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(newHandler(&buf, "text", nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	WithFields(ctx, "table_id", "sales").Info("opened")

	assert.Contains(t, buf.String(), "request_id=req-42")
	assert.Contains(t, buf.String(), "table_id=sales")

	buf.Reset()
	FromContext(context.Background()).Info("no request")
	assert.NotContains(t, buf.String(), "request_id")
}

func TestSetup_WithoutSeq(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	closeFn := Setup("warn", "json", "")
	assert.NotNil(t, closeFn)
	closeFn()

	assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelWarn))
}

func TestSetupWriter(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "info", "text")
	slog.Debug("hidden")
	slog.Info("shown", "table_id", "t1")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "table_id=t1")
}
