package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/cwrk-planet/collab-relay/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestDetectEnv(t *testing.T) {
	cases := map[string]logger.Env{
		"":               logger.EnvDev,
		"dev":            logger.EnvDev,
		"nonsense":       logger.EnvDev,
		"stage":          logger.EnvStage,
		"preprod":        logger.EnvStage,
		" Production ":   logger.EnvProd,
		"pre-production": logger.EnvStage,
	}
	for in, want := range cases {
		t.Setenv("APP_ENV", in)
		assert.Equal(t, want, logger.DetectEnv(), "APP_ENV=%q", in)
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logger.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel(""))
}

func TestInit_DevStd_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Service:   "collab-relay",
		Version:   "v0.0.1",
		Env:       logger.EnvDev,
		Backend:   logger.BackendStd,
		Level:     slog.LevelDebug,
		AddSource: true,
		Output:    &buf,
	})

	slog.Info("room created", "room", "page-1")

	out := buf.String()
	assert.False(t, strings.HasPrefix(out, "{"), "expected text output, got %s", out)
	assert.Contains(t, out, "room created")
	assert.Contains(t, out, "service=collab-relay")
	assert.Contains(t, out, "env=dev")
	assert.Contains(t, out, "room=page-1")
}

func TestInit_DebugFlagLowersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{Env: logger.EnvDev, Backend: logger.BackendStd, Debug: true, Output: &buf})

	slog.Debug("room join")
	assert.Contains(t, buf.String(), "room join")

	buf.Reset()
	logger.Init(logger.Config{Env: logger.EnvDev, Backend: logger.BackendStd, Output: &buf})
	slog.Debug("room join")
	assert.Empty(t, buf.String())
}

func TestInit_ProdZap_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Service:          "collab-relay",
		Version:          "1.2.3",
		Env:              logger.EnvProd,
		Level:            slog.LevelInfo,
		SampleInitial:    100000,
		SampleThereafter: 100000,
		Output:           &buf,
	})

	slog.Info("relay stats", slog.Int("rooms", 3))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m), "got %s", buf.String())
	assert.Equal(t, "relay stats", m["msg"])
	assert.Equal(t, "collab-relay", m["service"])
	assert.Equal(t, "prod", m["env"])
	assert.Equal(t, "1.2.3", m["version"])
	assert.Equal(t, "INFO", m["level"])
	assert.EqualValues(t, 3, m["rooms"])
	assert.NotEmpty(t, m["instance_id"])
}

func TestInit_TraceIDsFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Service:          "collab-relay",
		Env:              logger.EnvProd,
		Backend:          logger.BackendZap,
		SampleInitial:    100000,
		SampleThereafter: 100000,
		Output:           &buf,
	})

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	slog.InfoContext(ctx, "with trace")
	span.End()

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m), "got %s", buf.String())
	assert.Equal(t, span.SpanContext().TraceID().String(), m["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), m["span_id"])
	assert.Equal(t, "with trace", m["msg"])
}

func TestAttrsFromCtx_NoSpan(t *testing.T) {
	assert.Nil(t, logger.AttrsFromCtx(context.Background()))
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{Env: logger.EnvDev, Backend: logger.BackendStd, Output: &buf})

	logger.Component("gateway").Info("ws connected")
	assert.Contains(t, buf.String(), "component=gateway")
}
