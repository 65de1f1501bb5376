package intercepters_test

import (
	"context"
	"testing"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/atinyakov/shortlinks/internal/intercepters"
)

func TestInterceptorLogger(t *testing.T) {
	core, observed := observer.New(zap.DebugLevel)
	il := intercepters.InterceptorLogger(zap.New(core))

	tests := []struct {
		level   logging.Level
		fields  []any
		wantLvl zapcore.Level
		want    map[string]interface{}
	}{
		{level: logging.LevelInfo, fields: []any{"grpc.method", "Shorten", "attempt", 2}, wantLvl: zap.InfoLevel,
			want: map[string]interface{}{"grpc.method": "Shorten", "attempt": int64(2)}},
		{level: logging.LevelDebug, fields: []any{"ok", true}, wantLvl: zap.DebugLevel,
			want: map[string]interface{}{"ok": true}},
		{level: logging.LevelWarn, fields: []any{"peer", struct{ A int }{A: 1}}, wantLvl: zap.WarnLevel},
		{level: logging.LevelError, wantLvl: zap.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.wantLvl.String(), func(t *testing.T) {
			il.Log(context.Background(), tt.level, "call finished", tt.fields...)

			logs := observed.TakeAll()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.wantLvl, logs[0].Level)
			assert.Equal(t, "call finished", logs[0].Message)

			ctx := logs[0].ContextMap()
			for k, v := range tt.want {
				assert.Equal(t, v, ctx[k])
			}
		})
	}
}

func TestInterceptorLogger_UnknownLevelPanics(t *testing.T) {
	core, _ := observer.New(zap.DebugLevel)
	il := intercepters.InterceptorLogger(zap.New(core))

	assert.Panics(t, func() {
		il.Log(context.Background(), logging.Level(999), "panic test")
	})
}
