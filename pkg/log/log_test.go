package log

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitLoggerLevel(t *testing.T) {
	lg, props, err := InitLogger(&Config{Level: "warn", Format: FormatJSON})
	require.NoError(t, err)
	require.NotNil(t, lg)
	assert.Equal(t, zapcore.WarnLevel, props.Level.Level())

	_, _, err = InitLogger(&Config{Level: "trace"})
	assert.NoError(t, err)

	_, _, err = InitLogger(&Config{Level: "not-a-level"})
	assert.Error(t, err)
}

func TestInitFileLogRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "serializer.log"), 0o755))

	_, _, err := InitLogger(&Config{
		Level: "info",
		File:  FileLogConfig{RootPath: dir, Filename: "serializer.log"},
	})
	assert.Error(t, err)
}

func TestInitTestLogger(t *testing.T) {
	lg, props, err := InitTestLogger(t, &Config{Level: "debug"})
	require.NoError(t, err)
	lg.Debug("pre-serialize", FieldEvent("serializer.pre_serialize"), FieldClass("Dog"))
	assert.Equal(t, zapcore.DebugLevel, props.Level.Level())
}

func TestCtxLogger(t *testing.T) {
	assert.NotNil(t, Ctx(context.Background()))

	ctx := WithModule(context.Background(), "subscriber")
	l := Ctx(ctx)
	assert.Same(t, l, Ctx(ctx))

	ctx2 := WithFields(ctx, zap.String("k", "v"))
	assert.NotSame(t, l, Ctx(ctx2))
}

func TestRatedLogger(t *testing.T) {
	l := With(FieldFormat("json")).WithRateGroup("test-rated", 1, 1)
	assert.True(t, l.RatedDebug(1, "first passes"))
	assert.False(t, l.RatedWarn(100, "too expensive"))
	assert.True(t, RatedDebug(1, "global limiter never drops"))
}

func TestBinder(t *testing.T) {
	var b Binder
	assert.NotNil(t, b.Logger())

	b.BindComponent("proxy-subscriber")
	first := b.Logger()
	assert.Same(t, first, b.Logger())

	custom := With(FieldModule("custom"))
	b.SetLogger(custom)
	assert.Same(t, custom, b.Logger())
}
