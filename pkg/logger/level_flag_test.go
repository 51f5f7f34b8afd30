package logger

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestStringToLevel(t *testing.T) {
	t.Parallel()

	level, err := StringToLevel("debug", zapcore.InfoLevel)
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level)

	level, err = StringToLevel("ERROR", zapcore.InfoLevel)
	require.NoError(t, err)
	assert.Equal(t, zapcore.ErrorLevel, level)

	// Numeric verbosity maps to negative zap levels.
	level, err = StringToLevel("3", zapcore.InfoLevel)
	require.NoError(t, err)
	assert.Equal(t, zapcore.Level(-3), level)

	_, err = StringToLevel("bogus", zapcore.InfoLevel)
	assert.Error(t, err)

	_, err = StringToLevel("-1", zapcore.InfoLevel)
	assert.Error(t, err)
}

func TestLevelFlag(t *testing.T) {
	t.Parallel()

	var observed zapcore.Level
	lfv := NewLevelFlagValue(func(level zapcore.Level) { observed = level })

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.VarP(&lfv, "verbosity", "v", "")

	require.NoError(t, fs.Parse([]string{"-v=debug"}))
	assert.Equal(t, zapcore.DebugLevel, observed)
	assert.Equal(t, "debug", lfv.String())

	assert.Error(t, fs.Parse([]string{"-v=notalevel"}))
}
