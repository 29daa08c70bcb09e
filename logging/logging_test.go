package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestSetupInstallsGlobalLogger(t *testing.T) {
	logger, err := Setup("debug")
	require.NoError(t, err)
	require.Same(t, logger, zap.L())
	require.True(t, zap.L().Core().Enabled(zapcore.DebugLevel))
}

func TestParseLevel(t *testing.T) {
	lvl, err := parseLevel("")
	require.NoError(t, err)
	require.Equal(t, zapcore.InfoLevel, lvl)

	lvl, err = parseLevel("WARN")
	require.NoError(t, err)
	require.Equal(t, zapcore.WarnLevel, lvl)

	_, err = parseLevel("loud")
	require.Error(t, err)
}
