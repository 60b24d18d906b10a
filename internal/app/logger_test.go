package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/bloggers/pkg/logger"
)

func TestConfigureLogging(t *testing.T) {
	t.Cleanup(func() { logger.Replace(nil) })

	require.NoError(t, ConfigureLogging(LoggingConfig{Level: "debug", Format: "console"}))
	require.True(t, logger.Logger().Core().Enabled(-1))

	// unknown levels fall back to info
	require.NoError(t, ConfigureLogging(LoggingConfig{Level: "loud"}))
	require.False(t, logger.Logger().Core().Enabled(-1))
}
