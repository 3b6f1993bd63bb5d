package log

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFactoryLevelFiltering(t *testing.T) {
	t.Parallel()
	var output strings.Builder
	factory := NewFactory(&output, LevelInfo, false)
	testLogger := factory.NewLogger("stream")

	testLogger.Debug("dropped")
	testLogger.Info("kept")
	testLogger.Error("also kept")

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "INFO")
	require.Contains(t, lines[0], "[stream] kept")
	require.Contains(t, lines[1], "ERROR")
}

func TestFactoryUntaggedLogger(t *testing.T) {
	t.Parallel()
	var output strings.Builder
	factory := NewFactory(&output, LevelTrace, false)
	factory.Logger().Trace("plain")
	require.Contains(t, output.String(), "TRACE plain")
	require.NotContains(t, output.String(), "[")
}
