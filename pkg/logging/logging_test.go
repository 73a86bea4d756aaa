package logging_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/illmade-knight/go-streambridge/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "nested", "bridge.log")

	logger, closer, err := logging.New(logging.Config{Level: "info", File: path, MaxSizeMB: 1, MaxBackups: 1}, false, &console)
	require.NoError(t, err)

	logger.Info().Str("frame_id", "f1").Msg("Successfully processed frame f1")
	logger.Debug().Msg("hidden at info")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "Successfully processed frame f1")
	assert.NotContains(t, console.String(), "hidden at info")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"frame_id":"f1"`)
	assert.Contains(t, string(data), `"level":"info"`)
}

func TestNew_DebugFlagOverridesLevel(t *testing.T) {
	var console bytes.Buffer
	logger, closer, err := logging.New(logging.Config{Level: "warn"}, true, &console)
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
	logger.Debug().Msg("Raw message")
	assert.Contains(t, console.String(), "Raw message")
}

func TestNew_Levels(t *testing.T) {
	testCases := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{in: "", want: zerolog.InfoLevel},
		{in: "DEBUG", want: zerolog.DebugLevel},
		{in: " error ", want: zerolog.ErrorLevel},
		{in: "loud", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			logger, _, err := logging.New(logging.Config{Level: tc.in}, false, &bytes.Buffer{})
			if tc.wantErr {
				assert.ErrorContains(t, err, "LOG_LEVEL")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, logger.GetLevel())
		})
	}
}
