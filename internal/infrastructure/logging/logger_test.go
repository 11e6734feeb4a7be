package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		level   zapcore.Level
		wantErr bool
	}{
		{name: "production", cfg: Config{Level: "info"}, level: zapcore.InfoLevel},
		{name: "development", cfg: Config{Level: "debug", Development: true}, level: zapcore.DebugLevel},
		{name: "warn", cfg: Config{Level: "warn", OutputPaths: []string{"stderr"}}, level: zapcore.WarnLevel},
		{name: "bad level", cfg: Config{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.level))
			assert.False(t, logger.Core().Enabled(tt.level-1))
		})
	}
}

func TestNewWritesToOutputPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")
	logger, err := New(Config{Level: "info", OutputPaths: []string{path}})
	require.NoError(t, err)

	logger.Named("worker").Info("Worker ready", zap.Int("pid", 7))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"Worker ready"`)
	assert.Contains(t, string(data), `"logger":"worker"`)
	assert.Contains(t, string(data), `"pid":7`)
}

func TestChildLoggers(t *testing.T) {
	logger := NewNop()

	named := logger.Named("manager")
	require.NotNil(t, named)

	with := named.With(zap.String("unit", "unit_x"))
	require.NotNil(t, with)
	with.Info("does not panic")
}
