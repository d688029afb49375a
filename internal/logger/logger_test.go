package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevelString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, parseLevelString(tt.in))
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("dev", func(t *testing.T) {
		l, err := New(EnvDevelopment, LevelDebug)
		require.NoError(t, err)
		require.NotNil(t, l)
	})

	t.Run("prod", func(t *testing.T) {
		l, err := New(EnvProduction, LevelInfo)
		require.NoError(t, err)
		require.NotNil(t, l)
	})

	t.Run("unknown environment", func(t *testing.T) {
		_, err := New("staging", LevelInfo)
		require.Error(t, err)
	})
}

func TestWith(t *testing.T) {
	l := NewNoOpLogger()

	child := l.With("component", "test")
	require.NotNil(t, child)

	group := child.WithGroup("grouped")
	require.NotNil(t, group)
}
