package appctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/fileops/pkg/config"
)

func TestWithConfig(t *testing.T) {
	t.Run("stores config manager in context", func(t *testing.T) {
		manager := config.NewManager()
		retrieved, ok := Config(WithConfig(context.Background(), manager))
		require.True(t, ok)
		assert.Same(t, manager, retrieved)
	})

	t.Run("handles nil context", func(t *testing.T) {
		manager := config.NewManager()
		//nolint:staticcheck
		retrieved, ok := Config(WithConfig(nil, manager))
		require.True(t, ok)
		assert.Same(t, manager, retrieved)
	})
}

func TestConfig(t *testing.T) {
	t.Run("returns false for nil context", func(t *testing.T) {
		//nolint:staticcheck
		_, ok := Config(nil)
		assert.False(t, ok)
	})

	t.Run("returns false when config not in context", func(t *testing.T) {
		_, ok := Config(context.Background())
		assert.False(t, ok)
	})

	t.Run("returns false for nil config manager", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), configKey, (*config.Manager)(nil))
		_, ok := Config(ctx)
		assert.False(t, ok)
	})

	t.Run("returns false for wrong type in context", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), configKey, "not a manager")
		_, ok := Config(ctx)
		assert.False(t, ok)
	})
}

func TestConfigOrDefault(t *testing.T) {
	manager := config.NewManager()
	assert.Same(t, manager, ConfigOrDefault(WithConfig(context.Background(), manager)))

	fallback := ConfigOrDefault(context.Background())
	require.NotNil(t, fallback)
	assert.Equal(t, config.DefaultConfig(), fallback.Get())
}
