package app

import (
	"testing"

	"github.com/pucklab/nhl-reversion/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	t.Setenv("DRY_RUN", "true")
	t.Setenv("STORAGE_MODE", "console")

	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)
	return cfg
}

func TestNew_DryRun(t *testing.T) {
	cfg := testConfig(t)

	application, err := New(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	require.NotNil(t, application)

	assert.NotNil(t, application.engine)
	assert.NotNil(t, application.tracker)
	assert.NotNil(t, application.book)
	assert.NotNil(t, application.gateway)
	assert.NotNil(t, application.store)
	assert.NotNil(t, application.httpServer)
	assert.NotNil(t, application.healthChecker)

	require.NoError(t, application.Shutdown())
}

func TestNew_LiveModeRequiresKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.DryRun = false
	cfg.KalshiAPIKeyID = "key-id"
	cfg.KalshiKeyPath = "/nonexistent/key.pem"

	_, err := New(cfg, zap.NewNop(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway")
}

func TestNew_ForceDryRunOverridesLiveConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.DryRun = false
	cfg.KalshiAPIKeyID = "key-id"
	cfg.KalshiKeyPath = "/nonexistent/key.pem"

	application, err := New(cfg, zap.NewNop(), &Options{ForceDryRun: true})
	require.NoError(t, err)
	require.NoError(t, application.Shutdown())
}
