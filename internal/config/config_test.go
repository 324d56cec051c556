package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults with secret from env", func(t *testing.T) {
		t.Setenv("JWT_SECRET_KEY", "test-secret")

		cfg, err := Load(viper.New(), "")
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Server.Port)
		assert.Equal(t, int64(100), cfg.Energy.CreditsPerKWh)
		assert.Equal(t, "0.05", cfg.Carbon.Rates["solar"])
		assert.Equal(t, "0.19", cfg.Market.DefaultPrices["solar"])
		assert.Equal(t, 7*24*time.Hour, cfg.Governance.VotingPeriod)
		assert.Equal(t, "test-secret", cfg.JWT.SecretKey)
	})

	t.Run("env overrides file", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(file, []byte("jwt:\n  secret_key: from-file\nserver:\n  port: \"9000\"\n"), 0o600))
		t.Setenv("PORT", "9100")

		cfg, err := Load(viper.New(), file)
		require.NoError(t, err)

		assert.Equal(t, "from-file", cfg.JWT.SecretKey)
		assert.Equal(t, "9100", cfg.Server.Port)
	})

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		t.Setenv("JWT_SECRET_KEY", "test-secret")

		cfg, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.env"))
		require.NoError(t, err)
		assert.Equal(t, "MYR", cfg.Settlement.Currency)
	})

	t.Run("secret required", func(t *testing.T) {
		t.Setenv("JWT_SECRET_KEY", "")

		_, err := Load(viper.New(), "")
		assert.Error(t, err)
	})
}
