package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newTestViper())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1920, cfg.Browser.WindowWidth)
	assert.Equal(t, 1080, cfg.Browser.WindowHeight)
	assert.Equal(t, 45*time.Second, cfg.Browser.NavTimeout)
	assert.Equal(t, 10*time.Second, cfg.Browser.SettleTimeout)
	assert.Equal(t, 30*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, "cfresolver", cfg.Logger.ServiceName)
}

func TestLoadOverrides(t *testing.T) {
	v := newTestViper()
	v.Set("server.port", 9090)
	v.Set("browser.headless", false)
	v.Set("browser.exec_path", "/usr/local/bin/chromium")
	v.Set("browser.settle_timeout", "3s")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "/usr/local/bin/chromium", cfg.Browser.ExecPath)
	assert.Equal(t, 3*time.Second, cfg.Browser.SettleTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(v *viper.Viper)
		wantErr string
	}{
		{
			name:    "invalid port",
			mutate:  func(v *viper.Viper) { v.Set("server.port", 0) },
			wantErr: "invalid server port",
		},
		{
			name:    "invalid viewport",
			mutate:  func(v *viper.Viper) { v.Set("browser.window_width", -1) },
			wantErr: "invalid browser viewport",
		},
		{
			name:    "zero nav timeout",
			mutate:  func(v *viper.Viper) { v.Set("browser.nav_timeout", "0s") },
			wantErr: "nav_timeout",
		},
		{
			name:    "zero upstream timeout",
			mutate:  func(v *viper.Viper) { v.Set("upstream.timeout", "0s") },
			wantErr: "upstream timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestViper()
			tt.mutate(v)
			_, err := Load(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
