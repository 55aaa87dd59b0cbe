package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zoreu/cfresolver/internal/config"
)

func TestSettleTolerated(t *testing.T) {
	live := context.Background()
	abandoned, cancel := context.WithCancel(context.Background())
	cancel()

	// chromedp wraps the context error before it reaches the caller.
	budgetExpired := fmt.Errorf("waiting for body: %w", context.DeadlineExceeded)

	t.Run("BudgetExpiryWithLiveCallerIsTolerated", func(t *testing.T) {
		assert.True(t, settleTolerated(budgetExpired, live))
	})

	t.Run("CallerCancellationSurfaces", func(t *testing.T) {
		assert.False(t, settleTolerated(budgetExpired, abandoned))
		assert.False(t, settleTolerated(context.Canceled, live))
	})

	t.Run("OtherFailuresSurface", func(t *testing.T) {
		assert.False(t, settleTolerated(errors.New("target crashed"), live))
	})
}

func TestEngineFlags(t *testing.T) {
	base := config.BrowserConfig{WindowWidth: 1920, WindowHeight: 1080}

	t.Run("HeadlessOnByConfig", func(t *testing.T) {
		cfg := base
		cfg.Headless = true
		flags := engineFlags(cfg)
		assert.Equal(t, "new", flags["headless"])
		assert.Equal(t, true, flags["disable-gpu"])
	})

	t.Run("HeadedOmitsHeadlessFlags", func(t *testing.T) {
		flags := engineFlags(base)
		assert.NotContains(t, flags, "headless")
		assert.NotContains(t, flags, "disable-gpu")
		assert.NotContains(t, flags, "mute-audio")
	})

	t.Run("TLSErrorsIgnoredOnlyWhenConfigured", func(t *testing.T) {
		assert.NotContains(t, engineFlags(base), "ignore-certificate-errors")

		cfg := base
		cfg.IgnoreTLSErrors = true
		assert.Equal(t, true, engineFlags(cfg)["ignore-certificate-errors"])
	})
}
