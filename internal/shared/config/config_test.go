package config

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The default redirect URLs must point at routes the server actually
// serves: the root-level /checkout/return and /checkout/cancel aliases.
func TestDefaultRedirectURLs(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	ret, err := url.Parse(cfg.PayPal.ReturnURL)
	require.NoError(t, err)
	assert.Equal(t, "/checkout/return", ret.Path)

	cancel, err := url.Parse(cfg.PayPal.CancelURL)
	require.NoError(t, err)
	assert.Equal(t, "/checkout/cancel", cancel.Path)
}

func TestDefaultCheckoutSettings(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Positive(t, cfg.Checkout.SessionTTL)
	assert.Equal(t, []string{"paypal", "card", "googlepay"}, cfg.Checkout.FundingSources)
}
