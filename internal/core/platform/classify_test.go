package platform

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storelens/storelens/internal/core"
)

const shopifyHTML = `<html><head>
<script src="https://cdn.shopify.com/s/files/1/theme.js"></script>
</head><body><div id="shopify-section-header" class="shopify-section header">Shop</div></body></html>`

func TestClassifyShopifyScriptAndMarkup(t *testing.T) {
	c := NewClassifier(DefaultRules())
	result := c.Classify(Input{URL: "https://brand.example.com", HTML: shopifyHTML})

	require.Equal(t, core.PlatformShopify, result.Platform)
	require.InDelta(t, 0.75, result.Confidence, 1e-9)
	require.ElementsMatch(t, []string{"script:cdn.shopify.com", "markup:shopify-section"}, result.Signals)
}

func TestClassifyAllChannelsClampToOne(t *testing.T) {
	c := NewClassifier(DefaultRules())
	result := c.Classify(Input{
		URL:     "https://brand.myshopify.com/",
		HTML:    shopifyHTML,
		Cookies: []string{"_shopify_y=abc123"},
	})

	require.Equal(t, core.PlatformShopify, result.Platform)
	require.Equal(t, 1.0, result.Confidence)
	require.Len(t, result.Signals, 4)
}

func TestClassifyHostOnlyIsUnknown(t *testing.T) {
	c := NewClassifier(DefaultRules())
	result := c.Classify(Input{URL: "https://store.ecforce.jp/lp"})

	require.Equal(t, core.PlatformUnknown, result.Platform)
	require.Equal(t, 0.25, result.Confidence)
	require.Equal(t, []string{"host:ecforce.jp"}, result.Signals)
}

func TestClassifyHostSuffixRequiresDotBoundary(t *testing.T) {
	c := NewClassifier(DefaultRules())
	result := c.Classify(Input{URL: "https://notmyshopify.com"})
	require.Equal(t, core.PlatformUnknown, result.Platform)
	require.Zero(t, result.Confidence)
	require.Empty(t, result.Signals)
}

func TestClassifyTieIsUnknownWithUnion(t *testing.T) {
	c := NewClassifier(DefaultRules())
	result := c.Classify(Input{
		ResourceURLs: []string{
			"https://cdn.shopify.com/app.js",
			"https://assets.ec-force.com/app.js",
		},
	})

	require.Equal(t, core.PlatformUnknown, result.Platform)
	require.Equal(t, 0.5, result.Confidence)
	require.ElementsMatch(t, []string{"script:cdn.shopify.com", "script:ec-force"}, result.Signals)
}

func TestClassifyEcforceFromHeadersAndMarkup(t *testing.T) {
	c := NewClassifier(DefaultRules())
	headers := http.Header{}
	headers.Add("Set-Cookie", "_ecforce_session=xyz; Path=/; HttpOnly")
	result := c.Classify(Input{
		URL:     "https://brand.example.jp",
		HTML:    `<body><form class="ecforce-cart-form"></form></body>`,
		Headers: headers,
	})

	require.Equal(t, core.PlatformEcforce, result.Platform)
	require.Equal(t, 0.5, result.Confidence)
	require.ElementsMatch(t, []string{"markup:ecforce-", "cookie:_ecforce_session"}, result.Signals)
}

func TestClassifyEmptyAndMalformedInput(t *testing.T) {
	c := NewClassifier(DefaultRules())

	result := c.Classify(Input{})
	require.Equal(t, core.PlatformUnknown, result.Platform)
	require.Zero(t, result.Confidence)
	require.NotNil(t, result.Signals)

	result = c.Classify(Input{URL: "://%%bad", HTML: "<div class=\"shopify-section"})
	require.Equal(t, core.PlatformUnknown, result.Platform)
}

func TestClassifyIsCaseInsensitive(t *testing.T) {
	c := NewClassifier(DefaultRules())
	result := c.Classify(Input{HTML: `<script src="HTTPS://CDN.SHOPIFY.COM/x.js"></script><div class="Shopify-Section"></div>`})
	require.Equal(t, core.PlatformShopify, result.Platform)
}

func TestRulesValidate(t *testing.T) {
	require.NoError(t, DefaultRules().Validate())

	bad := DefaultRules()
	bad.Threshold = 0
	require.Error(t, bad.Validate())

	bad = DefaultRules()
	bad.Platforms[0].Signals[0].Channel = "dns"
	require.Error(t, bad.Validate())

	bad = DefaultRules()
	bad.Platforms = append(bad.Platforms, bad.Platforms[0])
	require.Error(t, bad.Validate())

	bad = DefaultRules()
	bad.Platforms[1].Signals = bad.Platforms[1].Signals[:2]
	require.ErrorContains(t, bad.Validate(), "sum to 0.75")

	c := NewClassifier(Rules{})
	require.Len(t, c.rules.Platforms, 2)
}

func TestConfiguredClassifier(t *testing.T) {
	c, err := ConfiguredClassifier(Rules{})
	require.NoError(t, err)
	require.Len(t, c.rules.Platforms, 2)

	custom := Rules{Platforms: []PlatformRule{{
		Name:    "makeshop",
		Signals: []Signal{{Channel: ChannelScript, Pattern: "makeshop.jp", Weight: 1}},
	}}}
	c, err = ConfiguredClassifier(custom)
	require.NoError(t, err)
	require.Equal(t, DefaultThreshold, c.rules.Threshold)

	weak := Rules{Platforms: []PlatformRule{{
		Name:    "makeshop",
		Signals: []Signal{{Channel: ChannelScript, Pattern: "makeshop.jp", Weight: 0.4}},
	}}}
	_, err = ConfiguredClassifier(weak)
	require.ErrorContains(t, err, "at least 1.0")
}
