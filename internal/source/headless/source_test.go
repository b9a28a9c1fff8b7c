package headless

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/places-crawler/internal/source"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.NavigationTimeout)
	assert.Equal(t, 15*time.Second, cfg.ReadyTimeout)
	assert.Equal(t, 20*time.Second, cfg.ListingTimeout)
	assert.Equal(t, 2*time.Second, cfg.FieldTimeout)
	assert.InDelta(t, 6000, cfg.ScrollDelta, 0)

	custom := Config{BaseURL: "http://localhost:8080/maps", FieldTimeout: time.Second}.withDefaults()
	assert.Equal(t, "http://localhost:8080/maps", custom.BaseURL)
	assert.Equal(t, time.Second, custom.FieldTimeout)
}

func TestNewStartsBrowserEagerly(t *testing.T) {
	t.Parallel()

	src, err := New(Config{Headless: true, ExecPath: "/nonexistent/chrome"}, nil)
	require.ErrorContains(t, err, "launch browser")
	assert.Nil(t, src)
}

func TestQuoteEscapesSelectors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"a[href*=\"/maps/place\"]"`, quote(source.CardSelector))
	assert.Equal(t, `""`, quote(""))
}

func TestScriptsEmbedSelectors(t *testing.T) {
	t.Parallel()

	assert.Contains(t, countScript(source.CardSelector), `querySelectorAll("a[href*=\"/maps/place\"]").length`)
	assert.Contains(t, clickScript(source.CardSelector, 7), ")[7]")

	sel, ok := source.SelectorFor(source.Website)
	require.True(t, ok)
	script := lookupScript(sel)
	assert.Contains(t, script, `const attr = "href";`)

	sel, ok = source.SelectorFor(source.Name)
	require.True(t, ok)
	assert.Contains(t, lookupScript(sel), `const attr = "";`)

	images := imagesScript()
	assert.NotContains(t, images, "slice(")
	assert.Contains(t, images, "streetviewpixels")

	assert.Contains(t, reviewersScript(), `"data-href"`)
	assert.Contains(t, centerScript(source.FeedSelector), `div[role=\"feed\"]`)
}

func TestText(t *testing.T) {
	t.Parallel()

	blank := "  "
	value := " Asha "
	assert.False(t, text(nil).OK)
	assert.False(t, text(&blank).OK)
	assert.Equal(t, "Asha", text(&value).Value)
}

func TestFindChromeBinaryHonorsEnv(t *testing.T) {
	t.Setenv("CHROME_BIN", "/opt/custom/chrome")
	assert.Equal(t, "/opt/custom/chrome", findChromeBinary())
}
