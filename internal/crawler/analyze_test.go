package crawler

import (
	"strings"
	"testing"

	"github.com/andybalholm/cascadia"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/nodepath/internal/config"
	"github.com/v0xg/nodepath/internal/finder"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/net/html"
)

const shop = `<!DOCTYPE html>
<html><head><title> Shop </title></head>
<body>
<header><nav>
  <a href="/">Home</a>
  <a href="/cart">Cart</a>
  <a href="/cart">Cart again</a>
  <a href="#top">Top</a>
</nav></header>
<main>
  <form>
    <input name="q" placeholder="Search">
    <input type="hidden" name="token" value="x">
    <input type="submit" value="Go">
  </form>
  <ul>
    <li><button>Add</button></li>
    <li><button>Add</button></li>
  </ul>
  <select name="size"><option>S</option></select>
  <label><input type="checkbox" name="gift"> Gift</label>
  <a href="javascript:void(0)">Noop</a>
  <div hidden><button>Secret</button></div>
  <button style="display: none">Ghost</button>
</main>
</body></html>`

func TestAnalyze(t *testing.T) {
	pm, err := Analyze([]byte(shop), "https://example.test/", Options{})
	require.NoError(t, err)

	assert.Equal(t, "https://example.test/", pm.URL)
	assert.Equal(t, "Shop", pm.Title)
	assert.False(t, pm.IsSPA)

	var types, texts []string
	for _, el := range pm.Elements {
		types = append(types, el.Type)
		texts = append(texts, el.Text)
	}
	// The checkbox also matches the generic input group and is kept once.
	assert.Equal(t, []string{"button", "button", "button", "text", "checkbox", "link", "link", "link", "select"}, types)
	assert.Equal(t, "Go", pm.Elements[0].Text)
	assert.Equal(t, "Search", pm.Elements[3].Placeholder)
	assert.Equal(t, "q", pm.Elements[3].Name)
	assert.NotContains(t, texts, "Secret")
	assert.NotContains(t, texts, "Ghost")
	assert.NotContains(t, texts, "Noop")
	assert.NotContains(t, texts, "Top")

	require.Len(t, pm.Navigation, 2)
	assert.Equal(t, "/", pm.Navigation[0].Href)
	assert.Equal(t, "Cart", pm.Navigation[1].Text)
}

// TestAnalyze_SelectorsResolve checks that every reported element is singled
// out again by its query plus fragment contents.
func TestAnalyze_SelectorsResolve(t *testing.T) {
	for name, page := range map[string]string{"shop": shop, "nested": nestedCards} {
		pm, err := Analyze([]byte(page), "", Options{})
		require.NoError(t, err)

		doc, err := html.Parse(strings.NewReader(page))
		require.NoError(t, err)

		for _, el := range pm.Elements {
			got, err := finder.Resolve(doc, el.Result())
			require.NoError(t, err)
			assert.Len(t, got, 1, "%s: selector %q", name, el.Selector)
		}
		for _, item := range pm.Navigation {
			got, err := finder.Resolve(doc, item.Result())
			require.NoError(t, err)
			require.Len(t, got, 1, "%s: selector %q", name, item.Selector)
			assert.Equal(t, item.Href, attr(got[0], "href"))
		}
	}
}

// nestedCards wraps look-alike buttons in same-tag ancestors, so the ancestor
// that carries the distinguishing text is not the nearest div.
const nestedCards = `<!DOCTYPE html><html><body>
<div>A<div><button>x</button></div></div>
<div>B<div><button>x</button></div></div>
</body></html>`

func TestAnalyze_NestedAncestorContent(t *testing.T) {
	pm, err := Analyze([]byte(nestedCards), "", Options{})
	require.NoError(t, err)
	require.Len(t, pm.Elements, 2)

	second := pm.Elements[1]
	assert.Equal(t, "div > div > button", second.Selector)
	assert.Equal(t, []string{" > ", " > "}, second.Combinators)
	assert.Equal(t, "Bx", second.Fragments[0].Content)

	doc, err := html.Parse(strings.NewReader(nestedCards))
	require.NoError(t, err)
	buttons := cascadia.QueryAll(doc, cascadia.MustCompile("button"))
	require.Len(t, buttons, 2)

	got, err := finder.Resolve(doc, second.Result())
	require.NoError(t, err)
	assert.Equal(t, []*html.Node{buttons[1]}, got)
}

func TestAnalyze_DuplicateButtonsGetContentOrNth(t *testing.T) {
	pm, err := Analyze([]byte(shop), "", Options{})
	require.NoError(t, err)

	var adds []Element
	for _, el := range pm.Elements {
		if el.Text == "Add" {
			adds = append(adds, el)
		}
	}
	require.Len(t, adds, 2)
	assert.NotEqual(t, adds[0].Selector, adds[1].Selector)
}

func TestAnalyze_SPAMarkers(t *testing.T) {
	for name, page := range map[string]string{
		"next":   `<div id="__next"><button>Go</button></div>`,
		"vue":    `<div data-v-1a2b3c><button>Go</button></div>`,
		"svelte": `<div class="main svelte-xyz"><button>Go</button></div>`,
		"ng":     `<app-root><button>Go</button></app-root>`,
	} {
		pm, err := Analyze([]byte(page), "", Options{})
		require.NoError(t, err, name)
		assert.True(t, pm.IsSPA, name)
	}
}

func TestAnalyze_Rules(t *testing.T) {
	page := `<main><button data-testid="buy" class="btn">Buy</button><button data-testid="sell" class="btn">Sell</button></main>`
	rules := config.Default()
	rules.Attr.Allow = []string{"data-testid"}

	pm, err := Analyze([]byte(page), "", Options{Rules: rules})
	require.NoError(t, err)
	require.Len(t, pm.Elements, 2)
	assert.Equal(t, `[data-testid="buy"]`, pm.Elements[0].Selector)
	assert.Equal(t, `[data-testid="sell"]`, pm.Elements[1].Selector)

	rules = config.Default()
	rules.Root = "section"
	_, err = Analyze([]byte(page), "", Options{Rules: rules})
	assert.Error(t, err)
}

func TestAnalyze_LogsSkippedElements(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	page := `<html><body><div><button id="d">x</button><button id="d">x</button></div></body></html>`

	pm, err := Analyze([]byte(page), "", Options{Logger: zap.New(core)})
	require.NoError(t, err)

	// A duplicated id shadows position, so neither button can be singled out.
	assert.Empty(t, pm.Elements)
	assert.Equal(t, 2, logs.FilterMessage("skipping element").Len())

	// Denying the id through the rules recovers both.
	rules := config.Default()
	rules.ID.Deny = []string{"^d$"}
	pm, err = Analyze([]byte(page), "", Options{Rules: rules})
	require.NoError(t, err)
	require.Len(t, pm.Elements, 2)
	assert.Equal(t, "button:nth-child(1)", pm.Elements[0].Selector)
	assert.Equal(t, "button:nth-child(2)", pm.Elements[1].Selector)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", truncate("héllo", 5))
	assert.Equal(t, "hé", truncate("héllo", 2))
}
