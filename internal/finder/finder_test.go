package finder

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/andybalholm/cascadia"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/net/html"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const fixture = `<!DOCTYPE html>
<html>
<head><title>fixture</title></head>
<body>
<div class="c1"><p>text</p></div>
<div class="c2"><em>emphasis</em></div>
<ul>
<li><span>same</span></li>
<li><span>same</span></li>
<li>aa <span>same</span></li>
<li><span>different</span></li>
</ul>
<ol><p>text</p></ol>
</body>
</html>`

func parse(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func query(t *testing.T, doc *html.Node, q string) *html.Node {
	t.Helper()
	n := cascadia.Query(doc, cascadia.MustCompile(q))
	require.NotNil(t, n, "fixture query %q matched nothing", q)
	return n
}

func check(t *testing.T, doc *html.Node, q string, opts *Options, want []Fragment) {
	t.Helper()
	got, err := Compute(query(t, doc, q), opts)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Compute(%q) mismatch (-want +got):\n%s", q, diff)
	}
}

func TestCompute_Scenarios(t *testing.T) {
	doc := parse(t, fixture)

	tests := []struct {
		name  string
		query string
		want  []Fragment
	}{
		{"unique tag name", "ul", []Fragment{{Name: "ul"}}},
		{"unique class name", ".c1", []Fragment{{Name: ".c1"}}},
		{"second unique class name", "div:nth-of-type(2)", []Fragment{{Name: ".c2"}}},
		{"unique fragment stack", "ol > p", []Fragment{{Name: "ol"}, {Name: "p"}}},
		{"content at the target", "li:nth-of-type(4) > span", []Fragment{{Name: "span", Content: "different"}}},
		{"content at an ancestor", "li:nth-of-type(3) > span", []Fragment{{Name: "li", Content: "aa same"}, {Name: "span"}}},
		{"nth child fallback", "li:nth-of-type(2) > span", []Fragment{{Name: "li:nth-child(2)"}, {Name: "span"}}},
		{"outermost tag", "html", []Fragment{{Name: "html"}}},
		{"body", "body", []Fragment{{Name: "body"}}},
		{"outside body", "title", []Fragment{{Name: "title"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check(t, doc, tt.query, nil, tt.want)
		})
	}
}

func TestFind_QueryAndPenalty(t *testing.T) {
	doc := parse(t, fixture)

	res, err := Find(query(t, doc, "ol > p"), nil)
	require.NoError(t, err)
	assert.Equal(t, "ol > p", res.Query)
	assert.Equal(t, 4.0, res.Penalty)
	assert.False(t, res.HasContent())

	res, err = Find(query(t, doc, "li:nth-of-type(3) > span"), nil)
	require.NoError(t, err)
	assert.Equal(t, "li > span", res.Query)
	assert.True(t, res.HasContent())
}

func TestCompute_InvalidInput(t *testing.T) {
	doc := parse(t, fixture)

	_, err := Compute(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	text := query(t, doc, "em").FirstChild
	require.Equal(t, html.TextNode, text.Type)
	_, err = Compute(text, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Compute(doc, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCompute_CustomRoot(t *testing.T) {
	doc := parse(t, fixture)
	ul := query(t, doc, "ul")

	check(t, doc, "li:nth-of-type(4) > span", &Options{Root: ul},
		[]Fragment{{Name: "span", Content: "different"}})

	check(t, doc, "li:nth-of-type(4) > span", &Options{Root: doc},
		[]Fragment{{Name: "span", Content: "different"}})

	_, err := Compute(query(t, doc, "em"), &Options{Root: ul})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Compute(ul, &Options{Root: ul})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCompute_ThresholdFallsBackToNthOnly(t *testing.T) {
	doc := parse(t, fixture)

	// Both All and Single+Nth offer two combinations for div.c1, so only
	// the nth-only level fits under a threshold of one.
	check(t, doc, ".c1", &Options{Threshold: 1},
		[]Fragment{{Name: ".c1:nth-child(1)"}})
}

func TestCompute_NotFound(t *testing.T) {
	doc := parse(t, `<html><body><div><b id="d">x</b><b id="d">x</b></div></body></html>`)
	target := query(t, doc, "b")

	_, err := Compute(target, nil)
	require.ErrorIs(t, err, ErrNotFound)

	// Rejecting the duplicated id lets position tell the siblings apart.
	got, err := Compute(target, &Options{IDName: func(name string) bool { return name != "d" }})
	require.NoError(t, err)
	assert.Equal(t, []Fragment{{Name: "b:nth-child(1)"}}, got)
}

func TestCompute_Attributes(t *testing.T) {
	doc := parse(t, `<html><body>
<button data-test="save" class="btn">Save</button>
<button data-test="cancel" class="btn">Cancel</button>
</body></html>`)

	onlyDataTest := func(name, _ string) bool { return name == "data-test" }
	check(t, doc, "button:nth-of-type(2)", &Options{Attr: onlyDataTest},
		[]Fragment{{Name: `[data-test="cancel"]`}})

	// Attributes are rejected by default, so the shared class falls back to
	// content.
	check(t, doc, "button:nth-of-type(2)", nil,
		[]Fragment{{Name: ".btn", Content: "Cancel"}})
}

func TestCompute_FiltersFallThroughToWildcard(t *testing.T) {
	doc := parse(t, `<html><body><section><i>a</i><i>b</i></section></body></html>`)

	noItalics := func(name string) bool { return name != "i" }
	check(t, doc, "i:nth-of-type(2)", &Options{TagName: noItalics},
		[]Fragment{{Name: "section"}, {Name: "*:nth-child(2)"}})
}

func TestCompute_Optimizer(t *testing.T) {
	doc := parse(t, fixture)
	em := query(t, doc, "em")

	// Seeding three levels yields "body > .c2 > em"; the optimizer drops .c2.
	res, err := Find(em, &Options{SeedMinLength: 3})
	require.NoError(t, err)
	assert.Equal(t, []Fragment{{Name: "body"}, {Name: "em"}}, res.Fragments)
	assert.Equal(t, "body em", res.Query)

	res, err = Find(em, &Options{SeedMinLength: 3, OptimizedMinLength: 3})
	require.NoError(t, err)
	assert.Equal(t, []Fragment{{Name: "body"}, {Name: ".c2"}, {Name: "em"}}, res.Fragments)
	assert.Equal(t, "body > .c2 > em", res.Query)
}

func TestCompute_Deterministic(t *testing.T) {
	doc := parse(t, fixture)
	target := query(t, doc, "li:nth-of-type(3) > span")

	first, err := Find(target, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Find(target, nil)
		require.NoError(t, err)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("run %d differs (-first +again):\n%s", i, diff)
		}
	}
}

// TestFind_EveryElement checks that the path computed for each element of the
// fixture selects that element and nothing else.
func TestFind_EveryElement(t *testing.T) {
	for name, page := range map[string]string{
		"fixture": fixture,
		"nested":  nestedFixture,
	} {
		doc := parse(t, page)
		for _, el := range cascadia.QueryAll(doc, cascadia.MustCompile("*")) {
			res, err := Find(el, nil)
			require.NoError(t, err, "%s: element <%s>", name, el.Data)

			got, err := Resolve(doc, res)
			require.NoError(t, err)
			assert.Equal(t, []*html.Node{el}, got, "%s: query %q fragments %v", name, res.Query, res.Fragments)
		}
	}
}

// nestedFixture repeats the same tag at consecutive depths, so an ancestor
// carrying content is not the nearest ancestor of its name.
const nestedFixture = `<!DOCTYPE html><html><body>
<div>A<div><button>x</button></div></div>
<div>B<div><button>x</button></div></div>
</body></html>`

func TestFind_NestedAncestorContent(t *testing.T) {
	doc := parse(t, nestedFixture)
	buttons := cascadia.QueryAll(doc, cascadia.MustCompile("button"))
	require.Len(t, buttons, 2)

	res, err := Find(buttons[1], nil)
	require.NoError(t, err)
	assert.Equal(t, "div > div > button", res.Query)
	assert.Equal(t, []string{" > ", " > "}, res.Combinators)
	assert.Equal(t, []Fragment{{Name: "div", Content: "Bx"}, {Name: "div"}, {Name: "button"}}, res.Fragments)

	got, err := Resolve(doc, res)
	require.NoError(t, err)
	assert.Equal(t, []*html.Node{buttons[1]}, got)
}

func TestResult_Subquery(t *testing.T) {
	res := &Result{
		Fragments:   []Fragment{{Name: "ul"}, {Name: "li"}, {Name: "span"}},
		Combinators: []string{" ", " > "},
	}
	assert.Equal(t, "ul li > span", res.Subquery(0, 3))
	assert.Equal(t, "ul", res.Subquery(0, 1))
	assert.Equal(t, "li > span", res.Subquery(1, 3))

	// Missing combinators fall back to the descendant one.
	res.Combinators = nil
	assert.Equal(t, "ul li span", res.Subquery(0, 3))
}

func TestResolve_InvalidInput(t *testing.T) {
	doc := parse(t, fixture)
	_, err := Resolve(doc, &Result{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Resolve(doc, &Result{Fragments: []Fragment{{Name: "[["}}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFind_LogsLadder(t *testing.T) {
	doc := parse(t, fixture)
	core, logs := observer.New(zapcore.DebugLevel)

	_, err := Find(query(t, doc, ".c1"), &Options{Threshold: 1, Logger: zap.New(core)})
	require.NoError(t, err)

	assert.Equal(t, 2, logs.FilterMessage("threshold exceeded").Len())
	assert.Equal(t, 2, logs.FilterMessage("richness level failed").Len())
	require.Equal(t, 1, logs.FilterMessage("unique path assembled").Len())
	assert.Equal(t, "nth-only", logs.FilterMessage("unique path assembled").All()[0].ContextMap()["richness"])
}

func TestFragment_JSON(t *testing.T) {
	data, err := json.Marshal([]Fragment{{Name: "li", Content: "aa"}, {Name: "span"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"li","content":"aa"},{"name":"span","content":null}]`, string(data))

	var back []Fragment
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []Fragment{{Name: "li", Content: "aa"}, {Name: "span"}}, back)
}
