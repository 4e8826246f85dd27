package crawler

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/v0xg/nodepath/internal/config"
	"go.uber.org/zap"
)

// ErrNotLocated is returned when a computed path no longer singles out one
// element on the live page.
var ErrNotLocated = errors.New("element not located")

// Options configures the crawler behavior
type Options struct {
	Width      int
	Height     int
	Timeout    time.Duration
	ProfileDir string // Chrome/Chromium profile directory for authenticated sessions

	// Rules drives the path finder. Nil means the finder defaults.
	Rules  *config.Config
	Logger *zap.Logger
}

func (o *Options) defaults() {
	if o.Width <= 0 {
		o.Width = 1280
	}
	if o.Height <= 0 {
		o.Height = 720
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Browser wraps the Rod browser and page for reuse
type Browser struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	opts     Options
}

// Close cleans up browser resources
func (b *Browser) Close() {
	if b.page != nil {
		_ = b.page.Close()
	}
	if b.browser != nil {
		_ = b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Kill()
	}
}

// Page returns the underlying Rod page
func (b *Browser) Page() *rod.Page {
	return b.page
}

// ReCrawl extracts a fresh PageMap from the current browser page state,
// e.g. after the page was driven through a few interactions.
func (b *Browser) ReCrawl() (*PageMap, error) {
	page := b.page.Timeout(b.opts.Timeout)
	defer page.CancelTimeout()

	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	settle(b.page)

	// SPAs need time to render new content
	waitForInteractiveElements(b.page, 5*time.Second)

	return b.snapshot()
}

// Crawl navigates to a URL and extracts page structure
func Crawl(url string, opts Options) (*PageMap, *Browser, error) {
	opts.defaults()

	// Launch headless browser
	path, _ := launcher.LookPath()
	l := launcher.New().Bin(path).Headless(true)

	if opts.ProfileDir != "" {
		l = l.UserDataDir(opts.ProfileDir)
	}

	u, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, nil, fmt.Errorf("connect browser: %w", err)
	}
	b := &Browser{launcher: l, browser: browser, opts: opts}

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		b.Close()
		return nil, nil, fmt.Errorf("open %s: %w", url, err)
	}
	b.page = page

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Width,
		Height:            opts.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		b.Close()
		return nil, nil, fmt.Errorf("set viewport: %w", err)
	}

	if err := page.Timeout(opts.Timeout).WaitLoad(); err != nil {
		b.Close()
		return nil, nil, fmt.Errorf("wait load: %w", err)
	}
	settle(page)

	// Next.js/React apps need time to download JS bundles, hydrate, and
	// potentially fetch client-side data
	if detectSPA(page) {
		waitForInteractiveElements(page, 5*time.Second)
	}

	pm, err := b.snapshot()
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	return pm, b, nil
}

// snapshot serializes the live DOM and analyzes it offline.
func (b *Browser) snapshot() (*PageMap, error) {
	info, err := b.page.Info()
	if err != nil {
		return nil, fmt.Errorf("page info: %w", err)
	}
	raw, err := b.page.HTML()
	if err != nil {
		return nil, fmt.Errorf("page html: %w", err)
	}

	pm, err := Analyze([]byte(raw), info.URL, b.opts)
	if err != nil {
		return nil, err
	}
	// Runtime globals are invisible in the serialized DOM.
	pm.IsSPA = pm.IsSPA || detectSPA(b.page)

	b.opts.Logger.Debug("page analyzed",
		zap.String("url", pm.URL),
		zap.Int("elements", len(pm.Elements)),
		zap.Int("navigation", len(pm.Navigation)),
		zap.Bool("spa", pm.IsSPA))
	return pm, nil
}

// settle waits for the network to go idle. The timeout keeps persistent
// connections (WebSockets, polling) from hanging the crawl.
func settle(page *rod.Page) {
	page.Timeout(5*time.Second).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()
}

// waitForInteractiveElements polls until interactive elements appear or timeout
func waitForInteractiveElements(page *rod.Page, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	checkInterval := 200 * time.Millisecond

	for time.Now().Before(deadline) {
		res, err := page.Eval(`() => {
			const buttons = document.querySelectorAll('button, [role="button"], input[type="submit"]');
			const inputs = document.querySelectorAll('input:not([type="hidden"]), textarea');
			const links = document.querySelectorAll('a[href]');
			let visible = 0;
			buttons.forEach(el => { if (el.offsetParent) visible++; });
			inputs.forEach(el => { if (el.offsetParent) visible++; });
			links.forEach(el => { if (el.offsetParent) visible++; });
			return visible;
		}`)
		if err != nil {
			return
		}

		if res.Value.Int() > 0 {
			// Found elements, wait a tiny bit more for any final renders
			time.Sleep(300 * time.Millisecond)
			return
		}

		time.Sleep(checkInterval)
	}
}

// detectSPA checks framework globals that only exist at runtime.
func detectSPA(page *rod.Page) bool {
	res, err := page.Eval(`() => !!(window.__REACT_DEVTOOLS_GLOBAL_HOOK__ || window.__VUE__ || window.ng)`)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

// locateJS resolves a path on the live page the way finder.Resolve does
// offline. The full query narrows the candidates and the target's content
// filters them by text. An ancestor fragment's content picks the ancestors
// matching the path up to that fragment whose text holds it, and keeps the
// single match of the rest of the path inside each of them.
const locateJS = `(fragments, combinators) => {
	const comb = combinators || [];
	const join = (from, to) => {
		let q = fragments[from].name;
		for (let i = from + 1; i < to; i++) q += (comb[i - 1] || ' ') + fragments[i].name;
		return q;
	};
	const has = (el, content) => (el.textContent || '').includes(content);
	const n = fragments.length;
	let els = Array.from(document.querySelectorAll(join(0, n)));
	if (fragments[n - 1].content) els = els.filter(el => has(el, fragments[n - 1].content));
	for (let i = n - 2; i >= 0 && els.length > 0; i--) {
		const content = fragments[i].content;
		if (!content) continue;
		const inner = join(i + 1, n);
		const hits = new Set();
		document.querySelectorAll(join(0, i + 1)).forEach(outer => {
			if (!has(outer, content)) return;
			const found = outer.querySelectorAll(inner);
			if (found.length === 1) hits.add(found[0]);
		});
		els = els.filter(el => hits.has(el));
	}
	return els.length === 1 ? els[0] : null;
}`

// Locate finds el on the current page.
func (b *Browser) Locate(el Element) (*rod.Element, error) {
	if len(el.Fragments) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrNotLocated)
	}
	page := b.page.Timeout(b.opts.Timeout)
	defer page.CancelTimeout()

	found, err := page.Sleeper(rod.NotFoundSleeper).ElementByJS(rod.Eval(locateJS, el.Fragments, el.Combinators))
	if err != nil {
		var notFound *rod.ElementNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotLocated, el.Selector)
		}
		return nil, err
	}
	// Detach from the timeout context canceled on return.
	return found.Context(b.page.GetContext()), nil
}

// Position returns the center of el on the current page
func (b *Browser) Position(el Element) (x, y int, err error) {
	found, err := b.Locate(el)
	if err != nil {
		return 0, 0, err
	}

	box, err := found.Shape()
	if err != nil {
		return 0, 0, err
	}

	if len(box.Quads) == 0 {
		return 0, 0, fmt.Errorf("element has no shape: %s", el.Selector)
	}

	// Get center of first quad
	quad := box.Quads[0]
	centerX := (quad[0] + quad[2] + quad[4] + quad[6]) / 4
	centerY := (quad[1] + quad[3] + quad[5] + quad[7]) / 4

	return int(centerX), int(centerY), nil
}
