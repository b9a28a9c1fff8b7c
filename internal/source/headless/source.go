// Package headless drives a live listing page through Chrome using chromedp.
package headless

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/JakeFAU/places-crawler/internal/place"
	"github.com/JakeFAU/places-crawler/internal/source"
)

// Config controls the browser session.
type Config struct {
	BaseURL           string
	Headless          bool
	ExecPath          string
	UserAgent         string
	NavigationTimeout time.Duration
	ReadyTimeout      time.Duration
	ListingTimeout    time.Duration
	FieldTimeout      time.Duration
	OpenSettle        time.Duration
	ScrollDelta       float64
}

// DefaultBaseURL is the listing site opened before searching.
const DefaultBaseURL = "https://www.google.com/maps"

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 60 * time.Second
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 15 * time.Second
	}
	if c.ListingTimeout <= 0 {
		c.ListingTimeout = 20 * time.Second
	}
	if c.FieldTimeout <= 0 {
		c.FieldTimeout = 2 * time.Second
	}
	if c.OpenSettle < 0 {
		c.OpenSettle = 0
	}
	if c.ScrollDelta <= 0 {
		c.ScrollDelta = 6000
	}
	return c
}

var _ source.Source = (*Source)(nil)

// Source is a single browser tab implementing source.Source.
type Source struct {
	cfg         Config
	logger      *zap.Logger
	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

// New starts Chrome and opens a tab. The browser lives until Close; actions
// later run on timeout contexts derived from the tab.
func New(cfg Config, logger *zap.Logger) (*Source, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("headless")

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1440, 900),
	)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	execPath := cfg.ExecPath
	if execPath == "" {
		execPath = findChromeBinary()
	}
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tab, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))
	// The first Run launches the browser process and ties it to the context
	// it receives, so it must not carry a timeout.
	if err := chromedp.Run(tab); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser %q: %w", execPath, err)
	}
	logger.Debug("browser started", zap.String("exec_path", execPath), zap.Bool("headless", cfg.Headless))

	return &Source{
		cfg:         cfg,
		logger:      logger,
		tab:         tab,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts down the tab and the browser.
func (s *Source) Close() error {
	s.tabCancel()
	s.allocCancel()
	return nil
}

// run executes actions on the tab, bounded by timeout and canceled with ctx.
func (s *Source) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// Search opens the site, submits the query and waits for the first cards.
func (s *Source) Search(ctx context.Context, query string) error {
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.Navigate(s.cfg.BaseURL)); err != nil {
		return fmt.Errorf("open %s: %w", s.cfg.BaseURL, err)
	}
	err := s.run(ctx, s.cfg.ReadyTimeout,
		chromedp.WaitVisible(source.SearchBoxSelector, chromedp.ByQuery),
		chromedp.SendKeys(source.SearchBoxSelector, query+kb.Enter, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("submit search: %w", err)
	}
	if err := s.run(ctx, s.cfg.ListingTimeout, chromedp.WaitVisible(source.CardSelector, chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %w", source.ErrNoResults, err)
	}
	return nil
}

// Count returns how many cards the listing currently shows.
func (s *Source) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.run(ctx, s.cfg.FieldTimeout, chromedp.Evaluate(countScript(source.CardSelector), &n)); err != nil {
		return 0, fmt.Errorf("count cards: %w", err)
	}
	return n, nil
}

// Open clicks card index and returns the resulting page URL.
func (s *Source) Open(ctx context.Context, index int) (string, error) {
	var (
		clicked bool
		url     string
	)
	if err := s.run(ctx, s.cfg.FieldTimeout, chromedp.Evaluate(clickScript(source.CardSelector, index), &clicked)); err != nil {
		return "", fmt.Errorf("click card %d: %w", index, err)
	}
	if !clicked {
		return "", fmt.Errorf("card %d: %w", index, source.ErrNoCandidate)
	}
	err := s.run(ctx, s.cfg.OpenSettle+s.cfg.NavigationTimeout,
		chromedp.Sleep(s.cfg.OpenSettle),
		chromedp.Location(&url),
	)
	if err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

// Scroll sends a mouse wheel event over the results feed.
func (s *Source) Scroll(ctx context.Context) error {
	var pt point
	if err := s.run(ctx, s.cfg.FieldTimeout, chromedp.Evaluate(centerScript(source.FeedSelector), &pt)); err != nil {
		return fmt.Errorf("locate feed: %w", err)
	}
	wheel := chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, pt.X, pt.Y).
			WithDeltaX(0).
			WithDeltaY(s.cfg.ScrollDelta).
			Do(ctx)
	})
	if err := s.run(ctx, s.cfg.FieldTimeout, wheel); err != nil {
		return fmt.Errorf("scroll feed: %w", err)
	}
	return nil
}

// Lookup reads one field of the open place.
func (s *Source) Lookup(ctx context.Context, f source.Field) (string, bool) {
	sel, ok := source.SelectorFor(f)
	if !ok {
		return "", false
	}
	var res lookupResult
	if err := s.run(ctx, s.cfg.FieldTimeout, chromedp.Evaluate(lookupScript(sel), &res)); err != nil {
		s.logger.Debug("lookup failed", zap.String("field", string(f)), zap.Error(err))
		return "", false
	}
	return strings.TrimSpace(res.Value), res.Found
}

// Images returns every gallery, review and street view image URL in page
// order. The engine filters thumbnails and applies the image cap.
func (s *Source) Images(ctx context.Context) []string {
	var res imageResult
	if err := s.run(ctx, s.cfg.FieldTimeout, chromedp.Evaluate(imagesScript(), &res)); err != nil {
		s.logger.Debug("image lookup failed", zap.Error(err))
		return nil
	}
	out := make([]string, 0, len(res.Gallery)+len(res.Review)+len(res.Street))
	out = append(out, res.Gallery...)
	for _, style := range res.Review {
		if u, ok := source.BackgroundImageURL(style); ok {
			out = append(out, u)
		}
	}
	return append(out, res.Street...)
}

// Reviewers returns the reviewer blocks of the open place.
func (s *Source) Reviewers(ctx context.Context) []place.Reviewer {
	var res []reviewerResult
	if err := s.run(ctx, s.cfg.FieldTimeout, chromedp.Evaluate(reviewersScript(), &res)); err != nil {
		s.logger.Debug("reviewer lookup failed", zap.Error(err))
		return nil
	}
	out := make([]place.Reviewer, 0, len(res))
	for _, r := range res {
		out = append(out, place.Reviewer{Name: text(r.Name), ProfileURL: text(r.Profile)})
	}
	return out
}

func text(v *string) place.Text {
	if v == nil || strings.TrimSpace(*v) == "" {
		return place.Missing()
	}
	return place.Found(strings.TrimSpace(*v))
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type lookupResult struct {
	Found bool   `json:"found"`
	Value string `json:"value"`
}

type imageResult struct {
	Gallery []string `json:"gallery"`
	Review  []string `json:"review"`
	Street  []string `json:"street"`
}

type reviewerResult struct {
	Name    *string `json:"name"`
	Profile *string `json:"profile"`
}

// quote renders s as a JavaScript string literal.
func quote(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func countScript(sel string) string {
	return fmt.Sprintf(`document.querySelectorAll(%s).length`, quote(sel))
}

func clickScript(sel string, index int) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelectorAll(%s)[%d];
	if (!el) return false;
	el.scrollIntoView({block: "center"});
	el.click();
	return true;
})()`, quote(sel), index)
}

func centerScript(sel string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return {x: window.innerWidth / 4, y: window.innerHeight / 2};
	const r = el.getBoundingClientRect();
	return {x: r.left + r.width / 2, y: r.top + r.height / 2};
})()`, quote(sel))
}

func lookupScript(sel source.Selector) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return {found: false, value: ""};
	const attr = %s;
	const v = attr ? el.getAttribute(attr) : el.innerText;
	if (v === null || v === undefined) return {found: false, value: ""};
	return {found: true, value: String(v)};
})()`, quote(sel.CSS), quote(sel.Attr))
}

func imagesScript() string {
	return fmt.Sprintf(`(() => {
	const take = (sel, read) => Array.from(document.querySelectorAll(sel)).map(read).filter(Boolean);
	return {
		gallery: take(%s, el => el.getAttribute("src")),
		review: take(%s, el => el.getAttribute("style")),
		street: take(%s, el => el.getAttribute("src")),
	};
})()`, quote(source.GalleryImageSelector), quote(source.ReviewImageSelector), quote(source.StreetViewSelector))
}

func reviewersScript() string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(block => {
	const name = block.querySelector(%s);
	const profile = block.querySelector(%s);
	return {
		name: name ? name.innerText : null,
		profile: profile ? profile.getAttribute(%s) : null,
	};
})`, quote(source.ReviewBlockSelector), quote(source.ReviewerNameSelector),
		quote(source.ReviewerProfileSelector), quote(source.ReviewerProfileAttr))
}

// findChromeBinary locates a Chrome or Chromium executable. CHROME_BIN wins
// over PATH lookups and well-known install locations.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}
	for _, name := range []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	for _, p := range []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
