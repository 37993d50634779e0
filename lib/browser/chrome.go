package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	random "github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("fintself.lib.browser")

type chromeSession struct {
	opts        Options
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once
}

// NewChromeSession launches Chrome over the DevTools protocol. It is the
// default Factory; everything drivers do afterwards goes through Session.
func NewChromeSession(ctx context.Context, opts Options) (Session, error) {
	opts = opts.withDefaults()

	ctx, span := tracer.Start(ctx, "browser:NewChromeSession")
	defer span.End()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		// drop the infobar and the blink-side automation tell
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", opts.Locale),
		chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		opts:        opts,
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}

	err := chromedp.Run(browserCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript(opts.Locale)).Do(ctx)
			return err
		}),
		emulation.SetTimezoneOverride(opts.TimezoneID),
		emulation.SetLocaleOverride().WithLocale(opts.Locale),
		s.scrubUserAgent(),
	)
	if err != nil {
		s.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to launch browser")
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	slog.DebugContext(ctx, "browser session started",
		"headless", opts.Headless,
		"locale", opts.Locale,
		"timezone", opts.TimezoneID,
	)
	return s, nil
}

// scrubUserAgent rewrites the automation marker headless builds leave in
// the default user agent ("HeadlessChrome/126..." reads as a bot).
func (s *chromeSession) scrubUserAgent() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if s.opts.UserAgent != "" {
			return nil
		}
		_, _, _, userAgent, _, err := cdpbrowser.GetVersion().Do(ctx)
		if err != nil {
			return err
		}
		cleaned := strings.ReplaceAll(userAgent, "HeadlessChrome", "Chrome")
		if cleaned == userAgent {
			return nil
		}
		return emulation.SetUserAgentOverride(cleaned).Do(ctx)
	})
}

// run executes actions against the page, bounded by the per-operation
// timeout and the caller's context.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.opts.SlowMo > 0 {
		time.Sleep(s.opts.SlowMo)
	}
	runCtx, cancel := context.WithTimeout(s.ctx, s.opts.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	slog.DebugContext(ctx, "navigate", "url", url)
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return s.Pause(ctx)
}

func (s *chromeSession) WaitVisible(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.WaitVisible(selector)); err != nil {
		return fmt.Errorf("waiting for %q: %w", selector, err)
	}
	return nil
}

func (s *chromeSession) WaitHidden(ctx context.Context, selector string) error {
	var gone bool
	poll := chromedp.Poll("!"+jsIsVisible(selector), &gone,
		chromedp.WithPollingInterval(100*time.Millisecond))
	if err := s.run(ctx, poll); err != nil {
		return fmt.Errorf("waiting for %q to hide: %w", selector, err)
	}
	return nil
}

func (s *chromeSession) IsVisible(ctx context.Context, selector string) (bool, error) {
	var visible bool
	if err := s.run(ctx, chromedp.Evaluate(jsIsVisible(selector), &visible)); err != nil {
		return false, fmt.Errorf("checking visibility of %q: %w", selector, err)
	}
	return visible, nil
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	slog.DebugContext(ctx, "click", "selector", selector)
	err := s.run(ctx,
		chromedp.WaitVisible(selector),
		chromedp.Click(selector),
	)
	if err != nil {
		return fmt.Errorf("clicking %q: %w", selector, err)
	}
	return s.Pause(ctx)
}

func (s *chromeSession) Fill(ctx context.Context, selector, value string) error {
	slog.DebugContext(ctx, "fill", "selector", selector)
	err := s.run(ctx,
		chromedp.WaitVisible(selector),
		chromedp.SetValue(selector, ""),
		typeKeys(selector, value, 50*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("filling %q: %w", selector, err)
	}
	return s.Pause(ctx)
}

func (s *chromeSession) Type(ctx context.Context, selector, value string) error {
	slog.DebugContext(ctx, "type", "selector", selector)
	err := s.run(ctx,
		chromedp.WaitVisible(selector),
		typeKeys(selector, value, 100*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("typing into %q: %w", selector, err)
	}
	return s.Pause(ctx)
}

// typeKeys dispatches one key event per character, paced like a person.
func typeKeys(selector, value string, delay time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, r := range value {
			if err := chromedp.SendKeys(selector, string(r)).Do(ctx); err != nil {
				return err
			}
			time.Sleep(delay)
		}
		return nil
	})
}

func (s *chromeSession) Press(ctx context.Context, key string) error {
	if err := s.run(ctx, chromedp.KeyEvent(key)); err != nil {
		return fmt.Errorf("pressing key: %w", err)
	}
	return s.Pause(ctx)
}

func (s *chromeSession) Text(ctx context.Context, selector string) (string, error) {
	var out string
	if err := s.run(ctx, chromedp.Text(selector, &out)); err != nil {
		return "", fmt.Errorf("reading text of %q: %w", selector, err)
	}
	return out, nil
}

func (s *chromeSession) HTML(ctx context.Context, selector string) (string, error) {
	var out string
	if err := s.run(ctx, chromedp.OuterHTML(selector, &out)); err != nil {
		return "", fmt.Errorf("reading markup of %q: %w", selector, err)
	}
	return out, nil
}

func (s *chromeSession) PageHTML(ctx context.Context) (string, error) {
	var out string
	if err := s.run(ctx, chromedp.Evaluate("document.documentElement.outerHTML", &out)); err != nil {
		return "", fmt.Errorf("reading page markup: %w", err)
	}
	return out, nil
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, fmt.Errorf("taking screenshot: %w", err)
	}
	return buf, nil
}

func (s *chromeSession) Evaluate(ctx context.Context, expression string, out any) error {
	if err := s.run(ctx, chromedp.Evaluate(expression, out)); err != nil {
		return fmt.Errorf("evaluating script: %w", err)
	}
	return nil
}

func (s *chromeSession) Pause(ctx context.Context) error {
	min, max := s.opts.MinHumanDelay, s.opts.MaxHumanDelay
	if max <= 0 {
		return nil
	}
	ms, err := random.IntRange(int(min/time.Millisecond), int(max/time.Millisecond)+1)
	if err != nil {
		ms = int(min / time.Millisecond)
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		if err := chromedp.Cancel(s.ctx); err != nil {
			slog.Warn("closing browser", "err", err)
		}
		s.cancel()
		s.allocCancel()
	})
	return nil
}

// jsIsVisible builds an expression reporting whether the first match is
// rendered and visible. XPath selectors resolve through document.evaluate,
// everything else through querySelector.
func jsIsVisible(selector string) string {
	lookup := fmt.Sprintf("document.querySelector(%q)", selector)
	if isXPath(selector) {
		lookup = fmt.Sprintf(
			"document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue",
			selector)
	}
	return fmt.Sprintf(`(() => {
  const el = %s;
  if (!el) return false;
  const style = window.getComputedStyle(el);
  if (style.display === 'none' || style.visibility === 'hidden') return false;
  return el.getClientRects().length > 0;
})()`, lookup)
}

func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(")
}
