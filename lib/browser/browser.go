// Package browser defines the automation capability institution drivers run
// against. Drivers only see the Session interface; the chromedp
// implementation lives in this package and tests substitute a scripted fake.
package browser

import (
	"context"
	"time"
)

// Keys accepted by Session.Press.
const (
	KeyEnter  = "\r"
	KeyEscape = "\u001b"
)

// Session is one live browser page. Selectors are CSS or XPath (XPath when
// the string starts with "/" or "("); bank portals gate too much behind
// visible text for CSS alone. Methods block until the operation completes
// or the per-operation timeout expires. Implementations apply the
// configured human-like pacing themselves; drivers just express intent.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until the selector matches a visible element.
	WaitVisible(ctx context.Context, selector string) error
	// WaitHidden blocks until the selector matches nothing visible.
	WaitHidden(ctx context.Context, selector string) error
	// IsVisible reports element visibility without waiting.
	IsVisible(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	// Fill clears the input first, then types character by character.
	Fill(ctx context.Context, selector, value string) error
	// Type appends to the input character by character.
	Type(ctx context.Context, selector, value string) error
	// Press sends a key chord (KeyEnter, KeyEscape) to the focused element.
	Press(ctx context.Context, key string) error
	Text(ctx context.Context, selector string) (string, error)
	// HTML returns the outer markup of the first match.
	HTML(ctx context.Context, selector string) (string, error)
	PageHTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	// Evaluate runs a JS expression; out may be nil when the result does
	// not matter.
	Evaluate(ctx context.Context, expression string, out any) error
	// Pause sleeps a random human-scale interval.
	Pause(ctx context.Context) error
	// Close releases the page and the browser. Safe to call twice.
	Close() error
}

// Factory builds a fresh Session. The orchestrator takes one of these so
// tests can hand it a fake.
type Factory func(ctx context.Context, opts Options) (Session, error)

// Options configures a session. The zero value is usable: defaults match
// what Chilean bank portals tolerate.
type Options struct {
	// Headless hides the browser window. Overridden to false by debug runs.
	Headless bool
	// SlowMo adds a fixed delay before every operation.
	SlowMo time.Duration
	// Timeout bounds each individual operation, not the whole run.
	Timeout time.Duration
	// UserAgent overrides the browser's reported UA. Empty means derive it
	// from the running browser with the automation markers scrubbed.
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	TimezoneID     string
	// ExecPath points at a specific browser binary.
	ExecPath string
	// UserDataDir reuses a persistent profile instead of an ephemeral one.
	UserDataDir string
	// MinHumanDelay and MaxHumanDelay bound the random pause applied after
	// interactions. Both zero selects the defaults; a negative MaxHumanDelay
	// disables pacing entirely.
	MinHumanDelay time.Duration
	MaxHumanDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.ViewportWidth <= 0 {
		o.ViewportWidth = 1366
	}
	if o.ViewportHeight <= 0 {
		o.ViewportHeight = 768
	}
	if o.Locale == "" {
		o.Locale = "es-CL"
	}
	if o.TimezoneID == "" {
		o.TimezoneID = "America/Santiago"
	}
	if o.MinHumanDelay == 0 && o.MaxHumanDelay == 0 {
		o.MinHumanDelay = 200 * time.Millisecond
		o.MaxHumanDelay = 800 * time.Millisecond
	}
	if o.MaxHumanDelay >= 0 && o.MaxHumanDelay < o.MinHumanDelay {
		o.MinHumanDelay, o.MaxHumanDelay = o.MaxHumanDelay, o.MinHumanDelay
	}
	return o
}
