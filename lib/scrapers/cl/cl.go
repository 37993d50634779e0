// Package cl carries the plumbing the Chilean institution drivers share:
// the common parsing profile and the selector-fallback helpers their
// portals all need. Chilean bank frontends ship several variants of the
// same page depending on campaign and rollout, so drivers express most
// interactions as ordered candidate selector lists rather than a single
// selector.
package cl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fintself/lib/browser"
	"fintself/lib/parse"
	"fintself/lib/scraper"
	"fintself/lib/textutil"
	"fintself/lib/timezone"
)

// Profile is the parsing contract the Chilean banks share: day-first
// dates, dot thousands separator, comma decimals, CLP unless the portal
// says otherwise.
func Profile() scraper.Profile {
	return scraper.Profile{
		DateLayouts: []string{"02/01/2006", "02-01-2006"},
		Numbers:     parse.Chilean,
		Currency:    "CLP",
		Location:    timezone.Location,
	}
}

// FirstVisible returns the first candidate selector currently visible on
// the page. Visibility probes that themselves error are treated as not
// visible; a missing variant is the expected case, not a failure.
func FirstVisible(ctx context.Context, session browser.Session, candidates []string) (string, bool) {
	for _, sel := range candidates {
		visible, err := session.IsVisible(ctx, sel)
		if err != nil {
			continue
		}
		if visible {
			return sel, true
		}
	}
	return "", false
}

// ClickFirst clicks the first visible candidate and reports which one.
func ClickFirst(ctx context.Context, session browser.Session, candidates []string) (string, error) {
	sel, ok := FirstVisible(ctx, session, candidates)
	if !ok {
		return "", fmt.Errorf("none of %d candidate selectors is visible", len(candidates))
	}
	if err := session.Click(ctx, sel); err != nil {
		return sel, err
	}
	return sel, nil
}

// DismissOverlays clicks every visible selector in the list, best effort.
// Marketing popups and cookie bars come and go; failing to close one must
// never sink a scrape.
func DismissOverlays(ctx context.Context, session browser.Session, candidates []string) {
	for _, sel := range candidates {
		visible, err := session.IsVisible(ctx, sel)
		if err != nil || !visible {
			continue
		}
		if err := session.Click(ctx, sel); err != nil {
			slog.DebugContext(ctx, "overlay did not close", "selector", sel, "err", err)
		}
	}
}

// WaitFirstVisible polls until one of the candidates shows up, regardless
// of the session's own per-operation timeout. Used where the portal is
// known to take longer than a single wait allows, like the post-login
// dashboard render.
func WaitFirstVisible(ctx context.Context, session browser.Session, candidates []string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		if sel, ok := FirstVisible(ctx, session, candidates); ok {
			return sel, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("none of %d candidate selectors appeared within %s", len(candidates), timeout)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// WaitHidden polls until the selector stops being visible. The session's
// own WaitHidden is bounded by its per-operation timeout; this one takes
// an explicit deadline for panels that animate away slowly.
func WaitHidden(ctx context.Context, session browser.Session, selector string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		visible, err := session.IsVisible(ctx, selector)
		if err == nil && !visible {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%q still visible after %s", selector, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// WaitTextChange polls the selector's text until it differs from before.
// Angular paginators update their range label only after the new page
// rendered, which makes the label the one reliable page-turn signal.
// Texts compare normalized so an NBSP shuffle does not count as a change.
func WaitTextChange(ctx context.Context, session browser.Session, selector, before string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	prev := textutil.NormalizeLabel(before)
	for {
		current, err := session.Text(ctx, selector)
		if err == nil && textutil.NormalizeLabel(current) != prev {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("text of %q still %q after %s", selector, prev, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// CleanRUT strips the dots and hyphen people type into their national ID
// so it matches the digits-plus-verifier format login forms expect.
func CleanRUT(rut string) string {
	rut = strings.ReplaceAll(rut, ".", "")
	rut = strings.ReplaceAll(rut, "-", "")
	return strings.TrimSpace(rut)
}

// XPathLiteral quotes s as an XPath string literal. XPath 1.0 has no
// escape syntax, so values containing double quotes become a concat().
func XPathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, `"`)
	return `concat("` + strings.Join(parts, `", '"', "`) + `")`
}
