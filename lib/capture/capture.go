// Package capture persists page snapshots for post-mortem debugging of
// scraping failures. Writes are best-effort: a broken disk must never
// change the outcome of a run, so every failure here is logged and
// swallowed.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"fintself/lib/browser"
	"fintself/lib/htmlutil"
	"fintself/lib/timezone"
)

// Capture writes timestamped screenshot and markup snapshots into
// <dir>/<bankID>/. The zero value and nil are disabled captures.
type Capture struct {
	dir     string
	enabled bool
}

// New returns a capture rooted at dir for one institution. An empty dir
// returns a disabled capture.
func New(dir, bankID string) *Capture {
	if dir == "" {
		return &Capture{}
	}
	return &Capture{dir: filepath.Join(dir, bankID), enabled: true}
}

// Disabled returns a capture that never writes.
func Disabled() *Capture {
	return &Capture{}
}

func (c *Capture) Enabled() bool {
	return c != nil && c.enabled
}

// Snapshot writes <timestamp>_<label>.png and <timestamp>_<label>.html for
// the session's current page. The two writes are independent: a failed
// screenshot does not stop the markup dump. Markup is reduced before
// writing when possible so snapshots stay reviewable.
func (c *Capture) Snapshot(ctx context.Context, session browser.Session, label string) {
	if !c.Enabled() || session == nil {
		return
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		slog.WarnContext(ctx, "creating capture directory", "dir", c.dir, "err", err)
		return
	}

	// snapshots stamp in the banks' local day so they sort next to the
	// movement dates they document
	stamp := timezone.Now().Format("20060102_150405")
	base := filepath.Join(c.dir, fmt.Sprintf("%s_%s", stamp, label))

	png, err := session.Screenshot(ctx)
	if err != nil {
		slog.WarnContext(ctx, "capturing screenshot", "label", label, "err", err)
	} else if err := os.WriteFile(base+".png", png, 0o644); err != nil {
		slog.WarnContext(ctx, "writing screenshot", "path", base+".png", "err", err)
	} else {
		slog.DebugContext(ctx, "wrote debug screenshot", "path", base+".png")
	}

	markup, err := session.PageHTML(ctx)
	if err != nil {
		slog.WarnContext(ctx, "capturing page markup", "label", label, "err", err)
		return
	}
	if reduced, err := htmlutil.Reduce(markup); err == nil {
		markup = reduced
	}
	if err := os.WriteFile(base+".html", []byte(markup), 0o644); err != nil {
		slog.WarnContext(ctx, "writing page markup", "path", base+".html", "err", err)
		return
	}
	slog.DebugContext(ctx, "wrote debug markup", "path", base+".html")
}
