package scraper

import (
	"context"
	"time"

	"fintself/lib/browser"
	"fintself/lib/parse"
)

// Credentials authenticate one user at one institution.
type Credentials struct {
	User     string
	Password string
}

// Profile is the parsing contract a driver publishes: how its institution
// renders dates and numbers on screen. The orchestrator uses it to
// normalize the fragments the driver extracts.
type Profile struct {
	// DateLayouts are tried in order until one parses.
	DateLayouts []string
	Numbers     parse.NumberFormat
	// Currency is stamped on fragments that don't carry their own.
	Currency string
	// Location resolves extracted dates; nil means UTC.
	Location *time.Location
}

// Fragment is one movement exactly as scraped, every field still a
// site-native string. The driver applies its sign policy to AmountText
// before returning; parsing and validation happen during normalization.
type Fragment struct {
	DateText    string
	Description string
	AmountText  string
	// Currency overrides the profile default when the site states one.
	Currency string
	// AccountRef tags which sub-account or card produced the fragment.
	AccountRef string
	// Kind is the institution's movement class ("cargo", "abono",
	// "facturado", "no_facturado").
	Kind string
	// RawRef is an opaque reference for deduplication.
	RawRef string
	// Raw keeps source column values for debugging.
	Raw map[string]string
}

// Driver implements one institution. Drivers translate automation errors
// into faults or let them propagate; they never discard them.
type Driver interface {
	// BankID is the stable institution identifier, e.g. "cl_estado".
	// Constant per driver.
	BankID() string
	Profile() Profile
	// Login drives the portal's authentication flow, leaving the session
	// authenticated and ready to navigate. Rejected credentials and missing
	// login-page structure fail with a login fault.
	Login(ctx context.Context, session browser.Session, creds Credentials) error
	// Extract navigates statement views and scrapes movement fragments,
	// handling pagination and sub-account iteration. It may return
	// fragments together with an error when only part of the extraction
	// succeeded; the orchestrator normalizes what it got and still reports
	// the failure.
	Extract(ctx context.Context, session browser.Session) ([]Fragment, error)
}
