package scraper

import (
	"sort"

	"fintself/lib/fault"
)

// Info describes a registered institution for listings.
type Info struct {
	BankID  string
	Name    string
	Country string
}

// DriverFactory builds a fresh driver instance for one run.
type DriverFactory func() Driver

// Registry maps institution ids to driver factories. Populate it once at
// process start; it is read-only afterwards.
type Registry struct {
	entries map[string]registration
}

type registration struct {
	info    Info
	factory DriverFactory
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]registration{}}
}

// Register adds a driver factory under info.BankID. Registering an id twice
// panics: duplicate ids are a programming error, not a runtime condition.
func (r *Registry) Register(info Info, factory DriverFactory) {
	if _, ok := r.entries[info.BankID]; ok {
		panic("scraper: duplicate driver registration: " + info.BankID)
	}
	r.entries[info.BankID] = registration{info: info, factory: factory}
}

// Resolve returns a fresh driver for the institution id. Unknown ids fail
// with a scraper-not-found fault, before any browser resources exist.
func (r *Registry) Resolve(bankID string) (Driver, error) {
	reg, ok := r.entries[bankID]
	if !ok {
		return nil, fault.Newf(fault.CodeScraperNotFound, bankID,
			"no scraper registered for %q", bankID)
	}
	return reg.factory(), nil
}

// List returns the registered institutions sorted by id.
func (r *Registry) List() []Info {
	infos := make([]Info, 0, len(r.entries))
	for _, reg := range r.entries {
		infos = append(infos, reg.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].BankID < infos[j].BankID })
	return infos
}
