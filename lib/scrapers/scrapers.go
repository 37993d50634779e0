// Package scrapers wires every institution driver into a registry.
package scrapers

import (
	"fintself/lib/scraper"
	"fintself/lib/scrapers/cl/bancochile"
	"fintself/lib/scrapers/cl/bancoestado"
	"fintself/lib/scrapers/cl/santander"
)

// Options carry the per-institution tuning that comes from configuration.
type Options struct {
	// SantanderCards narrows the Santander extraction to cards whose
	// number ends in one of these four digit groups.
	SantanderCards []string
}

// NewRegistry returns a registry with every supported institution.
func NewRegistry(opts Options) *scraper.Registry {
	r := scraper.NewRegistry()
	r.Register(
		scraper.Info{BankID: bancochile.BankID, Name: "Banco de Chile", Country: "CL"},
		func() scraper.Driver { return bancochile.New() },
	)
	r.Register(
		scraper.Info{BankID: bancoestado.BankID, Name: "BancoEstado", Country: "CL"},
		func() scraper.Driver { return bancoestado.New() },
	)
	r.Register(
		scraper.Info{BankID: santander.BankID, Name: "Banco Santander", Country: "CL"},
		func() scraper.Driver { return santander.New(santander.Options{Cards: opts.SantanderCards}) },
	)
	return r
}
