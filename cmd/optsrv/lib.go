package main

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-yaml/yaml"

	"github.com/cr-xu/optimizer/ca"
	"github.com/cr-xu/optimizer/generichttp"
	"github.com/cr-xu/optimizer/mint"
)

// Config holds the initialization parameters for the machine interface
// server.  It is populated from defaults and the yaml config file.
type Config struct {
	// Addr is the address to listen at
	Addr string `koanf:"Addr" yaml:"Addr"`

	// Endpoint is the URL stem the machine interface is served under,
	// e.g. "machine" produces routes of /machine/value, etc.
	Endpoint string `koanf:"Endpoint" yaml:"Endpoint"`

	// Mock replaces the channel access gateway with an in-memory simulator
	Mock bool `koanf:"Mock" yaml:"Mock"`

	// Gateway is the host:port of the channel access gateway
	Gateway string `koanf:"Gateway" yaml:"Gateway"`

	// RateLimit bounds gateway requests per second; <= 0 means unlimited
	RateLimit float64 `koanf:"RateLimit" yaml:"RateLimit"`

	// ArchiveDir is where run archives are written
	ArchiveDir string `koanf:"ArchiveDir" yaml:"ArchiveDir"`

	// IndexPath is the SQLite run catalog; empty disables cataloging
	IndexPath string `koanf:"IndexPath" yaml:"IndexPath"`

	// EnergyPV, ChargePV, CurrentPV override the stock getter PVs
	EnergyPV  string `koanf:"EnergyPV" yaml:"EnergyPV"`
	ChargePV  string `koanf:"ChargePV" yaml:"ChargePV"`
	CurrentPV string `koanf:"CurrentPV" yaml:"CurrentPV"`

	// LossPVs lists the loss monitor PVs
	LossPVs []string `koanf:"LossPVs" yaml:"LossPVs"`

	// QuickAdd overrides the stock quick-add device groups
	QuickAdd []mint.DeviceGroup `koanf:"QuickAdd" yaml:"QuickAdd"`

	// PresetsFile is a yaml file mapping group names to preset buttons
	PresetsFile string `koanf:"PresetsFile" yaml:"PresetsFile"`

	// Verbose enables debug logging
	Verbose bool `koanf:"Verbose" yaml:"Verbose"`
}

// LoadPresets converts a (path to a) yaml file into preset groups.
func LoadPresets(path string) (map[string][]mint.Preset, error) {
	presets := map[string][]mint.Preset{}
	f, err := os.Open(path)
	if err != nil {
		return presets, err
	}
	defer f.Close()
	err = yaml.NewDecoder(f).Decode(&presets)
	return presets, err
}

// seedSim populates a simulator with plausible readings for the stock
// getter PVs so mock mode answers something other than zero.
func seedSim(sim *ca.Sim, c Config) {
	energy, charge, current := c.EnergyPV, c.ChargePV, c.CurrentPV
	if energy == "" {
		energy = mint.DefaultEnergyPV
	}
	if charge == "" {
		charge = mint.DefaultChargePV
	}
	if current == "" {
		current = mint.DefaultCurrentPV
	}
	sim.Seed(energy, 13.64)
	sim.Seed(charge, 0.25)
	sim.Seed(current, 120.0)
	for _, pv := range c.LossPVs {
		sim.Seed(pv, 0.0)
	}
}

// BuildRouter wires the machine interface, its lock, and the endpoint
// graph onto a chi router.
func BuildRouter(c Config, m mint.MachineInterface) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	wrapper := mint.NewHTTPWrapper(m)
	lock := generichttp.NewLocker()
	lock.Inject(wrapper)

	stem := generichttp.SubMuxSanitize(c.Endpoint)
	supergraph[stem] = wrapper.RT().Endpoints()

	r := chi.NewRouter()
	r.Use(lock.Check)
	wrapper.RT().Bind(r)
	root.Mount(stem, r)

	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root
}
