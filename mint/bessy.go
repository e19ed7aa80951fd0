package mint

import (
	"math"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cr-xu/optimizer/ca"
	"github.com/cr-xu/optimizer/runlog"
)

// interfaceName is recorded in every saved run.
const interfaceName = "BESSYMachineInterface"

// Default PV names; all overridable through Config.
const (
	DefaultEnergyPV  = "BEND:DMP1:400:BDES"
	DefaultChargePV  = "SIOC:SYS0:ML00:CALC252"
	DefaultCurrentPV = "BLEN:LI24:886:BIMAX"
)

// DefaultQuickAddDevices returns the stock device groups for the GUI's
// quick-add combo box.
func DefaultQuickAddDevices() []DeviceGroup {
	return []DeviceGroup{
		{Name: "IN20 M. Quads", Devices: []string{
			"QUAD:IN20:361:BCTRL", "QUAD:IN20:371:BCTRL", "QUAD:IN20:425:BCTRL",
			"QUAD:IN20:441:BCTRL", "QUAD:IN20:511:BCTRL", "QUAD:IN20:525:BCTRL"}},
		{Name: "LI21 M. Quads", Devices: []string{
			"QUAD:LI21:201:BCTRL", "QUAD:LI21:211:BCTRL", "QUAD:LI21:271:BCTRL",
			"QUAD:LI21:278:BCTRL"}},
		{Name: "LI26 201-501", Devices: []string{
			"QUAD:LI26:201:BCTRL", "QUAD:LI26:301:BCTRL", "QUAD:LI26:401:BCTRL",
			"QUAD:LI26:501:BCTRL"}},
		{Name: "LI26 601-901", Devices: []string{
			"QUAD:LI26:601:BCTRL", "QUAD:LI26:701:BCTRL", "QUAD:LI26:801:BCTRL",
			"QUAD:LI26:901:BCTRL"}},
		{Name: "LTU M. Quads", Devices: []string{
			"QUAD:LTU1:620:BCTRL", "QUAD:LTU1:640:BCTRL", "QUAD:LTU1:660:BCTRL",
			"QUAD:LTU1:680:BCTRL"}},
		{Name: "Dispersion Quads", Devices: []string{
			"QUAD:LI21:221:BCTRL", "QUAD:LI21:251:BCTRL", "QUAD:LI24:740:BCTRL",
			"QUAD:LI24:860:BCTRL", "QUAD:LTU1:440:BCTRL", "QUAD:LTU1:460:BCTRL"}},
		{Name: "CQ01/SQ01/Sol.", Devices: []string{
			"SOLN:IN20:121:BCTRL", "QUAD:IN20:121:BCTRL", "QUAD:IN20:122:BCTRL"}},
		{Name: "DMD PVs", Devices: []string{
			"DMD:IN20:1:DELAY_1", "DMD:IN20:1:DELAY_2", "DMD:IN20:1:WIDTH_2",
			"SIOC:SYS0:ML03:AO956"}},
	}
}

// Config holds the tunable parts of a BESSY machine interface.  Zero-value
// fields fall back to the facility defaults.
type Config struct {
	// EnergyPV, ChargePV, CurrentPV override the stock getter PVs.
	EnergyPV  string
	ChargePV  string
	CurrentPV string

	// LossPVs lists the loss monitor PVs read by GetLosses and recorded
	// per-monitor in saved runs.
	LossPVs []string

	// QuickAdd overrides the stock quick-add device groups.
	QuickAdd []DeviceGroup

	// Presets maps group names to preset buttons.
	Presets map[string][]Preset

	// SavePath is the directory run archives are written to.  Empty means
	// the working directory.
	SavePath string

	// Saver persists runs; nil means the FITS archival saver.  Fallback
	// is used when Saver fails; nil means the JSON simlog saver.
	Saver    runlog.Saver
	Fallback runlog.Saver

	// Index catalogs saved runs; nil disables cataloging.
	Index *runlog.Index

	// Logger receives run/save events.  The zero value logs to stderr.
	Logger *zerolog.Logger
}

// BESSY is the MachineInterface bound to the facility control system.  PV
// handles are created on first access and kept for the whole session; the
// cache is never evicted.
type BESSY struct {
	client ca.Client

	mu  sync.Mutex
	pvs map[string]*ca.PV

	energyPV  string
	chargePV  string
	currentPV string
	lossPVs   []string

	quickAdd []DeviceGroup
	presets  map[string][]Preset

	savePath string
	saver    runlog.Saver
	fallback runlog.Saver
	index    *runlog.Index

	log zerolog.Logger

	// detValStart/detValStop bracket the objective mean over the last
	// saved run; the GUI shows them as the before/after figure of merit.
	detValStart, detValStop float64
	lastFilename            string
}

// New returns a BESSY machine interface reading and writing PVs through
// client.
func New(client ca.Client, cfg Config) *BESSY {
	b := &BESSY{
		client:    client,
		pvs:       make(map[string]*ca.PV),
		energyPV:  cfg.EnergyPV,
		chargePV:  cfg.ChargePV,
		currentPV: cfg.CurrentPV,
		lossPVs:   cfg.LossPVs,
		quickAdd:  cfg.QuickAdd,
		presets:   cfg.Presets,
		savePath:  cfg.SavePath,
		saver:     cfg.Saver,
		fallback:  cfg.Fallback,
		index:     cfg.Index,
	}
	if b.energyPV == "" {
		b.energyPV = DefaultEnergyPV
	}
	if b.chargePV == "" {
		b.chargePV = DefaultChargePV
	}
	if b.currentPV == "" {
		b.currentPV = DefaultCurrentPV
	}
	if b.quickAdd == nil {
		b.quickAdd = DefaultQuickAddDevices()
	}
	if b.presets == nil {
		b.presets = map[string][]Preset{}
	}
	if b.saver == nil {
		b.saver = runlog.FITS{}
	}
	if b.fallback == nil {
		b.fallback = runlog.Sim{}
	}
	if cfg.Logger != nil {
		b.log = *cfg.Logger
	} else {
		b.log = zerolog.New(os.Stderr).With().Timestamp().Str("component", "mint").Logger()
	}
	return b
}

// Name identifies the interface in saved run data.
func (b *BESSY) Name() string { return interfaceName }

// pv returns the cached handle for name, creating it on first access.
func (b *BESSY) pv(name string) (*ca.PV, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	handle, ok := b.pvs[name]
	if !ok {
		handle = ca.NewPV(name, b.client)
		b.pvs[name] = handle
	}
	return handle, ok
}

// GetValue reads a PV by name, creating the handle on first access.
func (b *BESSY) GetValue(name string) (float64, error) {
	handle, _ := b.pv(name)
	return handle.Get()
}

// SetValue writes a PV by name.  The first touch of a PV only creates the
// handle; the write is skipped so a fresh channel is primed before the
// optimizer starts driving it.
func (b *BESSY) SetValue(name string, value float64) error {
	handle, existed := b.pv(name)
	if !existed {
		return nil
	}
	return handle.Put(value)
}

// GetEnergy returns the beam energy.
func (b *BESSY) GetEnergy() (float64, error) {
	return b.GetValue(b.energyPV)
}

// GetCharge returns the bunch charge.
func (b *BESSY) GetCharge() (float64, error) {
	return b.GetValue(b.chargePV)
}

// GetChargeCurrent returns the charge and beam current together.
func (b *BESSY) GetChargeCurrent() (float64, float64, error) {
	charge, err := b.GetCharge()
	if err != nil {
		return 0, 0, err
	}
	current, err := b.GetValue(b.currentPV)
	if err != nil {
		return charge, 0, err
	}
	return charge, current, nil
}

// GetLosses reads every configured loss monitor.  Readings are best
// effort; a monitor that cannot be read contributes NaN.
func (b *BESSY) GetLosses() []float64 {
	out := make([]float64, len(b.lossPVs))
	for i, pv := range b.lossPVs {
		v, err := b.GetValue(pv)
		if err != nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = v
	}
	return out
}

// GetPresetSettings returns the configured preset groups.
func (b *BESSY) GetPresetSettings() map[string][]Preset {
	return b.presets
}

// GetQuickAddDevices returns the ordered quick-add device groups.
func (b *BESSY) GetQuickAddDevices() []DeviceGroup {
	return b.quickAdd
}

// GetPlotAttrs returns the objective attributes shown on plot 1.
func (b *BESSY) GetPlotAttrs() []PlotAttr {
	return []PlotAttr{
		{Attribute: "values", Label: "statistics"},
		{Attribute: "objective_means", Label: "mean"},
	}
}

// LastFilename returns the file the most recent run was saved to.
func (b *BESSY) LastFilename() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFilename
}

// CachedPVs returns the number of PV handles in the session cache.
func (b *BESSY) CachedPVs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pvs)
}
