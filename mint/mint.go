/*Package mint adapts the accelerator control system to the optimizer's
machine-interface plugin contract.

The optimizer's algorithm layer and GUI only ever see the MachineInterface
interface; BESSY is the implementation bound to the facility's channel
access gateway.  Device and Objective carry the per-run traces the
optimizer records; WriteData flattens them into the legacy save format and
hands them to a runlog.Saver.
*/
package mint

// Device is one tunable device in a run: its PV name and the values it was
// set to at each iteration.
type Device struct {
	EID    string    `json:"eid"`
	Values []float64 `json:"values"`
}

// Objective carries the per-iteration statistics of the objective function
// recorded during a run.  All series run parallel to each other; Losses
// rows run parallel to the configured loss monitor PVs.
type Objective struct {
	// EID is the PV of the objective function reading.
	EID string `json:"eid"`

	// Values is the per-iteration objective statistic.
	Values []float64 `json:"values"`

	// Means is the per-iteration mean, kept for save-format compatibility.
	Means []float64 `json:"objective_means"`

	// Acquisitions is the per-iteration raw detector acquisition.
	Acquisitions []float64 `json:"objective_acquisitions"`

	// StdDev is the per-iteration standard deviation.
	StdDev []float64 `json:"std_dev"`

	// Times is the per-iteration unix timestamp.
	Times []float64 `json:"times"`

	// Charge and Current are the per-iteration machine readings.
	Charge  []float64 `json:"charge"`
	Current []float64 `json:"current"`

	// Losses holds one row per iteration, one column per loss monitor.
	Losses [][]float64 `json:"losses"`

	// Niter is the number of iterations.
	Niter int `json:"niter"`

	// StatName is the display name of the statistic in Values.
	StatName string `json:"stat_name"`
}

// Preset is a stored settings file surfaced as a push button in the GUI.
type Preset struct {
	Display  string `json:"display" yaml:"display"`
	Filename string `json:"filename" yaml:"filename"`
}

// DeviceGroup is a named, ordered group of device PVs for the GUI's
// quick-add combo box.
type DeviceGroup struct {
	Name    string   `json:"name" yaml:"name"`
	Devices []string `json:"devices" yaml:"devices"`
}

// PlotAttr names an attribute of the objective to plot and its legend label.
type PlotAttr struct {
	Attribute string `json:"attribute"`
	Label     string `json:"label"`
}

// MachineInterface is the plugin contract consumed by the optimizer GUI
// and algorithm layer.  Its shape is dictated externally; other
// implementations bind other facilities.
type MachineInterface interface {
	// Name identifies the interface in saved run data.
	Name() string

	// GetValue reads a PV by name.
	GetValue(pv string) (float64, error)

	// SetValue writes a PV by name.
	SetValue(pv string, value float64) error

	// GetEnergy returns the beam energy.
	GetEnergy() (float64, error)

	// GetCharge returns the bunch charge.
	GetCharge() (float64, error)

	// GetChargeCurrent returns the charge and beam current together.
	GetChargeCurrent() (charge, current float64, err error)

	// GetLosses reads the loss monitors; unreadable monitors are NaN.
	GetLosses() []float64

	// GetPresetSettings returns preset groups for the GUI's quick-load buttons.
	GetPresetSettings() map[string][]Preset

	// GetQuickAddDevices returns ordered device groups for the GUI.
	GetQuickAddDevices() []DeviceGroup

	// GetPlotAttrs returns the objective attributes shown on plot 1.
	GetPlotAttrs() []PlotAttr

	// WriteData flattens and persists one run, returning the saved filename.
	WriteData(methodName string, objective *Objective, devices []*Device, maximization bool, maxIter int) (string, error)
}
