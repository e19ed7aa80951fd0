package mint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cr-xu/optimizer/ca"
)

func TestGetValueCreatesHandleOnFirstAccess(t *testing.T) {
	sim := ca.NewSim()
	sim.Seed("QUAD:IN20:361:BCTRL", 1.5)
	b := New(sim, Config{})

	assert.Equal(t, 0, b.CachedPVs())
	v, err := b.GetValue("QUAD:IN20:361:BCTRL")
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)
	assert.Equal(t, 1, b.CachedPVs())

	// handles are reused, not recreated
	_, err = b.GetValue("QUAD:IN20:361:BCTRL")
	require.NoError(t, err)
	assert.Equal(t, 1, b.CachedPVs())
}

func TestCacheGrowsAndNeverEvicts(t *testing.T) {
	sim := ca.NewSim()
	b := New(sim, Config{})
	pvs := []string{"A:1", "A:2", "A:3", "A:4"}
	for _, pv := range pvs {
		_, err := b.GetValue(pv)
		require.NoError(t, err)
	}
	assert.Equal(t, len(pvs), b.CachedPVs())
}

func TestSetValueWarmsUpBeforeWriting(t *testing.T) {
	sim := ca.NewSim()
	sim.Seed("QUAD:LI21:201:BCTRL", 7)
	b := New(sim, Config{})

	// first touch primes the handle without writing
	require.NoError(t, b.SetValue("QUAD:LI21:201:BCTRL", -1))
	v, err := sim.Get("QUAD:LI21:201:BCTRL")
	require.NoError(t, err)
	assert.Equal(t, 7.0, v, "first SetValue must not write")

	// second call goes through
	require.NoError(t, b.SetValue("QUAD:LI21:201:BCTRL", -1))
	v, err = sim.Get("QUAD:LI21:201:BCTRL")
	require.NoError(t, err)
	assert.Equal(t, -1.0, v)
}

func TestGettersReadTheirPVs(t *testing.T) {
	sim := ca.NewSim()
	sim.Seed(DefaultEnergyPV, 13.6)
	sim.Seed(DefaultChargePV, 0.25)
	sim.Seed(DefaultCurrentPV, 120.0)
	b := New(sim, Config{})

	e, err := b.GetEnergy()
	require.NoError(t, err)
	assert.Equal(t, 13.6, e)

	q, err := b.GetCharge()
	require.NoError(t, err)
	assert.Equal(t, 0.25, q)

	q, i, err := b.GetChargeCurrent()
	require.NoError(t, err)
	assert.Equal(t, 0.25, q)
	assert.Equal(t, 120.0, i)
}

func TestGetValueDisconnected(t *testing.T) {
	sim := ca.NewSim()
	sim.SetOffline("BLEN:LI24:886:BIMAX", true)
	b := New(sim, Config{})
	_, err := b.GetValue("BLEN:LI24:886:BIMAX")
	assert.ErrorIs(t, err, ca.ErrDisconnected)
}

func TestGetLossesBestEffort(t *testing.T) {
	sim := ca.NewSim()
	sim.Seed("BLM:1", 0.1)
	sim.Seed("BLM:3", 0.3)
	sim.SetOffline("BLM:2", true)
	b := New(sim, Config{LossPVs: []string{"BLM:1", "BLM:2", "BLM:3"}})

	losses := b.GetLosses()
	require.Len(t, losses, 3)
	assert.Equal(t, 0.1, losses[0])
	assert.True(t, math.IsNaN(losses[1]), "offline monitor reads NaN")
	assert.Equal(t, 0.3, losses[2])
}

func TestQuickAddDevicesKeepOrder(t *testing.T) {
	b := New(ca.NewSim(), Config{})
	groups := b.GetQuickAddDevices()
	require.NotEmpty(t, groups)
	assert.Equal(t, "IN20 M. Quads", groups[0].Name)
	assert.Equal(t, "DMD PVs", groups[len(groups)-1].Name)
}

func TestPlotAttrs(t *testing.T) {
	b := New(ca.NewSim(), Config{})
	attrs := b.GetPlotAttrs()
	require.Len(t, attrs, 2)
	assert.Equal(t, PlotAttr{Attribute: "values", Label: "statistics"}, attrs[0])
	assert.Equal(t, PlotAttr{Attribute: "objective_means", Label: "mean"}, attrs[1])
}

func TestPresetsDefaultEmpty(t *testing.T) {
	b := New(ca.NewSim(), Config{})
	assert.Empty(t, b.GetPresetSettings())

	b = New(ca.NewSim(), Config{Presets: map[string][]Preset{
		"QUADS Optimization": {{Display: "1. Launch QUADS", Filename: "sase1_1.json"}},
	}})
	assert.Len(t, b.GetPresetSettings()["QUADS Optimization"], 1)
}
