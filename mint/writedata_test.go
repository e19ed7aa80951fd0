package mint

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cr-xu/optimizer/ca"
)

// recordingSaver captures the flattened run it is handed.
type recordingSaver struct {
	name string
	data map[string]interface{}
	dir  string
	err  error
}

func (rs *recordingSaver) Save(name string, data map[string]interface{}, dir string) (string, error) {
	rs.name = name
	rs.data = data
	rs.dir = dir
	if rs.err != nil {
		return "", rs.err
	}
	return filepath.Join(dir, name+".fits"), nil
}

func sampleObjective() *Objective {
	return &Objective{
		EID:          "SIOC:SYS0:ML00:CALC252",
		Values:       []float64{1, 2, 3},
		Means:        []float64{1.1, 2.1, 3.1},
		Acquisitions: []float64{1.2, 2.2, 3.2},
		StdDev:       []float64{0.1, 0.2, 0.3},
		Times:        []float64{100, 101, 102},
		Charge:       []float64{0.2, 0.2, 0.2},
		Current:      []float64{120, 121, 122},
		Losses:       [][]float64{{9, 19}, {8, 18}, {7, 17}},
		Niter:        3,
		StatName:     "median",
	}
}

func sampleDevices(n int) []*Device {
	return []*Device{
		{EID: "QUAD:IN20:361:BCTRL", Values: make([]float64, n)},
		{EID: "QUAD:IN20:371:BCTRL", Values: make([]float64, n)},
	}
}

func newRunWriter(t *testing.T, saver *recordingSaver, fallback *recordingSaver) *BESSY {
	t.Helper()
	sim := ca.NewSim()
	sim.Seed(DefaultEnergyPV, 13.6)
	cfg := Config{
		LossPVs:  []string{"BLM:A", "BLM:B"},
		SavePath: t.TempDir(),
		Saver:    saver,
	}
	if fallback != nil {
		cfg.Fallback = fallback
	}
	return New(sim, cfg)
}

func TestWriteDataFlattensRun(t *testing.T) {
	saver := &recordingSaver{}
	b := newRunWriter(t, saver, nil)
	obj := sampleObjective()

	fn, err := b.WriteData("simplex", obj, sampleDevices(3), false, 50)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(saver.dir, "OcelotScan.fits"), fn)
	assert.Equal(t, "OcelotScan", saver.name)
	assert.Equal(t, fn, b.LastFilename())

	data := saver.data
	// keys are sanitized: no colons anywhere
	for k := range data {
		assert.NotContains(t, k, ":")
	}
	assert.Equal(t, []float64{1.1, 2.1, 3.1}, data["SIOC_SYS0_ML00_CALC252"])
	assert.Equal(t, []float64{1, 2, 3}, data["DetectorStat"])
	assert.Equal(t, []float64{1.2, 2.2, 3.2}, data["DetectorAll"])
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, data["DetectorStd"])
	assert.Equal(t, []float64{100, 101, 102}, data["timestamps"])
	assert.Equal(t, "median", data["stat_name"])
	assert.Equal(t, []string{"QUAD:IN20:361:BCTRL", "QUAD:IN20:371:BCTRL"}, data["pv_list"])

	// loss rows split into per-monitor columns
	assert.Equal(t, []float64{9, 8, 7}, data["BLM_A"])
	assert.Equal(t, []float64{19, 18, 17}, data["BLM_B"])

	// run metadata
	assert.Equal(t, "BESSYMachineInterface", data["MachineInterface"])
	assert.Equal(t, "simplex", data["ScanAlgorithm"])
	assert.Equal(t, "SIOC:SYS0:ML00:CALC252", data["ObjFuncPv"])
	assert.Equal(t, "SIOC_SYS0_ML00_CALC252", data["DetectorMean"])
	assert.Equal(t, 13.6, data["Energy"])
	assert.Equal(t, 13.6, data["BEND_DMP1_400_BDES"])
	assert.Equal(t, 3, data["niter"])
	assert.Equal(t, false, data["Maximization"])
	assert.Equal(t, 50, data["MaxIterations"])

	start, stop := b.DetectorValues()
	assert.Equal(t, 1.1, start)
	assert.Equal(t, 3.1, stop)
}

func TestWriteDataTrimsDuplicatedFirstPoint(t *testing.T) {
	saver := &recordingSaver{}
	b := newRunWriter(t, saver, nil)
	obj := sampleObjective()

	// device traces one point shorter than the objective traces
	_, err := b.WriteData("gp", obj, sampleDevices(2), true, 10)
	require.NoError(t, err)

	assert.Equal(t, 2, obj.Niter)
	assert.Equal(t, []float64{2, 3}, obj.Values)
	assert.Equal(t, []float64{2.1, 3.1}, obj.Means)
	assert.Equal(t, []float64{2.2, 3.2}, obj.Acquisitions)
	assert.Equal(t, []float64{101, 102}, obj.Times)
	assert.Equal(t, []float64{0.2, 0.3}, obj.StdDev)
	assert.Equal(t, [][]float64{{8, 18}, {7, 17}}, obj.Losses)

	data := saver.data
	assert.Equal(t, 2, data["niter"])
	assert.Equal(t, []float64{8, 7}, data["BLM_A"])
	assert.Equal(t, []float64{2.1, 3.1}, data["SIOC_SYS0_ML00_CALC252"])
}

func TestWriteDataNoTrimWhenLengthsMatch(t *testing.T) {
	saver := &recordingSaver{}
	b := newRunWriter(t, saver, nil)
	obj := sampleObjective()

	_, err := b.WriteData("simplex", obj, sampleDevices(3), false, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, obj.Niter)
	assert.Len(t, obj.Values, 3)
}

func TestWriteDataNoDevices(t *testing.T) {
	saver := &recordingSaver{}
	b := newRunWriter(t, saver, nil)
	obj := sampleObjective()

	_, err := b.WriteData("simplex", obj, nil, false, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, obj.Niter, "no devices means no trim")
	assert.Equal(t, []string{}, saver.data["pv_list"])
}

func TestWriteDataFallsBackOnSaverFailure(t *testing.T) {
	saver := &recordingSaver{err: errors.New("matlog backend gone")}
	fallback := &recordingSaver{}
	b := newRunWriter(t, saver, fallback)

	fn, err := b.WriteData("simplex", sampleObjective(), sampleDevices(3), false, 10)
	require.NoError(t, err)
	assert.NotNil(t, fallback.data, "fallback saver was not invoked")
	assert.Equal(t, fn, b.LastFilename())
}

func TestWriteDataBothSaversFail(t *testing.T) {
	saver := &recordingSaver{err: errors.New("no disk")}
	fallback := &recordingSaver{err: errors.New("still no disk")}
	b := newRunWriter(t, saver, fallback)

	_, err := b.WriteData("simplex", sampleObjective(), sampleDevices(3), false, 10)
	assert.Error(t, err)
	assert.Empty(t, b.LastFilename())
}

func TestWriteDataNilObjective(t *testing.T) {
	b := newRunWriter(t, &recordingSaver{}, nil)
	_, err := b.WriteData("simplex", nil, nil, false, 0)
	assert.Error(t, err)
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "QUAD_IN20_361_BCTRL", sanitizeKey("QUAD:IN20:361:BCTRL"))
	assert.Equal(t, "timestamps", sanitizeKey("timestamps"))
}
