package mint

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cr-xu/optimizer/runlog"
)

// runName is the base name of saved run files, kept from the legacy
// logging convention so downstream analysis scripts keep working.
const runName = "OcelotScan"

// sanitizeKey rewrites a PV name into a key the legacy save format
// accepts: colons are not valid in matlab struct fields.
func sanitizeKey(key string) string {
	return strings.ReplaceAll(key, ":", "_")
}

// trimDuplicatedFirstPoint drops the first point of every objective series
// when the device traces are one shorter than the objective traces.  The
// acquisition loop records the starting objective reading before the first
// device move, so the first point is a duplicate.
func trimDuplicatedFirstPoint(obj *Objective, devices []*Device) bool {
	if len(devices) == 0 {
		return false
	}
	devLen := len(devices[len(devices)-1].Values)
	if devLen >= len(obj.Values) {
		return false
	}
	trim := func(s []float64) []float64 {
		if len(s) == 0 {
			return s
		}
		return s[1:]
	}
	obj.Values = trim(obj.Values)
	obj.Means = trim(obj.Means)
	obj.Acquisitions = trim(obj.Acquisitions)
	obj.Times = trim(obj.Times)
	obj.StdDev = trim(obj.StdDev)
	obj.Charge = trim(obj.Charge)
	obj.Current = trim(obj.Current)
	if len(obj.Losses) > 0 {
		obj.Losses = obj.Losses[1:]
	}
	obj.Niter--
	return true
}

// flatten builds the legacy flat save mapping for one run.  Keys are
// sanitized PV names or well-known detector fields; values are float64
// series or scalar metadata.
func (b *BESSY) flatten(methodName string, obj *Objective, devices []*Device, maximization bool, maxIter int) map[string]interface{} {
	data := make(map[string]interface{})

	data[obj.EID] = obj.Means           // mean series under the objective PV, for compat
	data["DetectorAll"] = obj.Acquisitions
	data["DetectorStat"] = obj.Values
	data["DetectorStd"] = obj.StdDev
	data["timestamps"] = obj.Times
	data["charge"] = obj.Charge
	data["current"] = obj.Current
	data["stat_name"] = obj.StatName

	pvList := make([]string, len(devices))
	for i, dev := range devices {
		pvList[i] = dev.EID
		data[dev.EID] = dev.Values
	}
	data["pv_list"] = pvList

	// split loss rows into one column per monitor
	for i, lossPV := range b.lossPVs {
		col := make([]float64, len(obj.Losses))
		for j, row := range obj.Losses {
			if i < len(row) {
				col[j] = row[i]
			} else {
				col[j] = math.NaN()
			}
		}
		data[lossPV] = col
	}

	// legacy format cannot carry colons in keys
	for key, v := range data {
		clean := sanitizeKey(key)
		if clean != key {
			delete(data, key)
			data[clean] = v
		}
	}

	energy, err := b.GetEnergy()
	if err != nil {
		energy = math.NaN()
	}
	data[sanitizeKey(b.energyPV)] = energy
	data["Energy"] = energy
	data["MachineInterface"] = b.Name()
	data["ScanAlgorithm"] = methodName
	data["ObjFuncPv"] = obj.EID
	// reminder of which series holds the mean
	data["DetectorMean"] = sanitizeKey(obj.EID)
	data["niter"] = obj.Niter
	data["Maximization"] = maximization
	data["MaxIterations"] = maxIter

	return data
}

// WriteData flattens one run and persists it, falling back to the
// simulation saver if the primary saver fails.  The filename written is
// returned and remembered for LastFilename.
func (b *BESSY) WriteData(methodName string, obj *Objective, devices []*Device, maximization bool, maxIter int) (string, error) {
	if obj == nil {
		return "", fmt.Errorf("write data: nil objective")
	}
	b.log.Info().Str("method", methodName).Str("objective", obj.EID).Msg("write data")

	trimmed := trimDuplicatedFirstPoint(obj, devices)
	if trimmed {
		b.log.Debug().Msg("dropped duplicated first objective point")
	}

	data := b.flatten(methodName, obj, devices, maximization, maxIter)

	if len(obj.Means) > 0 {
		b.mu.Lock()
		b.detValStart = obj.Means[0]
		b.detValStop = obj.Means[len(obj.Means)-1]
		b.mu.Unlock()
	}

	filename, err := b.saver.Save(runName, data, b.savePath)
	if err != nil {
		b.log.Warn().Err(err).Msg("primary saver failed, reverting to simlog")
		filename, err = b.fallback.Save(runName, data, b.savePath)
		if err != nil {
			return "", fmt.Errorf("write data: %w", err)
		}
	}

	if b.index != nil {
		rec := runlog.Record{
			Name:       runName,
			File:       filename,
			Algorithm:  methodName,
			Objective:  obj.EID,
			Iterations: obj.Niter,
			Checksum:   runlog.Checksum(data),
			SavedAt:    time.Now(),
		}
		if err := b.index.Record(rec); err != nil {
			// cataloging is best effort; the archive on disk is the record
			b.log.Warn().Err(err).Msg("could not index saved run")
		}
	}

	b.log.Info().Str("file", filename).Msg("saved scan data")
	b.mu.Lock()
	b.lastFilename = filename
	b.mu.Unlock()
	return filename, nil
}

// DetectorValues returns the objective mean at the start and end of the
// last saved run.
func (b *BESSY) DetectorValues() (start, stop float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.detValStart, b.detValStop
}
