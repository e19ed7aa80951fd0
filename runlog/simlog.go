package runlog

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Sim is the fallback saver.  It dumps the flat run mapping as indented
// JSON, one file per run, mirroring what the simulated logging backend did
// at the facility when the real one could not be imported.
type Sim struct {
	Clock func() time.Time
}

// Save writes the run to dir as <name>-<timestamp>.json and returns the
// full path of the file.
func (s Sim) Save(name string, data map[string]interface{}, dir string) (string, error) {
	now := time.Now
	if s.Clock != nil {
		now = s.Clock
	}
	filename := filepath.Join(dir, fmt.Sprintf("%s-%s.json", name, now().Format("2006-01-02-150405")))
	f, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jsonSafe(data)); err != nil {
		return "", err
	}
	return filename, nil
}

// jsonSafe maps non-finite floats to null.  encoding/json rejects NaN, and
// NaN is a normal reading here: unreadable loss monitors and failed energy
// reads both produce it.
func jsonSafe(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		switch t := v.(type) {
		case float64:
			if math.IsNaN(t) || math.IsInf(t, 0) {
				out[k] = nil
				continue
			}
			out[k] = t
		case []float64:
			s := make([]interface{}, len(t))
			for i, f := range t {
				if math.IsNaN(f) || math.IsInf(f, 0) {
					s[i] = nil
					continue
				}
				s[i] = f
			}
			out[k] = s
		default:
			out[k] = v
		}
	}
	return out
}
