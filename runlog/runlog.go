/*Package runlog persists optimization run traces.

A run arrives as a flat mapping from (already sanitized) key to either a
float64 series or a scalar.  The FITS saver is the production backend and
writes one file per run: series become columns of a DATA binary table,
scalars become rows of a META table, and a checksum of the series payload
is recorded in the primary header.  Sim is the fallback backend and dumps
the mapping as JSON; it is also what runs when the machine is simulated.

An Index can sit alongside either saver to keep a queryable SQLite catalog
of saved runs for the GUI's run browser.
*/
package runlog

import (
	"fmt"
	"sort"
)

// A Saver persists one run and returns the name of the file it created.
type Saver interface {
	Save(name string, data map[string]interface{}, dir string) (string, error)
}

// split separates a flat run mapping into float series and scalar metadata.
// Series keys are returned sorted so output layouts are deterministic.
// Scalars are stringified; the legacy save format keeps everything textual.
func split(data map[string]interface{}) (keys []string, series map[string][]float64, meta map[string]string) {
	series = make(map[string][]float64)
	meta = make(map[string]string)
	for k, v := range data {
		switch t := v.(type) {
		case []float64:
			series[k] = t
			keys = append(keys, k)
		case []string:
			meta[k] = fmt.Sprint(t)
		default:
			meta[k] = fmt.Sprint(t)
		}
	}
	sort.Strings(keys)
	return keys, series, meta
}

// rowCount returns the longest series length; shorter series are padded
// with NaN by the savers.
func rowCount(keys []string, series map[string][]float64) int {
	n := 0
	for _, k := range keys {
		if l := len(series[k]); l > n {
			n = l
		}
	}
	return n
}
