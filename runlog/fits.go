package runlog

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/snksoft/crc"
)

var crcTable = crc.NewTable(crc.XMODEM)

// FITS saves runs as FITS files, the archival format used for other lab
// data products.  The zero value is ready to use.
type FITS struct {
	// Clock returns the current time; overridable for tests.  Nil means
	// time.Now.
	Clock func() time.Time
}

// Save writes the run to dir as <name>-<timestamp>.fits and returns the
// full path of the file.
func (f FITS) Save(name string, data map[string]interface{}, dir string) (string, error) {
	now := time.Now
	if f.Clock != nil {
		now = f.Clock
	}
	keys, series, meta := split(data)
	nrows := rowCount(keys, series)

	filename := filepath.Join(dir, fmt.Sprintf("%s-%s.fits", name, now().Format("2006-01-02-150405")))
	fid, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	defer fid.Close()
	fits, err := fitsio.Create(fid)
	if err != nil {
		return "", err
	}
	defer fits.Close()

	// empty primary HDU carrying run-level cards
	primary := fitsio.NewImage(8, []int{})
	defer primary.Close()
	err = primary.Header().Append(
		fitsio.Card{Name: "RUNNAME", Value: name, Comment: "optimization run name"},
		fitsio.Card{Name: "NSERIES", Value: len(keys), Comment: "number of recorded series"},
		fitsio.Card{Name: "NPOINTS", Value: nrows, Comment: "rows in the DATA table"},
		fitsio.Card{Name: "RUNCRC", Value: int(Checksum(data)), Comment: "CRC-16/XMODEM of series payload"},
		fitsio.Card{Name: "SAVED", Value: now().Format(time.RFC3339), Comment: "save time"},
	)
	if err != nil {
		return "", err
	}
	if err := fits.Write(primary); err != nil {
		return "", err
	}

	if len(keys) > 0 {
		cols := make([]fitsio.Column, len(keys))
		for i, k := range keys {
			cols[i] = fitsio.Column{Name: k, Format: "D"}
		}
		tbl, err := fitsio.NewTable("DATA", cols, fitsio.BINARY_TBL)
		if err != nil {
			return "", err
		}
		defer tbl.Close()
		// rows are written positionally, arguments following the column order
		for i := 0; i < nrows; i++ {
			vals := make([]float64, len(keys))
			args := make([]interface{}, len(keys))
			for j, k := range keys {
				s := series[k]
				if i < len(s) {
					vals[j] = s[i]
				} else {
					vals[j] = math.NaN()
				}
				args[j] = &vals[j]
			}
			if err := tbl.Write(args...); err != nil {
				return "", err
			}
		}
		if err := fits.Write(tbl); err != nil {
			return "", err
		}
	}

	if len(meta) > 0 {
		mcols := []fitsio.Column{
			{Name: "key", Format: "80A"},
			{Name: "value", Format: "80A"},
		}
		mtbl, err := fitsio.NewTable("META", mcols, fitsio.BINARY_TBL)
		if err != nil {
			return "", err
		}
		defer mtbl.Close()
		mkeys := make([]string, 0, len(meta))
		for k := range meta {
			mkeys = append(mkeys, k)
		}
		sort.Strings(mkeys)
		for _, k := range mkeys {
			key, value := k, meta[k]
			if err := mtbl.Write(&key, &value); err != nil {
				return "", err
			}
		}
		if err := fits.Write(mtbl); err != nil {
			return "", err
		}
	}

	return filename, nil
}

// Checksum computes the CRC-16/XMODEM of the run's series payload.  The
// walk order is deterministic (sorted keys, row-major float64 big endian)
// so a run always hashes the same regardless of map iteration order.
func Checksum(data map[string]interface{}) uint16 {
	keys, series, _ := split(data)
	c := crcTable.InitCrc()
	buf := make([]byte, 8)
	for _, k := range keys {
		c = crcTable.UpdateCrc(c, []byte(k))
		for _, v := range series[k] {
			binary.BigEndian.PutUint64(buf, math.Float64bits(v))
			c = crcTable.UpdateCrc(c, buf)
		}
	}
	return crcTable.CRC16(c)
}
