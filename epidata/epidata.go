// Package epidata loads the wide per-region case-count CSV published by the
// Johns Hopkins CSSE repository and reshapes it into the long form the
// models consume.
package epidata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Normalized names of the non-date columns in the wide format.
const (
	colProvince = "province_state"
	colCountry  = "country_region"
	colLat      = "lat"
	colLong     = "long"
)

// datePrefix is what NormalizeName puts in front of a header that starts
// with a digit, which in this format is exactly the date columns.
const datePrefix = "x"

// dateLayout parses the normalized month_day_year column names,
// e.g. "1_22_20".
const dateLayout = "1_2_06"

// Observation is one cell of the reshaped long table: the cumulative
// confirmed case count for one region on one calendar day.
type Observation struct {
	Region string
	Date   time.Time
	Cases  float64
}

// LoadWideCSV reads the wide time-series file at path and reshapes it to
// long form. One wide row becomes one Observation per date column.
func LoadWideCSV(path string) ([]Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	obs, err := ReadWide(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %v", path, err)
	}
	return obs, nil
}

// ReadWide parses wide CSV content and reshapes it to long form. The header
// must carry the province/state, country/region, lat and long columns plus
// at least one date column; every remaining column name must parse as a
// date after normalization.
func ReadWide(r io.Reader) ([]Observation, error) {
	// 1. Make CSV reader
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	// 2. Read and normalize header row
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("empty header")
	}
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = NormalizeName(h)
	}

	// 3. Locate the metadata columns
	meta := map[string]int{
		colProvince: -1,
		colCountry:  -1,
		colLat:      -1,
		colLong:     -1,
	}
	for i, name := range names {
		if _, ok := meta[name]; ok {
			meta[name] = i
		}
	}
	for _, name := range []string{colProvince, colCountry, colLat, colLong} {
		if meta[name] < 0 {
			return nil, fmt.Errorf("missing expected column %q", name)
		}
	}

	// 4. Classify the remaining columns as date columns
	var (
		dateCols []int
		dates    []time.Time
	)
	for i, name := range names {
		if i == meta[colProvince] || i == meta[colCountry] ||
			i == meta[colLat] || i == meta[colLong] {
			continue
		}
		d, err := parseDateName(name)
		if err != nil {
			return nil, fmt.Errorf("column %d (%q): %v", i+1, header[i], err)
		}
		dateCols = append(dateCols, i)
		dates = append(dates, d)
	}
	if len(dateCols) == 0 {
		return nil, fmt.Errorf("no date columns in header")
	}

	// 5. Read each region row and emit one observation per date
	var (
		obs []Observation
		row int
	)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+2, err)
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d",
				row+2, len(header), len(record))
		}

		region := regionKey(record[meta[colCountry]], record[meta[colProvince]])
		for k, col := range dateCols {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
			if err != nil {
				return nil, fmt.Errorf("parse cases at row %d col %d (%q): %w",
					row+2, col+1, record[col], err)
			}
			obs = append(obs, Observation{Region: region, Date: dates[k], Cases: v})
		}
		row++
	}
	if row == 0 {
		return nil, fmt.Errorf("no data rows")
	}

	return obs, nil
}

// NormalizeName cleans a header name the way the wide format expects:
// lower case, every run of non-alphanumerics collapsed to one underscore,
// no leading or trailing underscore, and an "x" prefix when the result
// would start with a digit.
func NormalizeName(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	out := b.String()
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = datePrefix + out
	}
	return out
}

// parseDateName turns a normalized date column name like "x1_22_20" into
// its calendar date.
func parseDateName(name string) (time.Time, error) {
	if !strings.HasPrefix(name, datePrefix) {
		return time.Time{}, fmt.Errorf("not a date column after normalization")
	}
	d, err := time.Parse(dateLayout, strings.TrimPrefix(name, datePrefix))
	if err != nil {
		return time.Time{}, fmt.Errorf("not a parseable date column: %v", err)
	}
	return d, nil
}

// regionKey builds the row's region identifier. Countries reported as a
// single row keep their plain name; sub-national rows get a compound key so
// provinces with the same name in different countries stay distinct.
func regionKey(country, province string) string {
	country = strings.TrimSpace(country)
	province = strings.TrimSpace(province)
	if province == "" {
		return country
	}
	return country + "/" + province
}

// Regions lists the distinct region identifiers in first-appearance order.
func Regions(obs []Observation) []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range obs {
		if !seen[o.Region] {
			seen[o.Region] = true
			out = append(out, o.Region)
		}
	}
	return out
}
