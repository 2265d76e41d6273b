// Package posterior reduces raw draws to credible bands and parameter
// tables, and writes both as CSV.
package posterior

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/stat"

	"epicurve/mcmc"
)

// Band is the posterior summary of one generated time point. Observed is
// NaN when no observation exists at T.
type Band struct {
	T        int
	Mean     float64
	Lower    float64
	Upper    float64
	Observed float64
}

// ParamSummary is the posterior summary of one scalar parameter.
type ParamSummary struct {
	Name  string
	Mean  float64
	SD    float64
	Lower float64
	Upper float64
}

// Summarize reduces a generated series to one credible band per time point.
// ts labels the series entries in order. obs supplies observed counts keyed
// by those labels and is left-joined: a point with no observation gets NaN.
func Summarize(ds *mcmc.DrawSet, quantity string, ts []int, obs map[int]float64, lo, hi float64) ([]Band, error) {
	// 1. Validate the request.
	if err := checkQuantiles(lo, hi); err != nil {
		return nil, err
	}
	_, n, ok := ds.Series(quantity)
	if !ok {
		return nil, fmt.Errorf("unknown series %q", quantity)
	}
	if len(ts) != n {
		return nil, fmt.Errorf("series %q has %d points but %d time labels", quantity, n, len(ts))
	}

	// 2. Reduce each column of the series to a band.
	bands := make([]Band, n)
	for i := 0; i < n; i++ {
		col, err := ds.Column(fmt.Sprintf("%s[%d]", quantity, i+1))
		if err != nil {
			return nil, err
		}
		b := Band{
			T:        ts[i],
			Mean:     stat.Mean(col, nil),
			Lower:    quantile(col, lo),
			Upper:    quantile(col, hi),
			Observed: math.NaN(),
		}
		if v, found := obs[ts[i]]; found {
			b.Observed = v
		}
		bands[i] = b
	}
	return bands, nil
}

// SummarizeParams tabulates the scalar model parameters of a draw set.
func SummarizeParams(ds *mcmc.DrawSet, lo, hi float64) ([]ParamSummary, error) {
	if err := checkQuantiles(lo, hi); err != nil {
		return nil, err
	}
	names := ds.ParamNames()
	rows := make([]ParamSummary, len(names))
	for i, name := range names {
		col, err := ds.Column(name)
		if err != nil {
			return nil, err
		}
		rows[i] = ParamSummary{
			Name:  name,
			Mean:  stat.Mean(col, nil),
			SD:    stat.StdDev(col, nil),
			Lower: quantile(col, lo),
			Upper: quantile(col, hi),
		}
	}
	return rows, nil
}

func checkQuantiles(lo, hi float64) error {
	if !(0 <= lo && lo < hi && hi <= 1) {
		return fmt.Errorf("invalid quantile pair (%v, %v)", lo, hi)
	}
	return nil
}

// quantile computes the q-quantile of a slice using linear interpolation
// between order statistics.
func quantile(data []float64, q float64) float64 {
	n := len(data)
	if n == 0 {
		return math.NaN()
	}
	sorted := make([]float64, n)
	copy(sorted, data)
	sort.Float64s(sorted)

	pos := q * float64(n-1)
	low := int(math.Floor(pos))
	high := int(math.Ceil(pos))
	if low == high {
		return sorted[low]
	}
	w := pos - float64(low)
	return sorted[low]*(1-w) + sorted[high]*w
}

// PrintParams writes the parameter table to standard output.
func PrintParams(rows []ParamSummary) {
	fmt.Printf("%-14s %12s %12s %12s %12s\n", "parameter", "mean", "sd", "lower", "upper")
	for _, r := range rows {
		fmt.Printf("%-14s %12.4f %12.4f %12.4f %12.4f\n", r.Name, r.Mean, r.SD, r.Lower, r.Upper)
	}
}

// WriteBandsCSV writes credible bands as CSV, one row per time point.
func WriteBandsCSV(path string, bands []Band) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"t", "mean", "lower", "upper", "observed"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, b := range bands {
		record := []string{
			fmt.Sprintf("%d", b.T),
			fmt.Sprintf("%f", b.Mean),
			fmt.Sprintf("%f", b.Lower),
			fmt.Sprintf("%f", b.Upper),
			fmt.Sprintf("%f", b.Observed),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row t=%d: %w", b.T, err)
		}
	}
	return nil
}

// WriteParamsCSV writes the parameter table as CSV.
func WriteParamsCSV(path string, rows []ParamSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"parameter", "mean", "sd", "lower", "upper"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.Name,
			fmt.Sprintf("%f", r.Mean),
			fmt.Sprintf("%f", r.SD),
			fmt.Sprintf("%f", r.Lower),
			fmt.Sprintf("%f", r.Upper),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row %s: %w", r.Name, err)
		}
	}
	return nil
}

// WriteDrawsCSV dumps every surviving chain's draws with a leading chain
// column, mainly for external diagnostics.
func WriteDrawsCSV(path string, ds *mcmc.DrawSet) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := append([]string{"chain"}, ds.Names...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(header))
	for _, c := range ds.Kept() {
		rows, cols := c.Draws.Dims()
		for i := 0; i < rows; i++ {
			record[0] = fmt.Sprintf("%d", c.ID)
			for j := 0; j < cols; j++ {
				record[j+1] = fmt.Sprintf("%f", c.Draws.At(i, j))
			}
			if err := w.Write(record); err != nil {
				return fmt.Errorf("write chain %d row %d: %w", c.ID, i, err)
			}
		}
	}
	return nil
}
