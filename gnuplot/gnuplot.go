// Package gnuplot renders plots by driving an external gnuplot binary
// with generated scripts and data files.
package gnuplot

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"text/template"
)

// Missing is the placeholder written for absent values. Scripts that read
// files produced by WriteTable should declare it with "set datafile missing".
const Missing = "?"

// WriteTable writes rows as a tab-separated data file readable by gnuplot
// and returns its path. NaN cells become the Missing marker. The caller is
// responsible for removing the file.
func WriteTable(rows [][]float64) (string, error) {
	f, err := os.CreateTemp("", "epicurve-data-*.dat")
	if err != nil {
		return "", fmt.Errorf("create data file: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, row := range rows {
		for j, v := range row {
			if j > 0 {
				w.WriteByte('\t')
			}
			if math.IsNaN(v) {
				w.WriteString(Missing)
			} else {
				w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
			}
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write data file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close data file: %w", err)
	}
	return f.Name(), nil
}

// ExecTemplate fills tmpl with data, writes the result to a temporary
// script and runs gnuplot on it. gnuplot's output is folded into the
// returned error.
func ExecTemplate(tmpl string, data any) error {
	t, err := template.New("plot").Parse(tmpl)
	if err != nil {
		return fmt.Errorf("parse plot template: %w", err)
	}

	f, err := os.CreateTemp("", "epicurve-plot-*.gp")
	if err != nil {
		return fmt.Errorf("create script file: %w", err)
	}
	defer os.Remove(f.Name())

	if err := t.Execute(f, data); err != nil {
		f.Close()
		return fmt.Errorf("render plot template: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close script file: %w", err)
	}

	out, err := exec.Command("gnuplot", f.Name()).CombinedOutput()
	if err != nil {
		return fmt.Errorf("run gnuplot: %v (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}
