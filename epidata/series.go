package epidata

import (
	"sort"
	"time"
)

// Point is one step of a single-region series: the elapsed-time index, the
// calendar date, and the case value (cumulative or daily depending on the
// derivation that produced it).
type Point struct {
	T     int
	Date  time.Time
	Cases float64
}

// RegionSeries extracts the chronologically ordered cumulative series for
// one region. T is the whole-day offset from the region's first date.
func RegionSeries(obs []Observation, region string) []Point {
	var out []Point
	for _, o := range obs {
		if o.Region != region {
			continue
		}
		out = append(out, Point{Date: o.Date, Cases: o.Cases})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	for i := range out {
		out[i].T = dayOffset(out[0].Date, out[i].Date)
	}
	return out
}

// AboveThreshold keeps the points whose case count strictly exceeds the
// threshold and re-derives T as the whole-day offset from the first
// retained date. A region that never crosses the threshold comes back
// empty; that is not an error.
func AboveThreshold(series []Point, threshold float64) []Point {
	var out []Point
	var first time.Time
	for _, p := range series {
		if p.Cases <= threshold {
			continue
		}
		if len(out) == 0 {
			first = p.Date
		}
		p.T = dayOffset(first, p.Date)
		out = append(out, p)
	}
	return out
}

// DailyDeltas turns a cumulative series into day-over-day new cases. The
// first point has no predecessor and is dropped. Negative deltas from
// reporting corrections are kept as-is.
func DailyDeltas(series []Point) []Point {
	if len(series) < 2 {
		return nil
	}
	out := make([]Point, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		p := series[i]
		p.Cases = series[i].Cases - series[i-1].Cases
		out = append(out, p)
	}
	return out
}

func dayOffset(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
